package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, diags := Parse(src)
	require.False(t, diag.HasErrors(diags), "unexpected diagnostics for %q: %v", src, diags)
	return prog
}

func TestParseVarDecl(t *testing.T) {
	prog := parseOK(t, `var x = 42`)
	require.Len(t, prog.Statements, 1)
	d, ok := prog.Statements[0].(*ast.VarDecl)
	require.True(t, ok)
	assert.Equal(t, "x", d.Name)
	assert.Equal(t, "", d.TypeHint)
	lit, ok := d.Init.(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, 42.0, lit.Num)
	assert.False(t, lit.NumForceFloat)
}

func TestParseTypedVarDecl(t *testing.T) {
	prog := parseOK(t, `var n: number = "6"`)
	d := prog.Statements[0].(*ast.VarDecl)
	assert.Equal(t, "number", d.TypeHint)
}

func TestParseVarDeclWithoutInit(t *testing.T) {
	prog := parseOK(t, `var x`)
	d := prog.Statements[0].(*ast.VarDecl)
	assert.Nil(t, d.Init)
}

func TestForceFloatPreserved(t *testing.T) {
	prog := parseOK(t, `var a = 6.0
var b = 6
var c = 1e3`)
	assert.True(t, prog.Statements[0].(*ast.VarDecl).Init.(*ast.Literal).NumForceFloat)
	assert.False(t, prog.Statements[1].(*ast.VarDecl).Init.(*ast.Literal).NumForceFloat)
	assert.True(t, prog.Statements[2].(*ast.VarDecl).Init.(*ast.Literal).NumForceFloat)
}

func TestParsePropertyAssignment(t *testing.T) {
	prog := parseOK(t, `Data.greeting = 'Hello, ' + Data.name + '!'`)
	require.Len(t, prog.Statements, 1)
	a := prog.Statements[0].(*ast.Assignment)
	assert.Equal(t, ast.AssignSet, a.Op)
	pa, ok := a.Target.(*ast.PropertyAccess)
	require.True(t, ok)
	assert.Equal(t, "greeting", pa.Name)
	// '+' chains are left-associative.
	add := a.Value.(*ast.Binary)
	assert.Equal(t, ast.OpAdd, add.Op)
	inner := add.Left.(*ast.Binary)
	assert.Equal(t, ast.OpAdd, inner.Op)
}

func TestDottedChainsAreNestedAccessNodes(t *testing.T) {
	prog := parseOK(t, `var x = Data.a.b`)
	d := prog.Statements[0].(*ast.VarDecl)
	outer := d.Init.(*ast.PropertyAccess)
	assert.Equal(t, "b", outer.Name)
	inner := outer.Target.(*ast.PropertyAccess)
	assert.Equal(t, "a", inner.Name)
	_, isIdent := inner.Target.(*ast.Identifier)
	assert.True(t, isIdent)
}

func TestPrecedence(t *testing.T) {
	// coalesce binds tighter than *, which binds tighter than +.
	prog := parseOK(t, `var x = 1 + 2 * 3 ?? 4`)
	add := prog.Statements[0].(*ast.VarDecl).Init.(*ast.Binary)
	require.Equal(t, ast.OpAdd, add.Op)
	mul := add.Right.(*ast.Binary)
	require.Equal(t, ast.OpMul, mul.Op)
	co := mul.Right.(*ast.Binary)
	assert.Equal(t, ast.OpCoalesce, co.Op)
}

func TestLogicalPrecedence(t *testing.T) {
	// or is lowest: (a and b) or c
	prog := parseOK(t, `var a = true
var b = false
var c = true
var x = a and b or c`)
	or := prog.Statements[3].(*ast.VarDecl).Init.(*ast.Binary)
	require.Equal(t, ast.OpOr, or.Op)
	and := or.Left.(*ast.Binary)
	assert.Equal(t, ast.OpAnd, and.Op)
}

func TestTernary(t *testing.T) {
	prog := parseOK(t, `var x = 1 < 2 ? "yes" : "no"`)
	tern, ok := prog.Statements[0].(*ast.VarDecl).Init.(*ast.Ternary)
	require.True(t, ok)
	cmp := tern.Cond.(*ast.Binary)
	assert.Equal(t, ast.OpLt, cmp.Op)
}

func TestIfElseifElseDesugaring(t *testing.T) {
	prog := parseOK(t, `var x = 1
if x == 1 then
  x = 2
elseif x == 2 then
  x = 3
elseif x == 3 then
  x = 4
else
  x = 5
end`)
	s := prog.Statements[1].(*ast.If)
	assert.Len(t, s.Branches, 3)
	require.NotNil(t, s.Else)
	assert.Len(t, s.Else, 1)
}

func TestWhile(t *testing.T) {
	prog := parseOK(t, `var i = 0
while i < 10 do
  i = i + 1
end`)
	w := prog.Statements[1].(*ast.While)
	assert.Len(t, w.Body, 1)
}

func TestForEach(t *testing.T) {
	prog := parseOK(t, `foreach o in Data.orders do
  Data.last = o
end`)
	fe := prog.Statements[0].(*ast.ForEach)
	assert.Equal(t, "o", fe.Var)
}

func TestRangeFor(t *testing.T) {
	prog := parseOK(t, `for i = 5 to 1 by -2 do
  Data.i = i
end`)
	f := prog.Statements[0].(*ast.For)
	assert.Equal(t, "i", f.Var)
	assert.False(t, f.Descending)
	require.NotNil(t, f.Step)
	neg := f.Step.(*ast.Unary)
	assert.Equal(t, ast.OpNegate, neg.Op)
}

func TestRangeForDownto(t *testing.T) {
	prog := parseOK(t, `for i = 10 downto 1 do
end`)
	f := prog.Statements[0].(*ast.For)
	assert.True(t, f.Descending)
	assert.Nil(t, f.Step)
}

func TestSwitch(t *testing.T) {
	prog := parseOK(t, `switch Data.kind
case "a", "b":
  Data.x = 1
case "c":
  Data.x = 2
default:
  Data.x = 3
end`)
	s := prog.Statements[0].(*ast.Switch)
	require.Len(t, s.Cases, 2)
	assert.Len(t, s.Cases[0].Values, 2)
	require.NotNil(t, s.Default)
}

func TestReturnWithAndWithoutValue(t *testing.T) {
	prog := parseOK(t, `return 42`)
	r := prog.Statements[0].(*ast.Return)
	require.NotNil(t, r.Value)

	prog = parseOK(t, "return\nvar x = 1")
	r = prog.Statements[0].(*ast.Return)
	assert.Nil(t, r.Value, "value on the next line belongs to the next statement")
	assert.Len(t, prog.Statements, 2)
}

func TestFail(t *testing.T) {
	prog := parseOK(t, `fail "bad"`)
	f := prog.Statements[0].(*ast.Fail)
	assert.Equal(t, "bad", f.Message.(*ast.Literal).Str)
}

func TestCallAndIndexing(t *testing.T) {
	prog := parseOK(t, `var a = []
Append(a, 1)
var x = a[0]
var y = Data["a.b"]`)
	call := prog.Statements[1].(*ast.ExprStmt).X.(*ast.Call)
	assert.Equal(t, "Append", call.Callee)
	assert.Len(t, call.Args, 2)

	ia := prog.Statements[3].(*ast.VarDecl).Init.(*ast.IndexAccess)
	assert.Equal(t, "a.b", ia.Index.(*ast.Literal).Str)
}

func TestObjectAndArrayLiterals(t *testing.T) {
	prog := parseOK(t, `var o = {name: "x", "dotted.key": 2}
var a = [1, 2, 3]`)
	ol := prog.Statements[0].(*ast.VarDecl).Init.(*ast.ObjectLiteral)
	require.Len(t, ol.Entries, 2)
	assert.Equal(t, "dotted.key", ol.Entries[1].Key)
	al := prog.Statements[1].(*ast.VarDecl).Init.(*ast.ArrayLiteral)
	assert.Len(t, al.Elements, 3)
}

func TestLambda(t *testing.T) {
	prog := parseOK(t, `var double = |x| x * 2`)
	lam := prog.Statements[0].(*ast.VarDecl).Init.(*ast.Lambda)
	assert.Equal(t, []string{"x"}, lam.Params)
}

func TestTypeCheckExpr(t *testing.T) {
	prog := parseOK(t, `var a = Data is object
var b = Data is not null`)
	tc := prog.Statements[0].(*ast.VarDecl).Init.(*ast.TypeCheck)
	assert.Equal(t, "object", tc.Type)
	assert.False(t, tc.Negate)
	tc2 := prog.Statements[1].(*ast.VarDecl).Init.(*ast.TypeCheck)
	assert.Equal(t, "null", tc2.Type)
	assert.True(t, tc2.Negate)
}

func TestIncrementDecrement(t *testing.T) {
	prog := parseOK(t, `var i = 0
i++
--i`)
	post := prog.Statements[1].(*ast.ExprStmt).X.(*ast.IncrementDecrement)
	assert.Equal(t, ast.OpIncrement, post.Op)
	assert.False(t, post.Prefix)
	pre := prog.Statements[2].(*ast.ExprStmt).X.(*ast.IncrementDecrement)
	assert.Equal(t, ast.OpDecrement, pre.Op)
	assert.True(t, pre.Prefix)
}

func TestCompoundAssignment(t *testing.T) {
	prog := parseOK(t, `var t = 0
t += 5`)
	a := prog.Statements[1].(*ast.Assignment)
	assert.Equal(t, ast.AssignAddTo, a.Op)
}

func TestCoalesceOperator(t *testing.T) {
	prog := parseOK(t, `var x = Data.missing ?? "default"`)
	b := prog.Statements[0].(*ast.VarDecl).Init.(*ast.Binary)
	assert.Equal(t, ast.OpCoalesce, b.Op)
}

func TestMissingEndReported(t *testing.T) {
	_, diags := Parse(`if true then
  var x = 1`)
	assert.True(t, diag.HasErrors(diags))
}

func TestUnexpectedTokenReported(t *testing.T) {
	_, diags := Parse(`var = 5`)
	assert.True(t, diag.HasErrors(diags))
}

func TestMultipleErrorsCollected(t *testing.T) {
	_, diags := Parse("var = 1\nvar = 2")
	errs := 0
	for _, d := range diags {
		if d.Severity == diag.SeverityError {
			errs++
		}
	}
	assert.GreaterOrEqual(t, errs, 2, "parser should recover and report both")
}

func TestPositionsRecorded(t *testing.T) {
	prog := parseOK(t, "var x = 1\nvar y = 2")
	p := prog.Statements[1].Pos()
	assert.Equal(t, 2, p.Line)
	assert.Equal(t, 1, p.Column)
}

func TestLineCommentsIgnored(t *testing.T) {
	prog := parseOK(t, `// setup
var x = 1 // trailing
// done`)
	assert.Len(t, prog.Statements, 1)
}
