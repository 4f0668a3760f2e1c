// Package validator implements Jyro's semantic validation pass: a single
// walk over the parsed AST that checks variable scoping and redeclaration,
// assignment targets, break/continue placement, loop-nesting depth, and
// reachability. All problems are collected and reported together; the
// pipeline aborts on any Error-severity diagnostic, which guarantees the
// corresponding runtime error can never be reached.
package validator

import (
	"strconv"

	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
)

// maxRecommendedLoopNesting is the loop depth beyond which the validator
// emits an ExcessiveLoopNesting warning.
const maxRecommendedLoopNesting = 3

// Validator tracks the lexical scope stack and control-flow nesting while
// walking a program.
type Validator struct {
	builtins    map[string]bool
	scopes      []map[string]bool
	loopDepth   int
	switchDepth int

	diagnostics []diag.Diagnostic
}

// New creates a Validator. builtins are the always-available host names;
// `Data` is included whether or not the caller lists it.
func New(builtins ...string) *Validator {
	b := map[string]bool{"Data": true}
	for _, name := range builtins {
		b[name] = true
	}
	return &Validator{builtins: b}
}

// Validate walks prog and returns every diagnostic found. The program is
// safe to link and compile only when diag.HasErrors reports false.
func Validate(prog *ast.Program, builtins ...string) []diag.Diagnostic {
	v := New(builtins...)
	v.pushScope()
	v.validateBlock(prog.Statements)
	v.popScope()
	return v.diagnostics
}

func (v *Validator) pushScope() {
	v.scopes = append(v.scopes, map[string]bool{})
}

func (v *Validator) popScope() {
	v.scopes = v.scopes[:len(v.scopes)-1]
}

func (v *Validator) declare(name string) bool {
	top := v.scopes[len(v.scopes)-1]
	if top[name] || v.builtins[name] {
		return false
	}
	top[name] = true
	return true
}

func (v *Validator) isDeclared(name string) bool {
	if v.builtins[name] {
		return true
	}
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if v.scopes[i][name] {
			return true
		}
	}
	return false
}

func (v *Validator) errorAt(code diag.Code, pos ast.Position, args ...string) {
	v.diagnostics = append(v.diagnostics, diag.Error(code, diag.StageValidation,
		diag.Position{Line: pos.Line, Column: pos.Column}, args...))
}

func (v *Validator) warnAt(code diag.Code, pos ast.Position, args ...string) {
	v.diagnostics = append(v.diagnostics, diag.Warning(code, diag.StageValidation,
		diag.Position{Line: pos.Line, Column: pos.Column}, args...))
}

// validateBlock checks each statement of one block in order and reports
// anything after a terminator as unreachable when the block sits inside a
// loop. Each If branch, loop body, and switch arm is its own block, so the
// counting is exact per block, never approximated across branches.
func (v *Validator) validateBlock(stmts []ast.Stmt) {
	terminated := false
	var terminator string
	for _, s := range stmts {
		if terminated && v.loopDepth > 0 {
			v.warnAt(diag.UnreachableCode, s.Pos(), terminator)
			terminated = false // one warning per block is enough
		}
		v.validateStmt(s)
		switch s.(type) {
		case *ast.Return:
			terminated, terminator = true, "return"
		case *ast.Fail:
			terminated, terminator = true, "fail"
		case *ast.Break:
			terminated, terminator = true, "break"
		case *ast.Continue:
			terminated, terminator = true, "continue"
		}
	}
}

func (v *Validator) validateStmt(s ast.Stmt) {
	switch t := s.(type) {
	case *ast.VarDecl:
		if t.Init != nil {
			v.validateExpr(t.Init)
		}
		if !v.declare(t.Name) {
			v.errorAt(diag.InvalidVariableReference, t.Pos(), t.Name)
		}
	case *ast.Assignment:
		v.validateAssignTarget(t.Target)
		v.validateExpr(t.Value)
	case *ast.If:
		for _, br := range t.Branches {
			v.validateExpr(br.Cond)
			v.pushScope()
			v.validateBlock(br.Body)
			v.popScope()
		}
		if t.Else != nil {
			v.pushScope()
			v.validateBlock(t.Else)
			v.popScope()
		}
	case *ast.While:
		v.validateExpr(t.Cond)
		v.enterLoop(t.Pos())
		v.pushScope()
		v.validateBlock(t.Body)
		v.popScope()
		v.exitLoop()
	case *ast.ForEach:
		v.validateExpr(t.Collection)
		v.enterLoop(t.Pos())
		v.pushScope()
		v.declare(t.Var)
		v.validateBlock(t.Body)
		v.popScope()
		v.exitLoop()
	case *ast.For:
		v.validateExpr(t.Start)
		v.validateExpr(t.End)
		if t.Step != nil {
			v.validateExpr(t.Step)
		}
		v.enterLoop(t.Pos())
		v.pushScope()
		v.declare(t.Var)
		v.validateBlock(t.Body)
		v.popScope()
		v.exitLoop()
	case *ast.Switch:
		v.validateExpr(t.Discriminant)
		v.switchDepth++
		for _, c := range t.Cases {
			for _, val := range c.Values {
				v.validateExpr(val)
			}
			v.pushScope()
			v.validateBlock(c.Body)
			v.popScope()
		}
		if t.Default != nil {
			v.pushScope()
			v.validateBlock(t.Default)
			v.popScope()
		}
		v.switchDepth--
	case *ast.Return:
		if t.Value != nil {
			v.validateExpr(t.Value)
		}
	case *ast.Fail:
		v.validateExpr(t.Message)
	case *ast.Break:
		if v.loopDepth == 0 && v.switchDepth == 0 {
			v.errorAt(diag.LoopStatementOutsideOfLoop, t.Pos(), "break")
		}
	case *ast.Continue:
		if v.loopDepth == 0 {
			v.errorAt(diag.LoopStatementOutsideOfLoop, t.Pos(), "continue")
		}
	case *ast.ExprStmt:
		v.validateExpr(t.X)
	}
}

func (v *Validator) enterLoop(pos ast.Position) {
	v.loopDepth++
	if v.loopDepth > maxRecommendedLoopNesting {
		v.warnAt(diag.ExcessiveLoopNesting, pos, strconv.Itoa(v.loopDepth))
	}
}

func (v *Validator) exitLoop() {
	v.loopDepth--
}

// validateAssignTarget checks that the LHS of an assignment (or the target
// of an increment/decrement) is assignable: an Identifier, PropertyAccess,
// or IndexAccess, and never the bare builtin `Data`.
func (v *Validator) validateAssignTarget(target ast.Expr) {
	switch t := target.(type) {
	case *ast.Identifier:
		if t.Name == "Data" {
			v.errorAt(diag.InvalidAssignmentTarget, t.Pos())
			return
		}
		if !v.isDeclared(t.Name) {
			v.errorAt(diag.InvalidVariableReference, t.Pos(), t.Name)
		}
	case *ast.PropertyAccess:
		v.validateExpr(t.Target)
	case *ast.IndexAccess:
		v.validateExpr(t.Target)
		v.validateExpr(t.Index)
	default:
		v.errorAt(diag.InvalidAssignmentTarget, target.Pos())
	}
}

func (v *Validator) validateExpr(e ast.Expr) {
	switch t := e.(type) {
	case nil:
		return
	case *ast.Literal:
	case *ast.Identifier:
		if !v.isDeclared(t.Name) {
			v.errorAt(diag.InvalidVariableReference, t.Pos(), t.Name)
		}
	case *ast.Binary:
		v.validateExpr(t.Left)
		v.validateExpr(t.Right)
	case *ast.Unary:
		v.validateExpr(t.Operand)
	case *ast.Ternary:
		v.validateExpr(t.Cond)
		v.validateExpr(t.Then)
		v.validateExpr(t.Else)
	case *ast.Call:
		// Call resolution itself is the linker's job; the arguments are
		// ordinary expressions. A callee that names a local lambda variable
		// is also checked as a variable reference there, not here.
		for _, a := range t.Args {
			v.validateExpr(a)
		}
	case *ast.PropertyAccess:
		v.validateExpr(t.Target)
	case *ast.IndexAccess:
		v.validateExpr(t.Target)
		v.validateExpr(t.Index)
	case *ast.ObjectLiteral:
		for _, entry := range t.Entries {
			v.validateExpr(entry.Value)
		}
	case *ast.ArrayLiteral:
		for _, el := range t.Elements {
			v.validateExpr(el)
		}
	case *ast.Lambda:
		v.pushScope()
		for _, param := range t.Params {
			v.declare(param)
		}
		v.validateExpr(t.Body)
		v.popScope()
	case *ast.TypeCheck:
		v.validateExpr(t.Operand)
	case *ast.IncrementDecrement:
		v.validateAssignTarget(t.Target)
	}
}
