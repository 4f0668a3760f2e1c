package binfmt

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
)

// DeserializedProgram is the decoded form of a .jyrx blob.
type DeserializedProgram struct {
	Program           *ast.Program
	RequiredFunctions []string
	SourceHash        [32]byte
	Version           uint16
}

// Deserialize decodes .jyrx bytes. Any violation of the format or of the
// safety limits (file size, recursion depth, function count, unknown tags)
// is reported as a parser-stage diagnostic and yields a nil program.
func Deserialize(data []byte) (*DeserializedProgram, []diag.Diagnostic) {
	if len(data) > MaxFileSize {
		return nil, readError("file exceeds %d bytes", MaxFileSize)
	}
	if len(data) < headerSize {
		return nil, readError("truncated header")
	}
	if string(data[:4]) != Magic {
		return nil, readError("bad magic, not a .jyrx file")
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != Version {
		return nil, readError("unsupported format version %d", version)
	}
	// data[6:8] holds the reserved flags; readers ignore them.
	var hash [32]byte
	copy(hash[:], data[8:40])
	funcCount := binary.LittleEndian.Uint32(data[40:44])
	if funcCount > MaxFunctions {
		return nil, readError("function count %d exceeds limit %d", funcCount, MaxFunctions)
	}

	r := &reader{data: data, off: headerSize}
	funcs := make([]string, 0, funcCount)
	for i := uint32(0); i < funcCount; i++ {
		funcs = append(funcs, r.str())
	}

	stmtCount := int(r.u16())
	if stmtCount > MaxListLen {
		return nil, readError("statement count %d exceeds limit %d", stmtCount, MaxListLen)
	}
	prog := &ast.Program{}
	for i := 0; i < stmtCount; i++ {
		prog.Statements = append(prog.Statements, r.stmt())
	}
	if r.failure != "" {
		return nil, readError("%s", r.failure)
	}
	if r.off != len(data) {
		return nil, readError("trailing bytes after program")
	}
	return &DeserializedProgram{
		Program:           prog,
		RequiredFunctions: funcs,
		SourceHash:        hash,
		Version:           version,
	}, nil
}

func readError(format string, args ...interface{}) []diag.Diagnostic {
	return []diag.Diagnostic{diag.Error(diag.InvalidBinaryFormat, diag.StageParsing,
		diag.Position{}, fmt.Sprintf(format, args...))}
}

type reader struct {
	data    []byte
	off     int
	depth   int
	failure string
}

func (r *reader) fail(format string, args ...interface{}) {
	if r.failure == "" {
		r.failure = fmt.Sprintf(format, args...)
	}
}

func (r *reader) take(n int) []byte {
	if r.failure != "" || r.off+n > len(r.data) {
		r.fail("unexpected end of input")
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) boolByte() bool { return r.u8() != 0 }

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) i32() int {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (r *reader) f64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *reader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *reader) count() int {
	n := int(r.u16())
	if n > MaxListLen {
		r.fail("list count %d exceeds limit %d", n, MaxListLen)
		return 0
	}
	return n
}

func (r *reader) enter() bool {
	r.depth++
	if r.depth > MaxDepth {
		r.fail("AST deeper than %d levels", MaxDepth)
		return false
	}
	return true
}

func (r *reader) leave() { r.depth-- }

func (r *reader) pos() ast.Position {
	return ast.Position{Line: r.i32(), Column: r.i32(), Start: r.i32(), End: r.i32()}
}

func (r *reader) block() []ast.Stmt {
	n := r.count()
	var stmts []ast.Stmt
	for i := 0; i < n; i++ {
		s := r.stmt()
		if r.failure != "" {
			return stmts
		}
		stmts = append(stmts, s)
	}
	return stmts
}

// option reads the u8 presence flag for an optional field.
func (r *reader) option() bool { return r.boolByte() }

func stamp[N interface{ SetPos(ast.Position) }](n N, pos ast.Position) N {
	n.SetPos(pos)
	return n
}

func (r *reader) stmt() ast.Stmt {
	if r.failure != "" || !r.enter() {
		return nil
	}
	defer r.leave()

	tag := r.u8()
	pos := r.pos()
	switch tag {
	case tagVarDecl:
		s := &ast.VarDecl{Name: r.str(), TypeHint: r.str()}
		if r.option() {
			s.Init = r.expr()
		}
		return stamp(s, pos)
	case tagAssignment:
		opTag := r.u8()
		op, ok := assignOpFromTag[opTag]
		if !ok {
			r.fail("unknown assignment operator tag %#x", opTag)
			return nil
		}
		s := &ast.Assignment{Op: op}
		s.Target = r.expr()
		s.Value = r.expr()
		return stamp(s, pos)
	case tagIf:
		s := &ast.If{}
		n := r.count()
		for i := 0; i < n; i++ {
			cond := r.expr()
			body := r.block()
			s.Branches = append(s.Branches, ast.CondBlock{Cond: cond, Body: body})
		}
		if r.option() {
			s.Else = r.block()
			if s.Else == nil {
				s.Else = []ast.Stmt{}
			}
		}
		return stamp(s, pos)
	case tagWhile:
		s := &ast.While{}
		s.Cond = r.expr()
		s.Body = r.block()
		return stamp(s, pos)
	case tagForEach:
		s := &ast.ForEach{Var: r.str()}
		s.Collection = r.expr()
		s.Body = r.block()
		return stamp(s, pos)
	case tagFor:
		s := &ast.For{Var: r.str()}
		s.Start = r.expr()
		s.End = r.expr()
		if r.option() {
			s.Step = r.expr()
		}
		s.Descending = r.boolByte()
		s.Body = r.block()
		return stamp(s, pos)
	case tagSwitch:
		s := &ast.Switch{}
		s.Discriminant = r.expr()
		n := r.count()
		for i := 0; i < n; i++ {
			vn := r.count()
			var values []ast.Expr
			for j := 0; j < vn; j++ {
				values = append(values, r.expr())
			}
			body := r.block()
			s.Cases = append(s.Cases, ast.SwitchCase{Values: values, Body: body})
		}
		if r.option() {
			s.Default = r.block()
			if s.Default == nil {
				s.Default = []ast.Stmt{}
			}
		}
		return stamp(s, pos)
	case tagReturn:
		s := &ast.Return{}
		if r.option() {
			s.Value = r.expr()
		}
		return stamp(s, pos)
	case tagFail:
		s := &ast.Fail{}
		s.Message = r.expr()
		return stamp(s, pos)
	case tagBreak:
		return stamp(&ast.Break{}, pos)
	case tagContinue:
		return stamp(&ast.Continue{}, pos)
	case tagExprStmt:
		s := &ast.ExprStmt{}
		s.X = r.expr()
		return stamp(s, pos)
	default:
		r.fail("unknown statement tag %#x", tag)
		return nil
	}
}

func (r *reader) expr() ast.Expr {
	if r.failure != "" || !r.enter() {
		return nil
	}
	defer r.leave()

	tag := r.u8()
	pos := r.pos()
	switch tag {
	case tagLiteral:
		lit := &ast.Literal{}
		switch vt := r.u8(); vt {
		case litNull:
			lit.Kind = "null"
		case litBoolean:
			lit.Kind = "boolean"
			lit.Bool = r.boolByte()
		case litNumber:
			lit.Kind = "number"
			lit.Num = r.f64()
			lit.NumForceFloat = r.boolByte()
		case litString:
			lit.Kind = "string"
			lit.Str = r.str()
		default:
			r.fail("unknown literal tag %#x", vt)
			return nil
		}
		return stamp(lit, pos)
	case tagIdentifier:
		return stamp(&ast.Identifier{Name: r.str()}, pos)
	case tagBinary:
		opTag := r.u8()
		op, ok := binaryOpFromTag[opTag]
		if !ok {
			r.fail("unknown binary operator tag %#x", opTag)
			return nil
		}
		e := &ast.Binary{Op: op}
		e.Left = r.expr()
		e.Right = r.expr()
		return stamp(e, pos)
	case tagUnary:
		opTag := r.u8()
		op, ok := unaryOpFromTag[opTag]
		if !ok {
			r.fail("unknown unary operator tag %#x", opTag)
			return nil
		}
		e := &ast.Unary{Op: op}
		e.Operand = r.expr()
		return stamp(e, pos)
	case tagTernary:
		e := &ast.Ternary{}
		e.Cond = r.expr()
		e.Then = r.expr()
		e.Else = r.expr()
		return stamp(e, pos)
	case tagCall:
		e := &ast.Call{Callee: r.str()}
		n := r.count()
		for i := 0; i < n; i++ {
			e.Args = append(e.Args, r.expr())
		}
		return stamp(e, pos)
	case tagPropertyAcc:
		e := &ast.PropertyAccess{}
		e.Target = r.expr()
		e.Name = r.str()
		return stamp(e, pos)
	case tagIndexAccess:
		e := &ast.IndexAccess{}
		e.Target = r.expr()
		e.Index = r.expr()
		return stamp(e, pos)
	case tagObjectLit:
		e := &ast.ObjectLiteral{}
		n := r.count()
		for i := 0; i < n; i++ {
			key := r.str()
			val := r.expr()
			e.Entries = append(e.Entries, ast.ObjectEntry{Key: key, Value: val})
		}
		return stamp(e, pos)
	case tagArrayLit:
		e := &ast.ArrayLiteral{}
		n := r.count()
		for i := 0; i < n; i++ {
			e.Elements = append(e.Elements, r.expr())
		}
		return stamp(e, pos)
	case tagLambda:
		e := &ast.Lambda{}
		n := r.count()
		for i := 0; i < n; i++ {
			e.Params = append(e.Params, r.str())
		}
		e.Body = r.expr()
		return stamp(e, pos)
	case tagTypeCheck:
		e := &ast.TypeCheck{}
		e.Operand = r.expr()
		e.Type = r.str()
		e.Negate = r.boolByte()
		return stamp(e, pos)
	case tagIncDec:
		opTag := r.u8()
		op, ok := incDecOpFromTag[opTag]
		if !ok {
			r.fail("unknown increment operator tag %#x", opTag)
			return nil
		}
		e := &ast.IncrementDecrement{Op: op}
		e.Prefix = r.boolByte()
		e.Target = r.expr()
		return stamp(e, pos)
	default:
		r.fail("unknown expression tag %#x", tag)
		return nil
	}
}
