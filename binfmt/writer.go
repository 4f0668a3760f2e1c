package binfmt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sort"

	"github.com/jyro-lang/jyro/ast"
)

// Serialize encodes a validated program, the names of the functions it
// requires, and the SHA-256 of its source into .jyrx bytes. The function
// table is sorted so the output is deterministic regardless of map
// iteration order upstream.
func Serialize(prog *ast.Program, requiredFunctions []string, sourceHash [32]byte) ([]byte, error) {
	if len(requiredFunctions) > MaxFunctions {
		return nil, ErrTooManyFuncs
	}
	names := append([]string(nil), requiredFunctions...)
	sort.Strings(names)

	w := &writer{}
	w.buf.WriteString(Magic)
	w.u16(Version)
	w.u16(0) // reserved flags
	w.buf.Write(sourceHash[:])
	w.u32(uint32(len(names)))
	for _, name := range names {
		w.str(name)
	}
	w.u16(uint16(len(prog.Statements)))
	if len(prog.Statements) > MaxListLen {
		return nil, ErrListTooLong
	}
	for _, s := range prog.Statements {
		w.stmt(s)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

type writer struct {
	buf   bytes.Buffer
	depth int
	err   error
}

func (w *writer) u8(v byte) { w.buf.WriteByte(v) }
func (w *writer) boolByte(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) i32(v int) {
	w.u32(uint32(int32(v)))
}

func (w *writer) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

func (w *writer) str(s string) {
	if len(s) > MaxStringLen {
		w.fail(ErrStringTooLong)
		return
	}
	w.u16(uint16(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) count(n int) {
	if n > MaxListLen {
		w.fail(ErrListTooLong)
		return
	}
	w.u16(uint16(n))
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *writer) enter() bool {
	w.depth++
	if w.depth > MaxDepth {
		w.fail(ErrTooDeep)
		return false
	}
	return true
}

func (w *writer) leave() { w.depth-- }

func (w *writer) pos(p ast.Position) {
	w.i32(p.Line)
	w.i32(p.Column)
	w.i32(p.Start)
	w.i32(p.End)
}

func (w *writer) block(stmts []ast.Stmt) {
	w.count(len(stmts))
	for _, s := range stmts {
		w.stmt(s)
	}
}

// option writes the u8 presence flag for an optional field; the caller
// writes the payload only when present is true.
func (w *writer) option(present bool) bool {
	w.boolByte(present)
	return present
}

func (w *writer) stmt(s ast.Stmt) {
	if w.err != nil || !w.enter() {
		return
	}
	defer w.leave()

	switch t := s.(type) {
	case *ast.VarDecl:
		w.u8(tagVarDecl)
		w.pos(t.Pos())
		w.str(t.Name)
		w.str(t.TypeHint)
		if w.option(t.Init != nil) {
			w.expr(t.Init)
		}
	case *ast.Assignment:
		w.u8(tagAssignment)
		w.pos(t.Pos())
		w.u8(assignOpTag(t.Op))
		w.expr(t.Target)
		w.expr(t.Value)
	case *ast.If:
		w.u8(tagIf)
		w.pos(t.Pos())
		w.count(len(t.Branches))
		for _, br := range t.Branches {
			w.expr(br.Cond)
			w.block(br.Body)
		}
		if w.option(t.Else != nil) {
			w.block(t.Else)
		}
	case *ast.While:
		w.u8(tagWhile)
		w.pos(t.Pos())
		w.expr(t.Cond)
		w.block(t.Body)
	case *ast.ForEach:
		w.u8(tagForEach)
		w.pos(t.Pos())
		w.str(t.Var)
		w.expr(t.Collection)
		w.block(t.Body)
	case *ast.For:
		w.u8(tagFor)
		w.pos(t.Pos())
		w.str(t.Var)
		w.expr(t.Start)
		w.expr(t.End)
		if w.option(t.Step != nil) {
			w.expr(t.Step)
		}
		w.boolByte(t.Descending)
		w.block(t.Body)
	case *ast.Switch:
		w.u8(tagSwitch)
		w.pos(t.Pos())
		w.expr(t.Discriminant)
		w.count(len(t.Cases))
		for _, sc := range t.Cases {
			w.count(len(sc.Values))
			for _, v := range sc.Values {
				w.expr(v)
			}
			w.block(sc.Body)
		}
		if w.option(t.Default != nil) {
			w.block(t.Default)
		}
	case *ast.Return:
		w.u8(tagReturn)
		w.pos(t.Pos())
		if w.option(t.Value != nil) {
			w.expr(t.Value)
		}
	case *ast.Fail:
		w.u8(tagFail)
		w.pos(t.Pos())
		w.expr(t.Message)
	case *ast.Break:
		w.u8(tagBreak)
		w.pos(t.Pos())
	case *ast.Continue:
		w.u8(tagContinue)
		w.pos(t.Pos())
	case *ast.ExprStmt:
		w.u8(tagExprStmt)
		w.pos(t.Pos())
		w.expr(t.X)
	default:
		w.fail(errUnknownNode)
	}
}

func (w *writer) expr(e ast.Expr) {
	if w.err != nil || !w.enter() {
		return
	}
	defer w.leave()

	switch t := e.(type) {
	case *ast.Literal:
		w.u8(tagLiteral)
		w.pos(t.Pos())
		switch t.Kind {
		case "boolean":
			w.u8(litBoolean)
			w.boolByte(t.Bool)
		case "number":
			w.u8(litNumber)
			w.f64(t.Num)
			w.boolByte(t.NumForceFloat)
		case "string":
			w.u8(litString)
			w.str(t.Str)
		default:
			// Null, and anything unrecognised, falls back to Null.
			w.u8(litNull)
		}
	case *ast.Identifier:
		w.u8(tagIdentifier)
		w.pos(t.Pos())
		w.str(t.Name)
	case *ast.Binary:
		w.u8(tagBinary)
		w.pos(t.Pos())
		w.u8(binaryOpTag(t.Op))
		w.expr(t.Left)
		w.expr(t.Right)
	case *ast.Unary:
		w.u8(tagUnary)
		w.pos(t.Pos())
		w.u8(unaryOpTag(t.Op))
		w.expr(t.Operand)
	case *ast.Ternary:
		w.u8(tagTernary)
		w.pos(t.Pos())
		w.expr(t.Cond)
		w.expr(t.Then)
		w.expr(t.Else)
	case *ast.Call:
		w.u8(tagCall)
		w.pos(t.Pos())
		w.str(t.Callee)
		w.count(len(t.Args))
		for _, a := range t.Args {
			w.expr(a)
		}
	case *ast.PropertyAccess:
		w.u8(tagPropertyAcc)
		w.pos(t.Pos())
		w.expr(t.Target)
		w.str(t.Name)
	case *ast.IndexAccess:
		w.u8(tagIndexAccess)
		w.pos(t.Pos())
		w.expr(t.Target)
		w.expr(t.Index)
	case *ast.ObjectLiteral:
		w.u8(tagObjectLit)
		w.pos(t.Pos())
		w.count(len(t.Entries))
		for _, entry := range t.Entries {
			w.str(entry.Key)
			w.expr(entry.Value)
		}
	case *ast.ArrayLiteral:
		w.u8(tagArrayLit)
		w.pos(t.Pos())
		w.count(len(t.Elements))
		for _, el := range t.Elements {
			w.expr(el)
		}
	case *ast.Lambda:
		w.u8(tagLambda)
		w.pos(t.Pos())
		w.count(len(t.Params))
		for _, p := range t.Params {
			w.str(p)
		}
		w.expr(t.Body)
	case *ast.TypeCheck:
		w.u8(tagTypeCheck)
		w.pos(t.Pos())
		w.expr(t.Operand)
		w.str(t.Type)
		w.boolByte(t.Negate)
	case *ast.IncrementDecrement:
		w.u8(tagIncDec)
		w.pos(t.Pos())
		w.u8(incDecOpTag(t.Op))
		w.boolByte(t.Prefix)
		w.expr(t.Target)
	default:
		w.fail(errUnknownNode)
	}
}

var errUnknownNode = errors.New("jyrx: unknown AST node")
