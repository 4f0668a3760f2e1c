package compiler

import (
	"context"
	"errors"
	"math"

	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/runtime"
	"github.com/jyro-lang/jyro/value"
)

func (c *comp) compileExpr(e ast.Expr) exprFunc {
	switch t := e.(type) {
	case *ast.Literal:
		return compileLiteral(t)
	case *ast.Identifier:
		return compileIdentifier(t)
	case *ast.Binary:
		return c.compileBinary(t)
	case *ast.Unary:
		return c.compileUnary(t)
	case *ast.Ternary:
		return c.compileTernary(t)
	case *ast.Call:
		return c.compileCall(t)
	case *ast.PropertyAccess:
		return c.compilePropertyAccess(t)
	case *ast.IndexAccess:
		return c.compileIndexAccess(t)
	case *ast.ObjectLiteral:
		return c.compileObjectLiteral(t)
	case *ast.ArrayLiteral:
		return c.compileArrayLiteral(t)
	case *ast.Lambda:
		return c.compileLambda(t)
	case *ast.TypeCheck:
		return c.compileTypeCheck(t)
	case *ast.IncrementDecrement:
		return c.compileIncDec(t)
	default:
		pos := exprPos(e)
		return func(*runtime.Context) (value.Value, *diag.Fault) {
			return nil, diag.NewFault(diag.RuntimeError,
				diag.Position{Line: pos.Line, Column: pos.Column}, "internal: unknown expression")
		}
	}
}

func exprPos(e ast.Expr) ast.Position {
	if e == nil {
		return ast.Position{}
	}
	return e.Pos()
}

func compileLiteral(t *ast.Literal) exprFunc {
	var v value.Value
	switch t.Kind {
	case "null":
		v = value.NullValue
	case "boolean":
		v = value.Boolean(t.Bool)
	case "number":
		v = value.Number{Value: t.Num, ForceFloat: t.NumForceFloat}
	case "string":
		v = value.String(t.Str)
	default:
		v = value.NullValue
	}
	return func(*runtime.Context) (value.Value, *diag.Fault) {
		return v, nil
	}
}

func compileIdentifier(t *ast.Identifier) exprFunc {
	pos := t.Pos()
	name := t.Name
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		v, ok := ctx.Variable(name)
		if !ok {
			// Validation guarantees declared names; a miss means the host
			// removed a builtin between validation and execution.
			return nil, diag.NewFault(diag.InvalidVariableReference,
				diag.Position{Line: pos.Line, Column: pos.Column}, name)
		}
		return v, nil
	}
}

func (c *comp) compileBinary(t *ast.Binary) exprFunc {
	pos := t.Pos()
	left := c.compileExpr(t.Left)
	right := c.compileExpr(t.Right)

	switch t.Op {
	case ast.OpAnd:
		return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
			lv, err := left(ctx)
			if err != nil {
				return nil, err
			}
			// Short-circuits and returns the deciding operand, not a
			// coerced Boolean.
			if !value.Truthy(lv) {
				return lv, nil
			}
			return right(ctx)
		}
	case ast.OpOr:
		return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
			lv, err := left(ctx)
			if err != nil {
				return nil, err
			}
			if value.Truthy(lv) {
				return lv, nil
			}
			return right(ctx)
		}
	case ast.OpCoalesce:
		return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
			lv, err := left(ctx)
			if err != nil {
				return nil, err
			}
			if !value.IsNull(lv) {
				return lv, nil
			}
			return right(ctx)
		}
	case ast.OpEq, ast.OpNe:
		negate := t.Op == ast.OpNe
		return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
			lv, err := left(ctx)
			if err != nil {
				return nil, err
			}
			rv, err := right(ctx)
			if err != nil {
				return nil, err
			}
			return value.Boolean(value.Equal(lv, rv) != negate), nil
		}
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		op := t.Op
		return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
			lv, err := left(ctx)
			if err != nil {
				return nil, err
			}
			rv, err := right(ctx)
			if err != nil {
				return nil, err
			}
			cmp, cerr := value.Compare(lv, rv)
			if cerr != nil {
				return nil, diag.NewFault(diag.IncomparableTypes,
					diag.Position{Line: pos.Line, Column: pos.Column},
					string(lv.Kind()), string(rv.Kind()))
			}
			var out bool
			switch op {
			case ast.OpLt:
				out = cmp < 0
			case ast.OpLe:
				out = cmp <= 0
			case ast.OpGt:
				out = cmp > 0
			case ast.OpGe:
				out = cmp >= 0
			}
			return value.Boolean(out), nil
		}
	default:
		op := t.Op
		return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
			lv, err := left(ctx)
			if err != nil {
				return nil, err
			}
			rv, err := right(ctx)
			if err != nil {
				return nil, err
			}
			return applyArithmetic(op, lv, rv, pos)
		}
	}
}

// applyArithmetic dispatches + - * / % and maps the value package's
// sentinel errors onto positioned diagnostics.
func applyArithmetic(op ast.BinaryOp, a, b value.Value, pos ast.Position) (value.Value, *diag.Fault) {
	var out value.Value
	var err error
	switch op {
	case ast.OpAdd:
		out, err = value.Add(a, b)
	case ast.OpSub:
		out, err = value.Sub(a, b)
	case ast.OpMul:
		out, err = value.Mul(a, b)
	case ast.OpDiv:
		out, err = value.Div(a, b)
	case ast.OpMod:
		out, err = value.Mod(a, b)
	default:
		err = value.ErrUnsupportedBinaryOp
	}
	if err == nil {
		return out, nil
	}
	dpos := diag.Position{Line: pos.Line, Column: pos.Column}
	switch {
	case errors.Is(err, value.ErrDivisionByZero):
		return nil, diag.NewFault(diag.DivisionByZero, dpos)
	case errors.Is(err, value.ErrModuloByZero):
		return nil, diag.NewFault(diag.ModuloByZero, dpos)
	default:
		return nil, diag.NewFault(diag.UnsupportedBinaryOperation, dpos,
			string(op), string(a.Kind()), string(b.Kind()))
	}
}

func (c *comp) compileUnary(t *ast.Unary) exprFunc {
	pos := t.Pos()
	operand := c.compileExpr(t.Operand)
	if t.Op == ast.OpNot {
		return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
			v, err := operand(ctx)
			if err != nil {
				return nil, err
			}
			return value.Not(v), nil
		}
	}
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		v, err := operand(ctx)
		if err != nil {
			return nil, err
		}
		out, nerr := value.Negate(v)
		if nerr != nil {
			return nil, diag.NewFault(diag.UnsupportedUnaryOperation,
				diag.Position{Line: pos.Line, Column: pos.Column}, "-", string(v.Kind()))
		}
		return out, nil
	}
}

func (c *comp) compileTernary(t *ast.Ternary) exprFunc {
	cond := c.compileExpr(t.Cond)
	then := c.compileExpr(t.Then)
	els := c.compileExpr(t.Else)
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		cv, err := cond(ctx)
		if err != nil {
			return nil, err
		}
		if value.Truthy(cv) {
			return then(ctx)
		}
		return els(ctx)
	}
}

// compileCall lowers a call site. At runtime the callee name is first
// checked against the scope chain for a bound Function value (a local
// lambda, invoked inline); otherwise it dispatches through the linked
// provider table.
func (c *comp) compileCall(t *ast.Call) exprFunc {
	pos := t.Pos()
	callee := t.Callee
	provider := c.funcs[callee]
	args := make([]exprFunc, len(t.Args))
	for i, a := range t.Args {
		args[i] = c.compileExpr(a)
	}
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		argv := make([]value.Value, len(args))
		for i, af := range args {
			v, err := af(ctx)
			if err != nil {
				return nil, err
			}
			argv[i] = v
		}

		if err := ctx.Limiter().CheckAndEnterCall(); err != nil {
			return nil, stampPos(err, pos)
		}
		defer ctx.Limiter().ExitCall()

		if bound, ok := ctx.Variable(callee); ok {
			if lam, ok := bound.(*runtime.Lambda); ok {
				out, err := lam.Invoke(argv, ctx)
				if err != nil {
					return nil, stampPos(err, pos)
				}
				return out, nil
			}
		}

		if provider == nil {
			return nil, diag.NewFault(diag.UndefinedFunction,
				diag.Position{Line: pos.Line, Column: pos.Column}, callee)
		}
		out, err := provider.Execute(argv, ctx)
		if err != nil {
			return nil, hostError(err, ctx, pos)
		}
		if out == nil {
			out = value.NullValue
		}
		return out, nil
	}
}

// hostError converts an error escaping a host function into a runtime
// error: typed carriers pass through, cancellation becomes CancelledByHost
// (or the time-limit code when the limiter's own deadline fired), anything
// else is a generic RuntimeError.
func hostError(err error, ctx *runtime.Context, pos ast.Position) *diag.Fault {
	var rerr *diag.Fault
	if errors.As(err, &rerr) {
		return stampPos(rerr, pos)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if lerr := ctx.Limiter().CheckExecutionTime(); lerr != nil {
			return stampPos(lerr, pos)
		}
		return diag.NewFault(diag.CancelledByHost,
			diag.Position{Line: pos.Line, Column: pos.Column})
	}
	return diag.NewFault(diag.RuntimeError,
		diag.Position{Line: pos.Line, Column: pos.Column}, err.Error())
}

// compilePropertyAccess reads `target.name` with soft-get semantics: Null
// or a non-object target yields Null rather than failing. The key is
// always literal, never dot-split.
func (c *comp) compilePropertyAccess(t *ast.PropertyAccess) exprFunc {
	target := c.compileExpr(t.Target)
	name := t.Name
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		tv, err := target(ctx)
		if err != nil {
			return nil, err
		}
		obj, ok := tv.(*value.Object)
		if !ok {
			return value.NullValue, nil
		}
		v, ok := obj.GetPropertyLiteral(name)
		if !ok {
			return value.NullValue, nil
		}
		return v, nil
	}
}

func (c *comp) compileIndexAccess(t *ast.IndexAccess) exprFunc {
	target := c.compileExpr(t.Target)
	index := c.compileExpr(t.Index)
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		tv, err := target(ctx)
		if err != nil {
			return nil, err
		}
		iv, err := index(ctx)
		if err != nil {
			return nil, err
		}
		return indexRead(tv, iv), nil
	}
}

// indexRead implements soft index reads: arrays by number, objects by
// literal string key, strings by character position; every mismatch or
// out-of-range access yields Null.
func indexRead(target, index value.Value) value.Value {
	switch t := target.(type) {
	case *value.Array:
		n, ok := index.(value.Number)
		if !ok {
			return value.NullValue
		}
		return t.Get(int(n.Value))
	case *value.Object:
		s, ok := index.(value.String)
		if !ok {
			return value.NullValue
		}
		v, ok := t.GetPropertyLiteral(string(s))
		if !ok {
			return value.NullValue
		}
		return v
	case value.String:
		n, ok := index.(value.Number)
		if !ok {
			return value.NullValue
		}
		runes := []rune(string(t))
		i := int(n.Value)
		if i < 0 || i >= len(runes) {
			return value.NullValue
		}
		return value.String(string(runes[i]))
	default:
		return value.NullValue
	}
}

func (c *comp) compileObjectLiteral(t *ast.ObjectLiteral) exprFunc {
	type entry struct {
		key string
		val exprFunc
	}
	entries := make([]entry, len(t.Entries))
	for i, e := range t.Entries {
		entries[i] = entry{key: e.Key, val: c.compileExpr(e.Value)}
	}
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		obj := value.NewObject()
		for _, e := range entries {
			v, err := e.val(ctx)
			if err != nil {
				return nil, err
			}
			obj.SetPropertyLiteral(e.key, v)
		}
		return obj, nil
	}
}

func (c *comp) compileArrayLiteral(t *ast.ArrayLiteral) exprFunc {
	elems := make([]exprFunc, len(t.Elements))
	for i, e := range t.Elements {
		elems[i] = c.compileExpr(e)
	}
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		out := make([]value.Value, len(elems))
		for i, ef := range elems {
			v, err := ef(ctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return value.NewArray(out...), nil
	}
}

func (c *comp) compileLambda(t *ast.Lambda) exprFunc {
	params := t.Params
	body := c.compileExpr(t.Body)
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		return &runtime.Lambda{
			Params:  params,
			Defined: ctx.CurrentScope(),
			Body:    body,
		}, nil
	}
}

func (c *comp) compileTypeCheck(t *ast.TypeCheck) exprFunc {
	operand := c.compileExpr(t.Operand)
	typeName := t.Type
	negate := t.Negate
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		v, err := operand(ctx)
		if err != nil {
			return nil, err
		}
		return value.Boolean((value.TypeName(v) == typeName) != negate), nil
	}
}

func (c *comp) compileIncDec(t *ast.IncrementDecrement) exprFunc {
	pos := t.Pos()
	ref := c.compileReference(t.Target)
	delta := 1.0
	if t.Op == ast.OpDecrement {
		delta = -1.0
	}
	prefix := t.Prefix
	return func(ctx *runtime.Context) (value.Value, *diag.Fault) {
		r, err := ref(ctx)
		if err != nil {
			return nil, err
		}
		cur, err := r.load()
		if err != nil {
			return nil, stampPos(err, pos)
		}
		n, ok := cur.(value.Number)
		if !ok {
			op := "++"
			if delta < 0 {
				op = "--"
			}
			return nil, diag.NewFault(diag.UnsupportedUnaryOperation,
				diag.Position{Line: pos.Line, Column: pos.Column}, op, string(cur.Kind()))
		}
		updated := value.Number{Value: n.Value + delta, ForceFloat: n.ForceFloat}
		if err := r.store(updated); err != nil {
			return nil, stampPos(err, pos)
		}
		if prefix {
			return updated, nil
		}
		return n, nil
	}
}

// reference is a resolved assignable location: container and key evaluated
// exactly once, with load/store closures over them. This keeps compound
// assignment and increment/decrement from re-evaluating a side-effecting
// index expression.
type reference struct {
	load  func() (value.Value, *diag.Fault)
	store func(v value.Value) *diag.Fault
}

type refFunc func(ctx *runtime.Context) (reference, *diag.Fault)

func (c *comp) compileReference(e ast.Expr) refFunc {
	switch t := e.(type) {
	case *ast.Identifier:
		return compileIdentifierRef(t)
	case *ast.PropertyAccess:
		return c.compilePropertyRef(t)
	case *ast.IndexAccess:
		return c.compileIndexRef(t)
	default:
		// Unassignable targets are rejected in validation; reaching this is
		// an internal error.
		pos := exprPos(e)
		return func(*runtime.Context) (reference, *diag.Fault) {
			return reference{}, diag.NewFault(diag.RuntimeError,
				diag.Position{Line: pos.Line, Column: pos.Column}, "internal: unassignable target")
		}
	}
}

func compileIdentifierRef(t *ast.Identifier) refFunc {
	pos := t.Pos()
	name := t.Name
	return func(ctx *runtime.Context) (reference, *diag.Fault) {
		return reference{
			load: func() (value.Value, *diag.Fault) {
				v, ok := ctx.Variable(name)
				if !ok {
					return nil, diag.NewFault(diag.InvalidVariableReference,
						diag.Position{Line: pos.Line, Column: pos.Column}, name)
				}
				return v, nil
			},
			store: func(v value.Value) *diag.Fault {
				found, err := ctx.Assign(name, v)
				if err != nil {
					return err
				}
				if !found {
					return diag.NewFault(diag.InvalidVariableReference,
						diag.Position{Line: pos.Line, Column: pos.Column}, name)
				}
				return nil
			},
		}, nil
	}
}

func (c *comp) compilePropertyRef(t *ast.PropertyAccess) refFunc {
	pos := t.Pos()
	target := c.compileExpr(t.Target)
	name := t.Name
	return func(ctx *runtime.Context) (reference, *diag.Fault) {
		tv, err := target(ctx)
		if err != nil {
			return reference{}, err
		}
		obj, ok := tv.(*value.Object)
		return reference{
			load: func() (value.Value, *diag.Fault) {
				if !ok {
					return value.NullValue, nil
				}
				v, found := obj.GetPropertyLiteral(name)
				if !found {
					return value.NullValue, nil
				}
				return v, nil
			},
			store: func(v value.Value) *diag.Fault {
				if !ok {
					return diag.NewFault(diag.SetPropertyOnNonObject,
						diag.Position{Line: pos.Line, Column: pos.Column}, name)
				}
				obj.SetPropertyLiteral(name, v)
				return nil
			},
		}, nil
	}
}

func (c *comp) compileIndexRef(t *ast.IndexAccess) refFunc {
	pos := t.Pos()
	target := c.compileExpr(t.Target)
	index := c.compileExpr(t.Index)
	return func(ctx *runtime.Context) (reference, *diag.Fault) {
		tv, err := target(ctx)
		if err != nil {
			return reference{}, err
		}
		iv, err := index(ctx)
		if err != nil {
			return reference{}, err
		}
		return reference{
			load: func() (value.Value, *diag.Fault) {
				return indexRead(tv, iv), nil
			},
			store: func(v value.Value) *diag.Fault {
				switch container := tv.(type) {
				case *value.Array:
					n, ok := iv.(value.Number)
					if !ok || n.Value < 0 || math.Trunc(n.Value) != n.Value {
						return diag.NewFault(diag.SetIndexOnNonContainer,
							diag.Position{Line: pos.Line, Column: pos.Column})
					}
					container.Set(int(n.Value), v)
					return nil
				case *value.Object:
					s, ok := iv.(value.String)
					if !ok {
						return diag.NewFault(diag.SetIndexOnNonContainer,
							diag.Position{Line: pos.Line, Column: pos.Column})
					}
					container.SetPropertyLiteral(string(s), v)
					return nil
				default:
					return diag.NewFault(diag.SetIndexOnNonContainer,
						diag.Position{Line: pos.Line, Column: pos.Column})
				}
			},
		}, nil
	}
}
