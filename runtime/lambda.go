package runtime

import (
	"strconv"

	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/value"
)

// Lambda is a script-defined anonymous function value. It captures the
// scope it was defined in, so the body sees the surrounding variables
// lexically.
type Lambda struct {
	Params  []string
	Defined *Scope
	// Body evaluates the lambda's expression with ctx.current already
	// pointing at the invocation scope.
	Body func(ctx *Context) (value.Value, *diag.Fault)
}

func (l *Lambda) Kind() value.Kind { return value.KindFunction }
func (l *Lambda) String() string   { return "<function>" }
func (l *Lambda) Debug() string {
	return "<function(lambda/" + strconv.Itoa(len(l.Params)) + ")>"
}
func (l *Lambda) FuncName() string { return "<lambda>" }

// Arity reports the exact parameter count as both bounds.
func (l *Lambda) Arity() (min, max int) { return len(l.Params), len(l.Params) }

// Invoke runs the lambda against args in a fresh child of its defining
// scope. Missing arguments bind to Null; extras are ignored.
func (l *Lambda) Invoke(args []value.Value, ctx *Context) (value.Value, *diag.Fault) {
	saved := ctx.current
	ctx.current = NewScope(l.Defined)
	defer func() { ctx.current = saved }()

	for i, param := range l.Params {
		var v value.Value = value.NullValue
		if i < len(args) {
			v = args[i]
		}
		ctx.current.Declare(param, "", v)
	}
	return l.Body(ctx)
}

var _ value.Function = (*Lambda)(nil)
