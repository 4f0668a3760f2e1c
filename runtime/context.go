package runtime

import (
	"context"
	"strconv"

	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/limiter"
	"github.com/jyro-lang/jyro/linker"
	"github.com/jyro-lang/jyro/value"
)

// DefaultMaxScriptCallDepth bounds script-in-script invocation when the
// host does not configure a limit.
const DefaultMaxScriptCallDepth = 16

// Context is the per-run execution state: it exclusively owns the variable
// scope chain, the diagnostic buffer, the limiter, and the script call
// stack for the lifetime of one run. It implements linker.Context, the
// surface host functions see.
type Context struct {
	messages []diag.Diagnostic
	lim      *limiter.Limiter
	funcs    map[string]linker.FunctionProvider

	root    *Scope
	current *Scope

	scriptStack        []string
	maxScriptCallDepth int
}

// NewContext builds a Context around an armed (or about to be armed)
// limiter and the linked function table. funcs may be nil for programs
// that call nothing.
func NewContext(lim *limiter.Limiter, funcs map[string]linker.FunctionProvider) *Context {
	root := NewScope(nil)
	return &Context{
		lim:                lim,
		funcs:              funcs,
		root:               root,
		current:            root,
		maxScriptCallDepth: DefaultMaxScriptCallDepth,
	}
}

// SetMaxScriptCallDepth overrides the script-in-script depth bound.
func (c *Context) SetMaxScriptCallDepth(n int) {
	if n > 0 {
		c.maxScriptCallDepth = n
	}
}

// Messages returns the diagnostics recorded so far.
func (c *Context) Messages() []diag.Diagnostic { return c.messages }

// AddMessage appends a diagnostic to the run's buffer.
func (c *Context) AddMessage(d diag.Diagnostic) {
	c.messages = append(c.messages, d)
}

// Limiter returns the run's resource limiter.
func (c *Context) Limiter() *limiter.Limiter { return c.lim }

// Cancellation returns the limiter-derived cancellation context.
func (c *Context) Cancellation() context.Context {
	if c.lim == nil {
		return context.Background()
	}
	return c.lim.Context()
}

// PushScope opens a child scope; the compiler wraps every block with a
// PushScope/PopScope pair.
func (c *Context) PushScope() {
	c.current = NewScope(c.current)
}

// PopScope closes the innermost scope.
func (c *Context) PopScope() {
	if c.current.parent != nil {
		c.current = c.current.parent
	}
}

// CurrentScope exposes the innermost scope, used by the compiler to capture
// a lambda's defining environment.
func (c *Context) CurrentScope() *Scope { return c.current }

// Declare binds a new variable in the current scope.
func (c *Context) Declare(name, hint string, v value.Value) bool {
	return c.current.Declare(name, hint, v)
}

// Variable reads a binding visible from the current scope (linker.Context).
func (c *Context) Variable(name string) (value.Value, bool) {
	return c.current.Lookup(name)
}

// Assign writes a binding through the scope chain, honouring type hints.
func (c *Context) Assign(name string, v value.Value) (bool, *diag.Fault) {
	return c.current.Assign(name, v)
}

// DeclareRootVariable declares (or overwrites) a binding at root scope,
// used by the engine to install Data and by script-invocation functions to
// stash and restore it.
func (c *Context) DeclareRootVariable(name string, v value.Value) {
	c.root.vars[name] = v
}

// Function looks up a linked provider by name.
func (c *Context) Function(name string) (linker.FunctionProvider, bool) {
	p, ok := c.funcs[name]
	return p, ok
}

// ScriptCallStack returns the hashes of the scripts currently executing via
// script-to-script invocation, outermost first.
func (c *Context) ScriptCallStack() []string { return c.scriptStack }

// CheckAndEnterScriptCall pushes sourceHash onto the script call stack.
// Re-entry with a hash already on the stack is a recursion cycle and fails,
// as does exceeding the configured depth.
func (c *Context) CheckAndEnterScriptCall(sourceHash string) *diag.Fault {
	for _, h := range c.scriptStack {
		if h == sourceHash {
			return diag.NewFault(diag.RuntimeError, diag.Position{},
				"recursive script invocation detected")
		}
	}
	if len(c.scriptStack) >= c.maxScriptCallDepth {
		return diag.NewFault(diag.RuntimeError, diag.Position{},
			"script call depth limit exceeded ("+strconv.Itoa(c.maxScriptCallDepth)+")")
	}
	c.scriptStack = append(c.scriptStack, sourceHash)
	return nil
}

// ExitScriptCall pops the script call stack.
func (c *Context) ExitScriptCall() {
	if len(c.scriptStack) > 0 {
		c.scriptStack = c.scriptStack[:len(c.scriptStack)-1]
	}
}

var _ linker.Context = (*Context)(nil)
