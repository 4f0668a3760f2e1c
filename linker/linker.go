// Package linker implements Jyro's link stage and the external contracts
// it resolves against: the host function-provider interface and the
// execution-context surface those providers receive.
//
// Linking walks every Call node of a validated program, checks that the
// callee is registered and that the argument count fits the callee's
// signature, and records the set of referenced functions. Parameter-type
// checks are deferred to runtime, because most signatures admit Any.
package linker

import (
	"context"
	"strconv"

	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/limiter"
	"github.com/jyro-lang/jyro/value"
)

// ParamType is a recognised signature parameter type.
type ParamType string

const (
	TypeAny     ParamType = "any"
	TypeNumber  ParamType = "number"
	TypeString  ParamType = "string"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
	TypeNull    ParamType = "null"
)

// Parameter describes one declared parameter of a function signature.
type Parameter struct {
	Name       string
	Type       ParamType
	IsOptional bool
}

// Signature describes a function's callable shape. MaxArgs of -1 means the
// function is variadic with no upper bound.
type Signature struct {
	Name       string
	Parameters []Parameter
	ReturnType ParamType
	MinArgs    int
	MaxArgs    int
}

// Context is the execution-context surface exposed to host functions.
// The runtime package's Context is the one implementation the
// engine constructs; the interface lives here so host function packages
// depend only on the contracts, not on the interpreter.
type Context interface {
	// Messages returns the diagnostics recorded so far this run.
	Messages() []diag.Diagnostic
	// AddMessage appends a diagnostic to the run's buffer.
	AddMessage(d diag.Diagnostic)
	// Limiter returns the run's resource limiter; functions performing long
	// operations should call its CheckExecutionTime in tight loops.
	Limiter() *limiter.Limiter
	// Cancellation is the run's cancellation context; blocking host
	// operations must observe it.
	Cancellation() context.Context
	// Variable reads a named binding visible from the current scope.
	Variable(name string) (value.Value, bool)
	// DeclareRootVariable declares a binding at root scope, used by
	// script-invocation functions to stash and restore Data.
	DeclareRootVariable(name string, v value.Value)
	// Function looks up a linked provider by name, used for script-to-script
	// invocation.
	Function(name string) (FunctionProvider, bool)
	// CheckAndEnterScriptCall pushes a script-source hash onto the context's
	// script call stack, failing on a recursion cycle or depth overflow;
	// ExitScriptCall pops it.
	CheckAndEnterScriptCall(sourceHash string) *diag.Fault
	ExitScriptCall()
}

// FunctionProvider is the host-registered function contract.
type FunctionProvider interface {
	Name() string
	Signature() Signature
	// Execute runs the function. Errors should be *diag.Fault where a
	// specific code applies; any other error surfaces as RuntimeError.
	Execute(args []value.Value, ctx Context) (value.Value, error)
}

// Registry is a name-keyed set of function providers.
type Registry struct {
	byName map[string]FunctionProvider
}

// NewRegistry builds a Registry from providers. A name registered twice
// yields a DuplicateFunction diagnostic and keeps the first registration.
func NewRegistry(providers []FunctionProvider) (*Registry, []diag.Diagnostic) {
	var diags []diag.Diagnostic
	r := &Registry{byName: make(map[string]FunctionProvider, len(providers))}
	for _, p := range providers {
		if _, exists := r.byName[p.Name()]; exists {
			diags = append(diags, diag.Error(diag.DuplicateFunction, diag.StageLinking,
				diag.Position{}, p.Name()))
			continue
		}
		r.byName[p.Name()] = p
	}
	return r, diags
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (FunctionProvider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// LinkedProgram is a validated program plus the subset of registered
// functions it actually references.
type LinkedProgram struct {
	Program   *ast.Program
	Functions map[string]FunctionProvider
}

// RequiredFunctions returns the referenced function names, sorted order not
// guaranteed; the binary writer sorts before encoding.
func (lp *LinkedProgram) RequiredFunctions() []string {
	names := make([]string, 0, len(lp.Functions))
	for name := range lp.Functions {
		names = append(names, name)
	}
	return names
}

// Link resolves every Call in prog against providers. On any Error
// diagnostic the returned program is nil.
//
// A call whose name is never registered but is declared as a script
// variable is left for the runtime's lambda dispatch (a local Function
// value invoked inline) and is neither an UndefinedFunction nor
// arity-checked here; the lambda's own parameter list governs at runtime.
func Link(prog *ast.Program, providers []FunctionProvider) (*LinkedProgram, []diag.Diagnostic) {
	registry, diags := NewRegistry(providers)
	l := &walker{
		registry:   registry,
		declared:   declaredNames(prog),
		referenced: make(map[string]FunctionProvider),
	}
	for _, s := range prog.Statements {
		l.walkStmt(s)
	}
	diags = append(diags, l.diagnostics...)
	if diag.HasErrors(diags) {
		return nil, diags
	}
	return &LinkedProgram{Program: prog, Functions: l.referenced}, diags
}

type walker struct {
	registry    *Registry
	declared    map[string]bool
	referenced  map[string]FunctionProvider
	diagnostics []diag.Diagnostic
}

func (l *walker) errorAt(code diag.Code, pos ast.Position, args ...string) {
	l.diagnostics = append(l.diagnostics, diag.Error(code, diag.StageLinking,
		diag.Position{Line: pos.Line, Column: pos.Column}, args...))
}

func (l *walker) walkStmt(s ast.Stmt) {
	switch t := s.(type) {
	case *ast.VarDecl:
		l.walkExpr(t.Init)
	case *ast.Assignment:
		l.walkExpr(t.Target)
		l.walkExpr(t.Value)
	case *ast.If:
		for _, br := range t.Branches {
			l.walkExpr(br.Cond)
			l.walkBlock(br.Body)
		}
		l.walkBlock(t.Else)
	case *ast.While:
		l.walkExpr(t.Cond)
		l.walkBlock(t.Body)
	case *ast.ForEach:
		l.walkExpr(t.Collection)
		l.walkBlock(t.Body)
	case *ast.For:
		l.walkExpr(t.Start)
		l.walkExpr(t.End)
		l.walkExpr(t.Step)
		l.walkBlock(t.Body)
	case *ast.Switch:
		l.walkExpr(t.Discriminant)
		for _, c := range t.Cases {
			for _, val := range c.Values {
				l.walkExpr(val)
			}
			l.walkBlock(c.Body)
		}
		l.walkBlock(t.Default)
	case *ast.Return:
		l.walkExpr(t.Value)
	case *ast.Fail:
		l.walkExpr(t.Message)
	case *ast.ExprStmt:
		l.walkExpr(t.X)
	}
}

func (l *walker) walkBlock(stmts []ast.Stmt) {
	for _, s := range stmts {
		l.walkStmt(s)
	}
}

func (l *walker) walkExpr(e ast.Expr) {
	switch t := e.(type) {
	case nil:
		return
	case *ast.Binary:
		l.walkExpr(t.Left)
		l.walkExpr(t.Right)
	case *ast.Unary:
		l.walkExpr(t.Operand)
	case *ast.Ternary:
		l.walkExpr(t.Cond)
		l.walkExpr(t.Then)
		l.walkExpr(t.Else)
	case *ast.Call:
		l.resolveCall(t)
		for _, a := range t.Args {
			l.walkExpr(a)
		}
	case *ast.PropertyAccess:
		l.walkExpr(t.Target)
	case *ast.IndexAccess:
		l.walkExpr(t.Target)
		l.walkExpr(t.Index)
	case *ast.ObjectLiteral:
		for _, entry := range t.Entries {
			l.walkExpr(entry.Value)
		}
	case *ast.ArrayLiteral:
		for _, el := range t.Elements {
			l.walkExpr(el)
		}
	case *ast.Lambda:
		l.walkExpr(t.Body)
	case *ast.TypeCheck:
		l.walkExpr(t.Operand)
	case *ast.IncrementDecrement:
		l.walkExpr(t.Target)
	}
}

func (l *walker) resolveCall(call *ast.Call) {
	provider, ok := l.registry.Lookup(call.Callee)
	if !ok {
		if l.declared[call.Callee] {
			return // a local variable may hold a lambda; runtime dispatches it
		}
		l.errorAt(diag.UndefinedFunction, call.Pos(), call.Callee)
		return
	}
	sig := provider.Signature()
	argc := len(call.Args)
	if argc < sig.MinArgs {
		l.errorAt(diag.TooFewArguments, call.Pos(), call.Callee,
			strconv.Itoa(argc), strconv.Itoa(sig.MinArgs))
		return
	}
	if sig.MaxArgs >= 0 && argc > sig.MaxArgs {
		l.errorAt(diag.TooManyArguments, call.Pos(), call.Callee,
			strconv.Itoa(argc), strconv.Itoa(sig.MaxArgs))
		return
	}
	l.referenced[call.Callee] = provider
}

// declaredNames collects every name a program declares anywhere: var
// declarations, loop iterators, and lambda parameters. The linker uses the
// set to tell an undefined function apart from a call through a local
// variable.
func declaredNames(prog *ast.Program) map[string]bool {
	names := make(map[string]bool)
	var visitStmt func(s ast.Stmt)
	var visitExpr func(e ast.Expr)
	visitBlock := func(stmts []ast.Stmt) {
		for _, s := range stmts {
			visitStmt(s)
		}
	}
	visitStmt = func(s ast.Stmt) {
		switch t := s.(type) {
		case *ast.VarDecl:
			names[t.Name] = true
			visitExpr(t.Init)
		case *ast.Assignment:
			visitExpr(t.Value)
		case *ast.If:
			for _, br := range t.Branches {
				visitExpr(br.Cond)
				visitBlock(br.Body)
			}
			visitBlock(t.Else)
		case *ast.While:
			visitExpr(t.Cond)
			visitBlock(t.Body)
		case *ast.ForEach:
			names[t.Var] = true
			visitExpr(t.Collection)
			visitBlock(t.Body)
		case *ast.For:
			names[t.Var] = true
			visitExpr(t.Start)
			visitExpr(t.End)
			visitExpr(t.Step)
			visitBlock(t.Body)
		case *ast.Switch:
			visitExpr(t.Discriminant)
			for _, c := range t.Cases {
				visitBlock(c.Body)
			}
			visitBlock(t.Default)
		case *ast.Return:
			visitExpr(t.Value)
		case *ast.Fail:
			visitExpr(t.Message)
		case *ast.ExprStmt:
			visitExpr(t.X)
		}
	}
	visitExpr = func(e ast.Expr) {
		switch t := e.(type) {
		case nil:
		case *ast.Binary:
			visitExpr(t.Left)
			visitExpr(t.Right)
		case *ast.Unary:
			visitExpr(t.Operand)
		case *ast.Ternary:
			visitExpr(t.Cond)
			visitExpr(t.Then)
			visitExpr(t.Else)
		case *ast.Call:
			for _, a := range t.Args {
				visitExpr(a)
			}
		case *ast.PropertyAccess:
			visitExpr(t.Target)
		case *ast.IndexAccess:
			visitExpr(t.Target)
			visitExpr(t.Index)
		case *ast.ObjectLiteral:
			for _, entry := range t.Entries {
				visitExpr(entry.Value)
			}
		case *ast.ArrayLiteral:
			for _, el := range t.Elements {
				visitExpr(el)
			}
		case *ast.Lambda:
			for _, param := range t.Params {
				names[param] = true
			}
			visitExpr(t.Body)
		case *ast.TypeCheck:
			visitExpr(t.Operand)
		case *ast.IncrementDecrement:
			visitExpr(t.Target)
		}
	}
	visitBlock(prog.Statements)
	return names
}
