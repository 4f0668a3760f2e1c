// Package compiler lowers a linked Jyro program into a directly executable
// closure graph. Each statement and expression node compiles once into a
// Go closure over the execution context; running the program is then a
// plain call, with no AST dispatch on the hot path.
//
// Control flow is modelled with an explicit three-way block result
// (Normal, LoopControl break/continue, Terminate return/fail) so the Value
// return slot never doubles as a control signal.
package compiler

import (
	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/linker"
	"github.com/jyro-lang/jyro/runtime"
	"github.com/jyro-lang/jyro/value"
)

// stmtFunc executes one compiled statement.
type stmtFunc func(ctx *runtime.Context) (blockResult, *diag.Fault)

// exprFunc evaluates one compiled expression.
type exprFunc func(ctx *runtime.Context) (value.Value, *diag.Fault)

type resultKind int

const (
	resultNormal resultKind = iota
	resultBreak
	resultContinue
	resultReturn
	resultFail
)

// blockResult is the three-way outcome of executing a block: Normal,
// LoopControl(Break|Continue), or Terminate(value|fail-message).
type blockResult struct {
	kind        resultKind
	value       value.Value
	failMessage string
	failPos     ast.Position
}

var normal = blockResult{kind: resultNormal}

// CompiledProgram is a linked program plus its executable form.
type CompiledProgram struct {
	Linked *linker.LinkedProgram

	body []stmtFunc
}

// Compile lowers lp into a CompiledProgram. The input must have passed
// validation and linking; Compile itself cannot fail.
func Compile(lp *linker.LinkedProgram) *CompiledProgram {
	c := &comp{funcs: lp.Functions}
	body := make([]stmtFunc, len(lp.Program.Statements))
	for i, s := range lp.Program.Statements {
		body[i] = c.compileStmt(s)
	}
	return &CompiledProgram{Linked: lp, body: body}
}

// Execute runs the program against root, which is installed as `Data` in
// the context's root scope and mutated in place. The returned value is the
// top-level Return's value, or Null when the script falls off the end. A
// `fail` or any runtime error comes back as a *diag.Fault.
func (p *CompiledProgram) Execute(root value.Value, ctx *runtime.Context) (value.Value, *diag.Fault) {
	ctx.DeclareRootVariable("Data", root)
	for _, f := range p.body {
		res, err := f(ctx)
		if err != nil {
			return value.NullValue, err
		}
		switch res.kind {
		case resultReturn:
			if res.value == nil {
				return value.NullValue, nil
			}
			return res.value, nil
		case resultFail:
			return value.NullValue, diag.NewFault(diag.RuntimeError,
				diag.Position{Line: res.failPos.Line, Column: res.failPos.Column}, res.failMessage)
		}
	}
	return value.NullValue, nil
}

// comp carries compile-time state: the linked function table captured by
// every Call closure.
type comp struct {
	funcs map[string]linker.FunctionProvider
}

// stampPos fills in a runtime error's source position when the raising site
// had none (limiter and value-operator errors carry no location of their
// own).
func stampPos(err *diag.Fault, pos ast.Position) *diag.Fault {
	if err != nil && err.Line == 0 {
		err.Line = pos.Line
		err.Column = pos.Column
	}
	return err
}

// compileStmt wraps the statement's own logic with the per-statement
// limiter checkpoint.
func (c *comp) compileStmt(s ast.Stmt) stmtFunc {
	pos := s.Pos()
	inner := c.compileStmtInner(s)
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		if err := ctx.Limiter().CheckAndCountStatement(); err != nil {
			return normal, stampPos(err, pos)
		}
		return inner(ctx)
	}
}

func (c *comp) compileBlock(stmts []ast.Stmt) []stmtFunc {
	out := make([]stmtFunc, len(stmts))
	for i, s := range stmts {
		out[i] = c.compileStmt(s)
	}
	return out
}

// runBlock executes a compiled block in a fresh child scope, stopping at
// the first non-normal result or error.
func runBlock(ctx *runtime.Context, stmts []stmtFunc) (blockResult, *diag.Fault) {
	ctx.PushScope()
	defer ctx.PopScope()
	for _, f := range stmts {
		res, err := f(ctx)
		if err != nil {
			return normal, err
		}
		if res.kind != resultNormal {
			return res, nil
		}
	}
	return normal, nil
}

func (c *comp) compileStmtInner(s ast.Stmt) stmtFunc {
	switch t := s.(type) {
	case *ast.VarDecl:
		return c.compileVarDecl(t)
	case *ast.Assignment:
		return c.compileAssignment(t)
	case *ast.If:
		return c.compileIf(t)
	case *ast.While:
		return c.compileWhile(t)
	case *ast.ForEach:
		return c.compileForEach(t)
	case *ast.For:
		return c.compileFor(t)
	case *ast.Switch:
		return c.compileSwitch(t)
	case *ast.Return:
		return c.compileReturn(t)
	case *ast.Fail:
		return c.compileFail(t)
	case *ast.Break:
		return func(*runtime.Context) (blockResult, *diag.Fault) {
			return blockResult{kind: resultBreak}, nil
		}
	case *ast.Continue:
		return func(*runtime.Context) (blockResult, *diag.Fault) {
			return blockResult{kind: resultContinue}, nil
		}
	case *ast.ExprStmt:
		ex := c.compileExpr(t.X)
		return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
			if _, err := ex(ctx); err != nil {
				return normal, err
			}
			return normal, nil
		}
	default:
		pos := s.Pos()
		return func(*runtime.Context) (blockResult, *diag.Fault) {
			return normal, diag.NewFault(diag.RuntimeError,
				diag.Position{Line: pos.Line, Column: pos.Column}, "internal: unknown statement")
		}
	}
}

func (c *comp) compileVarDecl(t *ast.VarDecl) stmtFunc {
	pos := t.Pos()
	name, hint := t.Name, t.TypeHint
	var init exprFunc
	if t.Init != nil {
		init = c.compileExpr(t.Init)
	}
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		var v value.Value = value.NullValue
		if init != nil {
			var err *diag.Fault
			if v, err = init(ctx); err != nil {
				return normal, err
			}
		}
		if hint != "" {
			coerced, err := value.CoerceTo(hint, v)
			if err != nil {
				return normal, diag.NewFault(diag.InvalidType,
					diag.Position{Line: pos.Line, Column: pos.Column}, hint)
			}
			v = coerced
		}
		if !ctx.Declare(name, hint, v) {
			// Redeclaration is caught in validation; reaching it here is an
			// internal error.
			return normal, diag.NewFault(diag.RuntimeError,
				diag.Position{Line: pos.Line, Column: pos.Column},
				"internal: redeclaration of "+name)
		}
		return normal, nil
	}
}

func (c *comp) compileAssignment(t *ast.Assignment) stmtFunc {
	pos := t.Pos()
	ref := c.compileReference(t.Target)
	val := c.compileExpr(t.Value)
	op := t.Op
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		v, err := val(ctx)
		if err != nil {
			return normal, err
		}
		r, err := ref(ctx)
		if err != nil {
			return normal, err
		}
		if op != ast.AssignSet {
			cur, err := r.load()
			if err != nil {
				return normal, stampPos(err, pos)
			}
			v, err = applyCompound(op, cur, v, pos)
			if err != nil {
				return normal, err
			}
		}
		if err := r.store(v); err != nil {
			return normal, stampPos(err, pos)
		}
		return normal, nil
	}
}

// applyCompound maps a compound-assignment operator onto the corresponding
// binary value operation.
func applyCompound(op ast.AssignOp, cur, rhs value.Value, pos ast.Position) (value.Value, *diag.Fault) {
	var binOp ast.BinaryOp
	switch op {
	case ast.AssignAddTo:
		binOp = ast.OpAdd
	case ast.AssignSubFrom:
		binOp = ast.OpSub
	case ast.AssignMulBy:
		binOp = ast.OpMul
	case ast.AssignDivBy:
		binOp = ast.OpDiv
	case ast.AssignModBy:
		binOp = ast.OpMod
	}
	return applyArithmetic(binOp, cur, rhs, pos)
}

func (c *comp) compileIf(t *ast.If) stmtFunc {
	type branch struct {
		cond exprFunc
		body []stmtFunc
	}
	branches := make([]branch, len(t.Branches))
	for i, br := range t.Branches {
		branches[i] = branch{cond: c.compileExpr(br.Cond), body: c.compileBlock(br.Body)}
	}
	var elseBody []stmtFunc
	hasElse := t.Else != nil
	if hasElse {
		elseBody = c.compileBlock(t.Else)
	}
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		for _, br := range branches {
			cond, err := br.cond(ctx)
			if err != nil {
				return normal, err
			}
			if value.Truthy(cond) {
				return runBlock(ctx, br.body)
			}
		}
		if hasElse {
			return runBlock(ctx, elseBody)
		}
		return normal, nil
	}
}

func (c *comp) compileWhile(t *ast.While) stmtFunc {
	pos := t.Pos()
	cond := c.compileExpr(t.Cond)
	body := c.compileBlock(t.Body)
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		for {
			cv, err := cond(ctx)
			if err != nil {
				return normal, err
			}
			if !value.Truthy(cv) {
				return normal, nil
			}
			if err := ctx.Limiter().CheckAndEnterLoop(); err != nil {
				return normal, stampPos(err, pos)
			}
			res, err := runBlock(ctx, body)
			if err != nil {
				return normal, err
			}
			switch res.kind {
			case resultBreak:
				return normal, nil
			case resultContinue, resultNormal:
				// next iteration
			default:
				return res, nil
			}
		}
	}
}

func (c *comp) compileForEach(t *ast.ForEach) stmtFunc {
	pos := t.Pos()
	name := t.Var
	coll := c.compileExpr(t.Collection)
	body := c.compileBlock(t.Body)
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		cv, err := coll(ctx)
		if err != nil {
			return normal, err
		}
		items, rerr := iterate(cv, pos)
		if rerr != nil {
			return normal, rerr
		}
		for _, item := range items {
			if err := ctx.Limiter().CheckAndEnterLoop(); err != nil {
				return normal, stampPos(err, pos)
			}
			// The iterator variable is fresh each iteration; assigning to it
			// only touches this scope, never the source collection.
			ctx.PushScope()
			ctx.Declare(name, "", item)
			res, err := runBlock(ctx, body)
			ctx.PopScope()
			if err != nil {
				return normal, err
			}
			switch res.kind {
			case resultBreak:
				return normal, nil
			case resultContinue, resultNormal:
			default:
				return res, nil
			}
		}
		return normal, nil
	}
}

// iterate materialises the items a foreach visits: array elements, object
// values in key order, or a string's characters. Anything else is
// NotIterable.
func iterate(v value.Value, pos ast.Position) ([]value.Value, *diag.Fault) {
	switch t := v.(type) {
	case *value.Array:
		items := make([]value.Value, len(t.Elements))
		copy(items, t.Elements)
		return items, nil
	case *value.Object:
		keys := t.Keys()
		items := make([]value.Value, 0, len(keys))
		for _, k := range keys {
			item, _ := t.GetPropertyLiteral(k)
			items = append(items, item)
		}
		return items, nil
	case value.String:
		runes := []rune(string(t))
		items := make([]value.Value, len(runes))
		for i, r := range runes {
			items[i] = value.String(string(r))
		}
		return items, nil
	default:
		return nil, diag.NewFault(diag.NotIterable,
			diag.Position{Line: pos.Line, Column: pos.Column}, string(v.Kind()))
	}
}

func (c *comp) compileFor(t *ast.For) stmtFunc {
	pos := t.Pos()
	name := t.Var
	startFn := c.compileExpr(t.Start)
	endFn := c.compileExpr(t.End)
	var stepFn exprFunc
	if t.Step != nil {
		stepFn = c.compileExpr(t.Step)
	}
	descending := t.Descending
	body := c.compileBlock(t.Body)
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		startV, err := startFn(ctx)
		if err != nil {
			return normal, err
		}
		endV, err := endFn(ctx)
		if err != nil {
			return normal, err
		}
		start, ok := startV.(value.Number)
		if !ok {
			return normal, diag.NewFault(diag.InvalidType,
				diag.Position{Line: pos.Line, Column: pos.Column}, "number")
		}
		end, ok := endV.(value.Number)
		if !ok {
			return normal, diag.NewFault(diag.InvalidType,
				diag.Position{Line: pos.Line, Column: pos.Column}, "number")
		}

		down := descending
		step := 1.0
		forceFloat := start.ForceFloat
		if down {
			step = -1.0
		}
		if stepFn != nil {
			stepV, err := stepFn(ctx)
			if err != nil {
				return normal, err
			}
			sn, ok := stepV.(value.Number)
			if !ok {
				return normal, diag.NewFault(diag.InvalidType,
					diag.Position{Line: pos.Line, Column: pos.Column}, "number")
			}
			step = sn.Value
			forceFloat = forceFloat || sn.ForceFloat
			// An explicit negative step descends even when the loop was
			// written with `to` — this is what makes
			// `for i = 5 to 1 by -2` count down.
			down = step < 0
		}
		if step == 0 {
			return normal, nil // zero step: empty loop, no error
		}

		for i := start.Value; (!down && i <= end.Value) || (down && i >= end.Value); i += step {
			if err := ctx.Limiter().CheckAndEnterLoop(); err != nil {
				return normal, stampPos(err, pos)
			}
			ctx.PushScope()
			ctx.Declare(name, "", value.Number{Value: i, ForceFloat: forceFloat})
			res, err := runBlock(ctx, body)
			ctx.PopScope()
			if err != nil {
				return normal, err
			}
			switch res.kind {
			case resultBreak:
				return normal, nil
			case resultContinue, resultNormal:
			default:
				return res, nil
			}
		}
		return normal, nil
	}
}

func (c *comp) compileSwitch(t *ast.Switch) stmtFunc {
	disc := c.compileExpr(t.Discriminant)
	type arm struct {
		values []exprFunc
		body   []stmtFunc
	}
	arms := make([]arm, len(t.Cases))
	for i, sc := range t.Cases {
		values := make([]exprFunc, len(sc.Values))
		for j, v := range sc.Values {
			values[j] = c.compileExpr(v)
		}
		arms[i] = arm{values: values, body: c.compileBlock(sc.Body)}
	}
	var defaultBody []stmtFunc
	hasDefault := t.Default != nil
	if hasDefault {
		defaultBody = c.compileBlock(t.Default)
	}
	runArm := func(ctx *runtime.Context, body []stmtFunc) (blockResult, *diag.Fault) {
		res, err := runBlock(ctx, body)
		if err != nil {
			return normal, err
		}
		if res.kind == resultBreak {
			// break exits the switch; continue passes to an enclosing loop.
			return normal, nil
		}
		return res, nil
	}
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		dv, err := disc(ctx)
		if err != nil {
			return normal, err
		}
		for _, a := range arms {
			for _, vf := range a.values {
				v, err := vf(ctx)
				if err != nil {
					return normal, err
				}
				if value.Equal(dv, v) {
					return runArm(ctx, a.body)
				}
			}
		}
		if hasDefault {
			return runArm(ctx, defaultBody)
		}
		return normal, nil
	}
}

func (c *comp) compileReturn(t *ast.Return) stmtFunc {
	var val exprFunc
	if t.Value != nil {
		val = c.compileExpr(t.Value)
	}
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		var v value.Value = value.NullValue
		if val != nil {
			var err *diag.Fault
			if v, err = val(ctx); err != nil {
				return normal, err
			}
		}
		return blockResult{kind: resultReturn, value: v}, nil
	}
}

func (c *comp) compileFail(t *ast.Fail) stmtFunc {
	pos := t.Pos()
	msg := c.compileExpr(t.Message)
	return func(ctx *runtime.Context) (blockResult, *diag.Fault) {
		mv, err := msg(ctx)
		if err != nil {
			return normal, err
		}
		return blockResult{kind: resultFail, failMessage: mv.String(), failPos: pos}, nil
	}
}
