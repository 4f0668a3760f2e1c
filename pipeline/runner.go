package pipeline

import (
	"context"
	"time"

	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/linker"
	"github.com/jyro-lang/jyro/value"
)

// Runner is the fluent builder entry point. Each With* call returns the
// receiver, so a full run reads as one chain:
//
//	result := pipeline.NewRunner().
//		WithScript(src).
//		WithDataJSON(input).
//		WithFunction(appendFn).
//		WithOptions(opts).
//		Run(ctx)
type Runner struct {
	src      string
	hasSrc   bool
	jyrx     []byte
	data     value.Value
	funcs    []linker.FunctionProvider
	opts     Options
	hasOpts  bool
	prepErrs []diag.Diagnostic
}

// NewRunner creates an empty Runner with default options.
func NewRunner() *Runner {
	return &Runner{}
}

// WithScript sets the script source text. It supersedes any previously set
// .jyrx bytes.
func (r *Runner) WithScript(src string) *Runner {
	r.src = src
	r.hasSrc = true
	r.jyrx = nil
	return r
}

// WithScriptBytes sets precompiled .jyrx bytes. It supersedes any
// previously set source text.
func (r *Runner) WithScriptBytes(data []byte) *Runner {
	r.jyrx = data
	r.hasSrc = false
	return r
}

// WithData sets the root data value the script sees as `Data`.
func (r *Runner) WithData(v value.Value) *Runner {
	r.data = v
	return r
}

// WithDataJSON parses JSON into the root data value. A malformed document
// is reported when Run is called, keeping the chain fluent.
func (r *Runner) WithDataJSON(data []byte) *Runner {
	v, err := value.FromJSON(data)
	if err != nil {
		r.prepErrs = append(r.prepErrs, diag.Error(diag.RuntimeError,
			diag.StageExecution, diag.Position{}, err.Error()))
		return r
	}
	r.data = v
	return r
}

// WithFunction registers one host function.
func (r *Runner) WithFunction(f linker.FunctionProvider) *Runner {
	r.funcs = append(r.funcs, f)
	return r
}

// WithFunctions registers a set of host functions at once; this is how a
// host hands the engine its standard library, which lives outside the
// engine core.
func (r *Runner) WithFunctions(fs ...linker.FunctionProvider) *Runner {
	r.funcs = append(r.funcs, fs...)
	return r
}

// WithOptions sets the run's resource quotas.
func (r *Runner) WithOptions(opts Options) *Runner {
	r.opts = opts
	r.hasOpts = true
	return r
}

// Run compiles and executes. hostCtx is an optional cancellation token to
// link with the limiter's own; pass nil for none.
func (r *Runner) Run(hostCtx context.Context) RunResult {
	opts := r.opts
	if !r.hasOpts {
		opts = DefaultOptions()
	}
	data := r.data
	if data == nil {
		data = value.NullValue
	}
	if len(r.prepErrs) > 0 {
		return RunResult{
			IsSuccessful: false,
			Data:         data,
			Result:       value.NullValue,
			Messages:     r.prepErrs,
			Metadata:     Metadata{StartedAt: time.Now()},
		}
	}

	var prog *Program
	var diags []diag.Diagnostic
	if r.hasSrc {
		prog, diags = Compile(r.src, r.funcs)
	} else {
		prog, diags = CompileBytes(r.jyrx, r.funcs)
	}
	if prog == nil {
		return RunResult{
			IsSuccessful: false,
			Data:         data,
			Result:       value.NullValue,
			Messages:     diags,
			Metadata:     Metadata{StartedAt: time.Now()},
		}
	}
	result := Execute(prog, data, opts, hostCtx)
	result.Messages = append(diags, result.Messages...)
	result.IsSuccessful = !diag.HasErrors(result.Messages)
	return result
}
