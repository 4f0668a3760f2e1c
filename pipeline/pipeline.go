package pipeline

import (
	"context"
	"time"

	"github.com/jyro-lang/jyro/binfmt"
	"github.com/jyro-lang/jyro/compiler"
	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/limiter"
	"github.com/jyro-lang/jyro/linker"
	"github.com/jyro-lang/jyro/parser"
	"github.com/jyro-lang/jyro/runtime"
	"github.com/jyro-lang/jyro/validator"
	"github.com/jyro-lang/jyro/value"
)

// StageTimings records how long each pipeline stage took. A program loaded
// from .jyrx bytes has zero Parse/Validate/Link times and a nonzero
// Deserialize time instead.
type StageTimings struct {
	Parse       time.Duration
	Validate    time.Duration
	Link        time.Duration
	Deserialize time.Duration
	Compile     time.Duration
	Execute     time.Duration
}

// Program is a fully compiled script, ready to execute any number of times.
type Program struct {
	compiled   *compiler.CompiledProgram
	SourceHash [32]byte
	Stages     StageTimings
}

// Compile runs source through parse, validate, link, and compile. On any
// Error-severity diagnostic the returned Program is nil and the collected
// diagnostics explain why; Warning diagnostics accompany a usable Program.
func Compile(src string, funcs []linker.FunctionProvider) (*Program, []diag.Diagnostic) {
	var stages StageTimings

	mark := time.Now()
	prog, diags := parser.Parse(src)
	stages.Parse = time.Since(mark)
	if diag.HasErrors(diags) {
		return nil, diags
	}

	mark = time.Now()
	vdiags := validator.Validate(prog)
	stages.Validate = time.Since(mark)
	diags = append(diags, vdiags...)
	if diag.HasErrors(diags) {
		return nil, diags
	}

	mark = time.Now()
	linked, ldiags := linker.Link(prog, funcs)
	stages.Link = time.Since(mark)
	diags = append(diags, ldiags...)
	if diag.HasErrors(diags) {
		return nil, diags
	}

	mark = time.Now()
	compiled := compiler.Compile(linked)
	stages.Compile = time.Since(mark)

	return &Program{
		compiled:   compiled,
		SourceHash: binfmt.HashSource(src),
		Stages:     stages,
	}, diags
}

// CompileBytes loads a program from .jyrx bytes. Validation and linking
// checks already performed when the bytes were produced are skipped; only
// function references are re-resolved against the current registry, so a
// provider that disappeared or changed arity since serialization still
// surfaces as a linking error.
func CompileBytes(data []byte, funcs []linker.FunctionProvider) (*Program, []diag.Diagnostic) {
	var stages StageTimings

	mark := time.Now()
	dp, diags := binfmt.Deserialize(data)
	stages.Deserialize = time.Since(mark)
	if dp == nil {
		return nil, diags
	}

	linked, ldiags := linker.Link(dp.Program, funcs)
	diags = append(diags, ldiags...)
	if diag.HasErrors(diags) {
		return nil, diags
	}

	mark = time.Now()
	compiled := compiler.Compile(linked)
	stages.Compile = time.Since(mark)

	return &Program{
		compiled:   compiled,
		SourceHash: dp.SourceHash,
		Stages:     stages,
	}, diags
}

// Serialize encodes the program to .jyrx bytes.
func (p *Program) Serialize() ([]byte, error) {
	return binfmt.Serialize(p.compiled.Linked.Program,
		p.compiled.Linked.RequiredFunctions(), p.SourceHash)
}

// Metadata is the run's timing and counter snapshot.
type Metadata struct {
	ProcessingTime    time.Duration
	StatementCount    int
	LoopCount         int
	FunctionCallCount int
	MaxCallDepth      int
	StartedAt         time.Time
	Stages            StageTimings
}

// RunResult is the outcome of one execution. Data is always set: on
// failure it holds the most recent mutation state (fail-fast, no
// rollback). Result carries the top-level Return's value, Null
// when the script fell off the end.
type RunResult struct {
	IsSuccessful bool
	Data         value.Value
	Result       value.Value
	Messages     []diag.Diagnostic
	Metadata     Metadata
}

// ExitCode maps the result onto the process exit code the test harness
// convention uses: 0 for success, 1 otherwise.
func (r RunResult) ExitCode() int {
	if r.IsSuccessful {
		return 0
	}
	return 1
}

// DataJSON renders the run's data as JSON, preserving integer-vs-float
// number formatting.
func (r RunResult) DataJSON() ([]byte, error) {
	return value.ToJSON(r.Data)
}

// MatchesJSON reports whether the run's data deep-equals the expected JSON
// document, the comparison the host test mode performs.
func (r RunResult) MatchesJSON(expected []byte) (bool, error) {
	want, err := value.FromJSON(expected)
	if err != nil {
		return false, err
	}
	return value.Equal(r.Data, want), nil
}

// Execute runs a compiled program against data under opts' quotas. data is
// mutated in place and always present on the result. hostCtx may carry a
// host cancellation token to link with the limiter's own; pass nil for
// none.
func Execute(p *Program, data value.Value, opts Options, hostCtx context.Context) RunResult {
	if data == nil {
		data = value.NullValue
	}
	lim := limiter.New(opts.limiterConfig())
	ctx := runtime.NewContext(lim, p.compiled.Linked.Functions)
	ctx.SetMaxScriptCallDepth(opts.MaxScriptCallDepth)

	startedAt := time.Now()
	lim.Start(hostCtx)
	defer lim.Stop()

	mark := time.Now()
	result, rerr := p.compiled.Execute(data, ctx)
	execTime := time.Since(mark)

	msgs := ctx.Messages()
	if rerr != nil {
		msgs = append(msgs, rerr.ToDiagnostic())
	}
	stats := lim.Snapshot()
	stages := p.Stages
	stages.Execute = execTime

	return RunResult{
		IsSuccessful: !diag.HasErrors(msgs),
		Data:         data,
		Result:       result,
		Messages:     msgs,
		Metadata: Metadata{
			ProcessingTime:    stats.ProcessingTime,
			StatementCount:    stats.StatementCount,
			LoopCount:         stats.LoopCount,
			FunctionCallCount: stats.FunctionCallCount,
			MaxCallDepth:      stats.MaxCallDepth,
			StartedAt:         startedAt,
			Stages:            stages,
		},
	}
}

// Run is the one-shot convenience: compile src and execute it against data.
// Compile-stage failures come back as an unsuccessful RunResult with the
// collected diagnostics and the untouched data.
func Run(src string, data value.Value, funcs []linker.FunctionProvider, opts Options, hostCtx context.Context) RunResult {
	prog, diags := Compile(src, funcs)
	if prog == nil {
		if data == nil {
			data = value.NullValue
		}
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
