// Package limiter implements Jyro's resource limiter: wall-clock,
// statement, loop-iteration, and call-depth quotas, with cooperative
// cancellation derived from context.Context. The interpreter calls the
// checkpoint methods at every statement, loop iteration, and function
// call, so a runaway script is stopped at the next checkpoint it crosses.
package limiter

import (
	"context"
	"time"

	"github.com/jyro-lang/jyro/diag"
)

// Config holds the quotas enforced for one run. A zero value for any field
// means "unlimited" for that quota.
type Config struct {
	MaxExecutionTime  time.Duration
	MaxStatements     int
	MaxLoopIterations int
	MaxCallDepth      int
}

// DefaultConfig returns reasonable default quotas for an embedding host that
// supplies none explicitly.
func DefaultConfig() Config {
	return Config{
		MaxExecutionTime:  5 * time.Second,
		MaxStatements:     1_000_000,
		MaxLoopIterations: 1_000_000,
		MaxCallDepth:      256,
	}
}

// Limiter enforces Config's quotas over the lifetime of one script run.
// It owns a stopwatch and a cancellation context derived from the caller's
// context, so a host-supplied token and the execution-time quota cancel
// through the same channel.
type Limiter struct {
	cfg Config

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	statementCount int
	loopCount      int
	callDepth      int
	maxCallDepth   int
	functionCalls  int
}

// New constructs a Limiter for cfg, not yet started.
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg}
}

// Start arms the limiter: records the wall-clock mark and, if
// MaxExecutionTime is set, arms a cancellation timer linked to parent.
// Must be called exactly once, on execute, before any check method.
func (l *Limiter) Start(parent context.Context) {
	l.startedAt = time.Now()
	if parent == nil {
		parent = context.Background()
	}
	if l.cfg.MaxExecutionTime > 0 {
		l.ctx, l.cancel = context.WithTimeout(parent, l.cfg.MaxExecutionTime)
	} else {
		l.ctx, l.cancel = context.WithCancel(parent)
	}
}

// Stop releases the cancellation timer. Safe to call on every exit path,
// including after an error.
func (l *Limiter) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

// Context returns the limiter's cancellation context, handed to
// host-supplied functions that perform blocking operations.
func (l *Limiter) Context() context.Context {
	if l.ctx == nil {
		return context.Background()
	}
	return l.ctx
}

func (l *Limiter) cancelled() bool {
	select {
	case <-l.Context().Done():
		return true
	default:
		return false
	}
}

// CheckExecutionTime may be invoked ad-hoc, e.g. inside a long-running
// host function, to re-check the wall-clock quota without a statement
// checkpoint.
func (l *Limiter) CheckExecutionTime() *diag.Fault {
	if l.cancelled() {
		if l.cfg.MaxExecutionTime > 0 && time.Since(l.startedAt) >= l.cfg.MaxExecutionTime {
			return diag.NewFault(diag.ExecutionTimeLimitExceeded, diag.Position{}, l.cfg.MaxExecutionTime.String())
		}
		return diag.NewFault(diag.CancelledByHost, diag.Position{})
	}
	return nil
}

// CheckAndCountStatement must be called once per executed statement. It
// increments the statement counter and enforces both the statement and
// execution-time quotas.
func (l *Limiter) CheckAndCountStatement() *diag.Fault {
	if err := l.CheckExecutionTime(); err != nil {
		return err
	}
	l.statementCount++
	if l.cfg.MaxStatements > 0 && l.statementCount > l.cfg.MaxStatements {
		return diag.NewFault(diag.StatementLimitExceeded, diag.Position{}, itoa(l.cfg.MaxStatements))
	}
	return nil
}

// CheckAndEnterLoop must be called once per loop iteration, across every
// loop in the run; the quota is cumulative.
func (l *Limiter) CheckAndEnterLoop() *diag.Fault {
	if err := l.CheckExecutionTime(); err != nil {
		return err
	}
	l.loopCount++
	if l.cfg.MaxLoopIterations > 0 && l.loopCount > l.cfg.MaxLoopIterations {
		return diag.NewFault(diag.LoopIterationLimitExceeded, diag.Position{}, itoa(l.cfg.MaxLoopIterations))
	}
	return nil
}

// CheckAndEnterCall must be called around every function call (lambdas,
// registered providers, and script-to-script invocation alike) before
// dispatch; ExitCall must be called after, even on error paths.
func (l *Limiter) CheckAndEnterCall() *diag.Fault {
	if err := l.CheckExecutionTime(); err != nil {
		return err
	}
	l.callDepth++
	l.functionCalls++
	if l.callDepth > l.maxCallDepth {
		l.maxCallDepth = l.callDepth
	}
	if l.cfg.MaxCallDepth > 0 && l.callDepth > l.cfg.MaxCallDepth {
		return diag.NewFault(diag.CallDepthLimitExceeded, diag.Position{}, itoa(l.cfg.MaxCallDepth))
	}
	return nil
}

// ExitCall pairs with CheckAndEnterCall, decrementing the active call depth.
func (l *Limiter) ExitCall() {
	if l.callDepth > 0 {
		l.callDepth--
	}
}

// Stats snapshots the run's counters for the pipeline's RunResult metadata.
type Stats struct {
	StatementCount    int
	LoopCount         int
	FunctionCallCount int
	MaxCallDepth      int
	ProcessingTime    time.Duration
}

// Snapshot returns the current counters.
func (l *Limiter) Snapshot() Stats {
	return Stats{
		StatementCount:    l.statementCount,
		LoopCount:         l.loopCount,
		FunctionCallCount: l.functionCalls,
		MaxCallDepth:      l.maxCallDepth,
		ProcessingTime:    time.Since(l.startedAt),
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
