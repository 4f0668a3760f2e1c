// Package pipeline composes Jyro's stages into the public engine surface:
// compile source or .jyrx bytes into a Program, execute it against host
// data under resource quotas, and collect the run's diagnostics and timing
// metadata. The fluent Runner is the builder-style entry point for
// embedding hosts.
package pipeline

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jyro-lang/jyro/limiter"
	"github.com/jyro-lang/jyro/runtime"
)

// Options carries the per-run resource quotas plus the script-in-script
// depth bound. Zero means "unlimited" for each quota.
type Options struct {
	MaxExecutionTime   time.Duration `yaml:"max_execution_time"`
	MaxStatements      int           `yaml:"max_statements"`
	MaxLoopIterations  int           `yaml:"max_loop_iterations"`
	MaxCallDepth       int           `yaml:"max_call_depth"`
	MaxScriptCallDepth int           `yaml:"max_script_call_depth"`
}

// DefaultOptions mirrors limiter.DefaultConfig for hosts that configure
// nothing explicitly.
func DefaultOptions() Options {
	cfg := limiter.DefaultConfig()
	return Options{
		MaxExecutionTime:   cfg.MaxExecutionTime,
		MaxStatements:      cfg.MaxStatements,
		MaxLoopIterations:  cfg.MaxLoopIterations,
		MaxCallDepth:       cfg.MaxCallDepth,
		MaxScriptCallDepth: runtime.DefaultMaxScriptCallDepth,
	}
}

// Option mutates an Options value, functional-options style.
type Option func(*Options)

// NewOptions builds Options from the defaults plus any overrides.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// WithMaxExecutionTime overrides the wall-clock quota.
func WithMaxExecutionTime(d time.Duration) Option {
	return func(o *Options) { o.MaxExecutionTime = d }
}

// WithMaxStatements overrides the statement-count quota.
func WithMaxStatements(n int) Option {
	return func(o *Options) { o.MaxStatements = n }
}

// WithMaxLoopIterations overrides the cumulative loop-iteration quota.
func WithMaxLoopIterations(n int) Option {
	return func(o *Options) { o.MaxLoopIterations = n }
}

// WithMaxCallDepth overrides the function-call-depth quota.
func WithMaxCallDepth(n int) Option {
	return func(o *Options) { o.MaxCallDepth = n }
}

// WithMaxScriptCallDepth overrides the script-in-script depth bound.
func WithMaxScriptCallDepth(n int) Option {
	return func(o *Options) { o.MaxScriptCallDepth = n }
}

// LoadOptionsYAML decodes Options from YAML, starting from the defaults so
// omitted keys keep their default quotas.
func LoadOptionsYAML(data []byte) (Options, error) {
	o := DefaultOptions()
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, fmt.Errorf("jyro: invalid options YAML: %w", err)
	}
	return o, nil
}

func (o Options) limiterConfig() limiter.Config {
	return limiter.Config{
		MaxExecutionTime:  o.MaxExecutionTime,
		MaxStatements:     o.MaxStatements,
		MaxLoopIterations: o.MaxLoopIterations,
		MaxCallDepth:      o.MaxCallDepth,
	}
}
