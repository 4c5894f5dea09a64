package passes

import (
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ValveSoftware/steamos-mesa/nir"
)

// PassFunc is a whole-module rewriting pass: it mutates the module in place
// and reports whether it made progress.
type PassFunc func(m *nir.Module) bool

// registry maps pass names to their entry points. The splitting passes run
// over both temporary modes; callers needing a narrower mode set call the
// pass functions directly.
var registry = map[string]PassFunc{
	"split-var-copies": SplitVarCopies,
	"lower-var-copies": LowerVarCopies,
	"split-struct-vars": func(m *nir.Module) bool {
		return SplitStructVars(m, nir.SplitModes)
	},
	"split-array-vars": func(m *nir.Module) bool {
		return SplitArrayVars(m, nir.SplitModes)
	},
	"remove-dead-derefs": nir.RemoveDeadDerefs,
	"lower-deref-instrs": func(m *nir.Module) bool {
		return nir.LowerDerefInstrs(m, nir.LowerAllDerefs)
	},
}

// PassNames returns the names of all registered passes, sorted.
func PassNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupPass returns the registered pass with the given name.
func LookupPass(name string) (PassFunc, bool) {
	p, ok := registry[name]
	return p, ok
}

// Config describes a pipeline: which passes to run, in order, and whether
// to repeat them until a fixed point.
type Config struct {
	// Passes lists registered pass names in execution order.
	Passes []string `yaml:"passes"`
	// FixedPoint repeats the whole sequence until no pass reports
	// progress.
	FixedPoint bool `yaml:"fixed_point"`
	// MaxIterations caps the fixed-point loop. Zero means
	// DefaultMaxIterations.
	MaxIterations int `yaml:"max_iterations"`
}

// DefaultMaxIterations bounds a fixed-point pipeline whose config does not
// say otherwise. The passes all shrink or normalize the IR, so hitting the
// cap means one of them oscillates, which is a bug worth surfacing.
const DefaultMaxIterations = 32

// ParseConfig parses a YAML pipeline configuration.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing pipeline config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig is the standard whole-pipeline order: normalize copies,
// split aggregates while wildcard copies are still visible, then lower the
// remaining copies and sweep dead derefs.
func DefaultConfig() Config {
	return Config{
		Passes: []string{
			"split-var-copies",
			"split-struct-vars",
			"split-array-vars",
			"lower-var-copies",
			"remove-dead-derefs",
		},
		FixedPoint: true,
	}
}

// Pipeline runs a configured sequence of passes over a module.
type Pipeline struct {
	passes []namedPass
	cfg    Config
	log    *slog.Logger
}

type namedPass struct {
	name string
	run  PassFunc
}

// NewPipeline builds a pipeline from a config. Unknown pass names are an
// error.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if len(cfg.Passes) == 0 {
		return nil, fmt.Errorf("pipeline config names no passes")
	}
	p := &Pipeline{cfg: cfg, log: slog.Default()}
	for _, name := range cfg.Passes {
		run, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown pass %q", name)
		}
		p.passes = append(p.passes, namedPass{name: name, run: run})
	}
	return p, nil
}

// SetLogger directs the pipeline's per-pass progress tracing, emitted at
// debug level.
func (p *Pipeline) SetLogger(log *slog.Logger) {
	if log != nil {
		p.log = log
	}
}

// Run executes the pipeline and reports whether any pass made progress.
func (p *Pipeline) Run(m *nir.Module) bool {
	maxIter := 1
	if p.cfg.FixedPoint {
		maxIter = p.cfg.MaxIterations
		if maxIter <= 0 {
			maxIter = DefaultMaxIterations
		}
	}

	anyProgress := false
	for iter := 0; iter < maxIter; iter++ {
		iterProgress := false
		for _, pass := range p.passes {
			progress := pass.run(m)
			p.log.Debug("pass finished",
				slog.String("pass", pass.name),
				slog.Int("iteration", iter),
				slog.Bool("progress", progress))
			if progress {
				iterProgress = true
			}
		}
		if !iterProgress {
			return anyProgress
		}
		anyProgress = true
	}
	if p.cfg.FixedPoint {
		p.log.Debug("pipeline hit its iteration cap", slog.Int("max_iterations", maxIter))
	}
	return anyProgress
}
