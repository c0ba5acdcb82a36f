// Package optim wraps gonum's optimizer with the iteration budget, progress
// reporting and convergence classification shared by every estimation stage.
package optim

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Penalty is returned by objectives at infeasible points.
const Penalty = 1e10

// Method names accepted by Options.Method.
const (
	NelderMead = "neldermead"
	BFGS       = "bfgs"
)

// Options controls a single minimization.
type Options struct {
	Method string
	// MaxIterations bounds each run; a restart gets a fresh budget.
	MaxIterations int
	// Tolerance and Relative define a stalled iteration: one that improves
	// the best value by less than Tolerance + Relative*|f|.
	Tolerance float64
	Relative  float64
	// StallIterations is the number of stalled iterations that ends a run.
	StallIterations int
	// Restarts is the number of further runs started from the best point
	// with a fresh simplex. Runs stop early once a restart no longer improves
	// the objective beyond the stall threshold. 0 means DefaultRestarts and
	// a negative value disables restarts.
	Restarts int
	// UpdateFreq reports progress every UpdateFreq major iterations; 0 is silent.
	UpdateFreq int
	Logger     zerolog.Logger
	Label      string
}

// DefaultRestarts is used when Options.Restarts is zero.
const DefaultRestarts = 2

// gradStop ends a BFGS run once the largest gradient component is below it.
const gradStop = 1e-6

// Defaults fills unset fields.
func (o Options) Defaults() Options {
	if o.Method == "" {
		o.Method = NelderMead
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 20000
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-8
	}
	if o.Relative <= 0 {
		o.Relative = 1e-9
	}
	if o.StallIterations <= 0 {
		o.StallIterations = 200
	}
	switch {
	case o.Restarts == 0:
		o.Restarts = DefaultRestarts
	case o.Restarts < 0:
		o.Restarts = 0
	}
	return o
}

// stalled reports whether moving from prev to f is below the stall threshold.
func (o Options) stalled(prev, f float64) bool {
	return prev-f <= o.Tolerance+o.Relative*math.Max(math.Abs(prev), math.Abs(f))
}

// Result is the outcome of Minimize.
type Result struct {
	X      []float64
	F      float64
	Status optimize.Status
	// Converged reports whether the last run ended at a minimum.
	Converged  bool
	Runs       int
	Iterations int
	FuncEvals  int
}

// Converged reports whether s ends a run at a minimum rather than at a budget
// or failure.
func Converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

// Minimize minimizes f from x0. A run that stops on the iteration budget is
// restarted from its best point while restarts remain, and a converged run
// without a gradient certificate is restarted once more to confirm the
// minimum. If the last run still stops on the budget the result has Converged
// false and a nil error. Only a failure inside the optimizer or a cancelled
// context yields an error.
func Minimize(ctx context.Context, f func([]float64) float64, x0 []float64, opts Options) (*Result, error) {
	opts = opts.Defaults()

	problem := optimize.Problem{Func: f}
	var newMethod func() optimize.Method
	switch strings.ToLower(opts.Method) {
	case NelderMead:
		newMethod = func() optimize.Method { return &optimize.NelderMead{} }
	case BFGS:
		problem.Grad = func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		}
		newMethod = func() optimize.Method { return &optimize.BFGS{GradStopThreshold: gradStop} }
	default:
		return nil, fmt.Errorf("unknown optimizer method %q", opts.Method)
	}

	rec := &progress{ctx: ctx, every: opts.UpdateFreq, log: opts.Logger, label: opts.Label}
	res := &Result{X: append([]float64(nil), x0...), F: math.NaN()}
	for run := 0; run <= opts.Restarts; run++ {
		settings := &optimize.Settings{
			MajorIterations: opts.MaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   opts.Tolerance,
				Relative:   opts.Relative,
				Iterations: opts.StallIterations,
			},
			Recorder: rec,
		}
		result, err := optimize.Minimize(problem, res.X, settings, newMethod())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if result == nil {
			return nil, err
		}
		if err != nil && !result.Status.Early() {
			return nil, err
		}
		prev := res.F
		rec.base += result.MajorIterations
		res.Runs++
		res.Iterations += result.MajorIterations
		res.FuncEvals += result.FuncEvaluations
		res.Status = result.Status
		res.Converged = Converged(result.Status) && !math.IsNaN(result.F)
		if !(result.F > prev) {
			res.X = append(res.X[:0], result.X...)
			res.F = result.F
		}
		if result.Status == optimize.Failure {
			return res, err
		}
		if !res.Converged && result.Status != optimize.IterationLimit {
			break
		}
		if result.Status == optimize.GradientThreshold {
			break
		}
		if res.Converged && !math.IsNaN(prev) && opts.stalled(prev, result.F) {
			break
		}
		if run < opts.Restarts {
			opts.Logger.Debug().
				Str("stage", opts.Label).
				Int("run", res.Runs).
				Str("status", result.Status.String()).
				Float64("loglik", -result.F).
				Msg("restarting optimizer from best point")
		}
	}
	return res, nil
}

// progress reports every k-th major iteration and stops the run when ctx is
// done.
type progress struct {
	ctx   context.Context
	every int
	log   zerolog.Logger
	label string
	// base is the number of major iterations of earlier runs.
	base int
}

func (p *progress) Init() error { return nil }

func (p *progress) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	iter := p.base + stats.MajorIterations
	if p.every <= 0 || op != optimize.MajorIteration || iter%p.every != 0 {
		return nil
	}
	p.log.Info().
		Str("stage", p.label).
		Int("iteration", iter).
		Int("func_evals", stats.FuncEvaluations).
		Float64("loglik", -loc.F).
		Msg("optimizer progress")
	return nil
}
