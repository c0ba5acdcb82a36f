// Package march estimates multivariate ARCH models: GARCH-family
// conditional variances per asset joined by an asymmetric dynamic conditional
// correlation (DCC-A) model, fitted by maximum likelihood, with covariance
// forecasts by simulation or closed-form recursion.
//
// A Model wraps a return panel. Attach a specification with SetArch, then call
// Fit, CheckBoundary, Summary and Forecast. Every Fit produces a new
// FittedModel; a failed Fit leaves the previous one in place.
package march

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/estimate"
	"github.com/bjt1997/march/internal/forecast"
	"github.com/bjt1997/march/internal/garch"
	"github.com/bjt1997/march/internal/metrics"
	"github.com/bjt1997/march/internal/optim"
	"github.com/bjt1997/march/internal/panel"
)

// Model is a return panel with an attached specification and, after a
// successful Fit, its fitted state. It is safe for concurrent use.
type Model struct {
	panel     *panel.Panel
	log       zerolog.Logger
	metrics   *metrics.Recorder
	optim     optim.Options
	workers   int
	stdErrors bool
	forecast  forecast.Options

	mu   sync.RWMutex
	arch *archSpec

	fitted atomic.Pointer[FittedModel]
}

type archSpec struct {
	uni      garch.Spec
	dist     dist.Distribution
	multivar string
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option { return func(m *Model) { m.log = l } }

// WithMetrics records fits, forecasts and boundary checks in r.
func WithMetrics(r *metrics.Recorder) Option { return func(m *Model) { m.metrics = r } }

// WithOptimizer sets the optimizer used by every estimation stage.
func WithOptimizer(o OptimOptions) Option { return func(m *Model) { m.optim = o } }

// WithWorkers bounds the concurrent per-asset fits and simulation workers.
func WithWorkers(n int) Option {
	return func(m *Model) {
		m.workers = n
		m.forecast.Workers = n
	}
}

// WithoutStdErrors skips the numerical Hessian after each fit.
func WithoutStdErrors() Option { return func(m *Model) { m.stdErrors = false } }

// WithSimulation sets the number of paths and the seed of simulated forecasts.
func WithSimulation(paths int, seed uint64) Option {
	return func(m *Model) {
		m.forecast.Simulations = paths
		m.forecast.Seed = seed
	}
}

// New wraps a validated panel.
func New(p *Panel, opts ...Option) (*Model, error) {
	if p == nil {
		return nil, errs.Data("march.New", "panel", "non-nil return panel")
	}
	m := &Model{panel: p, log: zerolog.Nop(), stdErrors: true}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Panel returns the wrapped data.
func (m *Model) Panel() *Panel { return m.panel }

// SetArch attaches the univariate specification shared by every asset, the
// innovation law ("normal" or "student") and the correlation model ("dcca").
func (m *Model) SetArch(uni Spec, errors, multivar string) error {
	if n := m.panel.NumSeries(); n < 2 {
		return errs.Configuration("march.SetArch", "series", fmt.Sprintf("at least 2 series for a correlation model (got %d)", n))
	}
	if err := uni.Validate(); err != nil {
		return err
	}
	d, err := dist.Parse(errors)
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(multivar)) {
	case DCCA, "dcc-a":
	default:
		return errs.Configuration("march.SetArch", "multivar", fmt.Sprintf("dcca (got %q)", multivar))
	}
	m.mu.Lock()
	m.arch = &archSpec{uni: uni, dist: d, multivar: DCCA}
	m.mu.Unlock()
	return nil
}

// FitOptions controls Fit.
type FitOptions struct {
	// UpdateFreq logs optimizer progress every UpdateFreq iterations; 0 is
	// silent.
	UpdateFreq int
	// LastObs ends the estimation window [0, LastObs); 0 uses every
	// observation.
	LastObs int
	// Init optionally starts the shared parameters at DCC-A α, β, γ and,
	// for Student-t errors, ν.
	Init []float64
}

// Fit estimates the attached specification and makes the result the current
// fit.
func (m *Model) Fit(ctx context.Context, opts FitOptions) (*FittedModel, error) {
	m.mu.RLock()
	arch := m.arch
	m.mu.RUnlock()
	if arch == nil {
		return nil, errs.Configuration("march.Fit", "spec", "a specification attached with SetArch")
	}

	start := time.Now()
	res, err := estimate.Fit(ctx, m.panel.Names(), m.panel.Columns(), arch.uni, arch.dist, estimate.Options{
		LastObs:       opts.LastObs,
		UpdateFreq:    opts.UpdateFreq,
		Init:          opts.Init,
		Optim:         m.optim,
		SkipStdErrors: !m.stdErrors,
		Workers:       m.workers,
		Logger:        m.log,
	})
	if err != nil {
		m.metrics.ObserveFit(time.Since(start), 0, 0, err)
		return nil, err
	}
	m.metrics.ObserveFit(time.Since(start), res.LogLik, res.FuncEvals, nil)

	f := newFitted(m.panel, arch, res)
	m.fitted.Store(f)
	return f, nil
}

// Fitted returns the current fit, or nil before the first successful Fit.
func (m *Model) Fitted() *FittedModel { return m.fitted.Load() }

func (m *Model) current(op string) (*FittedModel, error) {
	f := m.fitted.Load()
	if f == nil {
		return nil, errs.Configuration(op, "fit", "a successful Fit before "+strings.TrimPrefix(op, "march."))
	}
	return f, nil
}

// CheckBoundary checks the current fit against every stationarity and
// positivity constraint. Violations are reported, never corrected.
func (m *Model) CheckBoundary() (BoundaryReport, error) {
	f, err := m.current("march.CheckBoundary")
	if err != nil {
		return nil, err
	}
	r := f.CheckBoundary()
	m.metrics.ObserveBoundary(len(r.Violations()))
	return r, nil
}

// Summary describes the current fit.
func (m *Model) Summary() (*Summary, error) {
	f, err := m.current("march.Summary")
	if err != nil {
		return nil, err
	}
	return f.Summary(), nil
}

// Forecast predicts the covariance of observations start+1 .. start+horizon
// from the current fit, using information through observation start.
func (m *Model) Forecast(ctx context.Context, horizon, start int, method string) (*ForecastResult, error) {
	f, err := m.current("march.Forecast")
	if err != nil {
		return nil, err
	}
	began := time.Now()
	res, err := f.Forecast(ctx, horizon, start, method, m.forecast)
	m.metrics.ObserveForecast(strings.ToLower(method), time.Since(began), err)
	if err == nil {
		m.log.Debug().
			Str("component", "forecast").
			Str("method", string(res.Method)).
			Int("start", start).
			Int("horizon", horizon).
			Dur("took", time.Since(began)).
			Msg("forecast")
	}
	return res, err
}
