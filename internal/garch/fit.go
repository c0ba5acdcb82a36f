package garch

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/optim"
)

// FitOptions controls a single-series fit.
type FitOptions struct {
	// Last ends the estimation window [0, Last); 0 means the whole series.
	Last  int
	Optim optim.Options
}

// Result is a fitted single-series model. Sigma2 and Resid cover the whole
// series, including observations after the estimation window.
type Result struct {
	Name       string
	Spec       Spec
	Params     Params
	Shape      []float64
	LogLik     float64
	Backcast   float64
	Sigma2     []float64
	Resid      []float64
	Status     optimize.Status
	Iterations int
	FuncEvals  int
	Runtime    time.Duration
}

// Standardized returns ε_t / σ_t.
func (r *Result) Standardized() []float64 {
	z := make([]float64, len(r.Resid))
	for t := range z {
		z[t] = r.Resid[t] / math.Sqrt(r.Sigma2[t])
	}
	return z
}

// Fit estimates the model on one series by maximum likelihood.
func (s Spec) Fit(ctx context.Context, name string, returns []float64, d dist.Distribution, opts FitOptions) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	last := opts.Last
	if last == 0 {
		last = len(returns)
	}
	if last < 0 || last > len(returns) {
		return nil, errs.Estimation("garch.Fit", "last_obs", fmt.Sprintf("0 <= last_obs <= %d", len(returns))).AtIndex(last)
	}

	mean := stat.Mean(returns[:last], nil)
	demeaned := make([]float64, last)
	for t := range demeaned {
		demeaned[t] = returns[t] - mean
	}
	backcast := Backcast(demeaned, s.Power)

	k := s.NumParams()
	nShape := len(d.ParamNames())
	x0 := make([]float64, k+nShape)
	s.ToUnconstrained(x0[:k], s.StartingValues(mean, backcast).Pack(nil))
	if nShape > 0 {
		d.ToUnconstrained(x0[k:], d.StartingValues())
	}

	natural := func(x []float64) (Params, []float64) {
		v := make([]float64, k+nShape)
		s.FromUnconstrained(v[:k], x[:k])
		if nShape > 0 {
			d.FromUnconstrained(v[k:], x[k:])
		}
		return s.Unpack(v[:k]), v[k:]
	}
	negloglik := func(x []float64) float64 {
		p, shape := natural(x)
		if !p.Feasible() || d.Validate(shape) != nil {
			return optim.Penalty
		}
		ll := s.Filter(p, d, shape, returns, backcast, last, nil, nil)
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			return optim.Penalty
		}
		return -ll
	}

	log := opts.Optim.Logger.With().Str("component", "garch").Str("series", name).Logger()
	o := opts.Optim
	o.Logger = log
	o.Label = "univariate:" + name

	start := time.Now()
	res, err := optim.Minimize(ctx, negloglik, x0, o)
	if err != nil {
		return nil, errs.Estimation("garch.Fit", name, "optimizer terminated without failure").Wrap(err)
	}
	if !res.Converged {
		return nil, errs.Estimation("garch.Fit", name, fmt.Sprintf("convergence within %d iterations", o.Defaults().MaxIterations)).
			Wrap(fmt.Errorf("optimizer status %v", res.Status))
	}

	p, shape := natural(res.X)
	if err := d.Validate(shape); err != nil {
		return nil, err
	}
	out := &Result{
		Name:       name,
		Spec:       s,
		Params:     p,
		Shape:      shape,
		Backcast:   backcast,
		Sigma2:     make([]float64, len(returns)),
		Resid:      make([]float64, len(returns)),
		Status:     res.Status,
		Iterations: res.Iterations,
		FuncEvals:  res.FuncEvals,
		Runtime:    time.Since(start),
	}
	out.LogLik = s.Filter(p, d, shape, returns, backcast, last, out.Sigma2, out.Resid)
	if math.IsInf(out.LogLik, 0) || math.IsNaN(out.LogLik) {
		return nil, errs.Estimation("garch.Fit", name, "positive finite conditional variance")
	}

	log.Debug().
		Dur("took", out.Runtime).
		Int("func_evals", out.FuncEvals).
		Str("status", out.Status.String()).
		Float64("loglik", out.LogLik).
		Float64("persistence", p.Persistence()).
		Msg("univariate fit")
	return out, nil
}
