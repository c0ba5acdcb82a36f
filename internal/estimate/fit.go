package estimate

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/bjt1997/march/internal/dcc"
	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/garch"
	"github.com/bjt1997/march/internal/optim"
	"github.com/bjt1997/march/internal/panel"
)

// hessianStep is the absolute finite-difference step for standard errors.
const hessianStep = 1e-4

// dccStart is the starting point of the correlation-only stage.
var dccStart = dcc.Params{Alpha: 0.03, Beta: 0.9, Gamma: 0.02}

// Options controls a joint fit.
type Options struct {
	// LastObs ends the estimation window [0, LastObs); 0 means the whole sample.
	LastObs int
	// UpdateFreq reports optimizer progress every UpdateFreq iterations; 0 is
	// silent.
	UpdateFreq int
	// Init, when set, replaces the two-step estimates of the shared
	// parameters: DCC-A α, β, γ followed by the distribution shape.
	Init []float64
	// Optim configures every optimization stage. Its UpdateFreq and Logger are
	// overridden by the fields above.
	Optim optim.Options
	// SkipStdErrors disables the numerical Hessian.
	SkipStdErrors bool
	// Workers bounds the concurrent per-asset fits; 0 runs one per asset.
	Workers int
	Logger  zerolog.Logger
}

// Result is a fitted joint model.
type Result struct {
	Problem    *Problem
	Names      []string
	Theta      []float64
	StdErr     []float64
	LogLik     float64
	FirstObs   int
	LastObs    int
	Univariate []*garch.Result
	Paths      *Paths
	Status     optimize.Status
	Converged  bool
	Iterations int
	FuncEvals  int
	Runtime    time.Duration
}

// NumObs is the size of the estimation window.
func (r *Result) NumObs() int { return r.LastObs - r.FirstObs }

// AIC is the Akaike information criterion.
func (r *Result) AIC() float64 {
	return 2*float64(len(r.Theta)) - 2*r.LogLik
}

// BIC is the Bayesian information criterion.
func (r *Result) BIC() float64 {
	return float64(len(r.Theta))*math.Log(float64(r.NumObs())) - 2*r.LogLik
}

// Split unpacks the estimated parameters.
func (r *Result) Split() ([]garch.Params, dcc.Params, []float64) {
	return r.Problem.Split(r.Theta)
}

// Fit estimates the joint model on returns, one series per asset.
func Fit(ctx context.Context, names []string, returns [][]float64, spec garch.Spec, d dist.Distribution, opts Options) (*Result, error) {
	started := time.Now()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(returns) < 2 || len(names) != len(returns) {
		return nil, errs.Configuration("estimate.Fit", "series", "at least 2 named series")
	}
	T := len(returns[0])
	for i, r := range returns {
		if len(r) != T {
			return nil, errs.Data("estimate.Fit", names[i], fmt.Sprintf("%d observations like %s", T, names[0]))
		}
	}
	last := opts.LastObs
	if last == 0 {
		last = T
	}
	if last < 0 || last > T {
		return nil, errs.Estimation("estimate.Fit", "last_obs", fmt.Sprintf("0 <= last_obs <= %d", T)).AtIndex(last)
	}
	if last < panel.MinObservations {
		return nil, errs.Estimation("estimate.Fit", "last_obs", fmt.Sprintf("last_obs >= %d", panel.MinObservations)).AtIndex(last)
	}

	log := opts.Logger.With().Str("component", "estimate").Logger()
	o := opts.Optim
	o.UpdateFreq = opts.UpdateFreq
	o.Logger = log

	uni, err := fitUnivariate(ctx, names, returns, spec, d, last, o, opts.Workers)
	if err != nil {
		return nil, err
	}
	prob := &Problem{Names: names, Returns: returns, Spec: spec, Dist: d, Last: last, Backcasts: make([]float64, len(uni))}
	assets := make([]garch.Params, len(uni))
	for i, u := range uni {
		prob.Backcasts[i] = u.Backcast
		assets[i] = u.Params
	}

	z := make([][]float64, last)
	std := make([][]float64, len(uni))
	for i, u := range uni {
		std[i] = u.Standardized()
	}
	for t := range z {
		z[t] = make([]float64, len(uni))
		for i := range uni {
			z[t][i] = std[i][t]
		}
	}
	m, err := dcc.NewMoments(z)
	if err != nil {
		return nil, err
	}

	var (
		c     dcc.Params
		shape []float64
	)
	if opts.Init != nil {
		c, shape, err = splice(prob, m, opts.Init)
	} else {
		c, shape, err = fitCorrelation(ctx, prob, m, z, uni, o)
	}
	if err != nil {
		return nil, err
	}

	theta0 := prob.Join(assets, c, shape)
	x0 := make([]float64, len(theta0))
	prob.toUnconstrained(x0, theta0)
	theta := make([]float64, len(theta0))
	negloglik := func(x []float64) float64 {
		th := make([]float64, len(x))
		prob.fromUnconstrained(th, x)
		ll, ok := prob.logLik(th)
		if !ok {
			return optim.Penalty
		}
		return -ll
	}
	o.Label = "joint"
	res, err := optim.Minimize(ctx, negloglik, x0, o)
	if err != nil {
		return nil, errs.Estimation("estimate.Fit", "joint", "optimizer terminated without failure").Wrap(err)
	}
	if !res.Converged {
		lim := o.Defaults()
		return nil, errs.Estimation("estimate.Fit", "joint", fmt.Sprintf("convergence within %d runs of %d iterations", lim.Restarts+1, lim.MaxIterations)).
			Wrap(fmt.Errorf("optimizer status %v", res.Status))
	}
	prob.fromUnconstrained(theta, res.X)

	paths, err := prob.Evaluate(theta)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(paths.LogLik) || math.IsInf(paths.LogLik, 0) {
		return nil, errs.Estimation("estimate.Fit", "loglik", "finite log-likelihood")
	}

	out := &Result{
		Problem:    prob,
		Names:      prob.ParamNames(),
		Theta:      theta,
		LogLik:     paths.LogLik,
		FirstObs:   0,
		LastObs:    last,
		Univariate: uni,
		Paths:      paths,
		Status:     res.Status,
		Converged:  true,
		Iterations: res.Iterations,
		FuncEvals:  res.FuncEvals,
	}
	if opts.SkipStdErrors {
		out.StdErr = nanSlice(len(theta))
	} else {
		out.StdErr = StdErrors(prob, theta)
	}
	out.Runtime = time.Since(started)

	_, cp, sh := out.Split()
	log.Info().
		Dur("took", out.Runtime).
		Int("runs", res.Runs).
		Int("iterations", out.Iterations).
		Int("func_evals", out.FuncEvals).
		Float64("loglik", out.LogLik).
		Float64("dcc_persistence", cp.Persistence(paths.Moments.Delta)).
		Floats64("shape", sh).
		Msg("joint fit")
	return out, nil
}

func fitUnivariate(ctx context.Context, names []string, returns [][]float64, spec garch.Spec, d dist.Distribution, last int, o optim.Options, workers int) ([]*garch.Result, error) {
	out := make([]*garch.Result, len(returns))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range returns {
		g.Go(func() error {
			r, err := spec.Fit(ctx, names[i], returns[i], d, garch.FitOptions{Last: last, Optim: o})
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// splice validates caller-supplied shared parameters.
func splice(prob *Problem, m *dcc.Moments, init []float64) (dcc.Params, []float64, error) {
	if len(init) != prob.NumMultivar() {
		return dcc.Params{}, nil, errs.Configuration("estimate.Fit", "init",
			fmt.Sprintf("%d values (alpha, beta, gamma%s)", prob.NumMultivar(), shapeSuffix(prob.Dist)))
	}
	c := dcc.Unpack(init)
	if !c.Feasible(m.Delta) || c.Alpha <= 0 || c.Beta <= 0 {
		return dcc.Params{}, nil, errs.Configuration("estimate.Fit", "init",
			fmt.Sprintf("0 < alpha, 0 < beta, 0 <= gamma, alpha + beta + %.4g*gamma < 1", m.Delta))
	}
	shape := append([]float64(nil), init[dcc.NumParams:]...)
	if err := prob.Dist.Validate(shape); err != nil {
		return dcc.Params{}, nil, errs.Configuration("estimate.Fit", "init", "valid distribution shape").Wrap(err)
	}
	return c, shape, nil
}

func shapeSuffix(d dist.Distribution) string {
	s := ""
	for _, n := range d.ParamNames() {
		s += ", " + n
	}
	return s
}

// fitCorrelation maximizes the correlation likelihood of the univariate
// standardized residuals z, holding the per-asset parameters fixed.
func fitCorrelation(ctx context.Context, prob *Problem, m *dcc.Moments, z [][]float64, uni []*garch.Result, o optim.Options) (dcc.Params, []float64, error) {
	d := prob.Dist
	nShape := len(d.ParamNames())
	start := dccStart.Pack(nil)
	if nShape > 0 {
		start = append(start, meanShape(d, uni)...)
	}
	x0 := make([]float64, len(start))
	dcc.ToUnconstrained(x0, start)
	if nShape > 0 {
		d.ToUnconstrained(x0[dcc.NumParams:], start[dcc.NumParams:])
	}
	natural := func(x []float64) (dcc.Params, []float64) {
		v := make([]float64, len(x))
		dcc.FromUnconstrained(v, x)
		if nShape > 0 {
			d.FromUnconstrained(v[dcc.NumParams:], x[dcc.NumParams:])
		}
		return dcc.Unpack(v), v[dcc.NumParams:]
	}
	negloglik := func(x []float64) float64 {
		c, shape := natural(x)
		if !c.Feasible(m.Delta) || d.Validate(shape) != nil {
			return optim.Penalty
		}
		ll, err := dcc.Filter(c, m, z, prob.Last, prob.multiLogPDF(shape), nil)
		if err != nil || math.IsNaN(ll) || math.IsInf(ll, 0) {
			return optim.Penalty
		}
		return -ll
	}
	o.Label = "correlation"
	res, err := optim.Minimize(ctx, negloglik, x0, o)
	if err != nil {
		return dcc.Params{}, nil, errs.Estimation("estimate.Fit", "correlation", "optimizer terminated without failure").Wrap(err)
	}
	if !res.Converged {
		o.Logger.Warn().Str("status", res.Status.String()).Msg("correlation stage did not converge, continuing from its best point")
	}
	c, shape := natural(res.X)
	return c, shape, nil
}

// meanShape averages the univariate shape estimates.
func meanShape(d dist.Distribution, uni []*garch.Result) []float64 {
	out := make([]float64, len(d.ParamNames()))
	for _, u := range uni {
		for j := range out {
			out[j] += u.Shape[j] / float64(len(uni))
		}
	}
	if d.Validate(out) != nil {
		return d.StartingValues()
	}
	return out
}

// StdErrors returns the square roots of the diagonal of the inverse Hessian
// of the negative log-likelihood at theta. Every entry is NaN when the
// Hessian is not positive definite or its stencil leaves the feasible region.
func StdErrors(prob *Problem, theta []float64) []float64 {
	var outside atomic.Bool
	f := func(th []float64) float64 {
		ll, ok := prob.logLik(th)
		if !ok {
			outside.Store(true)
			return optim.Penalty
		}
		return -ll
	}
	var hess mat.SymDense
	fd.Hessian(&hess, f, theta, &fd.Settings{Formula: fd.Central, Step: hessianStep, Concurrent: true})
	if outside.Load() {
		return nanSlice(len(theta))
	}
	var chol mat.Cholesky
	if !chol.Factorize(&hess) {
		return nanSlice(len(theta))
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nanSlice(len(theta))
	}
	se := make([]float64, len(theta))
	for i := range se {
		se[i] = math.Sqrt(cov.At(i, i))
	}
	return se
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
