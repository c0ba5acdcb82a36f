package march

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/bjt1997/march/internal/boundary"
	"github.com/bjt1997/march/internal/dcc"
	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/estimate"
	"github.com/bjt1997/march/internal/forecast"
	"github.com/bjt1997/march/internal/garch"
	"github.com/bjt1997/march/internal/panel"
)

// FittedModel is the immutable outcome of one successful Fit.
type FittedModel struct {
	panel   *panel.Panel
	arch    *archSpec
	res     *estimate.Result
	model   *forecast.Model
	history forecast.History
}

func newFitted(p *panel.Panel, arch *archSpec, res *estimate.Result) *FittedModel {
	assets, c, shape := res.Split()
	return &FittedModel{
		panel: p,
		arch:  arch,
		res:   res,
		model: &forecast.Model{
			Spec:    arch.uni,
			Dist:    arch.dist,
			Shape:   shape,
			Assets:  assets,
			DCC:     c,
			Moments: res.Paths.Moments,
		},
		history: forecast.History{
			Sigma2:    res.Paths.Sigma2,
			Resid:     res.Paths.Resid,
			Std:       res.Paths.Std,
			Q:         res.Paths.Corr.Q,
			Backcasts: res.Problem.Backcasts,
		},
	}
}

// ParamNames labels Params, as "<asset>.<param>" and "dcca.<param>".
func (f *FittedModel) ParamNames() []string { return append([]string(nil), f.res.Names...) }

// Params is the estimated parameter vector.
func (f *FittedModel) Params() []float64 { return append([]float64(nil), f.res.Theta...) }

// StdErrors are the standard errors of Params; NaN where unavailable.
func (f *FittedModel) StdErrors() []float64 { return append([]float64(nil), f.res.StdErr...) }

// LogLik is the joint log-likelihood over the estimation window.
func (f *FittedModel) LogLik() float64 { return f.res.LogLik }

// FirstObs is the first index of the estimation window [FirstObs, LastObs).
func (f *FittedModel) FirstObs() int { return f.res.FirstObs }

// LastObs is the exclusive end of the estimation window.
func (f *FittedModel) LastObs() int { return f.res.LastObs }

// NumObs is the number of observations in the estimation window.
func (f *FittedModel) NumObs() int { return f.res.NumObs() }

// Converged reports whether the joint optimizer stopped at a minimum.
func (f *FittedModel) Converged() bool { return f.res.Converged }

// ConditionalVariance is σ²_t of asset i over the whole sample.
func (f *FittedModel) ConditionalVariance(i int) []float64 {
	return append([]float64(nil), f.res.Paths.Sigma2[i]...)
}

// ConditionalCorrelation is R_t.
func (f *FittedModel) ConditionalCorrelation(t int) *mat.SymDense {
	r := mat.NewSymDense(f.panel.NumSeries(), nil)
	r.CopySym(f.res.Paths.Corr.R[t])
	return r
}

// Delta is the asymmetry scale in the correlation stationarity condition.
func (f *FittedModel) Delta() float64 { return f.model.Moments.Delta }

// CheckBoundary checks the estimates against every stationarity and
// positivity constraint.
func (f *FittedModel) CheckBoundary() BoundaryReport {
	return boundaryReport(f.panel.Names(), f.arch.uni, f.model.Assets, f.model.DCC, f.model.Moments.Delta, f.arch.dist, f.model.Shape)
}

func boundaryReport(names []string, spec garch.Spec, assets []garch.Params, c dcc.Params, delta float64, d dist.Distribution, shape []float64) boundary.Report {
	var r boundary.Report
	for i, a := range assets {
		r = append(r, spec.Constraints(names[i], a)...)
	}
	r = append(r, c.Constraints(delta)...)
	if _, ok := d.(dist.StudentT); ok && len(shape) == 1 {
		r = append(r, boundary.Constraint{
			Component: dcc.Component,
			Param:     "nu",
			Rule:      "nu > 2",
			Value:     shape[0],
			Satisfied: shape[0] > 2,
		})
	}
	return r
}

// Forecast predicts the covariance of observations start+1 .. start+horizon
// using information through observation start.
func (f *FittedModel) Forecast(ctx context.Context, horizon, start int, method string, opts ForecastOptions) (*ForecastResult, error) {
	meth, err := forecast.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if horizon <= 0 {
		return nil, errs.Forecast("march.Forecast", "horizon", "horizon > 0")
	}
	st, err := f.model.NewOrigin(f.history, start)
	if err != nil {
		return nil, err
	}
	return f.model.Forecast(ctx, st, start, horizon, meth, opts)
}

// Param is one row of the parameter table.
type Param struct {
	Name     string
	Estimate float64
	StdErr   float64
}

// TStat is Estimate / StdErr.
func (p Param) TStat() float64 { return p.Estimate / p.StdErr }

// Summary is a read-only description of a fit.
type Summary struct {
	Spec       string
	Errors     string
	Multivar   string
	Assets     []string
	Params     []Param
	LogLik     float64
	AIC        float64
	BIC        float64
	NumObs     int
	FirstObs   int
	LastObs    int
	Converged  bool
	Status     string
	Iterations int
	FuncEvals  int
	Runtime    time.Duration
}

// Summary builds the parameter table and fit statistics.
func (f *FittedModel) Summary() *Summary {
	s := &Summary{
		Spec:       f.arch.uni.String(),
		Errors:     f.arch.dist.Name(),
		Multivar:   f.arch.multivar,
		Assets:     f.panel.Names(),
		LogLik:     f.res.LogLik,
		AIC:        f.res.AIC(),
		BIC:        f.res.BIC(),
		NumObs:     f.res.NumObs(),
		FirstObs:   f.res.FirstObs,
		LastObs:    f.res.LastObs,
		Converged:  f.res.Converged,
		Status:     f.res.Status.String(),
		Iterations: f.res.Iterations,
		FuncEvals:  f.res.FuncEvals,
		Runtime:    f.res.Runtime,
	}
	for i, name := range f.res.Names {
		s.Params = append(s.Params, Param{Name: name, Estimate: f.res.Theta[i], StdErr: f.res.StdErr[i]})
	}
	return s
}

func (s *Summary) String() string {
	var b strings.Builder
	b.WriteString("---------- mArch Model Fit Results ----------\n")
	fmt.Fprintf(&b, "Volatility:\t%s\n", s.Spec)
	fmt.Fprintf(&b, "Distribution:\t%s\n", s.Errors)
	fmt.Fprintf(&b, "Correlation:\t%s\n", s.Multivar)
	fmt.Fprintf(&b, "Assets:\t%s\n", strings.Join(s.Assets, ", "))
	fmt.Fprintf(&b, "Sample:\t[%d, %d), %d observations\n", s.FirstObs, s.LastObs, s.NumObs)
	fmt.Fprintf(&b, "MLE took %v\n", s.Runtime.Round(time.Millisecond))
	fmt.Fprintf(&b, "Number of func evals: %d\n", s.FuncEvals)
	fmt.Fprintf(&b, "Status:\t%s (converged: %t)\n", s.Status, s.Converged)
	fmt.Fprintf(&b, "Loglik:\t%0.4f\n", s.LogLik)
	fmt.Fprintf(&b, "AIC:\t%0.4f\n", s.AIC)
	fmt.Fprintf(&b, "BIC:\t%0.4f\n", s.BIC)
	b.WriteString("-------------- Model parameters --------------\n")
	fmt.Fprintf(&b, "%-18s %12s %12s %10s\n", "", "coef", "std err", "t")
	for _, p := range s.Params {
		se, t := fmt.Sprintf("%12.4f", p.StdErr), fmt.Sprintf("%10.3f", p.TStat())
		if math.IsNaN(p.StdErr) {
			se, t = fmt.Sprintf("%12s", "-"), fmt.Sprintf("%10s", "-")
		}
		fmt.Fprintf(&b, "%-18s %12.4f %s %s\n", p.Name, p.Estimate, se, t)
	}
	b.WriteString("----------------------------------------------\n")
	return b.String()
}

// WriteTo prints the summary to w.
func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.String())
	return int64(n), err
}
