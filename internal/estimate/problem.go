// Package estimate fits the joint GARCH + DCC-A model. Estimation proceeds in
// three stages: independent per-asset fits, a correlation-only fit on the
// resulting standardized residuals, and a final joint maximization of the
// full likelihood started from the two-step estimates.
package estimate

import (
	"fmt"
	"math"

	"github.com/bjt1997/march/internal/dcc"
	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/garch"
)

// Problem is the data and configuration of one joint fit. Returns holds one
// series per asset, all of the same length.
type Problem struct {
	Names   []string
	Returns [][]float64
	Spec    garch.Spec
	Dist    dist.Distribution
	// Last ends the estimation window [0, Last).
	Last int
	// Backcasts are the pre-sample values of |ε|^λ, one per asset.
	Backcasts []float64
}

// NumAssets is the number of series.
func (p *Problem) NumAssets() int { return len(p.Returns) }

// Len is the number of observations per series.
func (p *Problem) Len() int {
	if len(p.Returns) == 0 {
		return 0
	}
	return len(p.Returns[0])
}

// NumMultivar is the number of shared parameters: the DCC-A coefficients
// followed by the distribution shape.
func (p *Problem) NumMultivar() int { return dcc.NumParams + len(p.Dist.ParamNames()) }

// NumParams is the length of the joint parameter vector.
func (p *Problem) NumParams() int {
	return p.NumAssets()*p.Spec.NumParams() + p.NumMultivar()
}

// MultivarOffset is the index of the first shared parameter.
func (p *Problem) MultivarOffset() int { return p.NumAssets() * p.Spec.NumParams() }

// ParamNames labels the joint vector as "<asset>.<param>" and "dcca.<param>".
func (p *Problem) ParamNames() []string {
	names := make([]string, 0, p.NumParams())
	for _, a := range p.Names {
		for _, n := range p.Spec.ParamNames() {
			names = append(names, a+"."+n)
		}
	}
	for _, n := range dcc.ParamNames() {
		names = append(names, dcc.Component+"."+n)
	}
	for _, n := range p.Dist.ParamNames() {
		names = append(names, dcc.Component+"."+n)
	}
	return names
}

// Split unpacks theta into per-asset, correlation and shape parameters.
func (p *Problem) Split(theta []float64) ([]garch.Params, dcc.Params, []float64) {
	k := p.Spec.NumParams()
	assets := make([]garch.Params, p.NumAssets())
	for i := range assets {
		assets[i] = p.Spec.Unpack(theta[i*k : (i+1)*k])
	}
	off := p.MultivarOffset()
	shape := append([]float64(nil), theta[off+dcc.NumParams:]...)
	return assets, dcc.Unpack(theta[off:]), shape
}

// Join packs parameters in the order Split expects.
func (p *Problem) Join(assets []garch.Params, c dcc.Params, shape []float64) []float64 {
	theta := make([]float64, 0, p.NumParams())
	for _, a := range assets {
		theta = a.Pack(theta)
	}
	theta = c.Pack(theta)
	return append(theta, shape...)
}

func (p *Problem) fromUnconstrained(dst, x []float64) {
	k := p.Spec.NumParams()
	for i := 0; i < p.NumAssets(); i++ {
		p.Spec.FromUnconstrained(dst[i*k:(i+1)*k], x[i*k:(i+1)*k])
	}
	off := p.MultivarOffset()
	dcc.FromUnconstrained(dst[off:], x[off:])
	if len(dst) > off+dcc.NumParams {
		p.Dist.FromUnconstrained(dst[off+dcc.NumParams:], x[off+dcc.NumParams:])
	}
}

func (p *Problem) toUnconstrained(dst, theta []float64) {
	k := p.Spec.NumParams()
	for i := 0; i < p.NumAssets(); i++ {
		p.Spec.ToUnconstrained(dst[i*k:(i+1)*k], theta[i*k:(i+1)*k])
	}
	off := p.MultivarOffset()
	dcc.ToUnconstrained(dst[off:], theta[off:])
	if len(dst) > off+dcc.NumParams {
		p.Dist.ToUnconstrained(dst[off+dcc.NumParams:], theta[off+dcc.NumParams:])
	}
}

// Paths are the recursions evaluated at one parameter vector over the whole
// sample. Moments are computed on the estimation window only.
type Paths struct {
	Sigma2  [][]float64 // [asset][t]
	Resid   [][]float64 // [asset][t]
	Std     [][]float64 // [t][asset]
	Moments *dcc.Moments
	Corr    dcc.Path
	LogLik  float64
}

// Evaluate runs every recursion at theta and returns the paths together with
// the joint log-likelihood of [0, Last). It fails if a conditional variance
// leaves (0, inf) or a correlation matrix is not positive definite.
func (p *Problem) Evaluate(theta []float64) (*Paths, error) {
	if len(theta) != p.NumParams() {
		return nil, errs.Estimation("estimate.Evaluate", "theta", fmt.Sprintf("length %d (got %d)", p.NumParams(), len(theta)))
	}
	assets, c, shape := p.Split(theta)
	if err := p.Dist.Validate(shape); err != nil {
		return nil, err
	}
	n, T := p.NumAssets(), p.Len()
	out := &Paths{
		Sigma2: make([][]float64, n),
		Resid:  make([][]float64, n),
		Std:    make([][]float64, T),
	}
	for i, r := range p.Returns {
		out.Sigma2[i] = make([]float64, T)
		out.Resid[i] = make([]float64, T)
		ll := p.Spec.Filter(assets[i], p.Dist, shape, r, p.Backcasts[i], p.Last, out.Sigma2[i], out.Resid[i])
		if math.IsInf(ll, -1) {
			return nil, errs.Estimation("estimate.Evaluate", p.Names[i]+".sigma2", "positive finite conditional variance")
		}
	}
	for t := range out.Std {
		out.Std[t] = make([]float64, n)
		for i := range out.Std[t] {
			out.Std[t][i] = out.Resid[i][t] / math.Sqrt(out.Sigma2[i][t])
		}
	}
	m, err := dcc.NewMoments(out.Std[:p.Last])
	if err != nil {
		return nil, err
	}
	out.Moments = m
	ll, err := dcc.Filter(c, m, out.Std, p.Last, p.multiLogPDF(shape), &out.Corr)
	if err != nil {
		return nil, err
	}
	out.LogLik = ll - p.logVarianceSum(out.Sigma2, p.Last)
	return out, nil
}

// logLik is the joint log-likelihood of [0, Last) without path storage. It
// reports false when theta is outside the searched region or a recursion
// breaks down.
func (p *Problem) logLik(theta []float64) (float64, bool) {
	assets, c, shape := p.Split(theta)
	if p.Dist.Validate(shape) != nil {
		return 0, false
	}
	for _, a := range assets {
		if !a.Feasible() {
			return 0, false
		}
	}
	n, last := p.NumAssets(), p.Last
	sigma2 := make([][]float64, n)
	resid := make([]float64, last)
	z := make([][]float64, last)
	for t := range z {
		z[t] = make([]float64, n)
	}
	for i, r := range p.Returns {
		sigma2[i] = make([]float64, last)
		ll := p.Spec.Filter(assets[i], p.Dist, shape, r[:last], p.Backcasts[i], last, sigma2[i], resid)
		if math.IsInf(ll, -1) {
			return 0, false
		}
		for t := range z {
			z[t][i] = resid[t] / math.Sqrt(sigma2[i][t])
		}
	}
	m, err := dcc.NewMoments(z)
	if err != nil || !c.Feasible(m.Delta) {
		return 0, false
	}
	ll, err := dcc.Filter(c, m, z, last, p.multiLogPDF(shape), nil)
	if err != nil {
		return 0, false
	}
	ll -= p.logVarianceSum(sigma2, last)
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, false
	}
	return ll, true
}

func (p *Problem) multiLogPDF(shape []float64) func(quad, logDet float64) float64 {
	n := p.NumAssets()
	return func(quad, logDet float64) float64 {
		return p.Dist.MultiLogPDF(quad, logDet, n, shape)
	}
}

// logVarianceSum is ½ Σ_i Σ_{t<last} ln σ²_it, the Jacobian of the
// standardization.
func (p *Problem) logVarianceSum(sigma2 [][]float64, last int) float64 {
	sum := 0.0
	for _, s := range sigma2 {
		for _, v := range s[:last] {
			sum += math.Log(v)
		}
	}
	return 0.5 * sum
}
