// Package dcc implements the asymmetric Dynamic Conditional Correlation
// model (DCC-A). Given standardized residuals z_t, the pseudo-correlation
// recursion is
//
//	Q_t = (1 - α - β) Q̄ + α z_{t-1} z_{t-1}ᵀ + γ n_{t-1} n_{t-1}ᵀ + β Q_{t-1}
//
// with n_t = min(z_t, 0) elementwise, and R_t is Q_t rescaled to unit diagonal.
// Q̄ and N̄ are the sample second moments of z_t and n_t.
package dcc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/bjt1997/march/internal/boundary"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/transform"
)

// Component is the name used for DCC-A rows in boundary reports.
const Component = "dcca"

// minDiag floors the diagonal of Q_t before rescaling.
const minDiag = 1e-12

// NumParams is the number of correlation-dynamics parameters.
const NumParams = 3

// ParamNames lists the parameters in packed order.
func ParamNames() []string { return []string{"alpha", "beta", "gamma"} }

// Params are the DCC-A reaction, persistence and asymmetry coefficients.
type Params struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// Unpack reads α, β, γ from v.
func Unpack(v []float64) Params { return Params{Alpha: v[0], Beta: v[1], Gamma: v[2]} }

// Pack appends α, β, γ to dst.
func (p Params) Pack(dst []float64) []float64 { return append(dst, p.Alpha, p.Beta, p.Gamma) }

// Persistence is α + β + δγ.
func (p Params) Persistence(delta float64) float64 {
	return p.Alpha + p.Beta + delta*p.Gamma
}

// Constraints checks non-negativity and stationarity. delta is the
// asymmetry scale from Moments.
func (p Params) Constraints(delta float64) boundary.Report {
	pers := p.Persistence(delta)
	return boundary.Report{
		{Component: Component, Param: "alpha", Rule: "alpha >= 0", Value: p.Alpha, Satisfied: p.Alpha >= 0},
		{Component: Component, Param: "beta", Rule: "beta >= 0", Value: p.Beta, Satisfied: p.Beta >= 0},
		{Component: Component, Param: "gamma", Rule: "gamma >= 0", Value: p.Gamma, Satisfied: p.Gamma >= 0},
		{Component: Component, Param: "alpha + beta + delta*gamma", Rule: "persistence < 1", Value: pers, Satisfied: pers < 1},
	}
}

// Feasible reports whether p lies strictly inside the stationary region.
func (p Params) Feasible(delta float64) bool {
	return p.Alpha >= 0 && p.Beta >= 0 && p.Gamma >= 0 &&
		p.Alpha+p.Beta < 1 && p.Persistence(delta) < 1-1e-6
}

// FromUnconstrained maps optimizer coordinates to (0, 1) for each parameter.
func FromUnconstrained(dst, x []float64) {
	for i := 0; i < NumParams; i++ {
		dst[i] = transform.Sigmoid(x[i])
	}
}

// ToUnconstrained is the inverse of FromUnconstrained.
func ToUnconstrained(dst, v []float64) {
	for i := 0; i < NumParams; i++ {
		dst[i] = transform.Logit(v[i])
	}
}

// Moments are the sample quantities the recursion targets.
type Moments struct {
	QBar *mat.SymDense
	NBar *mat.SymDense
	// Delta is the largest eigenvalue of Q̄^{-1/2} N̄ Q̄^{-1/2}, the weight of
	// γ in the stationarity condition.
	Delta float64
}

// NewMoments computes Q̄ = mean(z zᵀ) and N̄ = mean(n nᵀ) over z[0:len(z)),
// where each z[t] holds one standardized residual per asset.
func NewMoments(z [][]float64) (*Moments, error) {
	if len(z) == 0 {
		return nil, errs.Estimation("dcc.NewMoments", "z", "at least one observation")
	}
	n := len(z[0])
	qbar := mat.NewSymDense(n, nil)
	nbar := mat.NewSymDense(n, nil)
	neg := make([]float64, n)
	w := 1 / float64(len(z))
	for _, zt := range z {
		negativePart(neg, zt)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				qbar.SetSym(i, j, qbar.At(i, j)+w*zt[i]*zt[j])
				nbar.SetSym(i, j, nbar.At(i, j)+w*neg[i]*neg[j])
			}
		}
	}
	delta, err := asymmetryScale(qbar, nbar)
	if err != nil {
		return nil, err
	}
	return &Moments{QBar: qbar, NBar: nbar, Delta: delta}, nil
}

func asymmetryScale(qbar, nbar *mat.SymDense) (float64, error) {
	n := qbar.SymmetricDim()
	var root mat.SymDense
	if err := root.PowPSD(qbar, -0.5); err != nil {
		return 0, errs.Estimation("dcc.NewMoments", "QBar", "positive definite").Wrap(err)
	}
	var tmp, prod mat.Dense
	tmp.Mul(&root, nbar)
	prod.Mul(&tmp, &root)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(prod.At(i, j)+prod.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return 0, errs.Estimation("dcc.NewMoments", "NBar", "eigen decomposition")
	}
	return floatsMax(eig.Values(nil)), nil
}

func floatsMax(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}

func negativePart(dst, z []float64) {
	for i, v := range z {
		dst[i] = math.Min(v, 0)
	}
}

// Recursion carries Q_t forward.
type Recursion struct {
	p   Params
	m   *Moments
	q   *mat.SymDense
	neg []float64
}

// NewRecursion starts the recursion at Q_0 = Q̄.
func NewRecursion(p Params, m *Moments) *Recursion {
	n := m.QBar.SymmetricDim()
	q := mat.NewSymDense(n, nil)
	q.CopySym(m.QBar)
	return &Recursion{p: p, m: m, q: q, neg: make([]float64, n)}
}

// Q returns the current pseudo-correlation matrix. The result must not be
// modified.
func (r *Recursion) Q() *mat.SymDense { return r.q }

// SetQ replaces the current state.
func (r *Recursion) SetQ(q mat.Symmetric) { r.q.CopySym(q) }

// Clone returns an independent recursion with the same state.
func (r *Recursion) Clone() *Recursion {
	c := NewRecursion(r.p, r.m)
	c.q.CopySym(r.q)
	return c
}

// Update advances Q_t to Q_{t+1} given the standardized residual z_t.
func (r *Recursion) Update(z []float64) {
	n := len(z)
	c := 1 - r.p.Alpha - r.p.Beta
	negativePart(r.neg, z)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := c*r.m.QBar.At(i, j) +
				r.p.Alpha*z[i]*z[j] +
				r.p.Gamma*r.neg[i]*r.neg[j] +
				r.p.Beta*r.q.At(i, j)
			r.q.SetSym(i, j, v)
		}
	}
}

// Correlation rescales q to unit diagonal and stores it in dst. Diagonal
// entries are floored at a small positive value and off-diagonal entries are
// clipped to [-1, 1].
func Correlation(dst *mat.SymDense, q mat.Symmetric) {
	n := q.SymmetricDim()
	if dst.IsEmpty() {
		*dst = *mat.NewSymDense(n, nil)
	}
	d := make([]float64, n)
	for i := range d {
		d[i] = math.Sqrt(math.Max(q.At(i, i), minDiag))
	}
	for i := 0; i < n; i++ {
		dst.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			dst.SetSym(i, j, math.Max(-1, math.Min(1, q.At(i, j)/(d[i]*d[j]))))
		}
	}
}

// Path stores the recursion output for every observation.
type Path struct {
	Q []*mat.SymDense
	R []*mat.SymDense
}

// Filter runs the recursion over z and returns Σ_{t<last} ln f(z_t | R_t)
// under the multivariate log-density logPDF(quad, logDet). When path is non-nil
// it receives Q_t and R_t for every t. It fails if some R_t is not positive
// definite.
func Filter(p Params, m *Moments, z [][]float64, last int, logPDF func(quad, logDet float64) float64, path *Path) (float64, error) {
	n := m.QBar.SymmetricDim()
	rec := NewRecursion(p, m)
	var (
		corr = mat.NewSymDense(n, nil)
		chol mat.Cholesky
		sol  = mat.NewVecDense(n, nil)
		ll   float64
	)
	for t, zt := range z {
		if t >= last && path == nil {
			break
		}
		Correlation(corr, rec.Q())
		if path != nil {
			q := mat.NewSymDense(n, nil)
			q.CopySym(rec.Q())
			r := mat.NewSymDense(n, nil)
			r.CopySym(corr)
			path.Q = append(path.Q, q)
			path.R = append(path.R, r)
		}
		if !chol.Factorize(corr) {
			return math.Inf(-1), errs.Estimation("dcc.Filter", "R", "positive definite correlation matrix").AtIndex(t)
		}
		if t < last {
			zv := mat.NewVecDense(n, zt)
			if err := chol.SolveVecTo(sol, zv); err != nil {
				return math.Inf(-1), errs.Estimation("dcc.Filter", "R", "well-conditioned correlation matrix").AtIndex(t).Wrap(err)
			}
			ll += logPDF(mat.Dot(zv, sol), chol.LogDet())
		}
		rec.Update(zt)
	}
	if math.IsNaN(ll) {
		return ll, errs.Estimation("dcc.Filter", "loglik", fmt.Sprintf("finite value over %d observations", last))
	}
	return ll, nil
}
