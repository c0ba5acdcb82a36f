// Package garch implements the univariate GARCH-family volatility model:
// a constant mean, a power-transformed conditional variance recursion with an
// optional sign-dependent (threshold) term, its likelihood under a chosen
// innovation law, and per-series maximum likelihood estimation.
//
// With h_t = σ_t^λ the recursion is
//
//	h_t = ω + Σ_{i≤Q} α_i |ε_{t-i}|^λ + Σ_{j≤O} γ_j |ε_{t-j}|^λ 1[ε_{t-j} < 0] + Σ_{k≤P} β_k h_{t-k}
//
// so λ = 2 gives the GJR-GARCH variance equation and λ = 1 the TARCH/ZARCH
// standard-deviation equation.
package garch

import (
	"fmt"
	"math"

	"github.com/bjt1997/march/internal/boundary"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/transform"
)

// Spec describes a GARCH-family model. P is the number of lagged conditional
// variances (GARCH lags), Q the number of lagged shocks (ARCH lags) and O the
// number of asymmetric lags.
type Spec struct {
	P     int
	O     int
	Q     int
	Power float64
}

// GARCH returns the spec for orders (p, o, q) and the given power.
func GARCH(p, o, q int, power float64) Spec {
	return Spec{P: p, O: o, Q: q, Power: power}
}

// Validate checks the orders and power.
func (s Spec) Validate() error {
	switch {
	case s.P < 0:
		return errs.Configuration("garch.Spec", "p", "p >= 0")
	case s.O < 0:
		return errs.Configuration("garch.Spec", "o", "o >= 0")
	case s.Q < 0:
		return errs.Configuration("garch.Spec", "q", "q >= 0")
	case s.P == 0 && s.Q == 0:
		return errs.Configuration("garch.Spec", "p,q", "p > 0 or q > 0")
	case !(s.Power > 0) || math.IsInf(s.Power, 0):
		return errs.Configuration("garch.Spec", "power", "0 < power < inf")
	}
	return nil
}

func (s Spec) String() string {
	return fmt.Sprintf("GARCH(p=%d, o=%d, q=%d, power=%g)", s.P, s.O, s.Q, s.Power)
}

// NumParams is the length of a packed parameter vector.
func (s Spec) NumParams() int { return 2 + s.Q + s.O + s.P }

// ParamNames lists the packed parameters in order.
func (s Spec) ParamNames() []string {
	names := []string{"mu", "omega"}
	for i := 1; i <= s.Q; i++ {
		names = append(names, fmt.Sprintf("alpha[%d]", i))
	}
	for i := 1; i <= s.O; i++ {
		names = append(names, fmt.Sprintf("gamma[%d]", i))
	}
	for i := 1; i <= s.P; i++ {
		names = append(names, fmt.Sprintf("beta[%d]", i))
	}
	return names
}

// lags is the number of past shocks the recursion reads.
func (s Spec) lags() int { return max(s.Q, s.O) }

// Params are the natural-scale parameters of one series.
type Params struct {
	Mu    float64
	Omega float64
	Alpha []float64
	Gamma []float64
	Beta  []float64
}

// Unpack splits a packed vector. The returned slices do not alias v.
func (s Spec) Unpack(v []float64) Params {
	v = append([]float64(nil), v...)
	o := 2
	p := Params{Mu: v[0], Omega: v[1]}
	p.Alpha, o = v[o:o+s.Q:o+s.Q], o+s.Q
	p.Gamma, o = v[o:o+s.O:o+s.O], o+s.O
	p.Beta = v[o : o+s.P : o+s.P]
	return p
}

// Pack appends p to dst in ParamNames order.
func (p Params) Pack(dst []float64) []float64 {
	dst = append(dst, p.Mu, p.Omega)
	dst = append(dst, p.Alpha...)
	dst = append(dst, p.Gamma...)
	return append(dst, p.Beta...)
}

// Persistence is Σα + ½Σγ + Σβ, the sum that must stay below one for the
// recursion to be covariance stationary under a symmetric innovation law.
func (p Params) Persistence() float64 {
	sum := 0.0
	for _, a := range p.Alpha {
		sum += a
	}
	for _, g := range p.Gamma {
		sum += 0.5 * g
	}
	for _, b := range p.Beta {
		sum += b
	}
	return sum
}

// Constraints checks p against positivity and stationarity. Violations are
// reported, never corrected.
func (s Spec) Constraints(component string, p Params) boundary.Report {
	minCoef := math.Inf(1)
	for _, c := range [][]float64{p.Alpha, p.Gamma, p.Beta} {
		for _, v := range c {
			minCoef = math.Min(minCoef, v)
		}
	}
	if math.IsInf(minCoef, 1) {
		minCoef = 0
	}
	pers := p.Persistence()
	return boundary.Report{
		{Component: component, Param: "omega", Rule: "omega > 0", Value: p.Omega, Satisfied: p.Omega > 0},
		{Component: component, Param: "min(alpha, gamma, beta)", Rule: ">= 0", Value: minCoef, Satisfied: minCoef >= 0},
		{Component: component, Param: "sum(alpha) + sum(gamma)/2 + sum(beta)", Rule: "0 < persistence < 1", Value: pers, Satisfied: pers > 0 && pers < 1},
	}
}

// Feasible reports whether p lies in the region the optimizer searches.
func (p Params) Feasible() bool {
	if !(p.Omega > 0) {
		return false
	}
	pers := p.Persistence()
	return pers < 1-1e-6 && !math.IsNaN(pers)
}

// FromUnconstrained maps optimizer coordinates to packed parameters: mu is
// free, omega is positive and the coefficients lie in (0, 1).
func (s Spec) FromUnconstrained(dst, x []float64) {
	dst[0] = x[0]
	dst[1] = transform.Positive(x[1])
	for i := 2; i < s.NumParams(); i++ {
		dst[i] = transform.Sigmoid(x[i])
	}
}

// ToUnconstrained is the inverse of FromUnconstrained.
func (s Spec) ToUnconstrained(dst, v []float64) {
	dst[0] = v[0]
	dst[1] = transform.InversePositive(v[1])
	for i := 2; i < s.NumParams(); i++ {
		dst[i] = transform.Logit(v[i])
	}
}

// StartingValues returns a stationary starting point given the sample mean
// and the backcast of |ε|^λ.
func (s Spec) StartingValues(mean, backcast float64) Params {
	const alphaTotal, gammaTotal, betaTotal = 0.05, 0.10, 0.85
	p := Params{
		Mu:    mean,
		Alpha: spread(alphaTotal, s.Q),
		Gamma: spread(gammaTotal, s.O),
		Beta:  spread(betaTotal, s.P),
	}
	p.Omega = backcast * (1 - p.Persistence())
	return p
}

func spread(total float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = total / float64(n)
	}
	return out
}
