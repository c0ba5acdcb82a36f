package garch

import (
	"math"

	"github.com/bjt1997/march/internal/dist"
)

// backcastWindow and backcastDecay define the exponentially weighted
// pre-sample value of |ε|^λ.
const (
	backcastWindow = 75
	backcastDecay  = 0.94
)

// State holds the lagged inputs of the recursion, most recent first.
type State struct {
	absPow []float64 // |ε_{t-i}|^λ
	negPow []float64 // |ε_{t-i}|^λ 1[ε_{t-i} < 0]
	h      []float64 // h_{t-k}
	power  float64
}

// NewState returns the pre-sample state: every lag is set to the backcast,
// half of it for the asymmetric term.
func (s Spec) NewState(backcast float64) *State {
	st := &State{
		absPow: make([]float64, s.lags()),
		negPow: make([]float64, s.lags()),
		h:      make([]float64, s.P),
		power:  s.Power,
	}
	for i := range st.absPow {
		st.absPow[i] = backcast
		st.negPow[i] = 0.5 * backcast
	}
	for i := range st.h {
		st.h[i] = backcast
	}
	return st
}

// StateAt rebuilds the state from which h_t is computed, using the residual
// and variance paths of observations before t and the backcast before 0.
func (s Spec) StateAt(resid, sigma2 []float64, t int, backcast float64) *State {
	st := s.NewState(backcast)
	for i := range st.absPow {
		if k := t - 1 - i; k >= 0 {
			st.absPow[i] = powAbs(resid[k], s.Power)
			st.negPow[i] = 0
			if resid[k] < 0 {
				st.negPow[i] = st.absPow[i]
			}
		}
	}
	for i := range st.h {
		if k := t - 1 - i; k >= 0 {
			st.h[i] = VarianceToH(sigma2[k], s.Power)
		}
	}
	return st
}

// Clone returns an independent copy.
func (st *State) Clone() *State {
	return &State{
		absPow: append([]float64(nil), st.absPow...),
		negPow: append([]float64(nil), st.negPow...),
		h:      append([]float64(nil), st.h...),
		power:  st.power,
	}
}

// Push records the residual and h of the observation just completed.
func (st *State) Push(resid, h float64) {
	if n := len(st.absPow); n > 0 {
		copy(st.absPow[1:], st.absPow[:n-1])
		copy(st.negPow[1:], st.negPow[:n-1])
		st.absPow[0] = powAbs(resid, st.power)
		st.negPow[0] = 0
		if resid < 0 {
			st.negPow[0] = st.absPow[0]
		}
	}
	if n := len(st.h); n > 0 {
		copy(st.h[1:], st.h[:n-1])
		st.h[0] = h
	}
}

// PushExpected records the conditional expectation of an observation in place
// of a realized residual: E[ε²] = h and E[ε² 1[ε < 0]] = h/2. It holds only
// for power 2 and a symmetric innovation law.
func (st *State) PushExpected(h float64) {
	if n := len(st.absPow); n > 0 {
		copy(st.absPow[1:], st.absPow[:n-1])
		copy(st.negPow[1:], st.negPow[:n-1])
		st.absPow[0] = h
		st.negPow[0] = 0.5 * h
	}
	if n := len(st.h); n > 0 {
		copy(st.h[1:], st.h[:n-1])
		st.h[0] = h
	}
}

// Next is the one-step recursion: it returns h_t from the lagged state.
func (p Params) Next(st *State) float64 {
	h := p.Omega
	for i, a := range p.Alpha {
		h += a * st.absPow[i]
	}
	for j, g := range p.Gamma {
		h += g * st.negPow[j]
	}
	for k, b := range p.Beta {
		h += b * st.h[k]
	}
	return h
}

// HToVariance converts h = σ^λ to σ².
func HToVariance(h, power float64) float64 {
	if power == 2 {
		return h
	}
	return math.Pow(h, 2/power)
}

// VarianceToH converts σ² to h = σ^λ.
func VarianceToH(sigma2, power float64) float64 {
	if power == 2 {
		return sigma2
	}
	return math.Pow(sigma2, power/2)
}

func powAbs(x, power float64) float64 {
	switch power {
	case 2:
		return x * x
	case 1:
		return math.Abs(x)
	}
	return math.Pow(math.Abs(x), power)
}

// Backcast is the exponentially weighted mean of |ε|^λ over the first
// observations, used for every pre-sample lag.
func Backcast(resid []float64, power float64) float64 {
	n := min(backcastWindow, len(resid))
	w, sw, sum := 1.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		sum += w * powAbs(resid[i], power)
		sw += w
		w *= backcastDecay
	}
	if sw == 0 {
		return 1
	}
	return sum / sw
}

// Filter runs the recursion over returns, writing σ²_t and ε_t = r_t - μ into
// sigma2 and resid, and returns the log-likelihood of observations [0, last)
// under d. It returns -Inf if the variance path leaves (0, inf).
func (s Spec) Filter(p Params, d dist.Distribution, shape, returns []float64, backcast float64, last int, sigma2, resid []float64) float64 {
	st := s.NewState(backcast)
	ll := 0.0
	for t, r := range returns {
		h := p.Next(st)
		v := HToVariance(h, s.Power)
		if !(v > 0) || math.IsInf(v, 0) {
			return math.Inf(-1)
		}
		e := r - p.Mu
		if sigma2 != nil {
			sigma2[t] = v
			resid[t] = e
		}
		if t < last {
			ll += d.LogPDF(e/math.Sqrt(v), shape) - 0.5*math.Log(v)
		} else if sigma2 == nil {
			break
		}
		st.Push(e, h)
	}
	return ll
}
