// Package forecast produces multi-step covariance forecasts from a fitted
// GARCH + DCC-A model, by Monte-Carlo simulation or by the closed-form
// expected recursions, and simulates synthetic return panels.
package forecast

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/bjt1997/march/internal/dcc"
	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/garch"
)

// Model is a fully parameterized joint model.
type Model struct {
	Spec    garch.Spec
	Dist    dist.Distribution
	Shape   []float64
	Assets  []garch.Params
	DCC     dcc.Params
	Moments *dcc.Moments
}

func (m *Model) validate(op string) error {
	if len(m.Assets) == 0 || m.Moments == nil {
		return errs.Forecast(op, "model", "fitted per-asset and correlation parameters")
	}
	if n := m.Moments.QBar.SymmetricDim(); n != len(m.Assets) {
		return errs.Forecast(op, "model", fmt.Sprintf("%d-dimensional correlation target (got %d)", len(m.Assets), n))
	}
	if err := m.Dist.Validate(m.Shape); err != nil {
		return errs.Forecast(op, "shape", "valid distribution shape").Wrap(err)
	}
	return nil
}

// State is everything needed to produce the next conditional covariance:
// the lagged inputs of each variance recursion and the next Q.
type State struct {
	Vol []*garch.State
	Q   *dcc.Recursion
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := &State{Vol: make([]*garch.State, len(s.Vol)), Q: s.Q.Clone()}
	for i, v := range s.Vol {
		c.Vol[i] = v.Clone()
	}
	return c
}

// History is the filtered output of a fit over the whole sample.
type History struct {
	Sigma2    [][]float64 // [asset][t]
	Resid     [][]float64 // [asset][t]
	Std       [][]float64 // [t][asset]
	Q         []*mat.SymDense
	Backcasts []float64
}

// Len is the number of observations.
func (h History) Len() int { return len(h.Std) }

// NewOrigin builds the state after observation start, so that the first
// forecast step is the covariance of observation start+1.
func (m *Model) NewOrigin(h History, start int) (*State, error) {
	if err := m.validate("forecast.NewOrigin"); err != nil {
		return nil, err
	}
	if start < 0 || start >= h.Len() {
		return nil, errs.Forecast("forecast.NewOrigin", "start", fmt.Sprintf("0 <= start < %d", h.Len())).AtIndex(start)
	}
	st := &State{Vol: make([]*garch.State, len(m.Assets))}
	for i := range m.Assets {
		st.Vol[i] = m.Spec.StateAt(h.Resid[i], h.Sigma2[i], start+1, h.Backcasts[i])
	}
	st.Q = dcc.NewRecursion(m.DCC, m.Moments)
	st.Q.SetQ(h.Q[start])
	st.Q.Update(h.Std[start])
	return st, nil
}

// Simulate draws n observations per asset after discarding burn, starting the
// variance recursions at their unconditional level and Q at its target.
// The result is indexed [asset][t].
func (m *Model) Simulate(n, burn int, seed uint64) ([][]float64, error) {
	if err := m.validate("forecast.Simulate"); err != nil {
		return nil, err
	}
	if n <= 0 || burn < 0 {
		return nil, errs.Forecast("forecast.Simulate", "n", "n > 0 and burn >= 0")
	}
	k := len(m.Assets)
	st := &State{Vol: make([]*garch.State, k), Q: dcc.NewRecursion(m.DCC, m.Moments)}
	for i, a := range m.Assets {
		pers := a.Persistence()
		if !(pers < 1) {
			return nil, errs.Forecast("forecast.Simulate", "persistence", "stationary variance recursion")
		}
		st.Vol[i] = m.Spec.NewState(a.Omega / (1 - pers))
	}
	src := rand.NewSource(seed)
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, 0, n)
	}
	h := make([]float64, k)
	sd := make([]float64, k)
	z := make([]float64, k)
	var corr mat.SymDense
	for t := 0; t < n+burn; t++ {
		for i, a := range m.Assets {
			h[i] = a.Next(st.Vol[i])
			sd[i] = math.Sqrt(garch.HToVariance(h[i], m.Spec.Power))
		}
		dcc.Correlation(&corr, st.Q.Q())
		r, err := m.Dist.MultiRander(&corr, m.Shape, src)
		if err != nil {
			return nil, errs.Forecast("forecast.Simulate", "R", "positive definite correlation matrix").AtIndex(t).Wrap(err)
		}
		r.Rand(z)
		for i, a := range m.Assets {
			e := sd[i] * z[i]
			st.Vol[i].Push(e, h[i])
			if t >= burn {
				out[i] = append(out[i], a.Mu+e)
			}
		}
		st.Q.Update(z)
	}
	return out, nil
}

// TargetMoments estimates the correlation-recursion targets implied by
// innovations with correlation corr, from draws Monte-Carlo samples.
func TargetMoments(corr mat.Symmetric, d dist.Distribution, shape []float64, draws int, seed uint64) (*dcc.Moments, error) {
	r, err := d.MultiRander(corr, shape, rand.NewSource(seed))
	if err != nil {
		return nil, errs.Configuration("forecast.TargetMoments", "corr", "positive definite correlation matrix").Wrap(err)
	}
	z := make([][]float64, draws)
	for t := range z {
		z[t] = r.Rand(nil)
	}
	return dcc.NewMoments(z)
}
