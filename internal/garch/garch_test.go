package garch

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
)

func simulate(s Spec, p Params, d dist.Distribution, shape []float64, n int, seed uint64) []float64 {
	const burn = 500
	r := d.Rander(shape, rand.NewSource(seed))
	st := s.NewState(p.Omega / (1 - p.Persistence()))
	out := make([]float64, 0, n)
	for t := 0; t < n+burn; t++ {
		h := p.Next(st)
		e := math.Sqrt(HToVariance(h, s.Power)) * r.Rand()
		st.Push(e, h)
		if t >= burn {
			out = append(out, p.Mu+e)
		}
	}
	return out
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name  string
		spec  Spec
		valid bool
	}{
		{"garch(1,1)", GARCH(1, 0, 1, 2), true},
		{"gjr(2,1,2)", GARCH(2, 1, 2, 2), true},
		{"arch(1)", GARCH(0, 0, 1, 2), true},
		{"tarch", GARCH(1, 1, 1, 1), true},
		{"negative p", GARCH(-1, 0, 1, 2), false},
		{"negative o", GARCH(1, -1, 1, 2), false},
		{"negative q", GARCH(1, 0, -1, 2), false},
		{"no lags", GARCH(0, 1, 0, 2), false},
		{"zero power", GARCH(1, 0, 1, 0), false},
		{"nan power", GARCH(1, 0, 1, math.NaN()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestPackUnpack(t *testing.T) {
	s := GARCH(2, 1, 2, 2)
	assert.Equal(t, 7, s.NumParams())
	assert.Equal(t, []string{"mu", "omega", "alpha[1]", "alpha[2]", "gamma[1]", "beta[1]", "beta[2]"}, s.ParamNames())

	v := []float64{0.05, 0.02, 0.03, 0.01, 0.1, 0.5, 0.3}
	p := s.Unpack(v)
	assert.Equal(t, []float64{0.03, 0.01}, p.Alpha)
	assert.Equal(t, []float64{0.1}, p.Gamma)
	assert.Equal(t, []float64{0.5, 0.3}, p.Beta)
	assert.Equal(t, v, p.Pack(nil))

	p.Alpha[0] = 9
	assert.Equal(t, 0.03, v[2], "Unpack must copy")
	assert.InDelta(t, 9+0.01+0.05+0.8, p.Persistence(), 1e-12)
}

func TestNextByHand(t *testing.T) {
	s := GARCH(1, 1, 1, 2)
	p := Params{Omega: 0.1, Alpha: []float64{0.05}, Gamma: []float64{0.1}, Beta: []float64{0.8}}
	st := s.NewState(1.0)
	// pre-sample: 0.1 + 0.05*1 + 0.1*0.5 + 0.8*1
	assert.InDelta(t, 1.0, p.Next(st), 1e-12)

	st.Push(-2, 1.0)
	// 0.1 + 0.05*4 + 0.1*4 + 0.8*1
	assert.InDelta(t, 1.5, p.Next(st), 1e-12)

	st.Push(3, 1.5)
	// 0.1 + 0.05*9 + 0 + 0.8*1.5
	assert.InDelta(t, 1.75, p.Next(st), 1e-12)

	c := st.Clone()
	c.Push(0, 10)
	assert.InDelta(t, 1.75, p.Next(st), 1e-12, "clone must not share storage")
}

func TestPowerOne(t *testing.T) {
	s := GARCH(1, 0, 1, 1)
	p := Params{Omega: 0.05, Alpha: []float64{0.1}, Beta: []float64{0.85}}
	st := s.NewState(0.8)
	st.Push(-1.5, 0.8)
	h := p.Next(st)
	assert.InDelta(t, 0.05+0.1*1.5+0.85*0.8, h, 1e-12)
	assert.InDelta(t, h*h, HToVariance(h, 1), 1e-12)
	assert.InDelta(t, h, VarianceToH(HToVariance(h, 1), 1), 1e-12)
}

func TestBackcast(t *testing.T) {
	assert.InDelta(t, 4.0, Backcast([]float64{2, -2, 2, -2}, 2), 1e-12)
	assert.InDelta(t, 2.0, Backcast([]float64{2, -2, 2, -2}, 1), 1e-12)
	assert.Equal(t, 1.0, Backcast(nil, 2))

	// only the first observations carry weight
	long := make([]float64, 1000)
	for i := range long {
		long[i] = 1
	}
	long[999] = 1e6
	assert.InDelta(t, 1.0, Backcast(long, 2), 1e-12)
}

func TestFilterMatchesStateAt(t *testing.T) {
	s := GARCH(2, 1, 2, 2)
	p := Params{Mu: 0.03, Omega: 0.02, Alpha: []float64{0.03, 0.02}, Gamma: []float64{0.08}, Beta: []float64{0.5, 0.35}}
	shape := []float64{7}
	returns := simulate(s, p, dist.StudentT{}, shape, 400, 11)

	sigma2 := make([]float64, len(returns))
	resid := make([]float64, len(returns))
	bc := Backcast(returns, 2)
	ll := s.Filter(p, dist.StudentT{}, shape, returns, bc, 300, sigma2, resid)
	require.False(t, math.IsInf(ll, 0))

	// likelihood without path storage is identical
	assert.Equal(t, ll, s.Filter(p, dist.StudentT{}, shape, returns, bc, 300, nil, nil))

	// likelihood is the sum of per-observation contributions
	manual := 0.0
	for t := 0; t < 300; t++ {
		manual += dist.StudentT{}.LogPDF(resid[t]/math.Sqrt(sigma2[t]), shape) - 0.5*math.Log(sigma2[t])
	}
	assert.InDelta(t, manual, ll, 1e-8)

	for _, at := range []int{0, 1, 2, 150, 399} {
		st := s.StateAt(resid, sigma2, at, bc)
		assert.InDelta(t, sigma2[at], p.Next(st), 1e-12, "t=%d", at)
	}
}

func TestConstraints(t *testing.T) {
	s := GARCH(1, 1, 1, 2)

	ok := s.Constraints("SPX", Params{Omega: 0.02, Alpha: []float64{0.05}, Gamma: []float64{0.1}, Beta: []float64{0.85}})
	require.Len(t, ok, 3)
	assert.True(t, ok.OK())

	bad := s.Constraints("SPX", Params{Omega: 0.02, Alpha: []float64{0.15}, Gamma: []float64{0.1}, Beta: []float64{0.85}})
	v := bad.Violations()
	require.Len(t, v, 1)
	assert.Equal(t, "sum(alpha) + sum(gamma)/2 + sum(beta)", v[0].Param)
	assert.InDelta(t, 1.05, v[0].Value, 1e-12)

	neg := s.Constraints("SPX", Params{Omega: -1, Alpha: []float64{-0.01}, Gamma: []float64{0.1}, Beta: []float64{0.85}})
	assert.Len(t, neg.Violations(), 2)
}

func TestTransformRoundTrip(t *testing.T) {
	s := GARCH(2, 1, 2, 2)
	v := []float64{-0.02, 0.013, 0.03, 0.01, 0.12, 0.6, 0.25}
	x := make([]float64, len(v))
	back := make([]float64, len(v))
	s.ToUnconstrained(x, v)
	s.FromUnconstrained(back, x)
	assert.InDeltaSlice(t, v, back, 1e-10)
}

func TestFitRecoversParameters(t *testing.T) {
	if testing.Short() {
		t.Skip("estimation test")
	}
	s := GARCH(1, 0, 1, 2)
	truth := Params{Mu: 0.05, Omega: 0.05, Alpha: []float64{0.08}, Beta: []float64{0.88}}

	t.Run("normal", func(t *testing.T) {
		returns := simulate(s, truth, dist.Normal{}, nil, 4000, 3)
		res, err := s.Fit(context.Background(), "X", returns, dist.Normal{}, FitOptions{})
		require.NoError(t, err)
		assert.InDelta(t, truth.Alpha[0], res.Params.Alpha[0], 0.04)
		assert.InDelta(t, truth.Beta[0], res.Params.Beta[0], 0.06)
		assert.Less(t, res.Params.Persistence(), 1.0)
		assert.Len(t, res.Sigma2, len(returns))
		assert.Empty(t, res.Shape)
	})

	t.Run("student with holdout", func(t *testing.T) {
		returns := simulate(s, truth, dist.StudentT{}, []float64{6}, 4000, 5)
		res, err := s.Fit(context.Background(), "X", returns, dist.StudentT{}, FitOptions{Last: 3500})
		require.NoError(t, err)
		require.Len(t, res.Shape, 1)
		assert.Greater(t, res.Shape[0], 3.0)
		assert.Less(t, res.Shape[0], 15.0)
		assert.Len(t, res.Resid, 4000, "paths cover the held-out sample")
		assert.InDelta(t, res.LogLik, s.Filter(res.Params, dist.StudentT{}, res.Shape, returns, res.Backcast, 3500, nil, nil), 1e-9)
	})
}

func TestFitRejectsBadWindow(t *testing.T) {
	s := GARCH(1, 0, 1, 2)
	_, err := s.Fit(context.Background(), "X", make([]float64, 100), dist.Normal{}, FitOptions{Last: 101})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrEstimation)
}

func TestFitCancelled(t *testing.T) {
	s := GARCH(1, 0, 1, 2)
	truth := Params{Mu: 0, Omega: 0.05, Alpha: []float64{0.08}, Beta: []float64{0.88}}
	returns := simulate(s, truth, dist.Normal{}, nil, 500, 9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Fit(ctx, "X", returns, dist.Normal{}, FitOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPushExpected(t *testing.T) {
	s := GARCH(1, 1, 1, 2)
	p := Params{Omega: 0.1, Alpha: []float64{0.05}, Gamma: []float64{0.1}, Beta: []float64{0.8}}
	st := s.NewState(1.0)
	h := p.Next(st)
	st.PushExpected(h)
	// E[h_{t+1}] = ω + (α + γ/2 + β) h_t
	assert.InDelta(t, 0.1+(0.05+0.05+0.8)*h, p.Next(st), 1e-12)
}
