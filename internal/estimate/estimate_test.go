package estimate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/bjt1997/march/internal/dcc"
	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/forecast"
	"github.com/bjt1997/march/internal/garch"
)

var names = []string{"SPX", "NDX"}

func simulatePanel(t *testing.T, spec garch.Spec, d dist.Distribution, shape []float64, n int, seed uint64) [][]float64 {
	t.Helper()
	corr := mat.NewSymDense(2, []float64{1, 0.6, 0.6, 1})
	m, err := forecast.TargetMoments(corr, d, shape, 20000, seed)
	require.NoError(t, err)
	start := spec.StartingValues(0.03, 1)
	model := &forecast.Model{
		Spec:    spec,
		Dist:    d,
		Shape:   shape,
		Assets:  []garch.Params{start, start},
		DCC:     dcc.Params{Alpha: 0.04, Beta: 0.92, Gamma: 0.03},
		Moments: m,
	}
	returns, err := model.Simulate(n, 500, seed)
	require.NoError(t, err)
	return returns
}

func TestLayout(t *testing.T) {
	p := &Problem{Names: names, Returns: make([][]float64, 2), Spec: garch.GARCH(1, 0, 1, 2), Dist: dist.StudentT{}}
	assert.Equal(t, 2*4+4, p.NumParams())
	assert.Equal(t, 8, p.MultivarOffset())
	assert.Equal(t, []string{
		"SPX.mu", "SPX.omega", "SPX.alpha[1]", "SPX.beta[1]",
		"NDX.mu", "NDX.omega", "NDX.alpha[1]", "NDX.beta[1]",
		"dcca.alpha", "dcca.beta", "dcca.gamma", "dcca.nu",
	}, p.ParamNames())

	theta := []float64{0.1, 0.02, 0.05, 0.9, 0.2, 0.03, 0.06, 0.88, 0.04, 0.93, 0.02, 7}
	assets, c, shape := p.Split(theta)
	assert.Equal(t, 0.2, assets[1].Mu)
	assert.Equal(t, []float64{0.88}, assets[1].Beta)
	assert.Equal(t, dcc.Params{Alpha: 0.04, Beta: 0.93, Gamma: 0.02}, c)
	assert.Equal(t, []float64{7}, shape)
	assert.Equal(t, theta, p.Join(assets, c, shape))

	x := make([]float64, len(theta))
	back := make([]float64, len(theta))
	p.toUnconstrained(x, theta)
	p.fromUnconstrained(back, x)
	assert.InDeltaSlice(t, theta, back, 1e-9)

	normal := &Problem{Names: names, Returns: make([][]float64, 2), Spec: garch.GARCH(1, 0, 1, 2), Dist: dist.Normal{}}
	assert.Equal(t, 3, normal.NumMultivar())
	assert.Len(t, normal.ParamNames(), 11)
}

func TestFitRejectsBadInput(t *testing.T) {
	spec := garch.GARCH(1, 0, 1, 2)
	returns := simulatePanel(t, spec, dist.Normal{}, nil, 300, 1)
	ctx := context.Background()

	tests := []struct {
		name    string
		names   []string
		returns [][]float64
		opts    Options
		want    error
	}{
		{"one series", names[:1], returns[:1], Options{}, errs.ErrConfiguration},
		{"last beyond sample", names, returns, Options{LastObs: 301}, errs.ErrEstimation},
		{"window too short", names, returns, Options{LastObs: 10}, errs.ErrEstimation},
		{"ragged", names, [][]float64{returns[0], returns[1][:200]}, Options{}, errs.ErrData},
		{"init length", names, returns, Options{Init: []float64{0.05, 0.9}}, errs.ErrConfiguration},
		{"init non-stationary", names, returns, Options{Init: []float64{0.1, 0.9, 0}}, errs.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(ctx, tt.names, tt.returns, spec, dist.Normal{}, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("student nu in init", func(t *testing.T) {
		_, err := Fit(ctx, names, returns, spec, dist.StudentT{}, Options{Init: []float64{0.05, 0.9, 0.02, 1.5}})
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrConfiguration)
	})
}

func TestFitCancelled(t *testing.T) {
	spec := garch.GARCH(1, 0, 1, 2)
	returns := simulatePanel(t, spec, dist.Normal{}, nil, 300, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fit(ctx, names, returns, spec, dist.Normal{}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateReproducesFit(t *testing.T) {
	if testing.Short() {
		t.Skip("estimation test")
	}
	spec := garch.GARCH(1, 0, 1, 2)
	returns := simulatePanel(t, spec, dist.Normal{}, nil, 1200, 3)
	res, err := Fit(context.Background(), names, returns, spec, dist.Normal{}, Options{LastObs: 1000, SkipStdErrors: true})
	require.NoError(t, err)

	again, err := res.Problem.Evaluate(res.Theta)
	require.NoError(t, err)
	assert.Equal(t, res.LogLik, again.LogLik)
	assert.Equal(t, res.Paths.Sigma2, again.Sigma2)
	for t2 := range again.Corr.R {
		require.True(t, mat.Equal(res.Paths.Corr.R[t2], again.Corr.R[t2]))
	}

	fast, ok := res.Problem.logLik(res.Theta)
	require.True(t, ok)
	assert.InDelta(t, res.LogLik, fast, 1e-8)

	// paths extend over the held-out sample
	assert.Len(t, again.Sigma2[0], 1200)
	assert.Len(t, again.Corr.R, 1200)
	for _, se := range res.StdErr {
		assert.True(t, math.IsNaN(se))
	}
}

func TestFitScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("estimation test")
	}
	spec := garch.GARCH(2, 1, 2, 2)
	d := dist.StudentT{}
	returns := simulatePanel(t, spec, d, []float64{7}, 2700, 4)

	res, err := Fit(context.Background(), names, returns, spec, d, Options{
		LastObs: 2500,
		Init:    []float64{0.05, 0.9, 0.05, 7},
	})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.False(t, math.IsNaN(res.LogLik))
	assert.False(t, math.IsInf(res.LogLik, 0))
	assert.Equal(t, 2500, res.NumObs())
	assert.Len(t, res.Theta, 18)
	assert.Len(t, res.StdErr, 18)
	assert.Len(t, res.Univariate, 2)

	_, c, shape := res.Split()
	require.Len(t, shape, 1)
	assert.Greater(t, shape[0], 2.0)
	assert.Less(t, c.Persistence(res.Paths.Moments.Delta), 1.0)

	for _, r := range res.Paths.Corr.R {
		var chol mat.Cholesky
		require.True(t, chol.Factorize(r), "correlation path must stay positive definite")
	}
	assert.Less(t, res.AIC(), res.BIC())
}
