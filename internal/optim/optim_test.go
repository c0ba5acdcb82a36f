package optim

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/optimize"
)

func quadratic(x []float64) float64 {
	a, b := x[0]-1, x[1]+2
	return a*a + 10*b*b
}

func TestMinimizeQuadratic(t *testing.T) {
	tests := []struct {
		method string
		runs   int
	}{
		// the confirming restart at the minimum ends the search
		{NelderMead, 2},
		// a gradient stop needs no confirmation
		{BFGS, 1},
		{"BFGS", 1},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			res, err := Minimize(context.Background(), quadratic, []float64{0, 0}, Options{Method: tt.method})
			require.NoError(t, err)
			assert.True(t, res.Converged, "status %v", res.Status)
			assert.InDelta(t, 1, res.X[0], 1e-3)
			assert.InDelta(t, -2, res.X[1], 1e-3)
			assert.InDelta(t, 0, res.F, 1e-6)
			assert.Equal(t, tt.runs, res.Runs)
			assert.Positive(t, res.FuncEvals)
		})
	}
}

func TestMinimizeIterationLimit(t *testing.T) {
	tests := []struct {
		name       string
		restarts   int
		runs       int
		iterations int
	}{
		{"single run", -1, 1, 3},
		{"restarted", 2, 3, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Minimize(context.Background(), quadratic, []float64{0, 0}, Options{MaxIterations: 3, Restarts: tt.restarts})
			require.NoError(t, err)
			assert.False(t, res.Converged)
			assert.Equal(t, optimize.IterationLimit, res.Status)
			assert.Equal(t, tt.runs, res.Runs)
			assert.Equal(t, tt.iterations, res.Iterations)
			assert.LessOrEqual(t, res.F, quadratic([]float64{0, 0}))
		})
	}
}

func TestMinimizeUnknownMethod(t *testing.T) {
	_, err := Minimize(context.Background(), quadratic, []float64{0, 0}, Options{Method: "lbfgs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lbfgs")
}

func TestMinimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Minimize(ctx, quadratic, []float64{0, 0}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressReporting(t *testing.T) {
	tests := []struct {
		name       string
		updateFreq int
		restarts   int
		lines      int
	}{
		{"silent", 0, -1, 0},
		{"every 10", 10, -1, 2},
		{"every 10 across restarts", 10, 1, 4},
		{"every iteration", 1, -1, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := zerolog.New(&buf).Level(zerolog.InfoLevel)
			_, err := Minimize(context.Background(), quadratic, []float64{0, 0}, Options{
				MaxIterations: 30,
				Restarts:      tt.restarts,
				UpdateFreq:    tt.updateFreq,
				Logger:        log,
				Label:         "joint",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.lines, strings.Count(buf.String(), "\n"))
			if tt.lines > 0 {
				assert.Contains(t, buf.String(), `"stage":"joint"`)
				assert.Contains(t, buf.String(), `"message":"optimizer progress"`)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	o := Options{}.Defaults()
	assert.Equal(t, NelderMead, o.Method)
	assert.Equal(t, 20000, o.MaxIterations)
	assert.Equal(t, DefaultRestarts, o.Restarts)
	assert.Equal(t, 0, Options{Restarts: -1}.Defaults().Restarts)
	assert.Equal(t, 5, Options{Restarts: 5}.Defaults().Restarts)

	assert.True(t, o.stalled(100, 100-5e-8))
	assert.False(t, o.stalled(100, 99))
}

func TestConverged(t *testing.T) {
	tests := []struct {
		status optimize.Status
		want   bool
	}{
		{optimize.FunctionConvergence, true},
		{optimize.GradientThreshold, true},
		{optimize.MethodConverge, true},
		{optimize.IterationLimit, false},
		{optimize.Failure, false},
		{optimize.NotTerminated, false},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Converged(tt.status))
		})
	}
}
