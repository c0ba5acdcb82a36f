package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/bjt1997/march"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestWritePanelRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cols := [][]float64{make([]float64, 40), make([]float64, 40)}
	for i := range cols[0] {
		cols[0][i] = float64(i) / 10
		cols[1][i] = -float64(i) / 7
	}
	require.NoError(t, writePanel(&buf, []string{"SPX", "NDX"}, cols))

	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	p, err := march.LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPX", "NDX"}, p.Names())
	assert.Equal(t, cols[1], p.Series(1))
}

func TestWriteForecast(t *testing.T) {
	res := &march.ForecastResult{
		Origin: 2500,
		Method: march.Simulation,
		Steps: []march.ForecastStep{{
			Horizon: 1,
			Cov:     mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2}),
			StdErr:  mat.NewSymDense(2, []float64{0.1, 0.05, 0.05, 0.2}),
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, writeForecast(&buf, []string{"SPX", "NDX"}, res))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"origin", "horizon", "cov_SPX_SPX", "cov_SPX_NDX", "cov_NDX_NDX", "se_SPX_SPX", "se_SPX_NDX", "se_NDX_NDX"}, rows[0])
	assert.Equal(t, []string{"2500", "1", "1", "0.5", "2", "0.1", "0.05", "0.2"}, rows[1])
}

func TestWriteResults(t *testing.T) {
	s := &march.Summary{
		Params: []march.Param{{Name: "SPX.mu", Estimate: 0.05, StdErr: 0.01}},
		LogLik: -100.5,
		NumObs: 250,
	}
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, s))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"SPX.mu", "0.05", "0.01"}, rows[1])
	assert.Equal(t, []string{"nobs", "250", ""}, rows[len(rows)-1])
}

func TestCommandValidation(t *testing.T) {
	_, err := execute(t, "fit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data")

	_, err = execute(t, "simulate", "--assets", "1", "-o", filepath.Join(t.TempDir(), "x.csv"))
	require.Error(t, err)
}

func TestSimulateThenFit(t *testing.T) {
	if testing.Short() {
		t.Skip("estimation test")
	}
	dir := t.TempDir()
	data := filepath.Join(dir, "returns.csv")
	cfg := filepath.Join(dir, "march.yaml")
	metricsFile := filepath.Join(dir, "march.prom")
	require.NoError(t, os.WriteFile(cfg, []byte(`
model: {p: 1, q: 1, errors: normal}
fit: {std_errors: false}
forecast: {horizon: 3, method: analytic}
log: {level: error}
metrics: {textfile: `+metricsFile+`}
`), 0o600))

	out, err := execute(t, "simulate", "-c", cfg, "--n", "800", "--seed", "3", "-o", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 800 observations")

	fc := filepath.Join(dir, "forecast.csv")
	out, err = execute(t, "forecast", "-c", cfg, "-i", data, "--last-obs", "700", "-o", fc)
	require.NoError(t, err)
	assert.Contains(t, out, "Origin:\t699")

	b, err := os.ReadFile(fc)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(b), "\n"))

	m, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(m), `march_fits_total{outcome="ok"} 1`)
}
