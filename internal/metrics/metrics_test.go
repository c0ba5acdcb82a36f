package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFit(t *testing.T) {
	r := New("march")
	r.ObserveFit(2*time.Second, -1234.5, 900, nil)
	r.ObserveFit(time.Second, 0, 0, errors.New("no convergence"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.fits.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fits.WithLabelValues("error")))
	assert.Equal(t, -1234.5, testutil.ToFloat64(r.fitLogLik))
	assert.Equal(t, 1, testutil.CollectAndCount(r.fitDuration))
}

func TestObserveForecastAndBoundary(t *testing.T) {
	r := New("march")
	r.ObserveForecast("simulation", 10*time.Millisecond, nil)
	r.ObserveForecast("analytic", 0, errors.New("bad horizon"))
	r.ObserveBoundary(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecasts.WithLabelValues("simulation", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecasts.WithLabelValues("analytic", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.violations))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveFit(time.Second, 1, 1, nil)
		r.ObserveForecast("analytic", time.Second, nil)
		r.ObserveBoundary(1)
	})
}

func TestWriteTextfile(t *testing.T) {
	r := New("march")
	r.ObserveBoundary(1)
	path := filepath.Join(t.TempDir(), "march.prom")
	require.NoError(t, r.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "march_boundary_violations 1")
}
