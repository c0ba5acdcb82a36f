// Package metrics records estimation and forecast statistics in a private
// Prometheus registry. Batch runs export it with WriteTextfile for the node
// exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the collectors. A nil *Recorder discards every observation.
type Recorder struct {
	reg *prometheus.Registry

	fits             *prometheus.CounterVec
	fitDuration      prometheus.Histogram
	fitFuncEvals     prometheus.Histogram
	fitLogLik        prometheus.Gauge
	forecasts        *prometheus.CounterVec
	forecastDuration *prometheus.HistogramVec
	violations       prometheus.Gauge
}

// New creates a Recorder whose metric names start with namespace.
func New(namespace string) *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      "Joint model fits by outcome.",
		}, []string{"outcome"}),
		fitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Wall time of successful joint fits.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		fitFuncEvals: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_function_evaluations",
			Help:      "Likelihood evaluations of the joint optimizer.",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
		}),
		fitLogLik: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fit_loglik",
			Help:      "Log-likelihood of the last successful fit.",
		}),
		forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecasts_total",
			Help:      "Covariance forecasts by method and outcome.",
		}, []string{"method", "outcome"}),
		forecastDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_duration_seconds",
			Help:      "Wall time of successful forecasts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"method"}),
		violations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boundary_violations",
			Help:      "Violated constraints in the last boundary check.",
		}),
	}
	r.reg.MustRegister(r.fits, r.fitDuration, r.fitFuncEvals, r.fitLogLik, r.forecasts, r.forecastDuration, r.violations)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFit records one fit attempt.
func (r *Recorder) ObserveFit(took time.Duration, loglik float64, funcEvals int, err error) {
	if r == nil {
		return
	}
	r.fits.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return
	}
	r.fitDuration.Observe(took.Seconds())
	r.fitFuncEvals.Observe(float64(funcEvals))
	r.fitLogLik.Set(loglik)
}

// ObserveForecast records one forecast attempt.
func (r *Recorder) ObserveForecast(method string, took time.Duration, err error) {
	if r == nil {
		return
	}
	r.forecasts.WithLabelValues(method, outcome(err)).Inc()
	if err == nil {
		r.forecastDuration.WithLabelValues(method).Observe(took.Seconds())
	}
}

// ObserveBoundary records the number of violated constraints.
func (r *Recorder) ObserveBoundary(violated int) {
	if r == nil {
		return
	}
	r.violations.Set(float64(violated))
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
