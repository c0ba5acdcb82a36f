package march

import (
	"time"

	"github.com/bjt1997/march/internal/boundary"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/forecast"
	"github.com/bjt1997/march/internal/garch"
	"github.com/bjt1997/march/internal/optim"
	"github.com/bjt1997/march/internal/panel"
)

type (
	Panel           = panel.Panel
	Spec            = garch.Spec
	Constraint      = boundary.Constraint
	BoundaryReport  = boundary.Report
	ForecastResult  = forecast.Result
	ForecastStep    = forecast.Step
	ForecastOptions = forecast.Options
	OptimOptions    = optim.Options
	Error           = errs.Error
)

// Error categories, for use with errors.Is.
var (
	ErrConfiguration = errs.ErrConfiguration
	ErrData          = errs.ErrData
	ErrEstimation    = errs.ErrEstimation
	ErrForecast      = errs.ErrForecast
)

// Forecast methods.
const (
	Simulation = "simulation"
	Analytic   = "analytic"
)

// DCCA names the asymmetric dynamic conditional correlation model.
const DCCA = "dcca"

// GARCH returns a univariate spec with p variance lags, o asymmetric lags,
// q shock lags and the given power.
func GARCH(p, o, q int, power float64) Spec { return garch.GARCH(p, o, q, power) }

// NewPanel validates aligned return series; dates may be nil.
func NewPanel(names []string, dates []time.Time, columns [][]float64) (*Panel, error) {
	return panel.New(names, dates, columns)
}

// LoadCSV reads a panel from a CSV file.
func LoadCSV(filename string) (*Panel, error) { return panel.LoadCSV(filename) }
