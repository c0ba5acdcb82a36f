// Package dist implements the standardized innovation laws used by the
// volatility and correlation models. Every distribution here has zero mean and
// unit variance, so a residual divided by its conditional standard deviation
// can be scored directly.
package dist

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bjt1997/march/internal/errs"
)

// Distribution is the capability set the estimator and forecaster need from
// an innovation law.
type Distribution interface {
	Name() string
	// ParamNames lists the shape parameters, empty for the Normal.
	ParamNames() []string
	StartingValues() []float64
	Validate(params []float64) error

	// LogPDF is the log-density of a standardized residual z.
	LogPDF(z float64, params []float64) float64
	// MultiLogPDF is the log-density of a standardized residual vector with
	// correlation R, given quad = z'R⁻¹z and logDet = ln|R|.
	MultiLogPDF(quad, logDet float64, dim int, params []float64) float64

	// Rander draws unit-variance univariate innovations.
	Rander(params []float64, src rand.Source) distuv.Rander
	// MultiRander draws unit-variance innovation vectors with correlation corr.
	MultiRander(corr mat.Symmetric, params []float64, src rand.Source) (distmv.Rander, error)

	// FromUnconstrained maps optimizer coordinates to shape parameters.
	FromUnconstrained(dst, x []float64)
	// ToUnconstrained is the inverse of FromUnconstrained.
	ToUnconstrained(dst, params []float64)
}

// Parse returns the distribution named by s.
func Parse(s string) (Distribution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "gaussian":
		return Normal{}, nil
	case "student", "studentt", "student-t", "t":
		return StudentT{}, nil
	default:
		return nil, errs.Configuration("dist.Parse", "errors", fmt.Sprintf("one of normal, student (got %q)", s))
	}
}

func checkLen(name string, params []float64, want int) error {
	if len(params) != want {
		return errs.Estimation("dist."+name, "params", fmt.Sprintf("%d shape parameters (got %d)", want, len(params)))
	}
	return nil
}
