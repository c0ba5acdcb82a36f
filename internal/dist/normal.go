package dist

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

var logTwoPi = math.Log(2 * math.Pi)

// Normal is the standard Gaussian law.
type Normal struct{}

func (Normal) Name() string              { return "Normal" }
func (Normal) ParamNames() []string      { return nil }
func (Normal) StartingValues() []float64 { return nil }

func (Normal) Validate(params []float64) error { return checkLen("Normal", params, 0) }

func (Normal) LogPDF(z float64, _ []float64) float64 {
	return -0.5 * (logTwoPi + z*z)
}

func (Normal) MultiLogPDF(quad, logDet float64, dim int, _ []float64) float64 {
	return -0.5 * (float64(dim)*logTwoPi + logDet + quad)
}

func (Normal) Rander(_ []float64, src rand.Source) distuv.Rander {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: src}
}

func (Normal) MultiRander(corr mat.Symmetric, _ []float64, src rand.Source) (distmv.Rander, error) {
	d, ok := distmv.NewNormal(make([]float64, corr.SymmetricDim()), corr, src)
	if !ok {
		return nil, errors.New("correlation matrix is not positive definite")
	}
	return d, nil
}

func (Normal) FromUnconstrained(_, _ []float64) {}
func (Normal) ToUnconstrained(_, _ []float64)   {}
