package dist

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/transform"
)

// Degrees-of-freedom search interval used during estimation.
const (
	MinNu = 2.05
	MaxNu = 500.0
)

// StudentT is the Student-t law rescaled to unit variance. Its single shape
// parameter is the degrees of freedom ν, which must exceed 2.
type StudentT struct{}

func (StudentT) Name() string              { return "Student's t" }
func (StudentT) ParamNames() []string      { return []string{"nu"} }
func (StudentT) StartingValues() []float64 { return []float64{8} }

func (StudentT) Validate(params []float64) error {
	if err := checkLen("StudentT", params, 1); err != nil {
		return err
	}
	if nu := params[0]; !(nu > 2) || math.IsInf(nu, 0) {
		return errs.Estimation("dist.StudentT", "nu", "2 < nu < inf (finite variance)")
	}
	return nil
}

func (StudentT) LogPDF(z float64, params []float64) float64 {
	nu := params[0]
	lg1, _ := math.Lgamma(0.5 * (nu + 1))
	lg2, _ := math.Lgamma(0.5 * nu)
	return lg1 - lg2 - 0.5*math.Log(math.Pi*(nu-2)) - 0.5*(nu+1)*math.Log1p(z*z/(nu-2))
}

func (StudentT) MultiLogPDF(quad, logDet float64, dim int, params []float64) float64 {
	nu := params[0]
	n := float64(dim)
	lg1, _ := math.Lgamma(0.5 * (nu + n))
	lg2, _ := math.Lgamma(0.5 * nu)
	return lg1 - lg2 - 0.5*n*math.Log(math.Pi*(nu-2)) - 0.5*logDet - 0.5*(nu+n)*math.Log1p(quad/(nu-2))
}

func (StudentT) Rander(params []float64, src rand.Source) distuv.Rander {
	nu := params[0]
	return distuv.StudentsT{Mu: 0, Sigma: math.Sqrt((nu - 2) / nu), Nu: nu, Src: src}
}

// MultiRander scales corr by (ν-2)/ν so the draws have covariance corr.
func (StudentT) MultiRander(corr mat.Symmetric, params []float64, src rand.Source) (distmv.Rander, error) {
	nu := params[0]
	var scale mat.SymDense
	scale.ScaleSym((nu-2)/nu, corr)
	d, ok := distmv.NewStudentsT(make([]float64, corr.SymmetricDim()), &scale, nu, src)
	if !ok {
		return nil, errors.New("correlation matrix is not positive definite")
	}
	return d, nil
}

func (StudentT) FromUnconstrained(dst, x []float64) {
	dst[0] = transform.Interval(x[0], MinNu, MaxNu)
}

func (StudentT) ToUnconstrained(dst, params []float64) {
	dst[0] = transform.InverseInterval(math.Min(math.Max(params[0], MinNu+1e-6), MaxNu-1e-6), MinNu, MaxNu)
}
