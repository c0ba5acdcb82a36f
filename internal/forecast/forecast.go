package forecast

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/bjt1997/march/internal/dcc"
	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/garch"
)

// Method selects how forecasts are produced.
type Method string

const (
	Simulation Method = "simulation"
	Analytic   Method = "analytic"
)

// ParseMethod returns the method named by s.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case Simulation, Analytic:
		return m, nil
	}
	return "", errs.Forecast("forecast.ParseMethod", "method", fmt.Sprintf("one of simulation, analytic (got %q)", s))
}

// Options controls a forecast.
type Options struct {
	// Simulations is the number of simulated paths; 0 means 1000.
	Simulations int
	Seed        uint64
	// Workers bounds the concurrent simulation workers; 0 means one per CPU.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.Simulations <= 0 {
		o.Simulations = 1000
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	o.Workers = min(o.Workers, o.Simulations)
	return o
}

// Step is the forecast for one horizon.
type Step struct {
	Horizon int
	// Cov is the predicted conditional covariance of the returns.
	Cov *mat.SymDense
	// StdErr is the Monte-Carlo standard error of each element of Cov; nil
	// for the analytic method.
	StdErr *mat.SymDense
}

// Result holds one step per horizon 1..h, all conditioned on information
// through observation Origin.
type Result struct {
	Origin      int
	Method      Method
	Simulations int
	Steps       []Step
}

// Forecast predicts the covariance of the next horizon observations from the
// state st, which NewOrigin built after observation origin.
func (m *Model) Forecast(ctx context.Context, st *State, origin, horizon int, method Method, opts Options) (*Result, error) {
	if err := m.validate("forecast.Forecast"); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		return nil, errs.Forecast("forecast.Forecast", "horizon", "horizon > 0")
	}
	switch method {
	case Analytic:
		if m.Spec.Power != 2 && horizon > 1 {
			return nil, errs.Forecast("forecast.Forecast", "method", "analytic forecasts beyond one step require power 2; use simulation")
		}
		return &Result{Origin: origin, Method: Analytic, Steps: m.analytic(st, horizon)}, nil
	case Simulation:
		opts = opts.withDefaults()
		steps, err := m.simulate(ctx, st, horizon, opts)
		if err != nil {
			return nil, err
		}
		return &Result{Origin: origin, Method: Simulation, Simulations: opts.Simulations, Steps: steps}, nil
	}
	return nil, errs.Forecast("forecast.Forecast", "method", fmt.Sprintf("one of simulation, analytic (got %q)", method))
}

func (m *Model) analytic(st *State, horizon int) []Step {
	st = st.Clone()
	n := len(m.Assets)
	c := m.DCC
	h := make([]float64, n)
	sd := make([]float64, n)
	q := mat.NewSymDense(n, nil)
	q.CopySym(st.Q.Q())
	var corr mat.SymDense
	steps := make([]Step, horizon)
	for k := range steps {
		for i, a := range m.Assets {
			h[i] = a.Next(st.Vol[i])
			sd[i] = math.Sqrt(garch.HToVariance(h[i], m.Spec.Power))
			st.Vol[i].PushExpected(h[i])
		}
		dcc.Correlation(&corr, q)
		steps[k] = Step{Horizon: k + 1, Cov: covariance(sd, &corr)}

		// E[Q_{k+1}] = (1-α-β)Q̄ + γN̄ + (α+β)E[Q_k]
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := (1-c.Alpha-c.Beta)*m.Moments.QBar.At(i, j) +
					c.Gamma*m.Moments.NBar.At(i, j) +
					(c.Alpha+c.Beta)*q.At(i, j)
				q.SetSym(i, j, v)
			}
		}
	}
	return steps
}

func covariance(sd []float64, corr mat.Symmetric) *mat.SymDense {
	n := len(sd)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, sd[i]*sd[j]*corr.At(i, j))
		}
	}
	return cov
}

// accumulator sums simulated covariances and their squares per step.
type accumulator struct {
	n     int
	count int
	sum   [][]float64 // [step][i*n+j]
	sumSq [][]float64
}

func newAccumulator(n, horizon int) *accumulator {
	a := &accumulator{n: n, sum: make([][]float64, horizon), sumSq: make([][]float64, horizon)}
	for k := range a.sum {
		a.sum[k] = make([]float64, n*n)
		a.sumSq[k] = make([]float64, n*n)
	}
	return a
}

func (a *accumulator) add(k int, sd []float64, corr mat.Symmetric) {
	for i := 0; i < a.n; i++ {
		for j := i; j < a.n; j++ {
			v := sd[i] * sd[j] * corr.At(i, j)
			a.sum[k][i*a.n+j] += v
			a.sumSq[k][i*a.n+j] += v * v
		}
	}
}

func (a *accumulator) merge(b *accumulator) {
	a.count += b.count
	for k := range a.sum {
		for e := range a.sum[k] {
			a.sum[k][e] += b.sum[k][e]
			a.sumSq[k][e] += b.sumSq[k][e]
		}
	}
}

func (a *accumulator) steps() []Step {
	steps := make([]Step, len(a.sum))
	N := float64(a.count)
	for k := range steps {
		cov := mat.NewSymDense(a.n, nil)
		se := mat.NewSymDense(a.n, nil)
		for i := 0; i < a.n; i++ {
			for j := i; j < a.n; j++ {
				mean := a.sum[k][i*a.n+j] / N
				v := 0.0
				if a.count > 1 {
					v = math.Max(a.sumSq[k][i*a.n+j]/N-mean*mean, 0) * N / (N - 1)
				}
				cov.SetSym(i, j, mean)
				se.SetSym(i, j, math.Sqrt(v/N))
			}
		}
		steps[k] = Step{Horizon: k + 1, Cov: cov, StdErr: se}
	}
	return steps
}

// simulate averages the simulated conditional covariances D R D over paths.
// Path p draws from its own source seeded with Seed+p, so the result does
// not depend on the number of workers beyond summation order.
func (m *Model) simulate(ctx context.Context, st *State, horizon int, opts Options) ([]Step, error) {
	n := len(m.Assets)
	parts := make([]*accumulator, opts.Workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := range parts {
		parts[w] = newAccumulator(n, horizon)
		g.Go(func() error {
			acc := parts[w]
			for p := w; p < opts.Simulations; p += opts.Workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				src := rand.NewSource(opts.Seed + uint64(p))
				if err := m.simulatePath(st.Clone(), horizon, src, acc); err != nil {
					return err
				}
				acc.count++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := newAccumulator(n, horizon)
	for _, p := range parts {
		total.merge(p)
	}
	return total.steps(), nil
}

func (m *Model) simulatePath(st *State, horizon int, src rand.Source, acc *accumulator) error {
	n := len(m.Assets)
	h := make([]float64, n)
	sd := make([]float64, n)
	z := make([]float64, n)
	var corr mat.SymDense
	for k := 0; k < horizon; k++ {
		for i, a := range m.Assets {
			h[i] = a.Next(st.Vol[i])
			sd[i] = math.Sqrt(garch.HToVariance(h[i], m.Spec.Power))
		}
		dcc.Correlation(&corr, st.Q.Q())
		acc.add(k, sd, &corr)
		if k == horizon-1 {
			break
		}
		r, err := m.Dist.MultiRander(&corr, m.Shape, src)
		if err != nil {
			return errs.Forecast("forecast.Forecast", "R", "positive definite correlation matrix").AtIndex(k + 1).Wrap(err)
		}
		r.Rand(z)
		for i := range m.Assets {
			st.Vol[i].Push(sd[i]*z[i], h[i])
		}
		st.Q.Update(z)
	}
	return nil
}
