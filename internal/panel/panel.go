// Package panel holds the aligned multi-asset return data the engine estimates on.
package panel

import (
	"fmt"
	"math"
	"time"

	"github.com/bjt1997/march/internal/errs"
)

// MinObservations is the shortest series the estimator accepts.
const MinObservations = 30

// Panel is an ordered-by-time set of aligned return series, one column per
// asset. A Panel is never mutated after New returns.
type Panel struct {
	names   []string
	dates   []time.Time
	columns [][]float64
}

// New validates and wraps the columns. dates may be nil; when present it must
// have one strictly increasing entry per observation.
func New(names []string, dates []time.Time, columns [][]float64) (*Panel, error) {
	if len(columns) == 0 {
		return nil, errs.Data("panel.New", "columns", "at least one series")
	}
	if len(names) != len(columns) {
		return nil, errs.Data("panel.New", "names", fmt.Sprintf("one name per series (%d names, %d series)", len(names), len(columns)))
	}
	n := len(columns[0])
	if n < MinObservations {
		return nil, errs.Data("panel.New", names[0], fmt.Sprintf("at least %d observations", MinObservations))
	}
	seen := make(map[string]bool, len(names))
	for i, col := range columns {
		if names[i] == "" || seen[names[i]] {
			return nil, errs.Data("panel.New", fmt.Sprintf("names[%d]", i), "unique non-empty series name")
		}
		seen[names[i]] = true
		if len(col) != n {
			return nil, errs.Data("panel.New", names[i], fmt.Sprintf("length %d equal to %s", n, names[0]))
		}
		for t, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errs.Data("panel.New", names[i], "finite observation").AtIndex(t)
			}
		}
	}
	if dates != nil {
		if len(dates) != n {
			return nil, errs.Data("panel.New", "dates", fmt.Sprintf("one date per observation (%d dates, %d observations)", len(dates), n))
		}
		for t := 1; t < n; t++ {
			if !dates[t].After(dates[t-1]) {
				return nil, errs.Data("panel.New", "dates", "strictly increasing time index").AtIndex(t)
			}
		}
	}

	p := &Panel{
		names:   append([]string(nil), names...),
		columns: make([][]float64, len(columns)),
	}
	if dates != nil {
		p.dates = append([]time.Time(nil), dates...)
	}
	for i, col := range columns {
		p.columns[i] = append([]float64(nil), col...)
	}
	return p, nil
}

// Len returns the number of observations.
func (p *Panel) Len() int { return len(p.columns[0]) }

// NumSeries returns the number of assets.
func (p *Panel) NumSeries() int { return len(p.columns) }

// Names returns a copy of the series names.
func (p *Panel) Names() []string { return append([]string(nil), p.names...) }

// Dates returns a copy of the time index, or nil when none was supplied.
func (p *Panel) Dates() []time.Time {
	if p.dates == nil {
		return nil
	}
	return append([]time.Time(nil), p.dates...)
}

// Series returns a copy of column i.
func (p *Panel) Series(i int) []float64 {
	return append([]float64(nil), p.columns[i]...)
}

// Columns returns a copy of every column.
func (p *Panel) Columns() [][]float64 {
	out := make([][]float64, len(p.columns))
	for i := range p.columns {
		out[i] = p.Series(i)
	}
	return out
}

// Head returns a panel restricted to the first n observations.
func (p *Panel) Head(n int) (*Panel, error) {
	if n <= 0 || n > p.Len() {
		return nil, errs.Data("panel.Head", "n", fmt.Sprintf("0 < n <= %d", p.Len())).AtIndex(n)
	}
	cols := make([][]float64, len(p.columns))
	for i, col := range p.columns {
		cols[i] = col[:n]
	}
	var dates []time.Time
	if p.dates != nil {
		dates = p.dates[:n]
	}
	return New(p.names, dates, cols)
}

// Scaled returns a panel with every observation multiplied by f, e.g. 100 to
// express log-returns in percent.
func (p *Panel) Scaled(f float64) (*Panel, error) {
	cols := p.Columns()
	for _, col := range cols {
		for t := range col {
			col[t] *= f
		}
	}
	return New(p.names, p.dates, cols)
}
