// Package boundary describes the outcome of checking estimated parameters
// against their stationarity and positivity constraints.
package boundary

import (
	"fmt"
	"io"
	"strings"
)

// Constraint is one checked condition.
type Constraint struct {
	Component string
	Param     string
	Rule      string
	Value     float64
	Satisfied bool
}

func (c Constraint) String() string {
	state := "ok"
	if !c.Satisfied {
		state = "VIOLATED"
	}
	return fmt.Sprintf("%s: %s = %.6g (%s) %s", c.Component, c.Param, c.Value, c.Rule, state)
}

// Report lists every checked constraint in a stable order.
type Report []Constraint

// OK reports whether every constraint holds.
func (r Report) OK() bool {
	return len(r.Violations()) == 0
}

// Violations returns the constraints that do not hold.
func (r Report) Violations() Report {
	var out Report
	for _, c := range r {
		if !c.Satisfied {
			out = append(out, c)
		}
	}
	return out
}

// Component returns the constraints of one component.
func (r Report) Component(name string) Report {
	var out Report
	for _, c := range r {
		if c.Component == name {
			out = append(out, c)
		}
	}
	return out
}

// WriteTo prints one line per constraint.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	b.WriteString("------------- Boundary conditions -------------\n")
	for _, c := range r {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	if r.OK() {
		b.WriteString("All boundary conditions satisfied\n")
	} else {
		fmt.Fprintf(&b, "%d boundary condition(s) violated\n", len(r.Violations()))
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
