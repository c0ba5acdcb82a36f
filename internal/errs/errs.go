// Package errs defines the error taxonomy shared by the estimation engine.
//
// Every failure carries the operation that raised it, the offending parameter
// or observation index, and the constraint that was violated. Callers test the
// category with errors.Is against the Err* sentinels and recover the details
// with errors.As.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindData
	KindEstimation
	KindForecast
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrData          = errors.New("data error")
	ErrEstimation    = errors.New("estimation error")
	ErrForecast      = errors.New("forecast error")
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindData:
		return "data"
	case KindEstimation:
		return "estimation"
	case KindForecast:
		return "forecast"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindData:
		return ErrData
	case KindEstimation:
		return ErrEstimation
	case KindForecast:
		return ErrForecast
	default:
		return nil
	}
}

// Error is the concrete error returned by the engine.
type Error struct {
	Kind       Kind
	Op         string
	Param      string
	Index      int // -1 when no observation index applies
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Param != "" {
		fmt.Fprintf(&b, ": %s", e.Param)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " at index %d", e.Index)
	}
	if e.Constraint != "" {
		fmt.Fprintf(&b, ": violates %s", e.Constraint)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// AtIndex returns a copy of e pointing at observation i.
func (e *Error) AtIndex(i int) *Error {
	c := *e
	c.Index = i
	return &c
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

func newError(kind Kind, op, param, constraint string) *Error {
	return &Error{Kind: kind, Op: op, Param: param, Index: -1, Constraint: constraint}
}

func Configuration(op, param, constraint string) *Error {
	return newError(KindConfiguration, op, param, constraint)
}

func Data(op, param, constraint string) *Error {
	return newError(KindData, op, param, constraint)
}

func Estimation(op, param, constraint string) *Error {
	return newError(KindEstimation, op, param, constraint)
}

func Forecast(op, param, constraint string) *Error {
	return newError(KindForecast, op, param, constraint)
}
