// Package transform maps optimizer coordinates on the real line to bounded
// parameter domains and back.
package transform

import "math"

// Sigmoid maps (-inf, inf) to (0, 1).
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-1.0*x))
}

// Logit is the inverse of Sigmoid. p is clamped away from 0 and 1.
func Logit(p float64) float64 {
	const eps = 1e-10
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}

// Interval maps (-inf, inf) to (lo, hi).
func Interval(x, lo, hi float64) float64 {
	return lo + (hi-lo)*Sigmoid(x)
}

// InverseInterval is the inverse of Interval.
func InverseInterval(v, lo, hi float64) float64 {
	return Logit((v - lo) / (hi - lo))
}

// Positive maps (-inf, inf) to (0, inf).
func Positive(x float64) float64 { return math.Exp(x) }

// InversePositive is the inverse of Positive. v is clamped away from 0.
func InversePositive(v float64) float64 { return math.Log(math.Max(v, 1e-12)) }
