package core

import "math"

// RoundHalfUp rounds v to the given number of decimal places using
// half-up rounding (0.5 rounds away from zero). Currency amounts in the
// engine are always rounded this way, never truncated.
func RoundHalfUp(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	if v < 0 {
		return -math.Floor(-v*p+0.5) / p
	}
	return math.Floor(v*p+0.5) / p
}

// ClampPercent confines a percentage to the [0, 100] range.
func ClampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// CombineMode selects how two promotional percentages are merged.
type CombineMode string

const (
	// CombineAdditive sums the two percentages.
	CombineAdditive CombineMode = "additive"
	// CombineSequential compounds the extra percentage on the already
	// discounted price: final = base + extra - base*extra/100.
	CombineSequential CombineMode = "sequential"
)

// CombinePercents merges a line's existing discount with an independent
// order-wide percentage. The result is clamped to [0, 100] and rounded to
// three decimal places. An unknown mode falls back to sequential, the
// default.
func CombinePercents(base, extra float64, mode CombineMode) float64 {
	var out float64
	switch mode {
	case CombineAdditive:
		out = base + extra
	default:
		out = base + extra - base*extra/100
	}
	return RoundHalfUp(ClampPercent(out), 3)
}
