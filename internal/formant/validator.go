package formant

import (
	"fmt"
	"math"
)

// Range is a closed frequency interval in Hz.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether f lies in [Min, Max].
func (r Range) Contains(f float64) bool {
	return f >= r.Min && f <= r.Max
}

// Validator rejects formant pairs that are not physiologically plausible.
type Validator struct {
	F1 Range
	F2 Range
}

// DefaultValidator returns the ranges used for live streams.
func DefaultValidator() Validator {
	return Validator{
		F1: Range{Min: 200, Max: 1200},
		F2: Range{Min: 600, Max: 4000},
	}
}

// Validate checks a candidate list and returns its first two entries as an
// estimate. Every rejection wraps ErrOutOfRange.
func (v Validator) Validate(candidates []float64) (Estimate, error) {
	if len(candidates) < 2 {
		return Estimate{}, fmt.Errorf("%w: %d candidates", ErrOutOfRange, len(candidates))
	}

	f1, f2 := candidates[0], candidates[1]
	if !isReal(f1) || !isReal(f2) {
		return Estimate{}, fmt.Errorf("%w: non-finite formants F1=%v F2=%v", ErrOutOfRange, f1, f2)
	}
	if !v.F1.Contains(f1) || !v.F2.Contains(f2) {
		return Estimate{}, fmt.Errorf("%w: F1=%.1f F2=%.1f", ErrOutOfRange, f1, f2)
	}

	return Estimate{F1: f1, F2: f2}, nil
}

// ValidateEstimate is Validate for an already paired estimate.
func (v Validator) ValidateEstimate(e Estimate) (Estimate, error) {
	return v.Validate([]float64{e.F1, e.F2})
}

func isReal(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
