package domain

import (
	"errors"
	"fmt"
	"math"
)

// Domain errors.
var (
	ErrInvalidThreshold = errors.New("threshold out of range")
	ErrInvalidWeights   = errors.New("scoring weights must be in [0,1] and sum to 1")
	ErrMalformedRow     = errors.New("malformed log row")
	ErrNotFound         = errors.New("snapshot not found")
)

// MalformedRowError describes a single raw record that could not be normalized.
type MalformedRowError struct {
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row: %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrMalformedRow).
func (e *MalformedRowError) Unwrap() error {
	return ErrMalformedRow
}

// Percentage is an error rate or share in the range 0-100.
// The full-precision value is retained; rounding happens only on display.
type Percentage struct {
	value float64
}

// NewPercentage creates a Percentage from a raw value.
func NewPercentage(value float64) Percentage {
	return Percentage{value: value}
}

// PercentageFromRatio calculates part/total*100, or zero when total is zero.
func PercentageFromRatio(part, total int) Percentage {
	if total == 0 {
		return Percentage{}
	}
	return Percentage{value: float64(part) * 100 / float64(total)}
}

// Value returns the full-precision percentage value.
func (p Percentage) Value() float64 {
	return p.value
}

// Rounded returns the value rounded to two decimal places.
func (p Percentage) Rounded() float64 {
	return Round2(p.value)
}

// String returns a formatted string representation.
func (p Percentage) String() string {
	return fmt.Sprintf("%.2f%%", p.value)
}

// IsZero returns true if the percentage is zero.
func (p Percentage) IsZero() bool {
	return p.value == 0
}

// Delta returns the percentage-point difference (this - other).
func (p Percentage) Delta(other Percentage) float64 {
	return p.value - other.value
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
