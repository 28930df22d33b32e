package domain

import (
	"fmt"
	"math"
)

// Thresholds holds every tunable cutoff and weight used by the aggregator,
// the trend comparator and the recommendation engine. Values are passed
// explicitly into each call; nothing reads them from global state.
type Thresholds struct {
	// Critical classification: both must hold.
	CriticalMinRequests int     `json:"critical_min_requests" yaml:"critical_min_requests"`
	CriticalErrorRate   float64 `json:"critical_error_rate" yaml:"critical_error_rate"`

	// TopN bounds the most-used and most-failed views.
	TopN int `json:"top_n" yaml:"top_n"`

	// Trend classification in percentage points.
	DegradingThreshold float64 `json:"degrading_threshold" yaml:"degrading_threshold"`
	ImprovingThreshold float64 `json:"improving_threshold" yaml:"improving_threshold"`

	// Prioritized recommendations.
	VolumeWeight           float64 `json:"volume_weight" yaml:"volume_weight"`
	ErrorWeight            float64 `json:"error_weight" yaml:"error_weight"`
	SeverityFloorErrorRate float64 `json:"severity_floor_error_rate" yaml:"severity_floor_error_rate"`
	SeverityFloorScore     float64 `json:"severity_floor_score" yaml:"severity_floor_score"`
	DegradingBoost         float64 `json:"degrading_boost" yaml:"degrading_boost"`
	PriorityCriticalScore  float64 `json:"priority_critical_score" yaml:"priority_critical_score"`
	PriorityHighScore      float64 `json:"priority_high_score" yaml:"priority_high_score"`
	PriorityMediumScore    float64 `json:"priority_medium_score" yaml:"priority_medium_score"`
	HighVolumeRequests     int     `json:"high_volume_requests" yaml:"high_volume_requests"`
	SlowResponseMs         float64 `json:"slow_response_ms" yaml:"slow_response_ms"`

	// Regression bands in percentage points, strictly exceeded.
	RegressionCritical float64 `json:"regression_critical" yaml:"regression_critical"`
	RegressionHigh     float64 `json:"regression_high" yaml:"regression_high"`
	RegressionMedium   float64 `json:"regression_medium" yaml:"regression_medium"`

	// Coverage gaps.
	VisibilityThreshold int `json:"visibility_threshold" yaml:"visibility_threshold"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CriticalMinRequests:    100,
		CriticalErrorRate:      5,
		TopN:                   10,
		DegradingThreshold:     5,
		ImprovingThreshold:     -5,
		VolumeWeight:           0.5,
		ErrorWeight:            0.5,
		SeverityFloorErrorRate: 25,
		SeverityFloorScore:     100,
		DegradingBoost:         10,
		PriorityCriticalScore:  75,
		PriorityHighScore:      50,
		PriorityMediumScore:    25,
		HighVolumeRequests:     1000,
		SlowResponseMs:         1000,
		RegressionCritical:     20,
		RegressionHigh:         10,
		RegressionMedium:       5,
		VisibilityThreshold:    100,
	}
}

// Validate checks that the thresholds are internally consistent.
func (t Thresholds) Validate() error {
	rates := map[string]float64{
		"critical_error_rate":       t.CriticalErrorRate,
		"severity_floor_error_rate": t.SeverityFloorErrorRate,
	}
	for name, v := range rates {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s=%v must be between 0 and 100", ErrInvalidThreshold, name, v)
		}
	}
	if t.CriticalMinRequests < 0 || t.VisibilityThreshold < 0 || t.HighVolumeRequests < 0 {
		return fmt.Errorf("%w: request counts must not be negative", ErrInvalidThreshold)
	}
	if t.TopN <= 0 {
		return fmt.Errorf("%w: top_n must be positive", ErrInvalidThreshold)
	}
	if t.DegradingThreshold < 0 || t.ImprovingThreshold > 0 {
		return fmt.Errorf("%w: degrading must be >= 0 and improving <= 0", ErrInvalidThreshold)
	}
	if t.VolumeWeight < 0 || t.VolumeWeight > 1 || t.ErrorWeight < 0 || t.ErrorWeight > 1 ||
		math.Abs(t.VolumeWeight+t.ErrorWeight-1) > 1e-9 {
		return ErrInvalidWeights
	}
	if !(t.RegressionCritical >= t.RegressionHigh && t.RegressionHigh >= t.RegressionMedium) {
		return fmt.Errorf("%w: regression bands must be descending", ErrInvalidThreshold)
	}
	if !(t.PriorityCriticalScore >= t.PriorityHighScore && t.PriorityHighScore >= t.PriorityMediumScore) {
		return fmt.Errorf("%w: priority bands must be descending", ErrInvalidThreshold)
	}
	return nil
}

// ThresholdOverrides carries optional per-call overrides. Nil fields keep
// the base value.
type ThresholdOverrides struct {
	CriticalMinRequests    *int
	CriticalErrorRate      *float64
	TopN                   *int
	DegradingThreshold     *float64
	ImprovingThreshold     *float64
	VolumeWeight           *float64
	ErrorWeight            *float64
	SeverityFloorErrorRate *float64
	VisibilityThreshold    *int
}

// IsEmpty reports whether no override is set.
func (o ThresholdOverrides) IsEmpty() bool {
	return o == ThresholdOverrides{}
}

// Apply returns a copy of t with the overrides applied.
// Setting only one of the two weights derives the other so they still sum to 1.
func (t Thresholds) Apply(o ThresholdOverrides) Thresholds {
	out := t
	setInt(&out.CriticalMinRequests, o.CriticalMinRequests)
	setFloat(&out.CriticalErrorRate, o.CriticalErrorRate)
	setInt(&out.TopN, o.TopN)
	setFloat(&out.DegradingThreshold, o.DegradingThreshold)
	setFloat(&out.ImprovingThreshold, o.ImprovingThreshold)
	setFloat(&out.SeverityFloorErrorRate, o.SeverityFloorErrorRate)
	setInt(&out.VisibilityThreshold, o.VisibilityThreshold)

	switch {
	case o.VolumeWeight != nil && o.ErrorWeight != nil:
		out.VolumeWeight, out.ErrorWeight = *o.VolumeWeight, *o.ErrorWeight
	case o.VolumeWeight != nil:
		out.VolumeWeight, out.ErrorWeight = *o.VolumeWeight, 1-*o.VolumeWeight
	case o.ErrorWeight != nil:
		out.VolumeWeight, out.ErrorWeight = 1-*o.ErrorWeight, *o.ErrorWeight
	}
	return out
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
