package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultThresholdsAreValid(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
		want   error
	}{
		{"error rate above 100", func(th *Thresholds) { th.CriticalErrorRate = 101 }, ErrInvalidThreshold},
		{"negative volume", func(th *Thresholds) { th.CriticalMinRequests = -1 }, ErrInvalidThreshold},
		{"zero top n", func(th *Thresholds) { th.TopN = 0 }, ErrInvalidThreshold},
		{"positive improving", func(th *Thresholds) { th.ImprovingThreshold = 1 }, ErrInvalidThreshold},
		{"weights do not sum to one", func(th *Thresholds) { th.VolumeWeight = 0.7 }, ErrInvalidWeights},
		{"weight out of range", func(th *Thresholds) { th.VolumeWeight, th.ErrorWeight = 1.5, -0.5 }, ErrInvalidWeights},
		{"regression bands out of order", func(th *Thresholds) { th.RegressionHigh = 30 }, ErrInvalidThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			err := th.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestThresholdsApply(t *testing.T) {
	base := DefaultThresholds()

	t.Run("empty overrides keep base", func(t *testing.T) {
		assert.True(t, ThresholdOverrides{}.IsEmpty())
		assert.Equal(t, base, base.Apply(ThresholdOverrides{}))
	})

	t.Run("explicit values win", func(t *testing.T) {
		got := base.Apply(ThresholdOverrides{
			CriticalMinRequests: ptr(5),
			CriticalErrorRate:   ptr(1.5),
			TopN:                ptr(3),
			VisibilityThreshold: ptr(50),
		})
		assert.Equal(t, 5, got.CriticalMinRequests)
		assert.Equal(t, 1.5, got.CriticalErrorRate)
		assert.Equal(t, 3, got.TopN)
		assert.Equal(t, 50, got.VisibilityThreshold)
		assert.Equal(t, base.DegradingThreshold, got.DegradingThreshold)
	})

	t.Run("single weight derives the other", func(t *testing.T) {
		got := base.Apply(ThresholdOverrides{VolumeWeight: ptr(0.25)})
		assert.Equal(t, 0.25, got.VolumeWeight)
		assert.Equal(t, 0.75, got.ErrorWeight)
		require.NoError(t, got.Validate())
	})
}
