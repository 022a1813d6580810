package store

import (
	"testing"

	"praxis/internal/config"
	"praxis/internal/types"
)

func defaultConfidence() config.ConfidenceConfig {
	return config.Default().Confidence
}

func TestNextConfidence(t *testing.T) {
	cfg := defaultConfidence()

	tests := []struct {
		name    string
		old     float64
		outcome types.Outcome
		want    float64
	}{
		{"SuccessIncrease", 0.5, types.OutcomeSuccess, 0.6},
		{"SuccessCapped", 0.95, types.OutcomeSuccess, 1.0},
		{"FailureDecrease", 0.5, types.OutcomeFailure, 0.3},
		{"FailureFloored", 0.1, types.OutcomeFailure, 0.0},
		{"PartialSmallIncrease", 0.5, types.OutcomePartial, 0.55},
		{"PartialCapped", 0.98, types.OutcomePartial, 1.0},
		{"UnknownOutcomeNoChange", 0.5, types.Outcome("weird"), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextConfidence(tt.old, tt.outcome, cfg)
			if !almostEqual(got, tt.want) {
				t.Errorf("NextConfidence(%v, %s) = %v, want %v", tt.old, tt.outcome, got, tt.want)
			}
		})
	}
}

// Confidence must stay within [minConfidence, maxConfidence] for any
// sequence of outcomes.
func TestNextConfidenceBounds(t *testing.T) {
	cfg := defaultConfidence()

	sequences := [][]types.Outcome{
		{types.OutcomeFailure, types.OutcomeFailure, types.OutcomeFailure, types.OutcomeFailure},
		{types.OutcomeSuccess, types.OutcomeSuccess, types.OutcomeSuccess, types.OutcomeSuccess, types.OutcomeSuccess, types.OutcomeSuccess},
		{types.OutcomePartial, types.OutcomeFailure, types.OutcomeSuccess, types.OutcomePartial, types.OutcomeFailure, types.OutcomeFailure},
	}

	for _, seq := range sequences {
		confidence := 0.5
		for _, outcome := range seq {
			confidence = NextConfidence(confidence, outcome, cfg)
			if confidence < cfg.MinConfidence || confidence > cfg.MaxConfidence {
				t.Fatalf("confidence %v escaped [%v, %v] after %s", confidence, cfg.MinConfidence, cfg.MaxConfidence, outcome)
			}
		}
	}
}

func TestNextConfidenceCustomBounds(t *testing.T) {
	cfg := config.ConfidenceConfig{
		SuccessIncrease: 0.3,
		FailureDecrease: 0.3,
		MinConfidence:   0.2,
		MaxConfidence:   0.8,
		ForkThreshold:   0.3,
	}

	if got := NextConfidence(0.7, types.OutcomeSuccess, cfg); !almostEqual(got, 0.8) {
		t.Errorf("expected cap at custom max 0.8, got %v", got)
	}
	if got := NextConfidence(0.3, types.OutcomeFailure, cfg); !almostEqual(got, 0.2) {
		t.Errorf("expected floor at custom min 0.2, got %v", got)
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
