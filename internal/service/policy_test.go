package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPolicy() RefundPolicy {
	return RefundPolicy{FullHours: 24, PartialHours: 12, PartialFraction: 0.5}
}

func TestRefundPolicyTiers(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	policy := testPolicy()

	tests := []struct {
		name     string
		notice   time.Duration
		tier     string
		fraction float64
		reason   string
	}{
		{"exactly 24h is full", 24 * time.Hour, RefundTierFull, 1.0, "Full refund (24+ hours notice)"},
		{"just under 24h is partial", 24*time.Hour - time.Second, RefundTierPartial, 0.5, "Partial refund (12-24 hours notice)"},
		{"exactly 12h is partial", 12 * time.Hour, RefundTierPartial, 0.5, "Partial refund (12-24 hours notice)"},
		{"just under 12h is none", 12*time.Hour - time.Second, RefundTierNone, 0, "No refund (less than 12 hours notice)"},
		{"one second before start is none", time.Second, RefundTierNone, 0, "No refund (less than 12 hours notice)"},
		{"already started", -time.Second, RefundTierNone, 0, "Session has already started or passed"},
		{"exactly at start", 0, RefundTierNone, 0, "Session has already started or passed"},
		{"two days out is full", 48 * time.Hour, RefundTierFull, 1.0, "Full refund (24+ hours notice)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.Evaluate(now.Add(tt.notice), now)
			assert.Equal(t, tt.tier, decision.Tier)
			assert.Equal(t, tt.fraction, decision.Fraction)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestRefundPolicyIsDeterministic(t *testing.T) {
	policy := testPolicy()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	scheduledAt := now.Add(20 * time.Hour)

	first := policy.Evaluate(scheduledAt, now)
	second := policy.Evaluate(scheduledAt, now)
	assert.Equal(t, first, second)
}

func TestRefundAmountRounding(t *testing.T) {
	decision := RefundDecision{Tier: RefundTierPartial, Fraction: 0.5}

	assert.Equal(t, int64(5000), decision.RefundAmount(10000))
	assert.Equal(t, int64(50), decision.RefundAmount(99))   // rounds half up
	assert.Equal(t, int64(1), decision.RefundAmount(1))

	full := RefundDecision{Tier: RefundTierFull, Fraction: 1.0}
	assert.Equal(t, int64(10000), full.RefundAmount(10000))

	none := RefundDecision{Tier: RefundTierNone, Fraction: 0}
	assert.Equal(t, int64(0), none.RefundAmount(10000))
}
