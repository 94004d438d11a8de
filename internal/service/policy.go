package service

import (
	"fmt"
	"math"
	"time"
)

// Refund tiers
const (
	RefundTierFull    = "full"
	RefundTierPartial = "partial"
	RefundTierNone    = "none"
)

// RefundPolicy maps time-to-session to a refund tier. It is pure: no I/O,
// no clock of its own; callers inject now.
type RefundPolicy struct {
	FullHours       int
	PartialHours    int
	PartialFraction float64
}

// RefundDecision is the outcome of evaluating the policy at one instant
type RefundDecision struct {
	Tier     string
	Fraction float64
	Reason   string
}

// Evaluate returns the refund tier for a session scheduled at scheduledAt,
// cancelled at now. Boundaries are inclusive at the top of each tier: exactly
// FullHours notice earns a full refund, exactly PartialHours a partial one.
func (p RefundPolicy) Evaluate(scheduledAt, now time.Time) RefundDecision {
	notice := scheduledAt.Sub(now)

	switch {
	case notice >= time.Duration(p.FullHours)*time.Hour:
		return RefundDecision{
			Tier:     RefundTierFull,
			Fraction: 1.0,
			Reason:   fmt.Sprintf("Full refund (%d+ hours notice)", p.FullHours),
		}
	case notice >= time.Duration(p.PartialHours)*time.Hour:
		return RefundDecision{
			Tier:     RefundTierPartial,
			Fraction: p.PartialFraction,
			Reason:   fmt.Sprintf("Partial refund (%d-%d hours notice)", p.PartialHours, p.FullHours),
		}
	case notice > 0:
		return RefundDecision{
			Tier:     RefundTierNone,
			Fraction: 0,
			Reason:   fmt.Sprintf("No refund (less than %d hours notice)", p.PartialHours),
		}
	default:
		return RefundDecision{
			Tier:     RefundTierNone,
			Fraction: 0,
			Reason:   "Session has already started or passed",
		}
	}
}

// RefundAmount computes the cents refunded for a price under this decision
func (d RefundDecision) RefundAmount(priceCents int64) int64 {
	return int64(math.Round(float64(priceCents) * d.Fraction))
}
