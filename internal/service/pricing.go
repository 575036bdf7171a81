package service

import (
	"math"
	"time"
)

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	// Nudge by a fraction of an ulp so values like 1.005 that are stored
	// just below the half round the way they are written.
	return math.Round(v*100+math.Copysign(1e-9, v)) / 100
}

// TotalPrice returns the price of a booking window before promotions.
func TotalPrice(baseFare, pricePerHour float64, durationHours int) float64 {
	return Round2(baseFare + pricePerHour*float64(durationHours))
}

// CancellationPolicy decides how much of a booking is refunded when it is
// cancelled ahead of its start.
type CancellationPolicy struct {
	FullRefundHours float64
	HalfChargeHours float64
}

// DefaultCancellationPolicy returns the 24h / 2h policy.
func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		FullRefundHours: 24,
		HalfChargeHours: 2,
	}
}

// RefundPercentage returns 100, 50 or 0 for a cancellation at cancelledAt.
func (p CancellationPolicy) RefundPercentage(startTime, cancelledAt time.Time) int {
	hoursUntilStart := startTime.Sub(cancelledAt).Hours()

	switch {
	case hoursUntilStart > p.FullRefundHours:
		return 100
	case hoursUntilStart > p.HalfChargeHours:
		return 50
	default:
		return 0
	}
}

// RefundAmount returns the share of total refunded at percentage pct.
func RefundAmount(total float64, pct int) float64 {
	return Round2(total * float64(pct) / 100)
}
