package borrowing

import (
	"math"
	"time"

	"IT_borrowing_system/models"
)

// FinePolicy holds the amounts charged at return time.
type FinePolicy struct {
	PerOverdueDay float64 // 每逾期一天
	Damage        float64 // 损坏一次性
}

func DefaultFinePolicy() FinePolicy {
	return FinePolicy{PerOverdueDay: 5, Damage: 20}
}

// OverdueDays counts started 24h periods between due and returned.
// A return at or before the due instant is zero days late.
func OverdueDays(due, returned time.Time) int {
	late := returned.Sub(due)
	if late <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	return int((late + day - 1) / day)
}

func (p FinePolicy) Assess(due, returned time.Time, damaged bool) float64 {
	fine := float64(OverdueDays(due, returned)) * p.PerOverdueDay
	if damaged {
		fine += p.Damage
	}
	return roundCents(fine)
}

// PaymentStatusFor: 有罚金待付，否则无需支付
func PaymentStatusFor(fine float64) models.PaymentStatus {
	if fine > 0 {
		return models.PaymentPending
	}
	return models.PaymentNotRequired
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
