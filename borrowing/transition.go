package borrowing

import (
	"strings"
	"time"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"
)

// 合法状态迁移；同状态视为原地更新
var transitions = map[models.BorrowingStatus][]models.BorrowingStatus{
	models.BorrowingPending:  {models.BorrowingPending, models.BorrowingActive},
	models.BorrowingActive:   {models.BorrowingActive, models.BorrowingOverdue, models.BorrowingReturned},
	models.BorrowingOverdue:  {models.BorrowingOverdue, models.BorrowingReturned},
	models.BorrowingReturned: nil,
}

func CanTransition(from, to models.BorrowingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is what a transition asks of the rest of the system.
type Outcome struct {
	DeviceStatus *models.DeviceStatus // nil: device untouched
	Events       []EventType
}

// Apply mutates b in memory according to p. It never touches storage, so a
// returned error means b must be discarded.
func Apply(b *models.Borrowing, p Patch, now time.Time, policy FinePolicy) (Outcome, error) {
	var out Outcome

	if b.Status == models.BorrowingReturned {
		return out, ErrAlreadyReturned
	}
	from := b.Status
	to := from
	if p.Status != nil {
		to = *p.Status
	}
	if !CanTransition(from, to) {
		return out, apperr.Conflict("cannot move borrowing from %s to %s", from, to)
	}

	if p.ConditionAfter != nil {
		b.ConditionAfter = strings.TrimSpace(*p.ConditionAfter)
	}
	if p.Notes != nil {
		b.Notes = *p.Notes
	}

	switch to {
	case models.BorrowingReturned:
		returned := now
		b.ActualReturnDate = &returned
		if p.Fine != nil {
			b.Fine = roundCents(*p.Fine)
		} else {
			b.Fine = policy.Assess(b.ReturnDate, returned, b.Damaged())
		}
		setPayment(b)
		b.Status = models.BorrowingReturned

		ds := models.DeviceAvailable
		ev := DeviceReturned
		if b.Damaged() {
			ds, ev = models.DeviceDamaged, DeviceReturnedDamaged
		}
		out.DeviceStatus = &ds
		out.Events = append(out.Events, ev)
		return out, nil

	case models.BorrowingActive:
		// 显式设为 Active 且已过期时改为 Overdue
		if p.Status != nil && b.ReturnDate.Before(now) {
			to = models.BorrowingOverdue
		}
	}

	if p.Fine != nil {
		b.Fine = roundCents(*p.Fine)
		setPayment(b)
	}

	b.Status = to
	if from == models.BorrowingPending && to != models.BorrowingPending {
		out.Events = append(out.Events, BorrowingActivated)
	}
	if from != models.BorrowingOverdue && to == models.BorrowingOverdue {
		out.Events = append(out.Events, BorrowingOverdue)
	}
	return out, nil
}

func setPayment(b *models.Borrowing) {
	b.PaymentStatus = PaymentStatusFor(b.Fine)
	b.PaymentDate = nil
}
