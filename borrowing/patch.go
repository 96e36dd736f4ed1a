package borrowing

import (
	"math"
	"strings"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"
)

// Patch is a partial update of a borrowing. Nil fields are left alone.
type Patch struct {
	Status         *models.BorrowingStatus `json:"status"`
	ConditionAfter *string                 `json:"conditionAfter"`
	Notes          *string                 `json:"notes"`
	Fine           *float64                `json:"fine"`
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.ConditionAfter == nil && p.Notes == nil && p.Fine == nil
}

func (p Patch) Validate() error {
	if p.Empty() {
		return apperr.Validation("nothing to update")
	}
	if p.Status != nil && !p.Status.Valid() {
		return apperr.Validation("invalid borrowing status %q", *p.Status)
	}
	if p.Fine != nil {
		f := *p.Fine
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return apperr.Validation("fine must be a non-negative amount")
		}
	}
	if p.ConditionAfter != nil && len(strings.TrimSpace(*p.ConditionAfter)) > 500 {
		return apperr.Validation("conditionAfter is too long")
	}
	return nil
}
