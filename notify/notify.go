// Package notify derives read-only notification feeds from borrowings and
// reviews. Nothing here writes to storage.
package notify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"IT_borrowing_system/db"
	"IT_borrowing_system/models"
)

type Kind string

const (
	KindNewBorrowing   Kind = "NewBorrowing"
	KindOverdue        Kind = "Overdue"
	KindWarning        Kind = "Warning"
	KindReturned       Kind = "Returned"
	KindPayment        Kind = "Payment"
	KindPendingPayment Kind = "PendingPayment"
	KindNewReview      Kind = "NewReview"
)

const (
	Window     = 7 * 24 * time.Hour
	WarnDays   = 3
	QueryLimit = 20
)

type Notification struct {
	Type        Kind       `json:"type"`
	Message     string     `json:"message"`
	BorrowingID string     `json:"borrowingId,omitempty"`
	ReviewID    string     `json:"postId,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

type Projector struct {
	repo *db.Repo
	now  func() time.Time
}

func NewProjector(repo *db.Repo, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{repo: repo, now: now}
}

// Feed returns the admin feed for admins and the personal feed otherwise.
func (p *Projector) Feed(ctx context.Context, userID string, admin bool) ([]Notification, error) {
	if admin {
		return p.AdminFeed(ctx)
	}
	return p.UserFeed(ctx, userID)
}

func (p *Projector) AdminFeed(ctx context.Context) ([]Notification, error) {
	now := p.now().UTC()
	since := now.Add(-Window)
	var out []Notification

	list := func(f db.BorrowingFilter) ([]models.Borrowing, error) {
		f.Limit = QueryLimit
		return p.repo.ListBorrowings(ctx, f)
	}

	pending, err := list(db.BorrowingFilter{Statuses: []models.BorrowingStatus{models.BorrowingPending}, SortBy: "borrowDate"})
	if err != nil {
		return nil, err
	}
	for _, b := range pending {
		out = append(out, Notification{
			Type:        KindNewBorrowing,
			Message:     fmt.Sprintf("New borrowing request: %s wants to borrow %q", b.User.DisplayName(), b.Device.DisplayName()),
			BorrowingID: b.ID,
			Timestamp:   at(b.BorrowDate),
		})
	}

	active, err := list(db.BorrowingFilter{Statuses: []models.BorrowingStatus{models.BorrowingActive}, SortBy: "borrowDate"})
	if err != nil {
		return nil, err
	}
	for _, b := range active {
		left := DaysLeft(b.ReturnDate, now)
		switch {
		case left < 0:
			out = append(out, Notification{
				Type:        KindOverdue,
				Message:     fmt.Sprintf("Overdue borrowing: %s has not returned %q after due date", b.User.DisplayName(), b.Device.DisplayName()),
				BorrowingID: b.ID,
				Timestamp:   at(b.ReturnDate),
			})
		case left <= WarnDays:
			out = append(out, Notification{
				Type:        KindWarning,
				Message:     fmt.Sprintf("Warning: %s has %d day(s) left to return %q", b.User.DisplayName(), left, b.Device.DisplayName()),
				BorrowingID: b.ID,
				Timestamp:   at(b.ReturnDate),
			})
		}
	}

	returned, err := list(db.BorrowingFilter{
		Statuses:      []models.BorrowingStatus{models.BorrowingReturned},
		ReturnedSince: &since,
		SortBy:        "actualReturnDate",
	})
	if err != nil {
		return nil, err
	}
	for _, b := range returned {
		out = append(out, Notification{
			Type:        KindReturned,
			Message:     fmt.Sprintf("Device returned: %s returned %q", b.User.DisplayName(), b.Device.DisplayName()),
			BorrowingID: b.ID,
			Timestamp:   b.ActualReturnDate,
		})
	}

	paid, err := list(db.BorrowingFilter{PaymentStatus: models.PaymentPaid, PaidSince: &since, SortBy: "paymentDate"})
	if err != nil {
		return nil, err
	}
	for _, b := range paid {
		out = append(out, Notification{
			Type:        KindPayment,
			Message:     fmt.Sprintf("Payment received: %s paid a fine of %.2f for device %q", b.User.DisplayName(), b.Fine, b.Device.DisplayName()),
			BorrowingID: b.ID,
			Timestamp:   b.PaymentDate,
		})
	}

	unpaid, err := list(db.BorrowingFilter{PaymentStatus: models.PaymentPending, WithFine: true, SortBy: "borrowDate"})
	if err != nil {
		return nil, err
	}
	for _, b := range unpaid {
		// 无时间戳，排在最后
		out = append(out, Notification{
			Type:        KindPendingPayment,
			Message:     fmt.Sprintf("Pending payment: %s has a fine of %.2f for device %q", b.User.DisplayName(), b.Fine, b.Device.DisplayName()),
			BorrowingID: b.ID,
		})
	}

	overdue, err := list(db.BorrowingFilter{Statuses: []models.BorrowingStatus{models.BorrowingOverdue}, SortBy: "returnDate"})
	if err != nil {
		return nil, err
	}
	for _, b := range overdue {
		out = append(out, Notification{
			Type:        KindOverdue,
			Message:     fmt.Sprintf("Overdue borrowing: %s has not returned %q after due date", b.User.DisplayName(), b.Device.DisplayName()),
			BorrowingID: b.ID,
			Timestamp:   at(b.ReturnDate),
		})
	}

	reviews, err := p.repo.ListReviews(ctx, "", &since, QueryLimit)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		out = append(out, Notification{
			Type:      KindNewReview,
			Message:   fmt.Sprintf("New review: %s added %d star rating for device %q", r.User.DisplayName(), r.Rating, r.Device.DisplayName()),
			ReviewID:  r.ID,
			Timestamp: at(r.CreatedAt),
		})
	}

	sortFeed(out)
	return out, nil
}

// UserFeed warns a user about their own active borrowings.
func (p *Projector) UserFeed(ctx context.Context, userID string) ([]Notification, error) {
	now := p.now().UTC()
	bs, err := p.repo.ListBorrowings(ctx, db.BorrowingFilter{
		UserID:    userID,
		Statuses:  []models.BorrowingStatus{models.BorrowingActive},
		SortBy:    "returnDate",
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}

	out := []Notification{}
	for _, b := range bs {
		left := DaysLeft(b.ReturnDate, now)
		switch {
		case left < 0:
			out = append(out, Notification{
				Type:        KindOverdue,
				Message:     fmt.Sprintf("Device %q is overdue! Please return it immediately.", b.Device.DisplayName()),
				BorrowingID: b.ID,
			})
		case left <= WarnDays:
			out = append(out, Notification{
				Type:        KindWarning,
				Message:     fmt.Sprintf("Only %d day(s) left to return %q", left, b.Device.DisplayName()),
				BorrowingID: b.ID,
			})
		}
	}
	return out, nil
}

// DaysLeft rounds the remaining time up to whole days; it goes negative
// only once a full day has passed since the due date.
func DaysLeft(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

// sortFeed 按时间倒序，无时间戳的排最后
func sortFeed(ns []Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i].Timestamp, ns[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

func at(t time.Time) *time.Time { return &t }
