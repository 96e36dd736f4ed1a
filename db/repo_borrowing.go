package db

import (
	"context"
	"errors"
	"time"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Borrowings

func (r *Repo) CreateBorrowing(ctx context.Context, b *models.Borrowing) error {
	ensureID(&b.ID)
	err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(b).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 唯一部分索引兜底：并发下另一事务已占用该设备
		return apperr.Conflict("device already has an open borrowing")
	}
	return translate(err, "borrowing")
}

// LockBorrowing 行锁读取，不带关联
func (r *Repo) LockBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	var b models.Borrowing
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err, "borrowing")
	}
	return &b, nil
}

// FindBorrowing loads a borrowing with its device and user summaries.
func (r *Repo) FindBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	var b models.Borrowing
	if err := withSummaries(r.DB.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err, "borrowing")
	}
	return &b, nil
}

// SaveBorrowing 写回借用本身；关联只读，绝不级联写设备/用户
func (r *Repo) SaveBorrowing(ctx context.Context, b *models.Borrowing) error {
	return translate(r.DB.WithContext(ctx).Omit(clause.Associations).Save(b).Error, "borrowing")
}

func (r *Repo) DeleteBorrowing(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&models.Borrowing{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("borrowing not found")
	}
	return nil
}

// BorrowingFilter 通知/统计/列表共用的查询条件
type BorrowingFilter struct {
	UserID        string
	DeviceID      string
	Statuses      []models.BorrowingStatus
	PaymentStatus models.PaymentStatus
	WithFine      bool // fine > 0
	ReturnedSince *time.Time
	PaidSince     *time.Time
	DueBefore     *time.Time
	SortBy        string // borrowDate | returnDate | actualReturnDate | paymentDate
	Ascending     bool
	Limit         int
}

var sortColumns = map[string]string{
	"":                 "borrow_date",
	"borrowDate":       "borrow_date",
	"returnDate":       "return_date",
	"actualReturnDate": "actual_return_date",
	"paymentDate":      "payment_date",
}

func (r *Repo) ListBorrowings(ctx context.Context, f BorrowingFilter) ([]models.Borrowing, error) {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		return nil, apperr.Validation("unknown sort field %q", f.SortBy)
	}

	q := withSummaries(r.DB.WithContext(ctx)).Model(&models.Borrowing{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.WithFine {
		q = q.Where("fine > 0")
	}
	if f.ReturnedSince != nil {
		q = q.Where("actual_return_date >= ?", f.ReturnedSince.UTC())
	}
	if f.PaidSince != nil {
		q = q.Where("payment_date >= ?", f.PaidSince.UTC())
	}
	if f.DueBefore != nil {
		q = q.Where("return_date < ?", f.DueBefore.UTC())
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: !f.Ascending})
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var bs []models.Borrowing
	if err := q.Find(&bs).Error; err != nil {
		return nil, err
	}
	return bs, nil
}

// ListOverdueCandidates 已过期但仍为 Active 的借用 id
func (r *Repo) ListOverdueCandidates(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&models.Borrowing{}).
		Where("status = ? AND return_date < ?", models.BorrowingActive, now.UTC()).
		Order("return_date").
		Pluck("id", &ids).Error
	return ids, err
}

func withSummaries(db *gorm.DB) *gorm.DB {
	return db.Preload("Device").Preload("User")
}
