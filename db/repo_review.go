package db

import (
	"context"
	"time"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"

	"gorm.io/gorm/clause"
)

// Reviews

func (r *Repo) CreateReview(ctx context.Context, rv *models.Review) error {
	ensureID(&rv.ID)
	return translate(r.DB.WithContext(ctx).Omit(clause.Associations).Create(rv).Error, "review")
}

func (r *Repo) FindReview(ctx context.Context, id string) (*models.Review, error) {
	var rv models.Review
	if err := r.DB.WithContext(ctx).First(&rv, "id = ?", id).Error; err != nil {
		return nil, translate(err, "review")
	}
	return &rv, nil
}

// ListReviews deviceID 为空时返回全部；since 非 nil 时只取之后创建的
func (r *Repo) ListReviews(ctx context.Context, deviceID string, since *time.Time, limit int) ([]models.Review, error) {
	q := withSummaries(r.DB.WithContext(ctx)).Model(&models.Review{})
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	if since != nil {
		q = q.Where("created_at >= ?", since.UTC())
	}
	q = q.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rs []models.Review
	err := q.Find(&rs).Error
	return rs, err
}

// UpdateReview 在事务内加锁读取后交给 fn 修改，再写回
func (r *Repo) UpdateReview(ctx context.Context, id string, fn func(rv *models.Review) error) (*models.Review, error) {
	var rv models.Review
	err := r.Tx(ctx, func(tx *Repo) error {
		if err := tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rv, "id = ?", id).Error; err != nil {
			return translate(err, "review")
		}
		if err := fn(&rv); err != nil {
			return err
		}
		return translate(tx.DB.Omit(clause.Associations).Save(&rv).Error, "review")
	})
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *Repo) DeleteReview(ctx context.Context, id string) (*models.Review, error) {
	var rv models.Review
	err := r.Tx(ctx, func(tx *Repo) error {
		if err := tx.DB.First(&rv, "id = ?", id).Error; err != nil {
			return translate(err, "review")
		}
		res := tx.DB.Delete(&models.Review{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("review not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rv, nil
}
