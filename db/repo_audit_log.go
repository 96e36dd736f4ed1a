package db

import (
	"IT_borrowing_system/models"
	"context"
	"fmt"
	"time"
)

func (r *Repo) LogAudit(ctx context.Context, entry *models.AuditLog) error {
	ensureID(&entry.ID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := r.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type AuditFilter struct {
	BorrowingID string
	DeviceID    string
	UserID      string
	Limit       int
}

func (r *Repo) ListAuditLogs(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	q := r.DB.WithContext(ctx).Model(&models.AuditLog{})
	if f.BorrowingID != "" {
		q = q.Where("borrowing_id = ?", f.BorrowingID)
	}
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	var logs []models.AuditLog
	err := q.Order("created_at DESC").Limit(f.Limit).Find(&logs).Error
	return logs, err
}
