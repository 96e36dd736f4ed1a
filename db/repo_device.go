package db

import (
	"context"
	"strings"
	"time"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/models"

	"gorm.io/gorm/clause"
)

// Devices

func (r *Repo) CreateDevice(ctx context.Context, d *models.Device) error {
	ensureID(&d.ID)
	return translate(r.DB.WithContext(ctx).Create(d).Error, "device")
}

func (r *Repo) FindDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	if err := r.DB.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err, "device")
	}
	return &d, nil
}

func (r *Repo) DeviceSerialExists(ctx context.Context, serial string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Device{}).
		Where("serial_number = ?", strings.TrimSpace(serial)).
		Count(&n).Error
	return n > 0, err
}

// ListDevices q 模糊匹配名称/描述，category 精确匹配
func (r *Repo) ListDevices(ctx context.Context, q, category string) ([]models.Device, error) {
	tx := r.DB.WithContext(ctx).Model(&models.Device{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if category = strings.TrimSpace(category); category != "" {
		tx = tx.Where("category = ?", category)
	}
	var ds []models.Device
	err := tx.Order("created_at DESC").Find(&ds).Error
	return ds, err
}

// DevicePatch 管理员直接编辑；只应用非 nil 字段
type DevicePatch struct {
	Name         *string
	SerialNumber *string
	Category     *string
	Status       *models.DeviceStatus
	Condition    *models.DeviceCondition
	PurchaseDate *time.Time
	Location     *string
	Description  *string
	Image        *string
	Lat          *float64
	Lng          *float64
}

// UpdateDevice applies an admin edit. Borrowed is owned by the borrowing
// lifecycle: it can neither be set here nor left through here.
func (r *Repo) UpdateDevice(ctx context.Context, id string, p DevicePatch) (*models.Device, models.DeviceStatus, error) {
	var (
		d         *models.Device
		oldStatus models.DeviceStatus
	)
	err := r.Tx(ctx, func(tx *Repo) error {
		cur, err := tx.LockDevice(ctx, id)
		if err != nil {
			return err
		}
		d, oldStatus = cur, cur.Status

		if p.Status != nil && *p.Status != cur.Status {
			if !p.Status.Valid() {
				return apperr.Validation("invalid device status %q", *p.Status)
			}
			if *p.Status == models.DeviceBorrowed {
				return apperr.Validation("status Borrowed is set by borrowings only")
			}
			if cur.Status == models.DeviceBorrowed {
				return apperr.Conflict("device is currently borrowed")
			}
			d.Status = *p.Status
		}
		if p.Condition != nil {
			if !p.Condition.Valid() {
				return apperr.Validation("invalid device condition %q", *p.Condition)
			}
			d.Condition = *p.Condition
		}
		if p.Name != nil {
			d.Name = strings.TrimSpace(*p.Name)
		}
		if p.SerialNumber != nil {
			d.SerialNumber = strings.TrimSpace(*p.SerialNumber)
		}
		if p.Category != nil {
			d.Category = strings.TrimSpace(*p.Category)
		}
		if p.PurchaseDate != nil {
			d.PurchaseDate = p.PurchaseDate.UTC()
		}
		if p.Location != nil {
			d.Location = *p.Location
		}
		if p.Description != nil {
			d.Description = *p.Description
		}
		if p.Image != nil {
			d.Image = *p.Image
		}
		if p.Lat != nil {
			d.Lat = p.Lat
		}
		if p.Lng != nil {
			d.Lng = p.Lng
		}
		if d.Name == "" || d.SerialNumber == "" || d.Category == "" {
			return apperr.Validation("name, serial number and category are required")
		}
		return translate(tx.DB.Save(d).Error, "device")
	})
	if err != nil {
		return nil, "", err
	}
	return d, oldStatus, nil
}

// LockDevice 行锁（SELECT ... FOR UPDATE），只在事务内使用
func (r *Repo) LockDevice(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err, "device")
	}
	return &d, nil
}

// ClaimDevice flips Available to Borrowed. It is a compare-and-swap: a device
// that is no longer Available is reported as a conflict.
func (r *Repo) ClaimDevice(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Model(&models.Device{}).
		Where("id = ? AND status = ?", id, models.DeviceAvailable).
		Updates(map[string]any{
			"status":     models.DeviceBorrowed,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("device is not available")
	}
	return nil
}

// SetDeviceStatus reports false when the device no longer exists.
func (r *Repo) SetDeviceStatus(ctx context.Context, id string, s models.DeviceStatus) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Device{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     s,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) DeleteDevice(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&models.Device{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("device not found")
	}
	return nil
}

// CountOpenBorrowings 设备上未结束（Pending/Active/Overdue）的借用数
func (r *Repo) CountOpenBorrowings(ctx context.Context, deviceID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Borrowing{}).
		Where("device_id = ? AND status IN ?", deviceID, models.OpenBorrowingStatuses).
		Count(&n).Error
	return n, err
}
