// db/repo_devices_admin.go
package db

import (
	"context"
	"strings"
	"time"

	"IT_borrowing_system/models"

	"gorm.io/gorm"
)

type AdminDeviceRow struct {
	// Device fields
	ID           string    `json:"id"`
	SerialNumber string    `json:"serialNumber"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Current open borrowing (nullable)
	BorrowingID      *string    `json:"borrowingId,omitempty"`
	BorrowingStatus  *string    `json:"borrowingStatus,omitempty"`
	BorrowerID       *string    `json:"borrowerId,omitempty"`
	BorrowerUsername *string    `json:"borrowerUsername,omitempty"`
	BorrowerEmail    *string    `json:"borrowerEmail,omitempty"`
	BorrowDate       *time.Time `json:"borrowDate,omitempty"`
	ReturnDate       *time.Time `json:"returnDate,omitempty"`
	Overdue          bool       `json:"overdue"` // 由 SQL 计算
}

type AdminDevicesQuery struct {
	Q      string // 模糊搜索：serial/name
	Status string // "", "open", "available", "overdue", "damaged"
	Page   int
	Size   int
	Now    time.Time
}

type PagedAdminDevices struct {
	Total int64            `json:"total"`
	Items []AdminDeviceRow `json:"items"`
}

func (r *Repo) ListDevicesWithCurrentBorrowing(ctx context.Context, q AdminDevicesQuery) (*PagedAdminDevices, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	if q.Now.IsZero() {
		q.Now = time.Now().UTC()
	}
	offset := (q.Page - 1) * q.Size

	db := r.DB.WithContext(ctx)

	// 唯一部分索引保证每台设备最多一条未结束借用，直接 LEFT JOIN
	qry := db.
		Table(models.DeviceTable+" d").
		Joins("LEFT JOIN "+models.BorrowingTable+" ob ON ob.device_id = d.id AND ob.status IN ?", models.OpenBorrowingStatuses).
		Joins("LEFT JOIN " + models.UserTable + " u ON u.id = ob.user_id")

	// 过滤
	if s := strings.TrimSpace(q.Q); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		qry = qry.Where("LOWER(d.serial_number) LIKE ? OR LOWER(d.name) LIKE ?", pat, pat)
	}
	switch q.Status {
	case "open":
		qry = qry.Where("d.status = ?", models.DeviceBorrowed)
	case "available":
		qry = qry.Where("d.status = ?", models.DeviceAvailable)
	case "damaged":
		qry = qry.Where("d.status = ?", models.DeviceDamaged)
	case "overdue":
		qry = qry.Where("ob.id IS NOT NULL AND (ob.status = ? OR ob.return_date < ?)", models.BorrowingOverdue, q.Now)
	default:
		// all
	}

	var total int64
	if err := qry.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []AdminDeviceRow
	if err := qry.
		Select(`
			d.id, d.serial_number, d.name, d.category, d.status, d.created_at, d.updated_at,
			ob.id          AS borrowing_id,
			ob.status      AS borrowing_status,
			ob.user_id     AS borrower_id,
			ob.borrow_date,
			ob.return_date,
			u.username     AS borrower_username,
			u.email        AS borrower_email,
			CASE WHEN ob.id IS NOT NULL AND (ob.status = ? OR ob.return_date < ?) THEN 1 ELSE 0 END AS overdue
		`, models.BorrowingOverdue, q.Now).
		Order("d.created_at DESC").
		Offset(offset).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	return &PagedAdminDevices{Total: total, Items: rows}, nil
}
