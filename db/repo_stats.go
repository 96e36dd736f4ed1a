package db

import (
	"context"

	"IT_borrowing_system/models"
)

type Stats struct {
	TotalDevices      int64   `json:"totalDevices"`
	AvailableDevices  int64   `json:"availableDevices"`
	BorrowedDevices   int64   `json:"borrowedDevices"`
	DamagedDevices    int64   `json:"damagedDevices"`
	TotalBorrowings   int64   `json:"totalBorrowings"`
	PendingBorrowings int64   `json:"pendingBorrowings"`
	ActiveBorrowings  int64   `json:"activeBorrowings"`
	OverdueBorrowings int64   `json:"overdueBorrowings"`
	OutstandingFines  float64 `json:"outstandingFines"`
}

type statusCount struct {
	Status string
	N      int64
}

func (r *Repo) Stats(ctx context.Context) (*Stats, error) {
	db := r.DB.WithContext(ctx)
	var st Stats

	var devs []statusCount
	if err := db.Model(&models.Device{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&devs).Error; err != nil {
		return nil, err
	}
	for _, c := range devs {
		st.TotalDevices += c.N
		switch models.DeviceStatus(c.Status) {
		case models.DeviceAvailable:
			st.AvailableDevices = c.N
		case models.DeviceBorrowed:
			st.BorrowedDevices = c.N
		case models.DeviceDamaged:
			st.DamagedDevices = c.N
		}
	}

	var bors []statusCount
	if err := db.Model(&models.Borrowing{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&bors).Error; err != nil {
		return nil, err
	}
	for _, c := range bors {
		st.TotalBorrowings += c.N
		switch models.BorrowingStatus(c.Status) {
		case models.BorrowingPending:
			st.PendingBorrowings = c.N
		case models.BorrowingActive:
			st.ActiveBorrowings = c.N
		case models.BorrowingOverdue:
			st.OverdueBorrowings = c.N
		}
	}

	// 未付罚金合计
	if err := db.Model(&models.Borrowing{}).
		Select("COALESCE(SUM(fine), 0)").
		Where("payment_status = ? AND fine > 0", models.PaymentPending).
		Scan(&st.OutstandingFines).Error; err != nil {
		return nil, err
	}
	return &st, nil
}
