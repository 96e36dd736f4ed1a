// Package dbtest opens a throwaway SQLite-backed repository for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"IT_borrowing_system/db"
	"IT_borrowing_system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewRepo migrates a fresh database under t.TempDir. A single connection
// serializes transactions the way row locks do on postgres.
func NewRepo(t testing.TB) *db.Repo {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "itb.db") + "?_pragma=busy_timeout(5000)&_time_format=sqlite"
	conn, err := gorm.Open(sqlite.Open(dsn), db.Config())
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(conn))
	return db.NewRepo(conn)
}

func User(t testing.TB, r *db.Repo, role models.UserRole) *models.User {
	t.Helper()
	n := uuid.NewString()[:8]
	u := &models.User{
		Username:     "user-" + n,
		Email:        n + "@example.edu",
		PasswordHash: "x",
		Role:         role,
		Status:       models.UserActive,
	}
	require.NoError(t, r.CreateUser(context.Background(), u))
	return u
}

func Device(t testing.TB, r *db.Repo, status models.DeviceStatus) *models.Device {
	t.Helper()
	n := uuid.NewString()[:8]
	d := &models.Device{
		Name:         "Laptop " + n,
		SerialNumber: "SN-" + n,
		Category:     "Laptop",
		Status:       status,
		Condition:    models.ConditionBefore,
		PurchaseDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, r.CreateDevice(context.Background(), d))
	return d
}

// AssertDeviceInvariant fails unless every device is Borrowed exactly when
// one open borrowing references it.
func AssertDeviceInvariant(t testing.TB, r *db.Repo) {
	t.Helper()
	ctx := context.Background()

	var devices []models.Device
	require.NoError(t, r.DB.WithContext(ctx).Find(&devices).Error)
	for _, d := range devices {
		n, err := r.CountOpenBorrowings(ctx, d.ID)
		require.NoError(t, err)
		require.LessOrEqual(t, n, int64(1), "device %s has %d open borrowings", d.Name, n)
		if d.Status == models.DeviceBorrowed {
			require.Equal(t, int64(1), n, "device %s is Borrowed without an open borrowing", d.Name)
		} else {
			require.Zero(t, n, "device %s is %s but has an open borrowing", d.Name, d.Status)
		}
	}
}
