package db_test

import (
	"context"
	"testing"
	"time"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/db"
	"IT_borrowing_system/db/dbtest"
	"IT_borrowing_system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func loan(t *testing.T, r *db.Repo, d *models.Device, u *models.User, st models.BorrowingStatus, borrowed time.Time) *models.Borrowing {
	t.Helper()
	b := &models.Borrowing{
		DeviceID:      d.ID,
		UserID:        u.ID,
		BorrowDate:    borrowed,
		ReturnDate:    borrowed.Add(7 * 24 * time.Hour),
		Status:        st,
		PaymentStatus: models.PaymentNotRequired,
	}
	require.NoError(t, r.CreateBorrowing(context.Background(), b))
	return b
}

func TestUserLookupIsCaseInsensitive(t *testing.T) {
	r := dbtest.NewRepo(t)
	ctx := context.Background()
	u := &models.User{Username: "erin", Email: " Erin@Example.EDU ", PasswordHash: "x", Role: models.RoleStaff, Status: models.UserActive}
	require.NoError(t, r.CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)

	got, err := r.FindUserByEmail(ctx, "ERIN@example.edu")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	exists, err := r.UserExists(ctx, "nobody@example.edu", "erin")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &models.User{Username: "erin2", Email: "erin@example.edu", PasswordHash: "x", Role: models.RoleStaff, Status: models.UserActive}
	assert.True(t, apperr.Is(r.CreateUser(ctx, dup), apperr.KindConflict))

	_, err = r.FindUserByID(ctx, uuid.NewString())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(r.SetUserRole(ctx, uuid.NewString(), models.RoleAdmin), apperr.KindNotFound))

	require.NoError(t, r.SetUserRole(ctx, u.ID, models.RoleAdmin))
	n, err := r.CountAdmins(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpdateDeviceGuardsBorrowedStatus(t *testing.T) {
	r := dbtest.NewRepo(t)
	ctx := context.Background()
	borrowed := models.DeviceBorrowed
	damaged := models.DeviceDamaged
	available := models.DeviceAvailable

	d := dbtest.Device(t, r, models.DeviceAvailable)
	_, _, err := r.UpdateDevice(ctx, d.ID, db.DevicePatch{Status: &borrowed})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	got, old, err := r.UpdateDevice(ctx, d.ID, db.DevicePatch{Status: &damaged})
	require.NoError(t, err)
	assert.Equal(t, models.DeviceAvailable, old)
	assert.Equal(t, models.DeviceDamaged, got.Status)

	busy := dbtest.Device(t, r, models.DeviceBorrowed)
	_, _, err = r.UpdateDevice(ctx, busy.ID, db.DevicePatch{Status: &available})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// 不改状态的编辑对借出设备仍然允许
	loc := "Lab 3"
	got, _, err = r.UpdateDevice(ctx, busy.ID, db.DevicePatch{Location: &loc, Status: &borrowed})
	require.NoError(t, err)
	assert.Equal(t, "Lab 3", got.Location)

	blank := " "
	_, _, err = r.UpdateDevice(ctx, d.ID, db.DevicePatch{Name: &blank})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = r.UpdateDevice(ctx, d.ID, db.DevicePatch{SerialNumber: &busy.SerialNumber})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, _, err = r.UpdateDevice(ctx, uuid.NewString(), db.DevicePatch{Location: &loc})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestClaimDeviceIsCompareAndSwap(t *testing.T) {
	r := dbtest.NewRepo(t)
	ctx := context.Background()
	d := dbtest.Device(t, r, models.DeviceAvailable)

	require.NoError(t, r.ClaimDevice(ctx, d.ID))
	assert.True(t, apperr.Is(r.ClaimDevice(ctx, d.ID), apperr.KindConflict))

	got, err := r.FindDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceBorrowed, got.Status)

	ok, err := r.SetDeviceStatus(ctx, uuid.NewString(), models.DeviceAvailable)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOneOpenBorrowingPerDevice(t *testing.T) {
	r := dbtest.NewRepo(t)
	d := dbtest.Device(t, r, models.DeviceBorrowed)
	u := dbtest.User(t, r, models.RoleStudent)

	loan(t, r, d, u, models.BorrowingReturned, t0)
	loan(t, r, d, u, models.BorrowingReturned, t0.Add(time.Hour))
	loan(t, r, d, u, models.BorrowingActive, t0.Add(2*time.Hour))

	err := r.CreateBorrowing(context.Background(), &models.Borrowing{
		DeviceID: d.ID, UserID: u.ID, BorrowDate: t0, ReturnDate: t0.Add(time.Hour),
		Status: models.BorrowingPending, PaymentStatus: models.PaymentNotRequired,
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	n, err := r.CountOpenBorrowings(context.Background(), d.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestListBorrowingsFilters(t *testing.T) {
	r := dbtest.NewRepo(t)
	ctx := context.Background()
	alice := dbtest.User(t, r, models.RoleStudent)
	bob := dbtest.User(t, r, models.RoleStudent)

	a1 := loan(t, r, dbtest.Device(t, r, models.DeviceBorrowed), alice, models.BorrowingActive, t0)
	a2 := loan(t, r, dbtest.Device(t, r, models.DeviceAvailable), alice, models.BorrowingReturned, t0.Add(24*time.Hour))
	b1 := loan(t, r, dbtest.Device(t, r, models.DeviceBorrowed), bob, models.BorrowingPending, t0.Add(48*time.Hour))

	returned := t0.Add(30 * 24 * time.Hour)
	a2.ActualReturnDate = &returned
	a2.Fine = 12.5
	a2.PaymentStatus = models.PaymentPending
	require.NoError(t, r.SaveBorrowing(ctx, a2))

	ids := func(bs []models.Borrowing) []string {
		out := make([]string, 0, len(bs))
		for _, b := range bs {
			out = append(out, b.ID)
		}
		return out
	}

	all, err := r.ListBorrowings(ctx, db.BorrowingFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID, a2.ID, a1.ID}, ids(all))
	require.NotNil(t, all[0].User)
	assert.Equal(t, bob.Username, all[0].User.Username)
	require.NotNil(t, all[0].Device)

	asc, err := r.ListBorrowings(ctx, db.BorrowingFilter{Ascending: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID, a2.ID}, ids(asc))

	mine, err := r.ListBorrowings(ctx, db.BorrowingFilter{UserID: alice.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a1.ID, a2.ID}, ids(mine))

	open, err := r.ListBorrowings(ctx, db.BorrowingFilter{Statuses: models.OpenBorrowingStatuses})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a1.ID, b1.ID}, ids(open))

	fined, err := r.ListBorrowings(ctx, db.BorrowingFilter{PaymentStatus: models.PaymentPending, WithFine: true})
	require.NoError(t, err)
	assert.Equal(t, []string{a2.ID}, ids(fined))

	since := returned.Add(-time.Hour)
	recent, err := r.ListBorrowings(ctx, db.BorrowingFilter{ReturnedSince: &since})
	require.NoError(t, err)
	assert.Equal(t, []string{a2.ID}, ids(recent))

	_, err = r.ListBorrowings(ctx, db.BorrowingFilter{SortBy: "fine"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	due, err := r.ListOverdueCandidates(ctx, t0.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{a1.ID}, due)
}

func TestDeleteBorrowingNotFound(t *testing.T) {
	r := dbtest.NewRepo(t)
	assert.True(t, apperr.Is(r.DeleteBorrowing(context.Background(), uuid.NewString()), apperr.KindNotFound))
	assert.True(t, apperr.Is(r.DeleteDevice(context.Background(), uuid.NewString()), apperr.KindNotFound))
}

func TestStats(t *testing.T) {
	r := dbtest.NewRepo(t)
	ctx := context.Background()
	u := dbtest.User(t, r, models.RoleStudent)

	loan(t, r, dbtest.Device(t, r, models.DeviceBorrowed), u, models.BorrowingOverdue, t0)
	loan(t, r, dbtest.Device(t, r, models.DeviceBorrowed), u, models.BorrowingPending, t0)
	fined := loan(t, r, dbtest.Device(t, r, models.DeviceDamaged), u, models.BorrowingReturned, t0)
	fined.Fine, fined.PaymentStatus = 25, models.PaymentPending
	require.NoError(t, r.SaveBorrowing(ctx, fined))
	paid := loan(t, r, dbtest.Device(t, r, models.DeviceAvailable), u, models.BorrowingReturned, t0)
	paid.Fine, paid.PaymentStatus = 10, models.PaymentPaid
	require.NoError(t, r.SaveBorrowing(ctx, paid))

	st, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.Stats{
		TotalDevices:      4,
		AvailableDevices:  1,
		BorrowedDevices:   2,
		DamagedDevices:    1,
		TotalBorrowings:   4,
		PendingBorrowings: 1,
		ActiveBorrowings:  0,
		OverdueBorrowings: 1,
		OutstandingFines:  25,
	}, *st)
}

func TestAdminDeviceListing(t *testing.T) {
	r := dbtest.NewRepo(t)
	ctx := context.Background()
	u := dbtest.User(t, r, models.RoleStudent)

	late := dbtest.Device(t, r, models.DeviceBorrowed)
	loan(t, r, late, u, models.BorrowingActive, t0)
	dbtest.Device(t, r, models.DeviceAvailable)
	dbtest.Device(t, r, models.DeviceDamaged)

	now := t0.Add(10 * 24 * time.Hour)
	res, err := r.ListDevicesWithCurrentBorrowing(ctx, db.AdminDevicesQuery{Status: "overdue", Now: now})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	row := res.Items[0]
	assert.Equal(t, late.ID, row.ID)
	assert.True(t, row.Overdue)
	require.NotNil(t, row.BorrowerUsername)
	assert.Equal(t, u.Username, *row.BorrowerUsername)

	res, err = r.ListDevicesWithCurrentBorrowing(ctx, db.AdminDevicesQuery{Now: now, Size: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Len(t, res.Items, 2)

	res, err = r.ListDevicesWithCurrentBorrowing(ctx, db.AdminDevicesQuery{Status: "available", Now: now})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Nil(t, res.Items[0].BorrowingID)
	assert.False(t, res.Items[0].Overdue)
}

func TestAuditLogNewestFirst(t *testing.T) {
	r := dbtest.NewRepo(t)
	ctx := context.Background()
	bid := uuid.NewString()
	other := uuid.NewString()

	for i, ev := range []string{"BorrowingRequested", "BorrowingActivated", "DeviceReturned"} {
		require.NoError(t, r.LogAudit(ctx, &models.AuditLog{
			Event: ev, BorrowingID: &bid, Message: ev, CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, r.LogAudit(ctx, &models.AuditLog{Event: "BorrowingDeleted", BorrowingID: &other, Message: "x"}))

	logs, err := r.ListAuditLogs(ctx, db.AuditFilter{BorrowingID: bid})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "DeviceReturned", logs[0].Event)
	assert.Equal(t, "BorrowingRequested", logs[2].Event)

	logs, err = r.ListAuditLogs(ctx, db.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "BorrowingDeleted", logs[0].Event)
}
