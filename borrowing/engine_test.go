package borrowing

import (
	"context"
	"sync"
	"testing"
	"time"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/db"
	"IT_borrowing_system/db/dbtest"
	"IT_borrowing_system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	repo   *db.Repo
	engine *Engine
	clock  *fakeClock
	events []Event
	mu     sync.Mutex
}

var t0 = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: dbtest.NewRepo(t), clock: &fakeClock{now: t0}}
	f.engine = NewEngine(f.repo, DefaultFinePolicy(), WithClock(f.clock.Now))
	f.engine.Subscribe(func(_ context.Context, ev Event) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) types() []EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// activeLoan creates and activates a borrowing due seven days after t0.
func (f *fixture) activeLoan(t *testing.T) (*models.Borrowing, *models.Device) {
	t.Helper()
	ctx := context.Background()
	u := dbtest.User(t, f.repo, models.RoleStudent)
	d := dbtest.Device(t, f.repo, models.DeviceAvailable)

	b, err := f.engine.CreateBorrowing(ctx, CreateInput{
		DeviceID:   d.ID,
		UserID:     u.ID,
		ReturnDate: t0.AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	b, err = f.engine.TransitionBorrowing(ctx, b.ID, Patch{Status: ptr(models.BorrowingActive)})
	require.NoError(t, err)
	require.Equal(t, models.BorrowingActive, b.Status)
	dbtest.AssertDeviceInvariant(t, f.repo)
	return b, d
}

func (f *fixture) deviceStatus(t *testing.T, id string) models.DeviceStatus {
	t.Helper()
	d, err := f.repo.FindDeviceByID(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}

func TestCreateBorrowing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := dbtest.User(t, f.repo, models.RoleStaff)
	d := dbtest.Device(t, f.repo, models.DeviceAvailable)

	b, err := f.engine.CreateBorrowing(ctx, CreateInput{
		DeviceID:        d.ID,
		UserID:          u.ID,
		ReturnDate:      t0.AddDate(0, 0, 14),
		ConditionBefore: " scratched lid ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, models.BorrowingPending, b.Status)
	assert.Equal(t, models.PaymentNotRequired, b.PaymentStatus)
	assert.Equal(t, "scratched lid", b.ConditionBefore)
	assert.True(t, b.BorrowDate.Equal(t0))
	assert.Equal(t, models.DeviceBorrowed, f.deviceStatus(t, d.ID))
	assert.Equal(t, []EventType{BorrowingRequested}, f.types())
	assert.Equal(t, u.Username, f.events[0].Username)
	assert.Equal(t, d.Name, f.events[0].DeviceName)
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestCreateBorrowingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := dbtest.User(t, f.repo, models.RoleStaff)
	d := dbtest.Device(t, f.repo, models.DeviceAvailable)

	_, err := f.engine.CreateBorrowing(ctx, CreateInput{UserID: u.ID, ReturnDate: t0.AddDate(0, 0, 1)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: u.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: u.ID, ReturnDate: t0.Add(-time.Hour)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: "not-a-uuid", UserID: u.ID, ReturnDate: t0.AddDate(0, 0, 1)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: "u-1", ReturnDate: t0.AddDate(0, 0, 1)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: "00000000-0000-0000-0000-000000000000", UserID: u.ID, ReturnDate: t0.AddDate(0, 0, 1)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: "00000000-0000-0000-0000-000000000000", ReturnDate: t0.AddDate(0, 0, 1)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.Equal(t, models.DeviceAvailable, f.deviceStatus(t, d.ID))
	assert.Empty(t, f.types())
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestCreateBorrowingOnUnavailableDevice(t *testing.T) {
	for _, status := range []models.DeviceStatus{models.DeviceBorrowed, models.DeviceDamaged} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			u := dbtest.User(t, f.repo, models.RoleStudent)
			d := dbtest.Device(t, f.repo, models.DeviceAvailable)

			if status == models.DeviceBorrowed {
				_, err := f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: u.ID, ReturnDate: t0.AddDate(0, 0, 3)})
				require.NoError(t, err)
			} else {
				_, err := f.repo.SetDeviceStatus(ctx, d.ID, status)
				require.NoError(t, err)
			}
			before, err := f.repo.ListBorrowings(ctx, db.BorrowingFilter{DeviceID: d.ID})
			require.NoError(t, err)

			_, err = f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: u.ID, ReturnDate: t0.AddDate(0, 0, 3)})
			assert.ErrorIs(t, err, ErrDeviceNotAvailable)

			after, err := f.repo.ListBorrowings(ctx, db.BorrowingFilter{DeviceID: d.ID})
			require.NoError(t, err)
			assert.Len(t, after, len(before))
			assert.Equal(t, status, f.deviceStatus(t, d.ID))
			dbtest.AssertDeviceInvariant(t, f.repo)
		})
	}
}

func TestConcurrentCreateClaimsDeviceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := dbtest.Device(t, f.repo, models.DeviceAvailable)
	users := make([]*models.User, 6)
	for i := range users {
		users[i] = dbtest.User(t, f.repo, models.RoleStudent)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, busy int
	)
	for _, u := range users {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			_, err := f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: uid, ReturnDate: t0.AddDate(0, 0, 2)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindConflict):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, len(users)-1, busy)
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestReturnThreeDaysLate(t *testing.T) {
	f := newFixture(t)
	b, d := f.activeLoan(t)

	f.clock.Set(b.ReturnDate.AddDate(0, 0, 3))
	got, err := f.engine.TransitionBorrowing(context.Background(), b.ID, Patch{Status: ptr(models.BorrowingReturned)})
	require.NoError(t, err)

	assert.Equal(t, models.BorrowingReturned, got.Status)
	assert.Equal(t, 15.0, got.Fine)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
	require.NotNil(t, got.ActualReturnDate)
	assert.WithinDuration(t, b.ReturnDate.AddDate(0, 0, 3), *got.ActualReturnDate, time.Second)
	require.NotNil(t, got.Device)
	require.NotNil(t, got.User)
	assert.Equal(t, models.DeviceAvailable, f.deviceStatus(t, d.ID))
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestReturnOnTimeDamaged(t *testing.T) {
	f := newFixture(t)
	b, d := f.activeLoan(t)

	f.clock.Set(b.ReturnDate.Add(-time.Hour))
	got, err := f.engine.TransitionBorrowing(context.Background(), b.ID, Patch{
		Status:         ptr(models.BorrowingReturned),
		ConditionAfter: ptr("Damaged"),
	})
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Fine)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
	assert.Equal(t, models.DeviceDamaged, f.deviceStatus(t, d.ID))
	assert.Contains(t, f.types(), DeviceReturnedDamaged)
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestReturnLateAndDamaged(t *testing.T) {
	f := newFixture(t)
	b, _ := f.activeLoan(t)

	f.clock.Set(b.ReturnDate.AddDate(0, 0, 2))
	got, err := f.engine.TransitionBorrowing(context.Background(), b.ID, Patch{
		Status:         ptr(models.BorrowingReturned),
		ConditionAfter: ptr("Damaged"),
	})
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Fine)
}

func TestReturnOnTimeUndamaged(t *testing.T) {
	f := newFixture(t)
	b, d := f.activeLoan(t)

	f.clock.Set(b.ReturnDate)
	got, err := f.engine.TransitionBorrowing(context.Background(), b.ID, Patch{Status: ptr(models.BorrowingReturned)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Fine)
	assert.Equal(t, models.PaymentNotRequired, got.PaymentStatus)
	assert.Equal(t, models.DeviceAvailable, f.deviceStatus(t, d.ID))
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestReturnTwiceIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, _ := f.activeLoan(t)

	f.clock.Set(b.ReturnDate.AddDate(0, 0, 1))
	first, err := f.engine.TransitionBorrowing(ctx, b.ID, Patch{Status: ptr(models.BorrowingReturned)})
	require.NoError(t, err)

	f.clock.Set(b.ReturnDate.AddDate(0, 0, 10))
	_, err = f.engine.TransitionBorrowing(ctx, b.ID, Patch{Status: ptr(models.BorrowingReturned)})
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	again, err := f.repo.FindBorrowing(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Fine, again.Fine)
	assert.WithinDuration(t, *first.ActualReturnDate, *again.ActualReturnDate, time.Second)
}

func TestTransitionUnknownBorrowing(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.TransitionBorrowing(context.Background(), "00000000-0000-0000-0000-000000000000", Patch{Status: ptr(models.BorrowingActive)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestActivatePastDueIsOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := dbtest.User(t, f.repo, models.RoleStudent)
	d := dbtest.Device(t, f.repo, models.DeviceAvailable)

	b, err := f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: u.ID, ReturnDate: t0.AddDate(0, 0, 1)})
	require.NoError(t, err)

	f.clock.Set(t0.AddDate(0, 0, 2))
	got, err := f.engine.TransitionBorrowing(ctx, b.ID, Patch{Status: ptr(models.BorrowingActive)})
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingOverdue, got.Status)
	assert.Equal(t, models.DeviceBorrowed, f.deviceStatus(t, d.ID))
	assert.Equal(t, []EventType{BorrowingRequested, BorrowingActivated, BorrowingOverdue}, f.types())
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestPayFine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, _ := f.activeLoan(t)

	_, err := f.engine.PayFine(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNothingToPay)

	f.clock.Set(b.ReturnDate.AddDate(0, 0, 1))
	_, err = f.engine.TransitionBorrowing(ctx, b.ID, Patch{Status: ptr(models.BorrowingReturned)})
	require.NoError(t, err)

	paidAt := b.ReturnDate.AddDate(0, 0, 2)
	f.clock.Set(paidAt)
	got, err := f.engine.PayFine(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	require.NotNil(t, got.PaymentDate)
	assert.WithinDuration(t, paidAt, *got.PaymentDate, time.Second)

	_, err = f.engine.PayFine(ctx, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	_, err = f.engine.PayFine(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPayFineOnZeroFineReturn(t *testing.T) {
	f := newFixture(t)
	b, _ := f.activeLoan(t)

	_, err := f.engine.TransitionBorrowing(context.Background(), b.ID, Patch{Status: ptr(models.BorrowingReturned)})
	require.NoError(t, err)
	_, err = f.engine.PayFine(context.Background(), b.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestDeleteDeviceGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, d := f.activeLoan(t)

	_, err := f.engine.DeleteDevice(ctx, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.engine.TransitionBorrowing(ctx, b.ID, Patch{Status: ptr(models.BorrowingReturned)})
	require.NoError(t, err)

	deleted, err := f.engine.DeleteDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, deleted.ID)

	_, err = f.repo.FindDeviceByID(ctx, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// 历史借用仍可读取，设备摘要为空
	hist, err := f.repo.FindBorrowing(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, hist.Device)
	assert.Equal(t, "Unknown Device", hist.Device.DisplayName())

	_, err = f.engine.DeleteDevice(ctx, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestDeleteDeviceGuardOpenBorrowingOnAvailableDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, d := f.activeLoan(t)

	// 状态被绕过引擎改写时，仍以未结束借用为准
	_, err := f.repo.SetDeviceStatus(ctx, d.ID, models.DeviceAvailable)
	require.NoError(t, err)

	_, err = f.engine.DeleteDevice(ctx, d.ID)
	assert.ErrorIs(t, err, ErrDeviceBusy)

	_, err = f.repo.FindBorrowing(ctx, b.ID)
	require.NoError(t, err)
}

func TestDeleteOpenBorrowingReleasesDevice(t *testing.T) {
	for _, activate := range []bool{false, true} {
		name := "pending"
		if activate {
			name = "active"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			u := dbtest.User(t, f.repo, models.RoleStudent)
			d := dbtest.Device(t, f.repo, models.DeviceAvailable)

			b, err := f.engine.CreateBorrowing(ctx, CreateInput{DeviceID: d.ID, UserID: u.ID, ReturnDate: t0.AddDate(0, 0, 5)})
			require.NoError(t, err)
			if activate {
				_, err = f.engine.TransitionBorrowing(ctx, b.ID, Patch{Status: ptr(models.BorrowingActive)})
				require.NoError(t, err)
			}

			removed, err := f.engine.DeleteBorrowing(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, b.ID, removed.ID)
			assert.Equal(t, models.DeviceAvailable, f.deviceStatus(t, d.ID))

			_, err = f.repo.FindBorrowing(ctx, b.ID)
			assert.True(t, apperr.Is(err, apperr.KindNotFound))
			dbtest.AssertDeviceInvariant(t, f.repo)
		})
	}
}

func TestDeleteReturnedBorrowingKeepsDeviceStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, d := f.activeLoan(t)

	_, err := f.engine.TransitionBorrowing(ctx, b.ID, Patch{
		Status:         ptr(models.BorrowingReturned),
		ConditionAfter: ptr("Damaged"),
	})
	require.NoError(t, err)

	_, err = f.engine.DeleteBorrowing(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceDamaged, f.deviceStatus(t, d.ID))

	_, err = f.engine.DeleteBorrowing(ctx, b.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late, _ := f.activeLoan(t)
	onTime, _ := f.activeLoan(t)

	// 第二笔延期到更晚
	err := f.repo.DB.Model(&models.Borrowing{}).Where("id = ?", onTime.ID).
		Update("return_date", t0.AddDate(0, 1, 0)).Error
	require.NoError(t, err)

	f.clock.Set(t0.AddDate(0, 0, 8))
	n, err := f.engine.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.repo.FindBorrowing(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingOverdue, got.Status)

	got, err = f.repo.FindBorrowing(ctx, onTime.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingActive, got.Status)

	n, err = f.engine.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	dbtest.AssertDeviceInvariant(t, f.repo)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	f := newFixture(t)
	b, _ := f.activeLoan(t)
	f.clock.Set(b.ReturnDate.Add(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.RunSweeper(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := f.repo.FindBorrowing(context.Background(), b.ID)
		return err == nil && got.Status == models.BorrowingOverdue
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
