package borrowing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"IT_borrowing_system/apperr"
	"IT_borrowing_system/db"
	"IT_borrowing_system/models"

	"github.com/google/uuid"
)

// Engine owns every write that couples a borrowing to its device.
type Engine struct {
	repo   *db.Repo
	policy FinePolicy
	now    func() time.Time
	log    *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(repo *db.Repo, policy FinePolicy, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		policy: policy,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Policy() FinePolicy { return e.policy }

func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

func (e *Engine) emit(ctx context.Context, evs ...Event) {
	e.mu.RLock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.RUnlock()
	for _, ev := range evs {
		for _, o := range obs {
			o(ctx, ev)
		}
	}
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

type CreateInput struct {
	DeviceID        string     `json:"deviceId"`
	UserID          string     `json:"userId"`
	BorrowDate      *time.Time `json:"borrowDate"`
	ReturnDate      time.Time  `json:"returnDate"`
	ConditionBefore string     `json:"conditionBefore"`
}

// CreateBorrowing claims an Available device and records a Pending borrowing
// for it in the same transaction.
func (e *Engine) CreateBorrowing(ctx context.Context, in CreateInput) (*models.Borrowing, error) {
	now := e.clock()

	in.DeviceID = strings.TrimSpace(in.DeviceID)
	in.UserID = strings.TrimSpace(in.UserID)
	if in.DeviceID == "" || in.UserID == "" {
		return nil, apperr.Validation("deviceId and userId are required")
	}
	if _, err := uuid.Parse(in.DeviceID); err != nil {
		return nil, apperr.Validation("invalid deviceId")
	}
	if _, err := uuid.Parse(in.UserID); err != nil {
		return nil, apperr.Validation("invalid userId")
	}
	if in.ReturnDate.IsZero() {
		return nil, apperr.Validation("returnDate is required")
	}
	borrowDate := now
	if in.BorrowDate != nil && !in.BorrowDate.IsZero() {
		borrowDate = in.BorrowDate.UTC()
	}
	due := in.ReturnDate.UTC()
	if due.Before(borrowDate) {
		return nil, apperr.Validation("returnDate must not be before borrowDate")
	}

	var (
		b    *models.Borrowing
		dev  *models.Device
		user *models.User
	)
	err := e.repo.Tx(ctx, func(tx *db.Repo) error {
		var err error
		if user, err = tx.FindUserByID(ctx, in.UserID); err != nil {
			return err
		}
		if dev, err = tx.LockDevice(ctx, in.DeviceID); err != nil {
			return err
		}
		if dev.Status != models.DeviceAvailable {
			return ErrDeviceNotAvailable
		}
		if err := tx.ClaimDevice(ctx, dev.ID); err != nil {
			return err
		}
		b = &models.Borrowing{
			DeviceID:        dev.ID,
			UserID:          user.ID,
			BorrowDate:      borrowDate,
			ReturnDate:      due,
			Status:          models.BorrowingPending,
			ConditionBefore: strings.TrimSpace(in.ConditionBefore),
			PaymentStatus:   models.PaymentNotRequired,
		}
		return tx.CreateBorrowing(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	b.Device, b.User = dev, user
	e.emit(ctx, e.event(BorrowingRequested, b, now))
	return b, nil
}

// TransitionBorrowing applies p under a row lock and syncs the device.
func (e *Engine) TransitionBorrowing(ctx context.Context, id string, p Patch) (*models.Borrowing, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := e.clock()

	var out Outcome
	err := e.repo.Tx(ctx, func(tx *db.Repo) error {
		b, err := tx.LockBorrowing(ctx, id)
		if err != nil {
			return err
		}
		if out, err = Apply(b, p, now, e.policy); err != nil {
			return err
		}
		if err := tx.SaveBorrowing(ctx, b); err != nil {
			return err
		}
		return e.syncDevice(ctx, tx, b, out.DeviceStatus)
	})
	if err != nil {
		return nil, err
	}

	b, err := e.repo.FindBorrowing(ctx, id)
	if err != nil {
		return nil, err
	}
	evs := make([]Event, 0, len(out.Events))
	for _, t := range out.Events {
		evs = append(evs, e.event(t, b, now))
	}
	e.emit(ctx, evs...)
	return b, nil
}

// syncDevice 设备已被删除时只记日志
func (e *Engine) syncDevice(ctx context.Context, tx *db.Repo, b *models.Borrowing, s *models.DeviceStatus) error {
	if s == nil {
		return nil
	}
	ok, err := tx.SetDeviceStatus(ctx, b.DeviceID, *s)
	if err != nil {
		return err
	}
	if !ok {
		e.log.WarnContext(ctx, "borrowing references a missing device",
			"borrowingId", b.ID, "deviceId", b.DeviceID)
	}
	return nil
}

// DeleteBorrowing removes a borrowing and returns it. Open borrowings release
// their device first; returned ones leave it as it is.
func (e *Engine) DeleteBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	now := e.clock()

	var b *models.Borrowing
	err := e.repo.Tx(ctx, func(tx *db.Repo) error {
		var err error
		if _, err = tx.LockBorrowing(ctx, id); err != nil {
			return err
		}
		if b, err = tx.FindBorrowing(ctx, id); err != nil {
			return err
		}
		if b.Status.Open() {
			avail := models.DeviceAvailable
			if err := e.syncDevice(ctx, tx, b, &avail); err != nil {
				return err
			}
			if b.Device != nil {
				b.Device.Status = avail
			}
		}
		return tx.DeleteBorrowing(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, e.event(BorrowingDeleted, b, now))
	return b, nil
}

func (e *Engine) PayFine(ctx context.Context, id string) (*models.Borrowing, error) {
	now := e.clock()

	err := e.repo.Tx(ctx, func(tx *db.Repo) error {
		b, err := tx.LockBorrowing(ctx, id)
		if err != nil {
			return err
		}
		if b.Fine <= 0 {
			return ErrNothingToPay
		}
		if b.PaymentStatus == models.PaymentPaid {
			return ErrAlreadyPaid
		}
		b.PaymentStatus = models.PaymentPaid
		b.PaymentDate = &now
		return tx.SaveBorrowing(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	b, err := e.repo.FindBorrowing(ctx, id)
	if err != nil {
		return nil, err
	}
	e.emit(ctx, e.event(FinePaid, b, now))
	return b, nil
}

// DeleteDevice refuses while the device is out or any open borrowing
// still references it.
func (e *Engine) DeleteDevice(ctx context.Context, id string) (*models.Device, error) {
	now := e.clock()

	var dev *models.Device
	err := e.repo.Tx(ctx, func(tx *db.Repo) error {
		var err error
		if dev, err = tx.LockDevice(ctx, id); err != nil {
			return err
		}
		if dev.Status == models.DeviceBorrowed {
			return apperr.Conflict("cannot delete device: it is currently borrowed")
		}
		n, err := tx.CountOpenBorrowings(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDeviceBusy
		}
		return tx.DeleteDevice(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, Event{Type: DeviceDeleted, DeviceID: dev.ID, DeviceName: dev.Name, At: now})
	return dev, nil
}

// SweepOverdue marks every Active borrowing past its due date as Overdue,
// one transaction per record. It returns how many it moved.
func (e *Engine) SweepOverdue(ctx context.Context) (int, error) {
	now := e.clock()

	ids, err := e.repo.ListOverdueCandidates(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		moved int
		errs  []error
	)
	overdue := models.BorrowingOverdue
	for _, id := range ids {
		var changed bool
		err := e.repo.Tx(ctx, func(tx *db.Repo) error {
			b, err := tx.LockBorrowing(ctx, id)
			if err != nil {
				return err
			}
			// 加锁后复查，期间可能已被归还或删除
			if b.Status != models.BorrowingActive || !b.ReturnDate.Before(now) {
				return nil
			}
			if _, err := Apply(b, Patch{Status: &overdue}, now, e.policy); err != nil {
				return err
			}
			changed = true
			return tx.SaveBorrowing(ctx, b)
		})
		if apperr.Is(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !changed {
			continue
		}
		moved++
		if b, err := e.repo.FindBorrowing(ctx, id); err == nil {
			e.emit(ctx, e.event(BorrowingOverdue, b, now))
		}
	}
	return moved, errors.Join(errs...)
}

// RunSweeper sweeps once immediately and then every interval until ctx ends.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := e.SweepOverdue(ctx)
		if err != nil {
			e.log.ErrorContext(ctx, "overdue sweep failed", "err", err)
		} else if n > 0 {
			e.log.InfoContext(ctx, "overdue sweep", "moved", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (e *Engine) event(t EventType, b *models.Borrowing, at time.Time) Event {
	ev := Event{
		Type:        t,
		BorrowingID: b.ID,
		DeviceID:    b.DeviceID,
		UserID:      b.UserID,
		Fine:        b.Fine,
		At:          at,
	}
	if b.Device != nil {
		ev.DeviceName = b.Device.Name
	}
	if b.User != nil {
		ev.Username = b.User.Username
	}
	return ev
}
