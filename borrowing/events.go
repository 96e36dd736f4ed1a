package borrowing

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type EventType string

const (
	BorrowingRequested    EventType = "BorrowingRequested"
	BorrowingActivated    EventType = "BorrowingActivated"
	BorrowingOverdue      EventType = "BorrowingOverdue"
	DeviceReturned        EventType = "DeviceReturned"
	DeviceReturnedDamaged EventType = "DeviceReturnedDamaged"
	BorrowingDeleted      EventType = "BorrowingDeleted"
	FinePaid              EventType = "FinePaid"
	DeviceDeleted         EventType = "DeviceDeleted"
)

// Event is emitted after the change it describes has been committed.
type Event struct {
	Type        EventType `json:"type"`
	BorrowingID string    `json:"borrowingId,omitempty"`
	DeviceID    string    `json:"deviceId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	DeviceName  string    `json:"deviceName,omitempty"`
	Username    string    `json:"username,omitempty"`
	Fine        float64   `json:"fine,omitempty"`
	At          time.Time `json:"at"`
}

func (e Event) Message() string {
	user := e.Username
	if user == "" {
		user = e.UserID
	}
	device := e.DeviceName
	if device == "" {
		device = e.DeviceID
	}
	switch e.Type {
	case BorrowingRequested:
		return fmt.Sprintf("New borrowing request: user %s wants to borrow device %q", user, device)
	case BorrowingActivated:
		return fmt.Sprintf("Borrowing activated: user %s activated borrowing for device %q", user, device)
	case BorrowingOverdue:
		return fmt.Sprintf("Borrowing overdue: user %s has overdue borrowing for device %q", user, device)
	case DeviceReturned:
		return fmt.Sprintf("Device returned: user %s returned device %q", user, device)
	case DeviceReturnedDamaged:
		return fmt.Sprintf("Device returned damaged: user %s returned damaged device %q", user, device)
	case BorrowingDeleted:
		return fmt.Sprintf("Borrowing deleted: borrowing of device %q by user %s was removed", device, user)
	case FinePaid:
		return fmt.Sprintf("Fine paid: user %s paid $%.2f for device %q", user, e.Fine, device)
	case DeviceDeleted:
		return fmt.Sprintf("Device deleted: %q was deleted", device)
	}
	return string(e.Type)
}

// Observer receives committed domain events. It runs on the caller's
// goroutine and must not block for long.
type Observer func(ctx context.Context, ev Event)

func LogObserver(log *slog.Logger) Observer {
	return func(ctx context.Context, ev Event) {
		log.InfoContext(ctx, "[NOTIFICATION] "+ev.Message(),
			"event", ev.Type,
			"borrowingId", ev.BorrowingID,
			"deviceId", ev.DeviceID,
		)
	}
}
