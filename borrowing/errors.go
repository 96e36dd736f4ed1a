package borrowing

import "IT_borrowing_system/apperr"

var (
	ErrDeviceNotAvailable = apperr.Conflict("device is not available")
	ErrAlreadyReturned    = apperr.Conflict("borrowing is already returned")
	ErrNothingToPay       = apperr.Conflict("no fine to pay")
	ErrAlreadyPaid        = apperr.Conflict("fine is already paid")
	ErrDeviceBusy         = apperr.Conflict("cannot delete device: it has active or pending borrowings")
)
