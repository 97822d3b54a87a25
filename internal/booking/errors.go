package booking

import (
	"fmt"
	"time"
)

// ConflictError is returned when requested hours are already held by
// another non-terminal booking, or when the store's lock wait timed out.
// Hours lists the contested hour indexes when known.
type ConflictError struct {
	Date  time.Time
	Hours []int
}

func (e *ConflictError) Error() string {
	if len(e.Hours) == 0 {
		return fmt.Sprintf("booking conflict on %s", e.Date.Format("2006-01-02"))
	}
	return fmt.Sprintf("hours %v already booked on %s", e.Hours, e.Date.Format("2006-01-02"))
}

// NotFoundError is returned when a booking id is unknown.
type NotFoundError struct {
	BookingID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("booking %d not found", e.BookingID)
}

// InvalidTransitionError is returned when a lifecycle operation is applied
// to a booking in the wrong state, e.g. approving a non-pending booking.
type InvalidTransitionError struct {
	BookingID int64
	From      string
	To        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking %d: cannot transition %s -> %s", e.BookingID, e.From, e.To)
}
