// Package ledger does the seat accounting for a single event.  It has no
// storage of its own: callers load the event and its reservations,
// usually under a row lock, and ask the ledger whether a request fits.
package ledger

import (
	"errors"

	"github.com/iliyamo/event-booking/internal/model"
)

// ErrCapacityExceeded is returned when a request asks for more seats than
// remain available.  Nothing is persisted when it is returned.
var ErrCapacityExceeded = errors.New("not enough seats available")

// ErrInvalidSeatCount is returned for a seat count that is not a positive
// integer.  It is a validation failure, not an admission decision.
var ErrInvalidSeatCount = errors.New("seats must be a positive integer")

// Committed sums the seats held by reservations, skipping the reservation
// whose ID equals exclude.  An exclude of 0 skips nothing.
func Committed(reservations []model.Reservation, exclude uint64) int {
	total := 0
	for _, r := range reservations {
		if exclude != 0 && r.ID == exclude {
			continue
		}
		total += r.Seats
	}
	return total
}

// ComputeAvailable returns capacity minus all committed seats.  The result
// is negative when capacity was lowered below what is already sold.
func ComputeAvailable(event model.Event, reservations []model.Reservation) int {
	return event.Capacity - Committed(reservations, 0)
}

// AdmitReservation decides whether requested seats fit into the event.
// When exclude names an existing reservation its current seats are left
// out of the sum, so an edit is not counted against itself.
func AdmitReservation(event model.Event, reservations []model.Reservation, requested int, exclude uint64) error {
	if requested <= 0 {
		return ErrInvalidSeatCount
	}
	available := event.Capacity - Committed(reservations, exclude)
	if requested > available {
		return ErrCapacityExceeded
	}
	return nil
}

// CancelReservation returns reservations without the one identified by id
// and the number of seats that were freed.  Seats are freed regardless of
// the event's current capacity.
func CancelReservation(reservations []model.Reservation, id uint64) ([]model.Reservation, int) {
	out := make([]model.Reservation, 0, len(reservations))
	freed := 0
	for _, r := range reservations {
		if r.ID == id {
			freed += r.Seats
			continue
		}
		out = append(out, r)
	}
	return out, freed
}

// Remaining is the availability shown to users: negative availability is
// displayed as zero seats left.
func Remaining(available int) int {
	if available < 0 {
		return 0
	}
	return available
}

// SoldOut reports whether committed seats have reached capacity.
func SoldOut(capacity, committed int) bool {
	return committed >= capacity
}

// Snapshot is the availability of one event at one point in time.
type Snapshot struct {
	Capacity  int  `json:"capacity"`
	Committed int  `json:"committed"`
	Available int  `json:"available"`
	Remaining int  `json:"remaining"`
	SoldOut   bool `json:"sold_out"`
}

// NewSnapshot builds a Snapshot from capacity and committed seats.
func NewSnapshot(capacity, committed int) Snapshot {
	available := capacity - committed
	return Snapshot{
		Capacity:  capacity,
		Committed: committed,
		Available: available,
		Remaining: Remaining(available),
		SoldOut:   SoldOut(capacity, committed),
	}
}
