// Package service holds the booking workflow that sits between the HTTP
// handlers and the repositories.  Every change to an event's reservations
// happens inside the event's row lock so the seat ledger always decides on
// the current seat sum.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
)

// ReservationStore is the persistence the booking service needs.
// *repository.ReservationRepo satisfies it.
type ReservationStore interface {
	GetByID(ctx context.Context, id uint64) (model.Reservation, error)
	WithEventLock(ctx context.Context, eventID uint64, fn func(repository.LockedEvent) error) error
}

// EventReader loads an event together with its committed seats.
type EventReader interface {
	GetWithSeats(ctx context.Context, id uint64) (model.EventWithSeats, error)
}

// Notifier receives reservation activity after it has been committed.
type Notifier interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// BookingService admits, edits and cancels reservations.
type BookingService struct {
	store    ReservationStore
	events   EventReader
	notifier Notifier
	metrics  *metrics.Booking
	log      *slog.Logger
}

// NewBookingService wires a BookingService.  notifier may be nil, in which
// case no activity is published.
func NewBookingService(store ReservationStore, events EventReader, notifier Notifier, m *metrics.Booking, log *slog.Logger) *BookingService {
	if m == nil {
		m = metrics.NewBooking(nil)
	}
	return &BookingService{store: store, events: events, notifier: notifier, metrics: m, log: log}
}

// Result describes a committed reservation change.
type Result struct {
	Reservation   model.Reservation
	EventTitle    string
	PreviousSeats int
	Availability  ledger.Snapshot
}

// Reserve admits a new reservation of seats for eventID.  Only regular
// users may reserve.  Returns repository.ErrNotFound for an unknown event,
// ledger.ErrInvalidSeatCount for a non-positive count and
// ledger.ErrCapacityExceeded when the seats do not fit.
func (s *BookingService) Reserve(ctx context.Context, who model.Identity, eventID uint64, seats int) (Result, error) {
	if !who.CanReserve() {
		s.observe("reserve", repository.ErrForbidden)
		return Result{}, repository.ErrForbidden
	}

	var out Result
	err := s.store.WithEventLock(ctx, eventID, func(lk repository.LockedEvent) error {
		ev := lk.Event()
		if err := ledger.AdmitReservation(ev, lk.Reservations(), seats, 0); err != nil {
			return err
		}
		res := model.Reservation{UserID: who.UserID, EventID: ev.ID, Seats: seats, CreatedAt: time.Now().UTC()}
		if err := lk.Insert(ctx, &res); err != nil {
			return err
		}
		out = Result{
			Reservation:  res,
			EventTitle:   ev.Title,
			Availability: ledger.NewSnapshot(ev.Capacity, ledger.Committed(lk.Reservations(), 0)),
		}
		return nil
	})
	s.observe("reserve", err)
	if err != nil {
		return Result{}, err
	}

	s.metrics.SeatsCommitted.Add(float64(seats))
	s.log.Info("reservation created",
		"reservation_id", out.Reservation.ID, "user_id", who.UserID, "event_id", eventID,
		"seats", seats, "available", out.Availability.Available)
	s.publish(ctx, queue.ActionCreated, out)
	return out, nil
}

// EditReservation changes the seat count of a reservation owned by the
// caller.  The reservation's own seats are left out of the availability
// sum, so asking for the same count always succeeds while capacity allows
// it.  On rejection the reservation keeps its previous seats.
func (s *BookingService) EditReservation(ctx context.Context, who model.Identity, reservationID uint64, seats int) (Result, error) {
	current, err := s.ownedReservation(ctx, who, reservationID)
	if err != nil {
		s.observe("edit", err)
		return Result{}, err
	}

	var out Result
	err = s.store.WithEventLock(ctx, current.EventID, func(lk repository.LockedEvent) error {
		held, ok := findReservation(lk.Reservations(), reservationID)
		if !ok {
			return repository.ErrNotFound // cancelled concurrently
		}
		ev := lk.Event()
		if err := ledger.AdmitReservation(ev, lk.Reservations(), seats, reservationID); err != nil {
			return err
		}
		if err := lk.UpdateSeats(ctx, reservationID, seats); err != nil {
			return err
		}
		previous := held.Seats
		held.Seats = seats
		out = Result{
			Reservation:   held,
			EventTitle:    ev.Title,
			PreviousSeats: previous,
			Availability:  ledger.NewSnapshot(ev.Capacity, ledger.Committed(lk.Reservations(), 0)),
		}
		return nil
	})
	s.observe("edit", err)
	if err != nil {
		return Result{}, err
	}

	if delta := seats - out.PreviousSeats; delta > 0 {
		s.metrics.SeatsCommitted.Add(float64(delta))
	} else if delta < 0 {
		s.metrics.SeatsFreed.Add(float64(-delta))
	}
	s.log.Info("reservation updated",
		"reservation_id", reservationID, "user_id", who.UserID, "event_id", current.EventID,
		"seats", seats, "previous_seats", out.PreviousSeats)
	s.publish(ctx, queue.ActionUpdated, out)
	return out, nil
}

// CancelReservation deletes a reservation owned by the caller and frees
// its seats.
func (s *BookingService) CancelReservation(ctx context.Context, who model.Identity, reservationID uint64) (Result, error) {
	current, err := s.ownedReservation(ctx, who, reservationID)
	if err != nil {
		return Result{}, err
	}

	var out Result
	err = s.store.WithEventLock(ctx, current.EventID, func(lk repository.LockedEvent) error {
		held, ok := findReservation(lk.Reservations(), reservationID)
		if !ok {
			return repository.ErrNotFound
		}
		remaining, freed := ledger.CancelReservation(lk.Reservations(), reservationID)
		if err := lk.Delete(ctx, reservationID); err != nil {
			return err
		}
		ev := lk.Event()
		out = Result{
			Reservation:   held,
			EventTitle:    ev.Title,
			PreviousSeats: freed,
			Availability:  ledger.NewSnapshot(ev.Capacity, ledger.Committed(remaining, 0)),
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.metrics.SeatsFreed.Add(float64(out.PreviousSeats))
	s.log.Info("reservation cancelled",
		"reservation_id", reservationID, "user_id", who.UserID, "event_id", current.EventID,
		"freed", out.PreviousSeats)
	s.publish(ctx, queue.ActionCancelled, out)
	return out, nil
}

// Availability returns the current seat snapshot of one event.
func (s *BookingService) Availability(ctx context.Context, eventID uint64) (model.EventWithSeats, ledger.Snapshot, error) {
	ev, err := s.events.GetWithSeats(ctx, eventID)
	if err != nil {
		return model.EventWithSeats{}, ledger.Snapshot{}, err
	}
	return ev, ledger.NewSnapshot(ev.Capacity, ev.Committed), nil
}

// GetReservation returns a reservation if the caller owns it.
func (s *BookingService) GetReservation(ctx context.Context, who model.Identity, reservationID uint64) (model.Reservation, error) {
	return s.ownedReservation(ctx, who, reservationID)
}

func (s *BookingService) ownedReservation(ctx context.Context, who model.Identity, id uint64) (model.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.UserID != who.UserID {
		return model.Reservation{}, repository.ErrForbidden
	}
	return res, nil
}

// publish is best effort: the reservation is already committed and a
// broker outage must not turn it into an error for the caller.
func (s *BookingService) publish(ctx context.Context, action string, r Result) {
	if s.notifier == nil {
		return
	}
	ev := queue.ReservationEvent{
		Action:        action,
		ReservationID: r.Reservation.ID,
		UserID:        r.Reservation.UserID,
		EventID:       r.Reservation.EventID,
		EventTitle:    r.EventTitle,
		Seats:         r.Reservation.Seats,
		Available:     r.Availability.Available,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if action == queue.ActionUpdated {
		ev.PreviousSeats = r.PreviousSeats
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.metrics.PublishFailures.Inc()
		s.log.Warn("reservation activity not published", "action", action, "reservation_id", ev.ReservationID, "error", err)
	}
}

func (s *BookingService) observe(op string, err error) {
	s.metrics.Admissions.WithLabelValues(op, outcome(err)).Inc()
	if err != nil && outcome(err) == metrics.OutcomeError {
		s.log.Error("admission failed", "op", op, "error", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeAdmitted
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return metrics.OutcomeRejected
	case errors.Is(err, ledger.ErrInvalidSeatCount):
		return metrics.OutcomeInvalid
	case errors.Is(err, repository.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, repository.ErrForbidden):
		return metrics.OutcomeForbidden
	default:
		return metrics.OutcomeError
	}
}

func findReservation(rs []model.Reservation, id uint64) (model.Reservation, bool) {
	for _, r := range rs {
		if r.ID == id {
			return r, true
		}
	}
	return model.Reservation{}, false
}
