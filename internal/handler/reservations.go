package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/flash"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/service"
)

// Booker admits, edits and cancels reservations.
// *service.BookingService satisfies it.
type Booker interface {
	Reserve(ctx context.Context, who model.Identity, eventID uint64, seats int) (service.Result, error)
	EditReservation(ctx context.Context, who model.Identity, reservationID uint64, seats int) (service.Result, error)
	CancelReservation(ctx context.Context, who model.Identity, reservationID uint64) (service.Result, error)
	GetReservation(ctx context.Context, who model.Identity, reservationID uint64) (model.Reservation, error)
	Availability(ctx context.Context, eventID uint64) (model.EventWithSeats, ledger.Snapshot, error)
}

// ReservationLister lists a user's reservations with their events.
type ReservationLister interface {
	ListByUser(ctx context.Context, userID uint64, page, perPage int) ([]model.ReservationDetail, int64, error)
}

// ReservationHandler serves reservation endpoints.  Ownership is checked
// by the booking service, not here.
type ReservationHandler struct {
	Responder
	Booking Booker
	List    ReservationLister
}

func NewReservationHandler(b Booker, l ReservationLister, r Responder) *ReservationHandler {
	return &ReservationHandler{Responder: r, Booking: b, List: l}
}

type seatsReq struct {
	Seats *int `json:"seats"`
}

func (r seatsReq) value() (int, error) {
	if r.Seats == nil {
		return 0, invalid("seats", "seats is required")
	}
	return *r.Seats, nil
}

type reservationView struct {
	ID        uint64           `json:"id"`
	EventID   uint64           `json:"event_id"`
	Seats     int              `json:"seats"`
	CreatedAt time.Time        `json:"created_at"`
	Event     string           `json:"event_title,omitempty"`
	Available *ledger.Snapshot `json:"availability,omitempty"`
}

func toReservationView(res service.Result) reservationView {
	snap := res.Availability
	return reservationView{
		ID:        res.Reservation.ID,
		EventID:   res.Reservation.EventID,
		Seats:     res.Reservation.Seats,
		CreatedAt: res.Reservation.CreatedAt,
		Event:     res.EventTitle,
		Available: &snap,
	}
}

// Create reserves seats for the event in the path.
func (h *ReservationHandler) Create(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req seatsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	seats, err := req.value()
	if err != nil {
		return h.fail(c, err)
	}

	res, err := h.Booking.Reserve(c.Request().Context(), id, eventID, seats)
	if err != nil {
		return h.fail(c, err)
	}
	h.notify(c, flash.LevelSuccess, "Reservation successful.")
	return c.JSON(http.StatusCreated, toReservationView(res))
}

// Mine lists the caller's reservations, newest first.
func (h *ReservationHandler) Mine(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	page, perPage := pageParams(c)
	items, total, err := h.List.ListByUser(c.Request().Context(), id.UserID, page, perPage)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":     items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
		"pages":    totalPages(total, perPage),
	})
}

// Get returns one of the caller's reservations.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	resID, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	res, err := h.Booking.GetReservation(c.Request().Context(), id, resID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reservationView{ID: res.ID, EventID: res.EventID, Seats: res.Seats, CreatedAt: res.CreatedAt})
}

// Update changes the seat count of one of the caller's reservations.
func (h *ReservationHandler) Update(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	resID, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req seatsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	seats, err := req.value()
	if err != nil {
		return h.fail(c, err)
	}

	res, err := h.Booking.EditReservation(c.Request().Context(), id, resID, seats)
	if err != nil {
		return h.fail(c, err)
	}
	h.notify(c, flash.LevelSuccess, "Reservation updated successfully.")
	return c.JSON(http.StatusOK, toReservationView(res))
}

// Cancel deletes one of the caller's reservations.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	resID, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	res, err := h.Booking.CancelReservation(c.Request().Context(), id, resID)
	if err != nil {
		return h.fail(c, err)
	}
	h.notify(c, flash.LevelSuccess, "Reservation cancelled successfully.")
	return c.JSON(http.StatusOK, echo.Map{
		"id":           resID,
		"freed":        res.PreviousSeats,
		"availability": res.Availability,
	})
}

// Availability returns the live seat counts of one event.  It is public
// and reads outside any lock, so the numbers may be stale by the time a
// reservation is attempted.
func (h *ReservationHandler) Availability(c echo.Context) error {
	eventID, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ev, snap, err := h.Booking.Availability(c.Request().Context(), eventID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": ev.ID, "title": ev.Title, "seats": snap})
}
