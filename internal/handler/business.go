package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/flash"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// OrganizerStore is the event persistence used by organizers.
type OrganizerStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetWithSeats(ctx context.Context, id uint64) (model.EventWithSeats, error)
	UpdateByOrganizer(ctx context.Context, e *model.Event, organizerID uint64) error
	ListByOrganizer(ctx context.Context, organizerID uint64) ([]model.EventWithSeats, error)
}

// EventReservations lists every reservation of one event.
type EventReservations interface {
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Reservation, error)
}

// UserReader loads a user by ID.
type UserReader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// BusinessHandler serves the organizer endpoints.  All routes sit behind
// RequireBusiness; editing additionally checks that the caller organizes
// the event.
type BusinessHandler struct {
	Responder
	Users        UserReader
	Events       OrganizerStore
	Reservations EventReservations
}

func NewBusinessHandler(u UserReader, e OrganizerStore, res EventReservations, r Responder) *BusinessHandler {
	return &BusinessHandler{Responder: r, Users: u, Events: e, Reservations: res}
}

type eventReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	EventDate   string `json:"event_date"` // YYYY-MM-DD
	StartTime   string `json:"start_time"` // HH:MM
	Duration    int    `json:"duration"`   // minutes
	Capacity    int    `json:"capacity"`
	EventType   string `json:"event_type"`
	Location    string `json:"location"`
}

// toEvent validates the request and fills e's editable fields.
func (r eventReq) toEvent(e *model.Event) error {
	var err error
	if e.Title, err = required("title", r.Title, 100); err != nil {
		return err
	}
	if e.Description, err = required("description", r.Description, 1000); err != nil {
		return err
	}
	if e.EventDate, err = time.Parse(dateLayout, r.EventDate); err != nil {
		return invalid("event_date", "event_date must be YYYY-MM-DD")
	}
	st, err := time.Parse(timeLayout, r.StartTime)
	if err != nil {
		return invalid("start_time", "start_time must be HH:MM")
	}
	e.StartTime = st.Format(timeLayout)
	if r.Duration <= 0 {
		return invalid("duration", "duration must be a positive number of minutes")
	}
	e.DurationMin = r.Duration
	if r.Capacity <= 0 {
		return invalid("capacity", "capacity must be a positive integer")
	}
	e.Capacity = r.Capacity
	if e.EventType, err = maxLen("event_type", r.EventType, 50); err != nil {
		return err
	}
	if e.Location, err = maxLen("location", r.Location, 120); err != nil {
		return err
	}
	return nil
}

type organizerEvent struct {
	eventView
	Capacity int `json:"capacity"`
}

// Profile returns the organizer's company and every event they publish,
// each with its available seats and sold-out flag.
func (h *BusinessHandler) Profile(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx := c.Request().Context()
	u, err := h.Users.GetByID(ctx, id.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	events, err := h.Events.ListByOrganizer(ctx, id.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]organizerEvent, 0, len(events))
	for _, e := range events {
		out = append(out, organizerEvent{eventView: toEventView(e), Capacity: e.Capacity})
	}
	company := ""
	if u.CompanyName != nil {
		company = *u.CompanyName
	}
	return c.JSON(http.StatusOK, echo.Map{"company_name": company, "events": out})
}

// Create publishes a new event owned by the caller.
func (h *BusinessHandler) Create(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ev := model.Event{OrganizerID: id.UserID}
	if err := req.toEvent(&ev); err != nil {
		return h.fail(c, err)
	}
	if err := h.Events.Create(c.Request().Context(), &ev); err != nil {
		return h.fail(c, err)
	}
	h.notify(c, flash.LevelSuccess, "Event created successfully.")
	return c.JSON(http.StatusCreated, toEventView(model.EventWithSeats{Event: ev}))
}

// Update overwrites an event.  Only its organizer may edit it.  Capacity
// may be set below the seats already committed: the edit is kept and the
// response carries a warning, no reservation is touched.
func (h *BusinessHandler) Update(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx := c.Request().Context()
	current, err := h.Events.GetWithSeats(ctx, eventID)
	if err != nil {
		return h.fail(c, err)
	}
	if current.OrganizerID != id.UserID {
		h.notify(c, flash.LevelError, "Only the organizer can edit this event.")
		return h.fail(c, repository.ErrForbidden)
	}

	ev := current.Event
	if err := req.toEvent(&ev); err != nil {
		return h.fail(c, err)
	}
	if err := h.Events.UpdateByOrganizer(ctx, &ev, id.UserID); err != nil {
		return h.fail(c, err)
	}

	resp := echo.Map{"event": toEventView(model.EventWithSeats{Event: ev, Committed: current.Committed})}
	if snap := ledger.NewSnapshot(ev.Capacity, current.Committed); snap.Available < 0 {
		msg := "Capacity is below the seats already reserved; no new reservations will be accepted."
		h.log.Warn("capacity lowered below committed seats",
			"event_id", ev.ID, "capacity", ev.Capacity, "committed", current.Committed)
		h.notify(c, flash.LevelWarning, msg)
		resp["warning"] = msg
	} else {
		h.notify(c, flash.LevelSuccess, "Event updated successfully.")
	}
	return c.JSON(http.StatusOK, resp)
}

// EventReservations lists the reservations of one of the caller's events
// together with the seat totals.
func (h *BusinessHandler) EventReservations(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx := c.Request().Context()
	ev, err := h.Events.GetWithSeats(ctx, eventID)
	if err != nil {
		return h.fail(c, err)
	}
	if ev.OrganizerID != id.UserID {
		return h.fail(c, repository.ErrForbidden)
	}
	list, err := h.Reservations.ListByEvent(ctx, eventID)
	if err != nil {
		return h.fail(c, err)
	}
	items := make([]reservationView, 0, len(list))
	for _, r := range list {
		items = append(items, reservationView{ID: r.ID, EventID: r.EventID, Seats: r.Seats, CreatedAt: r.CreatedAt})
	}
	snap := ledger.NewSnapshot(ev.Capacity, ledger.Committed(list, 0))
	return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "reservations": items, "seats": snap})
}
