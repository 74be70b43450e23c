package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// EventQuery is the read side of the event repository.
type EventQuery interface {
	Featured(ctx context.Context, limit int) ([]model.EventWithSeats, error)
	Search(ctx context.Context, q repository.EventSearchQuery) ([]model.EventWithSeats, int64, error)
	EventTypes(ctx context.Context) ([]string, error)
	GetWithSeats(ctx context.Context, id uint64) (model.EventWithSeats, error)
}

// EventHandler serves the public event pages.
type EventHandler struct {
	Responder
	Events EventQuery
}

func NewEventHandler(q EventQuery, r Responder) *EventHandler {
	return &EventHandler{Responder: r, Events: q}
}

const featuredLimit = 6

// eventView is the public representation of an event with its seats.
type eventView struct {
	ID          uint64          `json:"id"`
	OrganizerID uint64          `json:"organizer_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	EventDate   string          `json:"event_date"`
	StartTime   string          `json:"start_time"`
	Duration    int             `json:"duration"`
	EventType   string          `json:"event_type,omitempty"`
	Location    string          `json:"location,omitempty"`
	Image       string          `json:"image"`
	Seats       ledger.Snapshot `json:"seats"`
}

func toEventView(e model.EventWithSeats) eventView {
	return eventView{
		ID:          e.ID,
		OrganizerID: e.OrganizerID,
		Title:       e.Title,
		Description: e.Description,
		EventDate:   e.EventDate.Format(dateLayout),
		StartTime:   e.StartTime,
		Duration:    e.DurationMin,
		EventType:   e.EventType,
		Location:    e.Location,
		Image:       e.Image(),
		Seats:       ledger.NewSnapshot(e.Capacity, e.Committed),
	}
}

func toEventViews(in []model.EventWithSeats) []eventView {
	out := make([]eventView, 0, len(in))
	for _, e := range in {
		out = append(out, toEventView(e))
	}
	return out
}

// Featured returns the landing page selection ordered by start time.
func (h *EventHandler) Featured(c echo.Context) error {
	items, err := h.Events.Featured(c.Request().Context(), featuredLimit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toEventViews(items)})
}

// List searches events.  Query: search, event_type, start_date, end_date
// (YYYY-MM-DD), page, per_page.  The response also lists the event types
// in use so clients can build a filter.
func (h *EventHandler) List(c echo.Context) error {
	q := repository.EventSearchQuery{
		Search:    strings.TrimSpace(c.QueryParam("search")),
		EventType: strings.TrimSpace(c.QueryParam("event_type")),
	}
	var err error
	if q.StartDate, err = optionalDate(c, "start_date"); err != nil {
		return h.fail(c, err)
	}
	if q.EndDate, err = optionalDate(c, "end_date"); err != nil {
		return h.fail(c, err)
	}
	q.Page, q.PerPage = pageParams(c)

	ctx := c.Request().Context()
	items, total, err := h.Events.Search(ctx, q)
	if err != nil {
		return h.fail(c, err)
	}
	types, err := h.Events.EventTypes(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":        toEventViews(items),
		"event_types": types,
		"total":       total,
		"page":        q.Page,
		"per_page":    q.PerPage,
		"pages":       totalPages(total, q.PerPage),
	})
}

// Get returns one event with its current availability.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ev, err := h.Events.GetWithSeats(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toEventView(ev))
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

func optionalDate(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, invalid(name, "%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}
