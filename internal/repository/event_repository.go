// Package repository contains data access logic for events.  Events are
// created and edited by their organizer only; they are never deleted.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// EventRepo manages persistence for events.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// start_time is read back as "HH:MM" so it round-trips with the API format.
const eventColumns = `e.id, e.organizer_id, e.title, e.description, e.event_date,
	TIME_FORMAT(e.start_time, '%H:%i'), e.duration, e.capacity,
	COALESCE(e.event_type, ''), COALESCE(e.location, ''), e.created_at, e.updated_at`

const committedColumn = `(SELECT COALESCE(SUM(r.seats), 0) FROM reservations r WHERE r.event_id = e.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner, extra ...any) (model.Event, error) {
	var e model.Event
	dest := []any{
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.EventDate,
		&e.StartTime, &e.DurationMin, &e.Capacity,
		&e.EventType, &e.Location, &e.CreatedAt, &e.UpdatedAt,
	}
	err := s.Scan(append(dest, extra...)...)
	return e, err
}

// Create inserts a new event and assigns the generated ID.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (organizer_id, title, description, event_date, start_time, duration, capacity, event_type, location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		e.OrganizerID, e.Title, e.Description, e.EventDate.Format("2006-01-02"), e.StartTime,
		e.DurationMin, e.Capacity, e.EventType, e.Location)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID loads one event.  ErrNotFound when absent.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, err
	}
	return e, nil
}

// GetWithSeats loads one event together with its committed seats.
func (r *EventRepo) GetWithSeats(ctx context.Context, id uint64) (model.EventWithSeats, error) {
	var out model.EventWithSeats
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+`, `+committedColumn+` FROM events e WHERE e.id = ?`, id), &out.Committed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EventWithSeats{}, ErrNotFound
		}
		return model.EventWithSeats{}, err
	}
	out.Event = e
	return out, nil
}

// UpdateByOrganizer overwrites the editable fields of an event owned by
// organizerID.  Capacity is written as given, even below committed seats.
func (r *EventRepo) UpdateByOrganizer(ctx context.Context, e *model.Event, organizerID uint64) error {
	const q = `UPDATE events
		SET title = ?, description = ?, event_date = ?, start_time = ?, duration = ?, capacity = ?, event_type = ?, location = ?
		WHERE id = ? AND organizer_id = ?`
	_, err := r.db.ExecContext(ctx, q,
		e.Title, e.Description, e.EventDate.Format("2006-01-02"), e.StartTime, e.DurationMin,
		e.Capacity, e.EventType, e.Location, e.ID, organizerID)
	return err
}

// ListByOrganizer returns every event of one organizer with committed seats.
func (r *EventRepo) ListByOrganizer(ctx context.Context, organizerID uint64) ([]model.EventWithSeats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+`, `+committedColumn+`
		FROM events e WHERE e.organizer_id = ?
		ORDER BY e.event_date ASC, e.start_time ASC, e.id ASC`, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEventsWithSeats(rows, 0)
}

// Featured returns the first limit events ordered by start time, for the
// landing page.
func (r *EventRepo) Featured(ctx context.Context, limit int) ([]model.EventWithSeats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+`, `+committedColumn+`
		FROM events e
		ORDER BY e.start_time ASC, e.id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEventsWithSeats(rows, limit)
}

// EventSearchQuery defines filters & pagination for browsing events.
// Zero values disable the corresponding filter.
type EventSearchQuery struct {
	Search    string     // substring of title or description
	EventType string     // exact event type
	StartDate *time.Time // event_date >= StartDate
	EndDate   *time.Time // event_date <= EndDate
	Page      int
	PerPage   int
}

// Search returns one page of events matching q and the total match count.
func (r *EventRepo) Search(ctx context.Context, q EventSearchQuery) ([]model.EventWithSeats, int64, error) {
	where := []string{}
	args := []any{}

	if q.EventType != "" {
		where = append(where, "e.event_type = ?")
		args = append(args, q.EventType)
	}
	if q.StartDate != nil {
		where = append(where, "e.event_date >= ?")
		args = append(args, q.StartDate.Format("2006-01-02"))
	}
	if q.EndDate != nil {
		where = append(where, "e.event_date <= ?")
		args = append(args, q.EndDate.Format("2006-01-02"))
	}
	if q.Search != "" {
		where = append(where, "(e.title LIKE ? OR e.description LIKE ?)")
		term := "%" + q.Search + "%"
		args = append(args, term, term)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events e WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.PerPage
	offset := (q.Page - 1) * q.PerPage
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+`, `+committedColumn+`
		FROM events e
		WHERE `+cond+`
		ORDER BY e.id ASC
		LIMIT ? OFFSET ?`, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := scanEventsWithSeats(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// EventTypes lists the distinct non-empty event types in use.
func (r *EventRepo) EventTypes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT event_type FROM events WHERE event_type IS NOT NULL AND event_type <> '' ORDER BY event_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func scanEventsWithSeats(rows *sql.Rows, capHint int) ([]model.EventWithSeats, error) {
	out := make([]model.EventWithSeats, 0, capHint)
	for rows.Next() {
		var committed int
		e, err := scanEvent(rows, &committed)
		if err != nil {
			return nil, err
		}
		out = append(out, model.EventWithSeats{Event: e, Committed: committed})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
