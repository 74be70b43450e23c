package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// ReservationRepo provides CRUD operations for reservations.  Every write
// goes through WithEventLock so that the seat sum read for admission and
// the write that follows it happen under the same row lock.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = "id, user_id, event_id, seats, created_at"

// GetByID loads one reservation.  ErrNotFound when absent.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	var res model.Reservation
	err := r.db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id).
		Scan(&res.ID, &res.UserID, &res.EventID, &res.Seats, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, ErrNotFound
		}
		return model.Reservation{}, err
	}
	return res, nil
}

// ListByEvent returns every reservation of an event, oldest first.
func (r *ReservationRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Reservation, error) {
	return queryReservations(ctx, r.db, "SELECT "+reservationColumns+" FROM reservations WHERE event_id = ? ORDER BY id", eventID)
}

// ListByUser returns one page of the user's reservations joined with their
// events, newest first, and the user's total reservation count.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64, page, perPage int) ([]model.ReservationDetail, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE user_id = ?", userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	const q = `SELECT r.id, r.event_id, r.seats, r.created_at,
			e.title, DATE_FORMAT(e.event_date, '%Y-%m-%d'), TIME_FORMAT(e.start_time, '%H:%i'), COALESCE(e.location, '')
		FROM reservations r
		JOIN events e ON e.id = r.event_id
		WHERE r.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.ReservationDetail, 0, perPage)
	for rows.Next() {
		var d model.ReservationDetail
		if err := rows.Scan(&d.ID, &d.EventID, &d.Seats, &d.CreatedAt,
			&d.EventTitle, &d.EventDate, &d.StartTime, &d.Location); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryReservations(ctx context.Context, q querier, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.EventID, &res.Seats, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// LockedEvent is an event whose reservation set cannot change under the
// caller until the surrounding transaction ends.  Mutations are applied
// to both the transaction and the in-memory reservation set.
type LockedEvent interface {
	Event() model.Event
	Reservations() []model.Reservation
	Insert(ctx context.Context, res *model.Reservation) error
	UpdateSeats(ctx context.Context, id uint64, seats int) error
	Delete(ctx context.Context, id uint64) error
}

// WithEventLock begins a transaction, locks the event row with
// SELECT ... FOR UPDATE, loads its reservations and runs fn.  The
// transaction commits only when fn returns nil.  Concurrent callers for
// the same event queue on the row lock, so two admissions never see the
// same seat sum.
func (r *ReservationRepo) WithEventLock(ctx context.Context, eventID uint64, fn func(LockedEvent) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ev, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ? FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}
	held, err := queryReservations(ctx, tx, "SELECT "+reservationColumns+" FROM reservations WHERE event_id = ? ORDER BY id", eventID)
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}

	if err := fn(&eventLock{tx: tx, event: ev, reservations: held}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

type eventLock struct {
	tx           *sql.Tx
	event        model.Event
	reservations []model.Reservation
}

func (l *eventLock) Event() model.Event { return l.event }

func (l *eventLock) Reservations() []model.Reservation { return l.reservations }

func (l *eventLock) Insert(ctx context.Context, res *model.Reservation) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	result, err := l.tx.ExecContext(ctx,
		"INSERT INTO reservations (user_id, event_id, seats, created_at) VALUES (?, ?, ?, ?)",
		res.UserID, l.event.ID, res.Seats, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.EventID = l.event.ID
	l.reservations = append(l.reservations, *res)
	return nil
}

func (l *eventLock) UpdateSeats(ctx context.Context, id uint64, seats int) error {
	if _, err := l.tx.ExecContext(ctx,
		"UPDATE reservations SET seats = ? WHERE id = ? AND event_id = ?", seats, id, l.event.ID); err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	for i := range l.reservations {
		if l.reservations[i].ID == id {
			l.reservations[i].Seats = seats
		}
	}
	return nil
}

func (l *eventLock) Delete(ctx context.Context, id uint64) error {
	if _, err := l.tx.ExecContext(ctx,
		"DELETE FROM reservations WHERE id = ? AND event_id = ?", id, l.event.ID); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	kept := l.reservations[:0]
	for _, res := range l.reservations {
		if res.ID != id {
			kept = append(kept, res)
		}
	}
	l.reservations = kept
	return nil
}
