package handler // handler defines http handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/flash"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

// Flasher queues a single-shot message for a user.  *flash.Store
// satisfies it.
type Flasher interface {
	Push(ctx context.Context, userID uint64, level, text string) error
}

// ValidationError reports a bad request field.  Its message is shown to
// the user as is.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Responder maps domain errors onto HTTP responses and mirrors user
// facing failures into the caller's flash messages.  Handlers embed it.
type Responder struct {
	flash Flasher
	log   *slog.Logger
}

// NewResponder returns a Responder.  f may be nil.
func NewResponder(f Flasher, log *slog.Logger) Responder {
	return Responder{flash: f, log: log}
}

// notify queues a flash message for the authenticated caller, if any.
func (r Responder) notify(c echo.Context, level, text string) {
	if id, ok := middleware.IdentityFrom(c); ok {
		r.push(c.Request().Context(), id.UserID, level, text)
	}
}

// push queues a flash message for userID.  Failures are logged, never
// returned.
func (r Responder) push(ctx context.Context, userID uint64, level, text string) {
	if r.flash == nil {
		return
	}
	if err := r.flash.Push(ctx, userID, level, text); err != nil {
		r.log.Warn("flash push failed", "user_id", userID, "error", err)
	}
}

// fail writes the response for err.
//
//	validation          -> 400 + flash
//	capacity exceeded   -> 409 + flash
//	not found           -> 404
//	forbidden           -> 403
//	conflict            -> 409
//	anything else       -> 500
func (r Responder) fail(c echo.Context, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		r.notify(c, flash.LevelError, ve.Msg)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Msg, "field": ve.Field})
	case errors.Is(err, ledger.ErrInvalidSeatCount):
		r.notify(c, flash.LevelError, "Seats must be a positive number.")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "field": "seats"})
	case errors.Is(err, ledger.ErrCapacityExceeded):
		r.notify(c, flash.LevelError, "Not enough seats available.")
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already exists"})
	default:
		r.log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// caller returns the authenticated identity.  Routes using it sit behind
// JWTAuth, so a missing identity is a wiring bug.
func caller(c echo.Context) (model.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return model.Identity{}, errors.New("no identity in context")
	}
	return id, nil
}

func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, invalid(name, "invalid %s", name)
	}
	return id, nil
}

const (
	defaultPerPage = 6
	maxPerPage     = 50
)

// pageParams reads page and per_page, clamping to sane bounds.
func pageParams(c echo.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.QueryParam("per_page"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func totalPages(total int64, perPage int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// required trims v and rejects empty or over-long values.
func required(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "%s is required", field)
	}
	return maxLen(field, v, max)
}

func maxLen(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if utf8.RuneCountInString(v) > max {
		return "", invalid(field, "%s must be at most %d characters", field, max)
	}
	return v, nil
}
