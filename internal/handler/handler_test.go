package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/flash"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/utils"
)

var (
	alice = model.Identity{UserID: 1, Kind: model.KindRegular}
	acme  = model.Identity{UserID: 10, Kind: model.KindBusiness}
)

// ----- fakes -----

type pushed struct {
	UserID uint64
	Level  string
	Text   string
}

type fakeFlash struct {
	mu   sync.Mutex
	msgs []pushed
}

func (f *fakeFlash) Push(_ context.Context, userID uint64, level, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, pushed{userID, level, text})
	return nil
}

func (f *fakeFlash) Pop(_ context.Context, userID uint64) ([]flash.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []flash.Message{}
	kept := f.msgs[:0]
	for _, m := range f.msgs {
		if m.UserID == userID {
			out = append(out, flash.Message{Level: m.Level, Text: m.Text})
			continue
		}
		kept = append(kept, m)
	}
	f.msgs = kept
	return out, nil
}

func (f *fakeFlash) last() pushed {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return pushed{}
	}
	return f.msgs[len(f.msgs)-1]
}

type fakeUsers struct {
	byID   map[uint64]model.User
	nextID uint64
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]model.User{}, nextID: 1} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	u.ID = f.nextID
	f.nextID++
	f.byID[u.ID] = *u
	return nil
}

func (f *fakeUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	for _, u := range f.byID {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) GetByLogin(_ context.Context, login string) (model.User, error) {
	for _, u := range f.byID {
		if u.Username == login || u.Email == login {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type fakeSessions struct {
	active map[string]uint64
}

func (f *fakeSessions) Open(_ context.Context, userID uint64, hash string, _ time.Time) error {
	f.active[hash] = userID
	return nil
}

func (f *fakeSessions) Resolve(_ context.Context, hash string) (uint64, error) {
	id, ok := f.active[hash]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (f *fakeSessions) Revoke(_ context.Context, hash string) error {
	if _, ok := f.active[hash]; !ok {
		return repository.ErrNotFound
	}
	delete(f.active, hash)
	return nil
}

func (f *fakeSessions) Close(_ context.Context, hash string) error {
	delete(f.active, hash)
	return nil
}

func (f *fakeSessions) CloseAllForUser(_ context.Context, userID uint64) error {
	for h, id := range f.active {
		if id == userID {
			delete(f.active, h)
		}
	}
	return nil
}

type failingFlash struct{}

func (failingFlash) Push(context.Context, uint64, string, string) error {
	return errors.New("redis: connection refused")
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

// ----- helpers -----

func testResponder(f Flasher) Responder {
	return NewResponder(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func as(id model.Identity) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetIdentity(c, id)
			return next(c)
		}
	}
}

// call routes one request through a fresh Echo instance.  pattern is the
// route path, target the concrete URL.  who may be nil for anonymous calls.
func call(t *testing.T, h echo.HandlerFunc, method, pattern, target string, body any, who *model.Identity) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	var mw []echo.MiddlewareFunc
	if who != nil {
		mw = append(mw, as(*who))
	}
	e.Add(method, pattern, h, mw...)

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ----- auth -----

func newAuth(t *testing.T) (*AuthHandler, *fakeUsers, *fakeSessions, *fakeFlash) {
	t.Helper()
	users := newFakeUsers()
	sessions := &fakeSessions{active: map[string]uint64{}}
	fl := &fakeFlash{}
	cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}
	return NewAuthHandler(cfg, users, sessions, testResponder(fl)), users, sessions, fl
}

func TestRegister(t *testing.T) {
	h, users, sessions, fl := newAuth(t)

	rec := call(t, h.Register, http.MethodPost, "/register", "/register", echo.Map{
		"username": "acme", "email": "Ops@Acme.test", "password": "longenough",
		"is_business": true, "company_name": "Acme Events",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "BUSINESS", user["kind"])
	assert.Equal(t, "ops@acme.test", user["email"])
	assert.Equal(t, "Acme Events", user["company_name"])

	access := body["access"].(map[string]any)["token"].(string)
	id, err := utils.ParseAccessToken("test-secret", access)
	require.NoError(t, err)
	assert.Equal(t, model.KindBusiness, id.Kind)

	stored, err := users.GetByID(context.Background(), id.UserID)
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "longenough"))
	assert.Len(t, sessions.active, 1)
	assert.Equal(t, flash.LevelSuccess, fl.last().Level)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  echo.Map
		field string
	}{
		{"missing username", echo.Map{"email": "a@b.c", "password": "longenough"}, "username"},
		{"bad email", echo.Map{"username": "bob", "email": "not-an-email", "password": "longenough"}, "email"},
		{"short password", echo.Map{"username": "bob", "email": "bob@example.com", "password": "short"}, "password"},
		{"business without company", echo.Map{"username": "biz", "email": "biz@example.com", "password": "longenough", "is_business": true}, "company_name"},
		{"long username", echo.Map{"username": strings.Repeat("x", 81), "email": "bob@example.com", "password": "longenough"}, "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _, _ := newAuth(t)
			rec := call(t, h.Register, http.MethodPost, "/register", "/register", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decode(t, rec)["field"])
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	h, users, _, _ := newAuth(t)
	require.NoError(t, users.Create(context.Background(), &model.User{Username: "alice", Email: "alice@example.com"}))

	rec := call(t, h.Register, http.MethodPost, "/register", "/register", echo.Map{
		"username": "someone", "email": "alice@example.com", "password": "longenough",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_FlashFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}
	r := NewResponder(failingFlash{}, slog.New(slog.NewTextHandler(&logs, nil)))
	h := NewAuthHandler(cfg, newFakeUsers(), &fakeSessions{active: map[string]uint64{}}, r)

	rec := call(t, h.Register, http.MethodPost, "/register", "/register", echo.Map{
		"username": "alice", "email": "alice@example.com", "password": "longenough",
	}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "flash push failed")
}

// A refresh token revoked between the lookup and the revoke, as happens
// when two refreshes race on one token, must not yield a second pair.
func TestRefresh_TokenAlreadyRotated(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	users := newFakeUsers()
	require.NoError(t, users.Create(context.Background(), &model.User{Username: "alice", Email: "alice@example.com"}))
	cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}
	h := NewAuthHandler(cfg, users, repository.NewSessionRepo(db), testResponder(nil))

	hash := utils.HashRefreshRaw("raw-refresh")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, expires_at, revoked_at FROM sessions")).WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(1, time.Now().Add(time.Hour), nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL")).
		WithArgs(hash).WillReturnResult(sqlmock.NewResult(0, 0))

	rec := call(t, h.Refresh, http.MethodPost, "/refresh", "/refresh", echo.Map{"refresh_token": "raw-refresh"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginAndRefresh(t *testing.T) {
	h, users, sessions, _ := newAuth(t)
	hash, err := utils.HashPassword("longenough", 4)
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: hash}))

	rec := call(t, h.Login, http.MethodPost, "/login", "/login", echo.Map{"login": "wrong", "password": "longenough"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = call(t, h.Login, http.MethodPost, "/login", "/login", echo.Map{"login": "alice", "password": "nope-nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h.Login, http.MethodPost, "/login", "/login", echo.Map{"login": "Alice@Example.com", "password": "longenough"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refresh := decode(t, rec)["refresh"].(map[string]any)["token"].(string)

	rec = call(t, h.Refresh, http.MethodPost, "/refresh", "/refresh", echo.Map{"refresh_token": refresh}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decode(t, rec)["refresh"].(map[string]any)["token"].(string)
	assert.NotEqual(t, refresh, rotated)

	// the old token was revoked by the rotation
	rec = call(t, h.Refresh, http.MethodPost, "/refresh", "/refresh", echo.Map{"refresh_token": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h.Logout, http.MethodPost, "/logout", "/logout", echo.Map{"refresh_token": rotated}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, sessions.active)
}

func TestLogoutAllAndMe(t *testing.T) {
	h, users, sessions, _ := newAuth(t)
	require.NoError(t, users.Create(context.Background(), &model.User{Username: "alice", Email: "alice@example.com"}))
	sessions.active["a"] = 1
	sessions.active["b"] = 1
	sessions.active["c"] = 2

	rec := call(t, h.LogoutAll, http.MethodPost, "/logout-all", "/logout-all", nil, &alice)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, map[string]uint64{"c": 2}, sessions.active)

	rec = call(t, h.Me, http.MethodGet, "/me", "/me", nil, &alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode(t, rec)["username"])
}

// ----- events -----

type fakeEvents struct {
	items   map[uint64]model.EventWithSeats
	nextID  uint64
	lastQ   repository.EventSearchQuery
	updated *model.Event
}

func newFakeEvents(items ...model.EventWithSeats) *fakeEvents {
	f := &fakeEvents{items: map[uint64]model.EventWithSeats{}, nextID: 100}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeEvents) Featured(_ context.Context, limit int) ([]model.EventWithSeats, error) {
	out := []model.EventWithSeats{}
	for _, e := range f.items {
		if len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEvents) Search(_ context.Context, q repository.EventSearchQuery) ([]model.EventWithSeats, int64, error) {
	f.lastQ = q
	out := []model.EventWithSeats{}
	for _, e := range f.items {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (f *fakeEvents) EventTypes(context.Context) ([]string, error) {
	return []string{"Concert"}, nil
}

func (f *fakeEvents) GetWithSeats(_ context.Context, id uint64) (model.EventWithSeats, error) {
	e, ok := f.items[id]
	if !ok {
		return model.EventWithSeats{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvents) Create(_ context.Context, e *model.Event) error {
	e.ID = f.nextID
	f.nextID++
	f.items[e.ID] = model.EventWithSeats{Event: *e}
	return nil
}

func (f *fakeEvents) UpdateByOrganizer(_ context.Context, e *model.Event, organizerID uint64) error {
	cur := f.items[e.ID]
	if cur.OrganizerID != organizerID {
		return nil
	}
	f.updated = e
	cur.Event = *e
	f.items[e.ID] = cur
	return nil
}

func (f *fakeEvents) ListByOrganizer(_ context.Context, organizerID uint64) ([]model.EventWithSeats, error) {
	out := []model.EventWithSeats{}
	for _, e := range f.items {
		if e.OrganizerID == organizerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func jazzNight(committed int) model.EventWithSeats {
	return model.EventWithSeats{
		Event: model.Event{
			ID: 4, OrganizerID: acme.UserID, Title: "Jazz Night", Description: "Live jazz",
			EventDate: time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC), StartTime: "20:00",
			DurationMin: 120, Capacity: 10, EventType: "Concert", Location: "Riga",
		},
		Committed: committed,
	}
}

func TestEventList(t *testing.T) {
	events := newFakeEvents(jazzNight(10))
	h := NewEventHandler(events, testResponder(nil))

	rec := call(t, h.List, http.MethodGet, "/events", "/events?search=+jazz+&start_date=2026-11-01&page=2&per_page=500", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "jazz", events.lastQ.Search)
	require.NotNil(t, events.lastQ.StartDate)
	assert.Nil(t, events.lastQ.EndDate)
	assert.Equal(t, 2, events.lastQ.Page)
	assert.Equal(t, maxPerPage, events.lastQ.PerPage)

	body := decode(t, rec)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	ev := data[0].(map[string]any)
	assert.Equal(t, "concert.webp", ev["image"])
	assert.Equal(t, "2026-11-20", ev["event_date"])
	seats := ev["seats"].(map[string]any)
	assert.Equal(t, float64(0), seats["remaining"])
	assert.Equal(t, true, seats["sold_out"])
	assert.Equal(t, []any{"Concert"}, body["event_types"])

	rec = call(t, h.List, http.MethodGet, "/events", "/events?end_date=20-11-2026", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "end_date", decode(t, rec)["field"])
}

func TestEventGet(t *testing.T) {
	h := NewEventHandler(newFakeEvents(jazzNight(3)), testResponder(nil))

	rec := call(t, h.Get, http.MethodGet, "/events/:id", "/events/4", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	seats := decode(t, rec)["seats"].(map[string]any)
	assert.Equal(t, float64(7), seats["available"])

	rec = call(t, h.Get, http.MethodGet, "/events/:id", "/events/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h.Get, http.MethodGet, "/events/:id", "/events/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventFeatured(t *testing.T) {
	h := NewEventHandler(newFakeEvents(jazzNight(0)), testResponder(nil))
	rec := call(t, h.Featured, http.MethodGet, "/featured", "/featured", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"].([]any), 1)
}

// ----- flash and health -----

func TestFlashPop(t *testing.T) {
	fl := &fakeFlash{}
	require.NoError(t, fl.Push(context.Background(), alice.UserID, flash.LevelSuccess, "Reservation successful."))
	require.NoError(t, fl.Push(context.Background(), 2, flash.LevelInfo, "not yours"))
	h := NewFlashHandler(fl, testResponder(fl))

	rec := call(t, h.Pop, http.MethodGet, "/flash", "/flash", nil, &alice)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode(t, rec)["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Reservation successful.", msgs[0].(map[string]any)["text"])

	rec = call(t, h.Pop, http.MethodGet, "/flash", "/flash", nil, &alice)
	assert.Empty(t, decode(t, rec)["messages"])
}

func TestHealthAndReady(t *testing.T) {
	rec := call(t, Health, http.MethodGet, "/healthz", "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = call(t, Ready(fakePinger{}), http.MethodGet, "/readyz", "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, Ready(fakePinger{err: errors.New("dial tcp: refused")}), http.MethodGet, "/readyz", "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFail_UnknownErrorIs500(t *testing.T) {
	r := testResponder(nil)
	h := func(c echo.Context) error { return r.fail(c, errors.New("boom")) }
	rec := call(t, h, http.MethodGet, "/x", "/x", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}
