package handler

import (
	"context"  // provides context with cancellation for DB calls
	"errors"
	"net/http" // HTTP status codes and primitives
	"net/mail"
	"strings" // string manipulation utilities
	"time"    // timeouts for DB calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/event-booking/internal/config"     // app configuration
	"github.com/iliyamo/event-booking/internal/flash"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository" // DB repositories
	"github.com/iliyamo/event-booking/internal/utils"      // helper functions (hashing, token issuing)
)

// UserStore is the user persistence used by AuthHandler.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	GetByLogin(ctx context.Context, login string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// SessionStore keeps refresh-token sessions.
type SessionStore interface {
	Open(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Resolve(ctx context.Context, tokenHash string) (uint64, error)
	Revoke(ctx context.Context, tokenHash string) error
	Close(ctx context.Context, tokenHash string) error
	CloseAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Responder
	Cfg      config.Config
	Users    UserStore
	Sessions SessionStore
}

func NewAuthHandler(cfg config.Config, u UserStore, s SessionStore, r Responder) *AuthHandler {
	return &AuthHandler{Responder: r, Cfg: cfg, Users: u, Sessions: s}
}

// ----- DTOs -----

type registerReq struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	IsBusiness  bool   `json:"is_business"`
	CompanyName string `json:"company_name"`
}
type loginReq struct {
	Login    string `json:"login"` // username or email
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID          uint64            `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	Kind        model.AccountKind `json:"kind"`
	CompanyName *string           `json:"company_name,omitempty"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Username: u.Username, Email: u.Email, Kind: u.Kind(), CompanyName: u.CompanyName}
}

func (r *registerReq) validate() error {
	var err error
	if r.Username, err = required("username", r.Username, 80); err != nil {
		return err
	}
	if r.Email, err = required("email", strings.ToLower(r.Email), 120); err != nil {
		return err
	}
	if _, perr := mail.ParseAddress(r.Email); perr != nil {
		return invalid("email", "email is not a valid address")
	}
	if len(r.Password) < utils.MinPasswordLen {
		return invalid("password", "password must be at least %d characters", utils.MinPasswordLen)
	}
	if r.IsBusiness {
		if r.CompanyName, err = required("company_name", r.CompanyName, 100); err != nil {
			return err
		}
	}
	return nil
}

// Register creates the user and returns a token pair immediately.
// Duplicate usernames or emails yield 409.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := req.validate(); err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	taken, err := h.Users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		return h.fail(c, err)
	}
	if taken {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username or email already registered"})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return h.fail(c, err)
	}
	u := model.User{Username: req.Username, Email: req.Email, PasswordHash: hash, IsBusiness: req.IsBusiness}
	if req.IsBusiness {
		u.CompanyName = &req.CompanyName
	}
	if err := h.Users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username or email already registered"})
		}
		return h.fail(c, err)
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return h.fail(c, err)
	}
	h.push(ctx, u.ID, flash.LevelSuccess, "Registration successful.")
	return c.JSON(http.StatusCreated, resp)
}

// Login accepts a username or an email together with the password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "login/password required"})
	}
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid username, email or password"})
		}
		return h.fail(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid username, email or password"})
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates the refresh token by hash, revokes it and issues a new
// pair.  The revoke must hit an active row: a token already rotated by a
// concurrent refresh gets 401.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Sessions.Resolve(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return h.fail(c, err)
	}
	if err := h.Sessions.Revoke(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return h.fail(c, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return h.fail(c, err)
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the given refresh token.  Unknown tokens are accepted so
// the call is idempotent.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Close(ctx, utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every refresh token of the caller.  Access tokens
// already issued stay valid until they expire.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.Sessions.CloseAllForUser(c.Request().Context(), id.UserID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return h.fail(c, err)
	}
	u, err := h.Users.GetByID(c.Request().Context(), id.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Kind(), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Sessions.Open(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}
