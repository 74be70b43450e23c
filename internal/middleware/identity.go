package middleware

// identity.go stores the authenticated caller on the Echo context and
// reads it back for handlers and other middleware.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-booking/internal/model"
)

const identityKey = "identity"

// SetIdentity attaches id to the request context.
func SetIdentity(c echo.Context, id model.Identity) {
    c.Set(identityKey, id)
}

// IdentityFrom returns the caller placed on c by JWTAuth.  ok is false for
// anonymous requests.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
    id, ok := c.Get(identityKey).(model.Identity)
    return id, ok && id.UserID != 0
}

// userID returns the caller's ID as a string, or "guest" when no user is
// authenticated.
func userID(c echo.Context) string {
    if id, ok := IdentityFrom(c); ok {
        return strconv.FormatUint(id.UserID, 10)
    }
    return "guest"
}
