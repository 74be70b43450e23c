package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/iliyamo/event-booking/internal/model"
)

// RequireKind returns a middleware that lets the request through only when
// the authenticated caller's account kind is one of kinds.  It must run
// after JWTAuth.  Anonymous callers get 401, other kinds get 403.
func RequireKind(kinds ...model.AccountKind) echo.MiddlewareFunc {
    allowed := make(map[model.AccountKind]bool, len(kinds))
    for _, k := range kinds {
        allowed[k] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, ok := IdentityFrom(c)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
            }
            if !allowed[id.Kind] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}

// RequireBusiness admits organizers only.
func RequireBusiness() echo.MiddlewareFunc { return RequireKind(model.KindBusiness) }

// RequireRegular admits attendees only.
func RequireRegular() echo.MiddlewareFunc { return RequireKind(model.KindRegular) }
