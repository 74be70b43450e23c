package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"    // organizer handlers
	"github.com/iliyamo/event-booking/internal/middleware" // JWT + capability middlewares
)

// RegisterBusiness registers organizer endpoints under /v1/business.
// All routes require a valid JWT and a business account.  Whether the
// caller organizes a given event is checked in the handler.
func RegisterBusiness(e *echo.Echo, b *handler.BusinessHandler, jwtSecret string) {
	g := e.Group(
		"/v1/business",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireBusiness(),
	)

	g.GET("/events", b.Profile)
	g.POST("/events", b.Create)
	g.PUT("/events/:id", b.Update)
	g.GET("/events/:id/reservations", b.EventReservations)
}
