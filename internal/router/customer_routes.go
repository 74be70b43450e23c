package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// RegisterReservations registers reservation endpoints under /v1.  Apart
// from the public availability read, all routes require a valid JWT.  Only regular users may create a
// reservation; viewing, editing and cancelling are open to any
// authenticated caller and the booking service checks ownership.
// writeLimit is applied to the endpoints that change seats.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, writeLimit echo.MiddlewareFunc) {
	e.GET("/v1/events/:id/availability", h.Availability, middleware.OptionalJWT(jwtSecret))

	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.POST("/events/:id/reservations", h.Create, middleware.RequireRegular(), writeLimit)
	g.GET("/me/reservations", h.Mine)

	g.GET("/reservations/:id", h.Get)
	g.PATCH("/reservations/:id", h.Update, writeLimit)
	g.DELETE("/reservations/:id", h.Cancel, writeLimit)
}
