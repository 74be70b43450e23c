package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/event-booking/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/event-booking/internal/middleware" // import middleware for JWT authentication and capability checks
)

// RegisterRoutes registers operational routes: liveness, readiness and
// Prometheus metrics gathered from g.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, g prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}

// RegisterAuth registers the authentication routes.  Register, login,
// refresh and logout need no access token; /v1/me and /v1/flash do.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, f *handler.FlashHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Logout takes the refresh token in the body, no JWT required.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.POST("/auth/logout-all", a.LogoutAll)
	auth.GET("/flash", f.Pop)
}

// RegisterPublic registers the unauthenticated event pages.  A valid token
// is still read so rate limiting can key on the user.
func RegisterPublic(e *echo.Echo, h *handler.EventHandler, jwtSecret string) {
	g := e.Group("/v1/events", middleware.OptionalJWT(jwtSecret))
	g.GET("/featured", h.Featured)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}
