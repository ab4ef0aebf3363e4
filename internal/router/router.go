// Package router registers the HTTP routes of the API on an Echo
// instance. Each Register* function owns one route group and the
// middleware chain that guards it.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cleancity/internal/handler"
	"github.com/iliyamo/cleancity/internal/metrics"
	"github.com/iliyamo/cleancity/internal/middleware"
	"github.com/iliyamo/cleancity/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health(db))
	if m != nil {
		e.GET("/metrics", m.Handler())
	}
}

// RegisterAuth registers the session endpoints. Register, login, refresh
// and logout live under /v1/auth without a JWT; /v1/me requires one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	auth.GET("/me", a.Me)
}

// RegisterReports registers the reporter endpoints. Admins may use them
// too; list and get then cover the admin's city.
func RegisterReports(e *echo.Echo, r *handler.ReportHandler, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	g.POST("/reports", r.Create)
	g.GET("/reports", r.List)
	g.GET("/reports/:id", r.Get)
	g.GET("/rewards", r.Rewards)
}
