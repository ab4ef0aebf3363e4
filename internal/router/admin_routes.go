package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cleancity/internal/handler"
	"github.com/iliyamo/cleancity/internal/middleware"
	"github.com/iliyamo/cleancity/internal/model"
)

// RegisterAdmin registers the city administrator endpoints under
// /v1/admin. All routes require a valid JWT and the admin role, and are
// rate limited. rateLimit and cache run in that order after auth so both
// can key on the caller; cache only applies to the read routes.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string, rateLimit, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
		rateLimit,
	)

	// ---- Reports ----
	g.GET("/reports", a.ListReports, cache)
	g.GET("/stats", a.Stats, cache)
	g.PATCH("/reports/:id/status", a.UpdateStatus)
	g.DELETE("/reports/:id", a.DeleteReport)

	// ---- Users ----
	g.GET("/users", a.ListUsers, cache)
	g.PATCH("/users/:id", a.UpdateUser)
	g.DELETE("/users/:id", a.DeleteUser)

	// ---- Codes ----
	g.GET("/codes", a.ListCodes)
}
