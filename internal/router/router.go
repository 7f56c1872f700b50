package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/identity-service/internal/handler"
	"github.com/iliyamo/identity-service/internal/middleware"
)

// AdminRole is the role name required by administrative endpoints.
const AdminRole = "admin"

// TokenGuard validates both token kinds.  service.Tokenizer satisfies it.
type TokenGuard interface {
	middleware.AccessVerifier
	middleware.RefreshParser
}

// RegisterRoutes registers routes that do not require authentication:
// liveness, readiness and prometheus metrics.
func RegisterRoutes(e *echo.Echo, deps map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(deps))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers login, logout, refresh and the caller's own
// account endpoints.  loginLimit wraps only the login route.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens TokenGuard, loginLimit echo.MiddlewareFunc) {
	g := e.Group("/api/v1")
	g.POST("/login", a.Login, loginLimit)
	g.POST("/users", a.Register)
	g.POST("/refresh", a.Refresh, middleware.RefreshAuth(tokens))

	// Guards are attached per route: group-level middleware would also wrap
	// echo's catch-all, turning unknown paths into 401 instead of 404.
	authed := middleware.JWTAuth(tokens)
	g.POST("/logout", a.Logout, authed)
	g.GET("/me", a.Me, authed)
	g.PUT("/users/me/password", a.ChangePassword, authed)
	g.GET("/users/me/history", a.History, authed)
}

// RegisterAdmin registers user and role management.  Every route requires
// an access token whose role snapshot includes AdminRole.
func RegisterAdmin(e *echo.Echo, u *handler.UserHandler, r *handler.RoleHandler, tokens TokenGuard) {
	g := e.Group("/api/v1")
	admin := []echo.MiddlewareFunc{middleware.JWTAuth(tokens), middleware.RequireRole(AdminRole)}

	g.GET("/users", u.List, admin...)
	g.DELETE("/users/:id", u.Delete, admin...)

	g.GET("/roles", r.List, admin...)
	g.POST("/roles", r.Create, admin...)
	g.PATCH("/roles/:id", r.Update, admin...)
	g.DELETE("/roles/:id", r.Delete, admin...)

	g.POST("/users/:id/roles/:role_id", r.Assign, admin...)
	g.DELETE("/users/:id/roles/:role_id", r.Unassign, admin...)
}
