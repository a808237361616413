package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/handler"
	"github.com/stw-baltyk/baltyk-manager/internal/middleware"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// Guards are the middlewares shared by the protected groups. Nil limiters
// and cache are skipped.
type Guards struct {
	JWTSecret string
	// LoginLimit throttles credential guessing on /v1/auth/login.
	LoginLimit echo.MiddlewareFunc
	// ImportLimit throttles statement uploads.
	ImportLimit echo.MiddlewareFunc
	// Cache fronts rarely changing dictionaries.
	Cache echo.MiddlewareFunc
}

// auth returns the middlewares for an authenticated route group: a valid
// access token and one of the known roles.
func (g Guards) auth() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(g.JWTSecret),
		middleware.RequireRole(model.AllRoles...),
	}
}

func pass(next echo.HandlerFunc) echo.HandlerFunc { return next }

func orPass(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m == nil {
		return pass
	}
	return m
}

func (g Guards) login() echo.MiddlewareFunc   { return orPass(g.LoginLimit) }
func (g Guards) imports() echo.MiddlewareFunc { return orPass(g.ImportLimit) }
func (g Guards) cache() echo.MiddlewareFunc   { return orPass(g.Cache) }

var (
	writers   = middleware.RequireRole(model.WriterRoles...)
	adminOnly = middleware.RequireRole(model.RoleAdmin)
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the session endpoints under /v1/auth. Login,
// refresh and logout work without an access token; the rest need one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g Guards) {
	pub := e.Group("/v1/auth")
	pub.POST("/login", a.Login, g.login())
	pub.POST("/refresh", a.Refresh)
	pub.POST("/logout", a.Logout)

	auth := e.Group("/v1/auth", g.auth()...)
	auth.GET("/me", a.Me)
	auth.POST("/change-password", a.ChangePassword)
	auth.POST("/register", a.Register, adminOnly)
}
