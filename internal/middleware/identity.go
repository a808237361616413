package middleware

// identity.go defines helpers shared across middleware and handlers: reading
// the authenticated user placed in the Echo context by JWTAuth, and writing
// localized error bodies.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/i18n"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated user's id, or 0 for anonymous requests.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(ctxUserID).(uint64)
	return id
}

// Role returns the authenticated user's role, or "" for anonymous requests.
func Role(c echo.Context) string {
	role, _ := c.Get(ctxRole).(string)
	return role
}

// identity is the rate limiter's view of the caller: the user id when
// authenticated, "anon" otherwise.
func identity(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}

// deny writes the API's error body with a message in the caller's language.
func deny(c echo.Context, status int, code string) error {
	return c.JSON(status, echo.Map{
		"error":   code,
		"message": i18n.Localize(c.Request().Header.Get("Accept-Language"), code),
	})
}
