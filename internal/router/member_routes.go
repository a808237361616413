package router

import (
	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/handler"
)

// RegisterMembers registers the member register under /v1/members. Every
// role reads; ADMIN and TREASURER write; only ADMIN deactivates.
func RegisterMembers(e *echo.Echo, h *handler.MemberHandler, g Guards) {
	r := e.Group("/v1/members", g.auth()...)
	r.GET("", h.List)
	r.GET("/stats", h.Stats)
	r.GET("/:id", h.Get)
	r.GET("/:id/fees", h.Fees)
	r.GET("/:id/events", h.Events)

	r.POST("", h.Create, writers)
	r.PUT("/:id", h.Update, writers)
	r.PATCH("/:id", h.Patch, writers)
	r.POST("/:id/suspend", h.Suspend, writers)
	r.POST("/:id/reactivate", h.Reactivate, writers)
	r.DELETE("/:id", h.Delete, adminOnly)
}
