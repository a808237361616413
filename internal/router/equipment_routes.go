package router

import (
	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/handler"
)

// RegisterEquipment registers the equipment register and reservations.
// Reservation paths are registered before /:id so that they take
// precedence.
func RegisterEquipment(e *echo.Echo, h *handler.EquipmentHandler, g Guards) {
	r := e.Group("/v1/equipment", g.auth()...)

	// ---- Reservations ----
	r.GET("/reservations", h.ListReservations)
	r.GET("/reservations/:id", h.GetReservation)
	r.POST("/reservations", h.CreateReservation, writers)
	r.PUT("/reservations/:id", h.Reschedule, writers)
	r.POST("/reservations/:id/confirm", h.ConfirmReservation, writers)
	r.POST("/reservations/:id/cancel", h.CancelReservation, writers)
	r.POST("/reservations/:id/complete", h.CompleteReservation, writers)

	// ---- Equipment ----
	r.GET("", h.List)
	r.GET("/stats", h.Stats)
	r.GET("/maintenance-due", h.MaintenanceDue)
	r.GET("/:id", h.Get)
	r.GET("/:id/reservations", h.Upcoming)
	r.POST("", h.Create, writers)
	r.PUT("/:id", h.Update, writers)
	r.DELETE("/:id", h.Delete, writers)
	r.POST("/:id/maintenance/start", h.StartMaintenance, writers)
	r.POST("/:id/maintenance/finish", h.FinishMaintenance, writers)
}

// RegisterEvents registers events and participants. Any signed-in account
// may register or cancel; the handler restricts non-writers to their own
// member.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, g Guards) {
	r := e.Group("/v1/events", g.auth()...)
	r.GET("", h.List)
	r.GET("/stats", h.Stats)
	r.GET("/:id", h.Get)
	r.POST("", h.Create, writers)
	r.PUT("/:id", h.Update, writers)
	r.DELETE("/:id", h.Delete, adminOnly)
	r.POST("/:id/open", h.OpenRegistration, writers)
	r.POST("/:id/close", h.CloseRegistration, writers)

	r.GET("/:id/participants", h.Participants)
	r.GET("/:id/waitlist", h.Waitlist)
	r.POST("/:id/participants", h.Register)
	r.POST("/:id/participants/:pid/confirm", h.ConfirmParticipant, writers)
	r.POST("/:id/participants/:pid/cancel", h.CancelParticipant)
}
