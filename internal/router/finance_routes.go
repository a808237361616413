package router

import (
	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/handler"
)

// RegisterFees registers fee types and fees under /v1/fees.
func RegisterFees(e *echo.Echo, h *handler.FeeHandler, g Guards) {
	r := e.Group("/v1/fees", g.auth()...)

	// ---- Fee types ----
	r.GET("/types", h.ListTypes)
	r.GET("/types/:id", h.GetType)
	r.POST("/types", h.CreateType, writers)
	r.PUT("/types/:id", h.UpdateType, writers)
	r.DELETE("/types/:id", h.DeleteType, writers)
	r.POST("/types/:id/generate", h.Generate, writers)
	r.GET("/config/defaults", h.Defaults, g.cache())

	// ---- Fees ----
	r.GET("", h.List)
	r.GET("/overdue", h.Overdue)
	r.GET("/stats", h.Stats)
	r.GET("/:id", h.Get)
	r.POST("", h.Create, writers)
	r.PUT("/:id", h.Update, writers)
	r.POST("/:id/pay", h.Pay, writers)
	r.POST("/:id/cancel", h.Cancel, adminOnly)
}

// RegisterFinance registers the transaction register and bank imports
// under /v1/finance.
func RegisterFinance(e *echo.Echo, h *handler.FinanceHandler, g Guards) {
	r := e.Group("/v1/finance", g.auth()...)
	r.GET("/categories", h.Categories, g.cache())
	r.GET("/balance", h.Balance)
	r.GET("/stats", h.Stats)

	r.GET("/transactions", h.List)
	r.GET("/transactions/:id", h.Get)
	r.GET("/transactions/:id/suggest", h.Suggest, writers)
	r.POST("/transactions", h.Create, writers)
	r.PUT("/transactions/:id", h.Update, writers)
	r.POST("/transactions/:id/match", h.Match, writers)
	r.POST("/transactions/:id/unmatch", h.Unmatch, writers)

	r.POST("/import", h.Import, writers, g.imports())
	r.POST("/import/confirm", h.ConfirmImport, writers)
}

// RegisterReports registers JSON/CSV reports and the dashboard.
func RegisterReports(e *echo.Echo, h *handler.ReportHandler, g Guards) {
	r := e.Group("/v1/reports", g.auth()...)
	r.GET("/fees", h.Fees)
	r.GET("/overdue", h.Overdue)
	r.GET("/members", h.Members)
	r.GET("/finance", h.Finance)
	r.GET("/events", h.Events)
	r.GET("/dashboard", h.Overview)
}
