package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/report"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
)

// ReportHandler serves list reports as JSON or CSV, and the dashboard.
type ReportHandler struct {
	Dashboard *service.Dashboard
	Clock     service.Clock
}

// year reads ?year, defaulting to the current year.
func (h *ReportHandler) year(c echo.Context) (int, error) {
	y, err := queryInt(c, "year")
	if err != nil {
		return 0, err
	}
	if y == 0 {
		y = h.Clock.Today().Year()
	}
	return y, nil
}

func (h *ReportHandler) Fees(c echo.Context) error {
	csv, err := wantsCSV(c)
	if err != nil {
		return fail(c, err)
	}
	year, err := h.year(c)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	fees, err := h.Dashboard.Ledger.All(ctx, repository.FeeFilter{Year: year})
	if err != nil {
		return fail(c, err)
	}
	if csv {
		return sendCSV(c, report.Fees(year, fees))
	}
	return c.JSON(http.StatusOK, echo.Map{"year": year, "items": fees})
}

// Overdue lists overdue fees of active members with their warning level.
func (h *ReportHandler) Overdue(c echo.Context) error {
	csv, err := wantsCSV(c)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Dashboard.OverdueReport(ctx)
	if err != nil {
		return fail(c, err)
	}
	if csv {
		return sendCSV(c, report.Overdue(rows))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rows})
}

func (h *ReportHandler) Members(c echo.Context) error {
	csv, err := wantsCSV(c)
	if err != nil {
		return fail(c, err)
	}
	status := c.QueryParam("status")
	ctx, cancel := reqCtx(c)
	defer cancel()
	members, err := h.Dashboard.Members.All(ctx, repository.MemberFilter{Status: model.MemberStatus(status)})
	if err != nil {
		return fail(c, err)
	}
	if csv {
		return sendCSV(c, report.Members(status, members))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": members})
}

// Finance is the year's transaction register.
func (h *ReportHandler) Finance(c echo.Context) error {
	csv, err := wantsCSV(c)
	if err != nil {
		return fail(c, err)
	}
	year, err := h.year(c)
	if err != nil {
		return fail(c, err)
	}
	from, to := model.YearBounds(year)
	ctx, cancel := reqCtx(c)
	defer cancel()
	txs, err := h.Dashboard.Finance.All(ctx, repository.TransactionFilter{From: &from, To: &to})
	if err != nil {
		return fail(c, err)
	}
	if csv {
		return sendCSV(c, report.Finance(year, txs))
	}
	stats, err := h.Dashboard.Finance.Stats(ctx, year)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"year": year, "summary": stats, "items": txs})
}

func (h *ReportHandler) Events(c echo.Context) error {
	csv, err := wantsCSV(c)
	if err != nil {
		return fail(c, err)
	}
	year, err := h.year(c)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	events, err := h.Dashboard.Registration.AllEvents(ctx, repository.EventFilter{Year: year})
	if err != nil {
		return fail(c, err)
	}
	if csv {
		return sendCSV(c, report.Events(year, events))
	}
	return c.JSON(http.StatusOK, echo.Map{"year": year, "items": events})
}

// Overview is the dashboard: statistics of every area plus alerts.
func (h *ReportHandler) Overview(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	data, err := h.Dashboard.Overview(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, data)
}
