package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
)

// FeeHandler serves fee types and fees.
type FeeHandler struct {
	Ledger  *service.Ledger
	Finance config.FinanceConfig
}

// ----- fee types -----

func (h *FeeHandler) ListTypes(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	types, err := h.Ledger.ListTypes(ctx, queryBool(c, "active"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": types})
}

func (h *FeeHandler) GetType(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ft, err := h.Ledger.GetType(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ft)
}

func (h *FeeHandler) CreateType(c echo.Context) error {
	var in service.FeeTypeInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ft, err := h.Ledger.CreateType(ctx, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, ft)
}

// UpdateType edits a template. Once fees exist only is_active may change.
func (h *FeeHandler) UpdateType(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var in service.FeeTypeInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ft, err := h.Ledger.UpdateType(ctx, id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ft)
}

// DeleteType deactivates the template; existing fees are untouched.
func (h *FeeHandler) DeleteType(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ft, err := h.Ledger.SetTypeActive(ctx, id, false)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ft)
}

type generateReq struct {
	DueDate *string `json:"due_date"`
}

// Generate charges every active member for the template's current period.
func (h *FeeHandler) Generate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req generateReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Ledger.Generate(ctx, id, due)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Defaults returns the suggested fee templates and alert thresholds.
func (h *FeeHandler) Defaults(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"organization": h.Finance.Organization,
		"currency":     h.Finance.Currency,
		"default_fees": h.Finance.DefaultFees,
		"alerts":       h.Finance.Alerts,
	})
}

// ----- fees -----

func feeFilter(c echo.Context) (repository.FeeFilter, error) {
	member, err := queryUint(c, "member_id")
	if err != nil {
		return repository.FeeFilter{}, err
	}
	feeType, err := queryUint(c, "fee_type_id")
	if err != nil {
		return repository.FeeFilter{}, err
	}
	year, err := queryInt(c, "year")
	if err != nil {
		return repository.FeeFilter{}, err
	}
	return repository.FeeFilter{
		Status:    model.FeeStatus(c.QueryParam("status")),
		MemberID:  member,
		FeeTypeID: feeType,
		Year:      year,
		Unpaid:    queryBool(c, "unpaid"),
	}, nil
}

// List filters by display status (overdue included), member, type and year.
func (h *FeeHandler) List(c echo.Context) error {
	f, err := feeFilter(c)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Ledger.List(ctx, f, pageRequest(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Overdue lists overdue fees of active members, oldest first.
func (h *FeeHandler) Overdue(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Ledger.Overdue(ctx, pageRequest(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *FeeHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	f, err := h.Ledger.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

type feeReq struct {
	service.FeeInput
	DueDate *string `json:"due_date"`
}

func (h *FeeHandler) Create(c echo.Context) error {
	var req feeReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return fail(c, err)
	}
	in := req.FeeInput
	in.DueDate = due
	ctx, cancel := reqCtx(c)
	defer cancel()
	f, err := h.Ledger.CreateFee(ctx, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, f)
}

type feeUpdateReq struct {
	service.FeeUpdate
	DueDate *string `json:"due_date"`
}

func (h *FeeHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req feeUpdateReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return fail(c, err)
	}
	in := req.FeeUpdate
	in.DueDate = due
	ctx, cancel := reqCtx(c)
	defer cancel()
	f, err := h.Ledger.UpdateFee(ctx, id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

type payReq struct {
	PaidDate      *string `json:"paid_date"`
	TransactionID *uint64 `json:"transaction_id"`
}

// Pay marks a fee paid, optionally linking the bank transaction.
func (h *FeeHandler) Pay(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req payReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}
	}
	paid, err := parseDate("paid_date", req.PaidDate)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	f, err := h.Ledger.MarkPaid(ctx, id, paid, req.TransactionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Cancel cancels a pending fee (ADMIN only).
func (h *FeeHandler) Cancel(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	f, err := h.Ledger.Cancel(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Stats aggregates fees of ?year (default: current year).
func (h *FeeHandler) Stats(c echo.Context) error {
	year, err := queryInt(c, "year")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Ledger.Stats(ctx, year)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
