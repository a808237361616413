package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
)

// FinanceHandler serves the transaction register and bank imports.
type FinanceHandler struct {
	Recon          *service.Reconciliation
	Finance        config.FinanceConfig
	MaxUploadBytes int64
}

func transactionFilter(c echo.Context) (repository.TransactionFilter, error) {
	from, err := queryDate(c, "from")
	if err != nil {
		return repository.TransactionFilter{}, err
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return repository.TransactionFilter{}, err
	}
	member, err := queryUint(c, "member_id")
	if err != nil {
		return repository.TransactionFilter{}, err
	}
	return repository.TransactionFilter{
		Type:      model.TransactionType(c.QueryParam("type")),
		Category:  c.QueryParam("category"),
		From:      from,
		To:        to,
		Unmatched: queryBool(c, "unmatched"),
		MemberID:  member,
	}, nil
}

// List returns transactions newest first.
func (h *FinanceHandler) List(c echo.Context) error {
	f, err := transactionFilter(c)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Recon.List(ctx, f, pageRequest(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *FinanceHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Recon.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

type transactionReq struct {
	service.TransactionInput
	Date string `json:"date"`
}

func (r transactionReq) input() (service.TransactionInput, error) {
	in := r.TransactionInput
	d, err := parseDate("date", &r.Date)
	if err != nil {
		return in, err
	}
	if d == nil {
		return in, repository.Invalid("date", "required")
	}
	in.Date = *d
	return in, nil
}

// Create records a manual transaction.
func (h *FinanceHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, err)
	}
	var req transactionReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Recon.Create(ctx, in, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *FinanceHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req transactionReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Recon.Update(ctx, id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Import parses an uploaded statement (multipart field "file") and returns
// the matched preview. Nothing is stored.
func (h *FinanceHandler) Import(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, badRequest("file_required", ""))
	}
	if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
		return fail(c, &apiError{status: http.StatusRequestEntityTooLarge, code: "file_too_large"})
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	defer f.Close()
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = fh.Size
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return fail(c, err)
	}
	if int64(len(data)) > limit {
		return fail(c, &apiError{status: http.StatusRequestEntityTooLarge, code: "file_too_large"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	preview, err := h.Recon.Import(ctx, fh.Filename, c.FormValue("format"), data)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

type importRowReq struct {
	service.ImportRow
	Date string `json:"date"`
}

type confirmReq struct {
	Transactions []importRowReq `json:"transactions"`
}

// ConfirmImport stores the reviewed preview rows. Rows whose bank reference
// is already known are skipped.
func (h *FinanceHandler) ConfirmImport(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, err)
	}
	var req confirmReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if len(req.Transactions) == 0 {
		return fail(c, repository.ErrNoTransactions)
	}
	rows := make([]service.ImportRow, 0, len(req.Transactions))
	for _, r := range req.Transactions {
		d, err := parseDate("date", &r.Date)
		if err != nil {
			return fail(c, err)
		}
		if d == nil {
			return fail(c, repository.Invalid("date", "required"))
		}
		row := r.ImportRow
		row.Date = *d
		rows = append(rows, row)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Recon.Confirm(ctx, rows, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type matchReq struct {
	MemberID uint64  `json:"member_id"`
	FeeID    *uint64 `json:"fee_id"`
}

// Match links a transaction to a member and, optionally, settles a fee.
func (h *FinanceHandler) Match(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req matchReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if req.MemberID == 0 {
		return fail(c, repository.Invalid("member_id", "required"))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Recon.Match(ctx, id, req.MemberID, req.FeeID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *FinanceHandler) Unmatch(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Recon.Unmatch(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Suggest ranks members by how well they match the transaction text.
func (h *FinanceHandler) Suggest(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ranked, err := h.Recon.Suggest(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": ranked})
}

func (h *FinanceHandler) Balance(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Recon.Balance(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *FinanceHandler) Stats(c echo.Context) error {
	year, err := queryInt(c, "year")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Recon.Stats(ctx, year)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Categories lists the configured categories, optionally for one ?type.
func (h *FinanceHandler) Categories(c echo.Context) error {
	typ := c.QueryParam("type")
	if typ == "" {
		return c.JSON(http.StatusOK, h.Finance.Categories)
	}
	cats, ok := h.Finance.Categories[typ]
	if !ok {
		return fail(c, repository.ErrInvalidCategory)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": cats})
}
