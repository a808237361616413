package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
)

// MemberHandler serves the member register.
type MemberHandler struct {
	Members      *service.Members
	Ledger       *service.Ledger
	Registration *service.Registration
}

type memberReq struct {
	service.MemberInput
	JoinDate *string `json:"join_date"`
}

func (r *memberReq) input() (service.MemberInput, error) {
	in := r.MemberInput
	d, err := parseDate("join_date", r.JoinDate)
	if err != nil {
		return in, err
	}
	in.JoinDate = d
	return in, nil
}

type memberPatchReq struct {
	service.MemberPatch
	JoinDate *string `json:"join_date"`
}

func memberFilter(c echo.Context) repository.MemberFilter {
	return repository.MemberFilter{
		Status: model.MemberStatus(c.QueryParam("status")),
		Search: c.QueryParam("search"),
	}
}

// List returns a page of members filtered by status and search.
func (h *MemberHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Members.List(ctx, memberFilter(c), pageRequest(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Get returns one member with the pending total.
func (h *MemberHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Members.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MemberHandler) Create(c echo.Context) error {
	var req memberReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Members.Create(ctx, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *MemberHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req memberReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Members.Update(ctx, id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Patch changes only the fields present in the body.
func (h *MemberHandler) Patch(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req memberPatchReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	p := req.MemberPatch
	if p.JoinDate, err = parseDate("join_date", req.JoinDate); err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Members.Patch(ctx, id, p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MemberHandler) status(c echo.Context, fn func(ctx context.Context, id uint64) (*model.Member, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := fn(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MemberHandler) Suspend(c echo.Context) error    { return h.status(c, h.Members.Suspend) }
func (h *MemberHandler) Reactivate(c echo.Context) error { return h.status(c, h.Members.Reactivate) }

// Delete is a soft delete: the member becomes former.
func (h *MemberHandler) Delete(c echo.Context) error { return h.status(c, h.Members.Deactivate) }

// Fees lists every fee of one member.
func (h *MemberHandler) Fees(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	fees, err := h.Ledger.MemberFees(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": fees})
}

// Events lists the member's event registrations.
func (h *MemberHandler) Events(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	regs, err := h.Registration.MemberRegistrations(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": regs})
}

func (h *MemberHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Members.Stats(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
