package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
)

// EquipmentHandler serves the equipment register and its reservations.
// Local wall-clock times are read in Loc.
type EquipmentHandler struct {
	Reservations *service.Reservations
	Loc          *time.Location
}

// ----- equipment -----

func (h *EquipmentHandler) List(c echo.Context) error {
	f := repository.EquipmentFilter{
		Type:   model.EquipmentType(c.QueryParam("type")),
		Status: model.EquipmentStatus(c.QueryParam("status")),
		Search: c.QueryParam("search"),
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Reservations.ListEquipment(ctx, f, pageRequest(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *EquipmentHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Reservations.GetEquipment(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

type equipmentReq struct {
	service.EquipmentInput
	PurchaseDate    *string `json:"purchase_date"`
	NextMaintenance *string `json:"next_maintenance"`
}

func (r equipmentReq) input() (service.EquipmentInput, error) {
	in := r.EquipmentInput
	var err error
	if in.PurchaseDate, err = parseDate("purchase_date", r.PurchaseDate); err != nil {
		return in, err
	}
	if in.NextMaintenance, err = parseDate("next_maintenance", r.NextMaintenance); err != nil {
		return in, err
	}
	return in, nil
}

func (h *EquipmentHandler) Create(c echo.Context) error {
	var req equipmentReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Reservations.CreateEquipment(ctx, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *EquipmentHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req equipmentReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Reservations.UpdateEquipment(ctx, id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Delete retires the item; reservations are kept.
func (h *EquipmentHandler) Delete(c echo.Context) error {
	return h.status(c, h.Reservations.RetireEquipment)
}

func (h *EquipmentHandler) StartMaintenance(c echo.Context) error {
	return h.status(c, h.Reservations.StartMaintenance)
}

type maintenanceReq struct {
	NextMaintenance *string `json:"next_maintenance"`
}

// FinishMaintenance makes the item available again and stamps today's date.
func (h *EquipmentHandler) FinishMaintenance(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req maintenanceReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}
	}
	next, err := parseDate("next_maintenance", req.NextMaintenance)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Reservations.FinishMaintenance(ctx, id, next)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *EquipmentHandler) status(c echo.Context, fn func(ctx context.Context, id uint64) (*model.EquipmentView, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := fn(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// MaintenanceDue lists items whose next maintenance is today or earlier.
func (h *EquipmentHandler) MaintenanceDue(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Reservations.MaintenanceDue(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *EquipmentHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Reservations.EquipmentStats(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Upcoming lists the item's pending and confirmed reservations that have
// not ended yet.
func (h *EquipmentHandler) Upcoming(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Reservations.Upcoming(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ----- reservations -----

func (h *EquipmentHandler) ListReservations(c echo.Context) error {
	equipment, err := queryUint(c, "equipment_id")
	if err != nil {
		return fail(c, err)
	}
	member, err := queryUint(c, "member_id")
	if err != nil {
		return fail(c, err)
	}
	from, err := optDateTime("from", strPtr(c.QueryParam("from")), h.Loc)
	if err != nil {
		return fail(c, err)
	}
	to, err := optDateTime("to", strPtr(c.QueryParam("to")), h.Loc)
	if err != nil {
		return fail(c, err)
	}
	f := repository.ReservationFilter{
		EquipmentID: equipment,
		MemberID:    member,
		Status:      model.ReservationStatus(c.QueryParam("status")),
		From:        from,
		To:          to,
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Reservations.List(ctx, f, pageRequest(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *EquipmentHandler) GetReservation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Reservations.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

type reservationReq struct {
	EquipmentID uint64  `json:"equipment_id"`
	MemberID    uint64  `json:"member_id"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Purpose     *string `json:"purpose"`
	Notes       *string `json:"notes"`
}

func (h *EquipmentHandler) span(r reservationReq) (start, end time.Time, err error) {
	if start, err = parseDateTime("start_date", r.StartDate, h.Loc); err != nil {
		return
	}
	end, err = parseDateTime("end_date", r.EndDate, h.Loc)
	return
}

// CreateReservation books an item. A clash with a pending or confirmed
// reservation is 409 with the clashing ranges.
func (h *EquipmentHandler) CreateReservation(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, err)
	}
	var req reservationReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	start, end, err := h.span(req)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Reservations.Create(ctx, service.ReservationInput{
		EquipmentID: req.EquipmentID,
		MemberID:    req.MemberID,
		Start:       start,
		End:         end,
		Purpose:     req.Purpose,
		Notes:       req.Notes,
	}, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// Reschedule moves a reservation; the overlap test ignores the reservation
// itself.
func (h *EquipmentHandler) Reschedule(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req reservationReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	start, end, err := h.span(req)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Reservations.Reschedule(ctx, id, service.RescheduleInput{
		Start:   start,
		End:     end,
		Purpose: req.Purpose,
		Notes:   req.Notes,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *EquipmentHandler) ConfirmReservation(c echo.Context) error {
	return h.transition(c, h.Reservations.Confirm)
}

func (h *EquipmentHandler) CancelReservation(c echo.Context) error {
	return h.transition(c, h.Reservations.Cancel)
}

func (h *EquipmentHandler) CompleteReservation(c echo.Context) error {
	return h.transition(c, h.Reservations.Complete)
}

func (h *EquipmentHandler) transition(c echo.Context, fn func(ctx context.Context, id uint64) (*model.Reservation, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := fn(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func strPtr(s string) *string { return &s }
