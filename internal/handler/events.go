package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/middleware"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
)

// EventHandler serves events and their participant lists.
type EventHandler struct {
	Registration *service.Registration
	Users        *repository.UserRepo
	Loc          *time.Location
}

// actor loads the caller's account so own-registration checks can use the
// linked member.
func (h *EventHandler) actor(c echo.Context) (service.Actor, error) {
	uid, err := getUserID(c)
	if err != nil {
		return service.Actor{}, err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return service.Actor{}, err
	}
	return service.Actor{UserID: u.ID, Role: middleware.Role(c), MemberID: u.MemberID}, nil
}

func (h *EventHandler) List(c echo.Context) error {
	year, err := queryInt(c, "year")
	if err != nil {
		return fail(c, err)
	}
	f := repository.EventFilter{
		Status:   model.EventStatus(c.QueryParam("status")),
		Type:     model.EventType(c.QueryParam("event_type")),
		Year:     year,
		Upcoming: queryBool(c, "upcoming"),
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.Registration.ListEvents(ctx, f, pageRequest(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *EventHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Registration.GetEvent(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

type eventReq struct {
	service.EventInput
	StartDate            string  `json:"start_date"`
	EndDate              *string `json:"end_date"`
	RegistrationDeadline *string `json:"registration_deadline"`
}

func (h *EventHandler) input(r eventReq) (service.EventInput, error) {
	in := r.EventInput
	start, err := parseDateTime("start_date", r.StartDate, h.Loc)
	if err != nil {
		return in, err
	}
	in.StartDate = start
	if in.EndDate, err = optDateTime("end_date", r.EndDate, h.Loc); err != nil {
		return in, err
	}
	if in.RegistrationDeadline, err = optDateTime("registration_deadline", r.RegistrationDeadline, h.Loc); err != nil {
		return in, err
	}
	return in, nil
}

func (h *EventHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, err)
	}
	var req eventReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := h.input(req)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Registration.CreateEvent(ctx, in, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// Update edits an event. Raising max_participants promotes waitlisted
// participants.
func (h *EventHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req eventReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	in, err := h.input(req)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Registration.UpdateEvent(ctx, id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Delete cancels the event (ADMIN only).
func (h *EventHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Registration.DeleteEvent(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *EventHandler) OpenRegistration(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Registration.OpenRegistration(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *EventHandler) CloseRegistration(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	e, err := h.Registration.CloseRegistration(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Participants lists the event's participants, optionally by ?status.
func (h *EventHandler) Participants(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ps, err := h.Registration.Participants(ctx, id, model.ParticipantStatus(c.QueryParam("status")))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": ps})
}

// Waitlist lists waitlisted participants in promotion order.
func (h *EventHandler) Waitlist(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ps, err := h.Registration.Waitlist(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": ps})
}

type registerParticipantReq struct {
	MemberID *uint64 `json:"member_id"`
	Notes    *string `json:"notes"`
}

// Register signs a member up. Writers may register anyone; other accounts
// register their linked member only. A full event puts the member on the
// waitlist.
func (h *EventHandler) Register(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req registerParticipantReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	a, err := h.actor(c)
	if err != nil {
		return fail(c, err)
	}
	member := req.MemberID
	if member == nil {
		member = a.MemberID
	}
	if member == nil {
		return fail(c, repository.Invalid("member_id", "required"))
	}
	if !a.CanWrite() && (a.MemberID == nil || *a.MemberID != *member) {
		return fail(c, repository.ErrForbidden)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Registration.Register(ctx, id, *member, req.Notes)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// participantPath reads /events/:id/participants/:pid.
func participantPath(c echo.Context) (eventID, participantID uint64, err error) {
	if eventID, err = parseID(c, "id"); err != nil {
		return 0, 0, err
	}
	participantID, err = parseID(c, "pid")
	return eventID, participantID, err
}

func (h *EventHandler) ConfirmParticipant(c echo.Context) error {
	eventID, id, err := participantPath(c)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Registration.Confirm(ctx, eventID, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// CancelParticipant cancels a registration and promotes the next waitlisted
// participant when a seat frees up.
func (h *EventHandler) CancelParticipant(c echo.Context) error {
	eventID, id, err := participantPath(c)
	if err != nil {
		return fail(c, err)
	}
	a, err := h.actor(c)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Registration.Cancel(ctx, eventID, id, a)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *EventHandler) Stats(c echo.Context) error {
	year, err := queryInt(c, "year")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Registration.Stats(ctx, year)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
