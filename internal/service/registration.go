package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// Actor is the authenticated account behind a request.
type Actor struct {
	UserID   uint64
	Role     string
	MemberID *uint64
}

// CanWrite reports whether the actor may modify data on behalf of others.
func (a Actor) CanWrite() bool {
	return a.Role == model.RoleAdmin || a.Role == model.RoleTreasurer
}

// Registration manages events and their participant lists. Every change to
// one event's participants runs under that event's row lock.
type Registration struct {
	db      *sql.DB
	events  *repository.EventRepo
	parts   *repository.ParticipantRepo
	members *repository.MemberRepo
	pub     EventPublisher
	clock   Clock
}

// NewRegistration wires event registration.
func NewRegistration(db *sql.DB, pub EventPublisher, clock Clock) *Registration {
	return &Registration{
		db:      db,
		events:  repository.NewEventRepo(db),
		parts:   repository.NewParticipantRepo(db),
		members: repository.NewMemberRepo(db),
		pub:     pub,
		clock:   clock,
	}
}

func countSeats(ps []model.EventParticipant) int {
	n := 0
	for _, p := range ps {
		if p.Status.HoldsSeat() {
			n++
		}
	}
	return n
}

// Register adds a member to an event. The member lands on the waitlist once
// the event is at capacity. A cancelled registration is revived with a new
// timestamp, so the member rejoins at the back of the queue.
func (s *Registration) Register(ctx context.Context, eventID, memberID uint64, notes *string) (p *model.EventParticipant, err error) {
	ctx, span := startSpan(ctx, "registration.register", idAttr("event.id", eventID), idAttr("member.id", memberID))
	defer func() { endSpan(span, err) }()

	now := s.clock.now()
	var id uint64
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := s.events.GetForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !e.RegistrationOpen(now) {
			return repository.ErrRegistrationClosed
		}
		m, err := s.members.GetByIDTx(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if m.Status != model.MemberActive {
			return repository.ErrMemberNotActive
		}
		ps, err := s.parts.ByEventTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		active := countSeats(ps)
		status := e.AdmissionStatus(active)

		existing, err := s.parts.GetByEventMemberTx(ctx, tx, eventID, memberID)
		switch {
		case err == nil:
			if existing.Status != model.ParticipantCancelled {
				return repository.ErrAlreadyRegistered
			}
			if err := s.parts.ReRegisterTx(ctx, tx, existing.ID, status, now, notes); err != nil {
				return err
			}
			id = existing.ID
		case errors.Is(err, repository.ErrParticipantNotFound):
			row := &model.EventParticipant{
				EventID:      eventID,
				MemberID:     memberID,
				Status:       status,
				RegisteredAt: now,
				Notes:        notes,
			}
			if err := s.parts.CreateTx(ctx, tx, row); err != nil {
				return err
			}
			id = row.ID
		default:
			return err
		}

		if status.HoldsSeat() {
			active++
		}
		span.SetAttributes(attribute.String("participant.status", string(status)))
		return s.syncStatusTx(ctx, tx, e, active)
	})
	if err != nil {
		return nil, err
	}
	return s.parts.GetByID(ctx, id)
}

// syncStatusTx flips registration_open and full to match the seat count.
func (s *Registration) syncStatusTx(ctx context.Context, tx *sql.Tx, e *model.Event, active int) error {
	next := e.CapacityStatus(active)
	if next == e.Status {
		return nil
	}
	if err := s.events.SetStatusTx(ctx, tx, e.ID, next); err != nil {
		return err
	}
	e.Status = next
	return nil
}

// promoteTx moves waitlisted participants into free seats, longest-waiting
// first, then syncs the event status.
func (s *Registration) promoteTx(ctx context.Context, tx *sql.Tx, e *model.Event) ([]model.EventParticipant, error) {
	ps, err := s.parts.ByEventTx(ctx, tx, e.ID)
	if err != nil {
		return nil, err
	}
	promoted := model.PromotionCandidates(*e, ps)
	return promoted, s.admitTx(ctx, tx, e, countSeats(ps), promoted)
}

// admitTx registers the promoted participants and syncs the event status
// for active seats plus the newcomers.
func (s *Registration) admitTx(ctx context.Context, tx *sql.Tx, e *model.Event, active int, promoted []model.EventParticipant) error {
	for _, p := range promoted {
		if err := s.parts.SetStatusTx(ctx, tx, p.ID, model.ParticipantRegistered); err != nil {
			return err
		}
	}
	return s.syncStatusTx(ctx, tx, e, active+len(promoted))
}

func (s *Registration) publishPromoted(ctx context.Context, e *model.Event, promoted []model.EventParticipant) {
	at := s.clock.now()
	for _, p := range promoted {
		publish(ctx, s.pub, queue.TypeParticipantPromoted, queue.ParticipantPromoted{
			EventID:       e.ID,
			EventName:     e.Name,
			ParticipantID: p.ID,
			MemberID:      p.MemberID,
			MemberName:    p.MemberName,
		}, at)
	}
}

// participantOf loads a participant and checks it belongs to eventID.
func (s *Registration) participantOf(ctx context.Context, eventID, participantID uint64) (*model.EventParticipant, error) {
	p, err := s.parts.GetByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return p, belongsTo(p, eventID)
}

func belongsTo(p *model.EventParticipant, eventID uint64) error {
	if p.EventID != eventID {
		return repository.ErrParticipantNotFound
	}
	return nil
}

// Confirm moves a participant of the event to confirmed. A waitlisted
// participant can only be confirmed while a seat is free.
func (s *Registration) Confirm(ctx context.Context, eventID, participantID uint64) (p *model.EventParticipant, err error) {
	ctx, span := startSpan(ctx, "registration.confirm", idAttr("participant.id", participantID))
	defer func() { endSpan(span, err) }()

	cur, err := s.participantOf(ctx, eventID, participantID)
	if err != nil {
		return nil, err
	}
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := s.events.GetForUpdateTx(ctx, tx, cur.EventID)
		if err != nil {
			return err
		}
		locked, err := s.parts.GetByIDTx(ctx, tx, participantID)
		if err != nil {
			return err
		}
		switch locked.Status {
		case model.ParticipantRegistered:
			return s.parts.SetStatusTx(ctx, tx, locked.ID, model.ParticipantConfirmed)
		case model.ParticipantWaitlist:
			ps, err := s.parts.ByEventTx(ctx, tx, e.ID)
			if err != nil {
				return err
			}
			active := countSeats(ps)
			if !e.HasCapacity(active) {
				return repository.ErrEventFull
			}
			if err := s.parts.SetStatusTx(ctx, tx, locked.ID, model.ParticipantConfirmed); err != nil {
				return err
			}
			return s.syncStatusTx(ctx, tx, e, active+1)
		default:
			return repository.ErrParticipantState
		}
	})
	if err != nil {
		return nil, err
	}
	return s.parts.GetByID(ctx, participantID)
}

// Cancel withdraws a registration. Writers may cancel anyone; other
// accounts only the registration of the member linked to them. A freed
// seat goes to the longest-waiting waitlisted participant.
func (s *Registration) Cancel(ctx context.Context, eventID, participantID uint64, actor Actor) (p *model.EventParticipant, err error) {
	ctx, span := startSpan(ctx, "registration.cancel", idAttr("participant.id", participantID))
	defer func() { endSpan(span, err) }()

	cur, err := s.participantOf(ctx, eventID, participantID)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite() && (actor.MemberID == nil || *actor.MemberID != cur.MemberID) {
		return nil, repository.ErrNotOwnRegistration
	}

	var (
		event    *model.Event
		promoted []model.EventParticipant
	)
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := s.events.GetForUpdateTx(ctx, tx, cur.EventID)
		if err != nil {
			return err
		}
		event = e
		locked, err := s.parts.GetByIDTx(ctx, tx, participantID)
		if err != nil {
			return err
		}
		if locked.Status == model.ParticipantCancelled {
			return repository.ErrParticipantState
		}
		ps, err := s.parts.ByEventTx(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		promoted = model.PromotionsAfterCancel(*e, ps, locked.ID)
		if err := s.parts.SetStatusTx(ctx, tx, locked.ID, model.ParticipantCancelled); err != nil {
			return err
		}
		if !locked.Status.HoldsSeat() {
			return nil
		}
		return s.admitTx(ctx, tx, e, countSeats(ps)-1, promoted)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("participants.promoted", len(promoted)))
	s.publishPromoted(ctx, event, promoted)
	return s.parts.GetByID(ctx, participantID)
}

// OpenRegistration opens a planned or full event. The resulting status is
// full when the event is already at capacity.
func (s *Registration) OpenRegistration(ctx context.Context, eventID uint64) (*model.EventView, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := s.events.GetForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		switch e.Status {
		case model.EventPlanned, model.EventRegistrationOpen, model.EventFull:
		default:
			return repository.ErrEventState
		}
		ps, err := s.parts.ByEventTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		e.Status = model.EventRegistrationOpen
		next := e.CapacityStatus(countSeats(ps))
		return s.events.SetStatusTx(ctx, tx, eventID, next)
	})
	if err != nil {
		return nil, err
	}
	return s.events.View(ctx, eventID)
}

// CloseRegistration returns the event to planned; later registrations are
// rejected.
func (s *Registration) CloseRegistration(ctx context.Context, eventID uint64) (*model.EventView, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := s.events.GetForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		switch e.Status {
		case model.EventPlanned:
			return nil
		case model.EventRegistrationOpen, model.EventFull:
			return s.events.SetStatusTx(ctx, tx, eventID, model.EventPlanned)
		}
		return repository.ErrEventState
	})
	if err != nil {
		return nil, err
	}
	return s.events.View(ctx, eventID)
}

// EventInput carries event fields from the API.
type EventInput struct {
	Name                 string             `json:"name"`
	Type                 model.EventType    `json:"event_type"`
	Description          *string            `json:"description"`
	Location             *string            `json:"location"`
	StartDate            time.Time          `json:"start_date"`
	EndDate              *time.Time         `json:"end_date"`
	RegistrationDeadline *time.Time         `json:"registration_deadline"`
	MaxParticipants      *int               `json:"max_participants"`
	Cost                 *decimal.Decimal   `json:"cost"`
	Notes                *string            `json:"notes"`
	Status               *model.EventStatus `json:"status"`
}

func (in *EventInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return repository.Invalid("name", "required")
	}
	if in.Type == "" {
		in.Type = model.EventOther
	}
	if !in.Type.Valid() {
		return repository.Invalid("event_type", "unknown event type")
	}
	if in.StartDate.IsZero() {
		return repository.Invalid("start_date", "required")
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return repository.ErrInvalidDateRange
	}
	if in.MaxParticipants != nil && *in.MaxParticipants < 1 {
		return repository.Invalid("max_participants", "must be at least 1")
	}
	if in.Cost != nil && in.Cost.IsNegative() {
		return repository.ErrInvalidAmount
	}
	if in.Status != nil && !in.Status.Valid() {
		return repository.ErrInvalidStatus
	}
	return nil
}

func (in EventInput) apply(e *model.Event) {
	e.Name = in.Name
	e.Type = in.Type
	e.Description = in.Description
	e.Location = in.Location
	e.StartDate = in.StartDate.UTC()
	e.EndDate = in.EndDate
	e.RegistrationDeadline = in.RegistrationDeadline
	e.MaxParticipants = in.MaxParticipants
	e.Cost = in.Cost
	e.Notes = in.Notes
	if in.Status != nil {
		e.Status = *in.Status
	}
}

// CreateEvent adds an event, planned unless a status is given.
func (s *Registration) CreateEvent(ctx context.Context, in EventInput, actorID uint64) (*model.EventView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	e := &model.Event{Status: model.EventPlanned}
	in.apply(e)
	if e.Status == model.EventFull {
		e.Status = model.EventRegistrationOpen
	}
	if actorID != 0 {
		e.CreatedByID = &actorID
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, err
	}
	return s.events.View(ctx, e.ID)
}

// UpdateEvent rewrites an event. Capacity cannot drop below the seats
// already taken; raising it promotes waitlisted participants in order.
func (s *Registration) UpdateEvent(ctx context.Context, id uint64, in EventInput) (view *model.EventView, err error) {
	ctx, span := startSpan(ctx, "registration.update_event", idAttr("event.id", id))
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	var (
		event    *model.Event
		promoted []model.EventParticipant
	)
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		e, err := s.events.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		ps, err := s.parts.ByEventTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if in.MaxParticipants != nil && *in.MaxParticipants < countSeats(ps) {
			return repository.ErrCapacityBelowActive
		}
		in.apply(e)
		if err := s.events.UpdateTx(ctx, tx, e); err != nil {
			return err
		}
		event = e
		promoted, err = s.promoteTx(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishPromoted(ctx, event, promoted)
	return s.events.View(ctx, id)
}

// DeleteEvent cancels the event; participants are kept for history.
func (s *Registration) DeleteEvent(ctx context.Context, id uint64) (*model.EventView, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.events.GetForUpdateTx(ctx, tx, id); err != nil {
			return err
		}
		return s.events.SetStatusTx(ctx, tx, id, model.EventCancelled)
	})
	if err != nil {
		return nil, err
	}
	return s.events.View(ctx, id)
}

// GetEvent returns an event with participant counts.
func (s *Registration) GetEvent(ctx context.Context, id uint64) (*model.EventView, error) {
	return s.events.View(ctx, id)
}

// ListEvents returns a page of events by start date.
func (s *Registration) ListEvents(ctx context.Context, f repository.EventFilter, page model.PageRequest) (model.Page[model.EventView], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.Page[model.EventView]{}, repository.ErrInvalidStatus
	}
	if f.Upcoming {
		f.Now = s.clock.now()
	}
	items, total, err := s.events.List(ctx, f, page)
	if err != nil {
		return model.Page[model.EventView]{}, err
	}
	return model.NewPage(items, total, page), nil
}

// AllEvents returns every event matching f (reports).
func (s *Registration) AllEvents(ctx context.Context, f repository.EventFilter) ([]model.EventView, error) {
	if f.Upcoming {
		f.Now = s.clock.now()
	}
	return s.events.All(ctx, f)
}

// Participants lists an event's participants in registration order.
func (s *Registration) Participants(ctx context.Context, eventID uint64, status model.ParticipantStatus) ([]model.EventParticipant, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	out, err := s.parts.ByEvent(ctx, eventID, status)
	if out == nil {
		out = []model.EventParticipant{}
	}
	return out, err
}

// Waitlist lists waitlisted participants in promotion order.
func (s *Registration) Waitlist(ctx context.Context, eventID uint64) ([]model.EventParticipant, error) {
	ps, err := s.Participants(ctx, eventID, model.ParticipantWaitlist)
	if err != nil {
		return nil, err
	}
	return model.WaitlistOrder(ps), nil
}

// MemberRegistrations lists a member's registrations, newest first.
func (s *Registration) MemberRegistrations(ctx context.Context, memberID uint64) ([]model.EventParticipant, error) {
	out, err := s.parts.ByMember(ctx, memberID)
	if out == nil {
		out = []model.EventParticipant{}
	}
	return out, err
}

// Stats summarises events of a year; year 0 means the current one.
func (s *Registration) Stats(ctx context.Context, year int) (model.EventStats, error) {
	if year == 0 {
		year = s.clock.Today().Year()
	}
	st, err := s.events.Stats(ctx, year, s.clock.now())
	if err != nil {
		return st, err
	}
	st.TotalParticipants, err = s.parts.ActiveInYear(ctx, year)
	return st, err
}
