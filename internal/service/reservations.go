package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// Reservations books equipment for members. Bookings of one piece of
// equipment are serialised on its row lock, so the overlap check and the
// insert see the same state.
type Reservations struct {
	db      *sql.DB
	res     *repository.ReservationRepo
	equip   *repository.EquipmentRepo
	members *repository.MemberRepo
	pub     EventPublisher
	clock   Clock
}

// NewReservations wires the reservation manager.
func NewReservations(db *sql.DB, pub EventPublisher, clock Clock) *Reservations {
	return &Reservations{
		db:      db,
		res:     repository.NewReservationRepo(db),
		equip:   repository.NewEquipmentRepo(db),
		members: repository.NewMemberRepo(db),
		pub:     pub,
		clock:   clock,
	}
}

// ReservationInput describes a booking. End is exclusive.
type ReservationInput struct {
	EquipmentID uint64    `json:"equipment_id"`
	MemberID    uint64    `json:"member_id"`
	Start       time.Time `json:"start_date"`
	End         time.Time `json:"end_date"`
	Purpose     *string   `json:"purpose"`
	Notes       *string   `json:"notes"`
}

func validRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return repository.ErrInvalidDateRange
	}
	return nil
}

// Create books equipment for a member. An overlapping pending or confirmed
// reservation fails with *repository.OverlapError listing the clashes.
func (s *Reservations) Create(ctx context.Context, in ReservationInput, actorID uint64) (r *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "reservations.create",
		idAttr("equipment.id", in.EquipmentID), idAttr("member.id", in.MemberID))
	defer func() { endSpan(span, err) }()

	if err := validRange(in.Start, in.End); err != nil {
		return nil, err
	}
	var id uint64
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		// The equipment lock must be the first statement so every later
		// read sees reservations committed by the previous lock holder.
		e, err := s.equip.GetForUpdateTx(ctx, tx, in.EquipmentID)
		if err != nil {
			return err
		}
		if !e.Status.Reservable() {
			return repository.ErrEquipmentUnavailable
		}
		m, err := s.members.GetByIDTx(ctx, tx, in.MemberID)
		if err != nil {
			return err
		}
		if m.Status == model.MemberFormer {
			return repository.ErrMemberNotActive
		}
		clashes, err := s.res.OverlappingTx(ctx, tx, e.ID, in.Start, in.End, 0)
		if err != nil {
			return err
		}
		if len(clashes) > 0 {
			return &repository.OverlapError{Conflicts: clashes}
		}
		row := &model.Reservation{
			EquipmentID: e.ID,
			MemberID:    m.ID,
			StartDate:   in.Start.UTC(),
			EndDate:     in.End.UTC(),
			Status:      model.ReservationPending,
			Purpose:     in.Purpose,
			Notes:       in.Notes,
		}
		if actorID != 0 {
			row.CreatedByID = &actorID
		}
		if err := s.res.CreateTx(ctx, tx, row); err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(idAttr("reservation.id", id))
	return s.res.GetByID(ctx, id)
}

// Confirm moves a pending reservation to confirmed.
func (s *Reservations) Confirm(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := s.transition(ctx, id, model.ReservationConfirmed)
	if err == nil {
		s.publishChange(ctx, queue.TypeReservationConfirmed, r)
	}
	return r, err
}

// Cancel frees the slot of a pending or confirmed reservation.
func (s *Reservations) Cancel(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := s.transition(ctx, id, model.ReservationCancelled)
	if err == nil {
		s.publishChange(ctx, queue.TypeReservationCancelled, r)
	}
	return r, err
}

// Complete closes a confirmed reservation.
func (s *Reservations) Complete(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.transition(ctx, id, model.ReservationCompleted)
}

// transition applies one status change. Equipment status is left alone.
func (s *Reservations) transition(ctx context.Context, id uint64, next model.ReservationStatus) (r *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "reservations.transition",
		idAttr("reservation.id", id), attribute.String("reservation.status", string(next)))
	defer func() { endSpan(span, err) }()

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.res.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransition(next) {
			return repository.ErrReservationState
		}
		return s.res.SetStatusTx(ctx, tx, id, next)
	})
	if err != nil {
		return nil, err
	}
	return s.res.GetByID(ctx, id)
}

func (s *Reservations) publishChange(ctx context.Context, typ string, r *model.Reservation) {
	publish(ctx, s.pub, typ, queue.ReservationChanged{
		ReservationID: r.ID,
		EquipmentID:   r.EquipmentID,
		EquipmentName: r.EquipmentName,
		MemberID:      r.MemberID,
		MemberName:    r.MemberName,
		Start:         r.StartDate.UTC().Format(time.RFC3339),
		End:           r.EndDate.UTC().Format(time.RFC3339),
		Status:        string(r.Status),
	}, s.clock.now())
}

// RescheduleInput carries new dates and optional notes.
type RescheduleInput struct {
	Start   time.Time `json:"start_date"`
	End     time.Time `json:"end_date"`
	Purpose *string   `json:"purpose"`
	Notes   *string   `json:"notes"`
}

// Reschedule moves a pending or confirmed reservation to a new range. The
// overlap test ignores the reservation itself.
func (s *Reservations) Reschedule(ctx context.Context, id uint64, in RescheduleInput) (r *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "reservations.reschedule", idAttr("reservation.id", id))
	defer func() { endSpan(span, err) }()

	if err := validRange(in.Start, in.End); err != nil {
		return nil, err
	}
	cur, err := s.res.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		// Equipment first, then the reservation: the same order as Create.
		if _, err := s.equip.GetForUpdateTx(ctx, tx, cur.EquipmentID); err != nil {
			return err
		}
		locked, err := s.res.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !locked.Status.Blocking() {
			return repository.ErrReservationState
		}
		clashes, err := s.res.OverlappingTx(ctx, tx, locked.EquipmentID, in.Start, in.End, id)
		if err != nil {
			return err
		}
		if len(clashes) > 0 {
			return &repository.OverlapError{Conflicts: clashes}
		}
		locked.StartDate = in.Start.UTC()
		locked.EndDate = in.End.UTC()
		if in.Purpose != nil {
			locked.Purpose = in.Purpose
		}
		if in.Notes != nil {
			locked.Notes = in.Notes
		}
		return s.res.RescheduleTx(ctx, tx, locked)
	})
	if err != nil {
		return nil, err
	}
	return s.res.GetByID(ctx, id)
}

// Get returns one reservation.
func (s *Reservations) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.res.GetByID(ctx, id)
}

// List returns a page of reservations ordered by start.
func (s *Reservations) List(ctx context.Context, f repository.ReservationFilter, page model.PageRequest) (model.Page[model.Reservation], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.Page[model.Reservation]{}, repository.ErrInvalidStatus
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return model.Page[model.Reservation]{}, repository.ErrInvalidDateRange
	}
	items, total, err := s.res.List(ctx, f, page)
	if err != nil {
		return model.Page[model.Reservation]{}, err
	}
	return model.NewPage(items, total, page), nil
}

// Upcoming lists the pending and confirmed reservations of one piece of
// equipment that have not ended yet.
func (s *Reservations) Upcoming(ctx context.Context, equipmentID uint64) ([]model.Reservation, error) {
	if _, err := s.equip.GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	out, err := s.res.Upcoming(ctx, equipmentID, s.clock.now())
	if out == nil {
		out = []model.Reservation{}
	}
	return out, err
}

// EquipmentInput carries equipment fields from the API.
type EquipmentInput struct {
	Name            string                `json:"name"`
	Type            model.EquipmentType   `json:"type"`
	Status          model.EquipmentStatus `json:"status"`
	Description     *string               `json:"description"`
	InventoryNumber *string               `json:"inventory_number"`
	PurchaseDate    *time.Time            `json:"-"`
	NextMaintenance *time.Time            `json:"-"`
	Notes           *string               `json:"notes"`
}

func (in *EquipmentInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return repository.Invalid("name", "required")
	}
	if !in.Type.Valid() {
		return repository.Invalid("type", "unknown equipment type")
	}
	if in.Status == "" {
		in.Status = model.EquipmentAvailable
	}
	if !in.Status.Valid() {
		return repository.ErrInvalidStatus
	}
	return nil
}

// CreateEquipment registers a boat or piece of gear.
func (s *Reservations) CreateEquipment(ctx context.Context, in EquipmentInput) (*model.EquipmentView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	e := &model.Equipment{
		Name:            in.Name,
		Type:            in.Type,
		Status:          in.Status,
		Description:     in.Description,
		InventoryNumber: in.InventoryNumber,
		PurchaseDate:    in.PurchaseDate,
		NextMaintenance: in.NextMaintenance,
		Notes:           in.Notes,
	}
	if err := s.equip.Create(ctx, e); err != nil {
		return nil, err
	}
	return s.view(ctx, e)
}

// UpdateEquipment rewrites equipment fields.
func (s *Reservations) UpdateEquipment(ctx context.Context, id uint64, in EquipmentInput) (*model.EquipmentView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	e, err := s.equip.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Name = in.Name
	e.Type = in.Type
	e.Status = in.Status
	e.Description = in.Description
	e.InventoryNumber = in.InventoryNumber
	e.PurchaseDate = in.PurchaseDate
	e.NextMaintenance = in.NextMaintenance
	e.Notes = in.Notes
	if err := s.equip.Update(ctx, e); err != nil {
		return nil, err
	}
	return s.view(ctx, e)
}

// GetEquipment returns equipment with its derived flags.
func (s *Reservations) GetEquipment(ctx context.Context, id uint64) (*model.EquipmentView, error) {
	e, err := s.equip.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, e)
}

// ListEquipment returns a page of equipment with derived flags.
func (s *Reservations) ListEquipment(ctx context.Context, f repository.EquipmentFilter, page model.PageRequest) (model.Page[model.EquipmentView], error) {
	items, total, err := s.equip.List(ctx, f, page)
	if err != nil {
		return model.Page[model.EquipmentView]{}, err
	}
	views, err := s.views(ctx, items)
	if err != nil {
		return model.Page[model.EquipmentView]{}, err
	}
	return model.NewPage(views, total, page), nil
}

// RetireEquipment is the delete operation: the row stays for history.
func (s *Reservations) RetireEquipment(ctx context.Context, id uint64) (*model.EquipmentView, error) {
	return s.setStatus(ctx, id, model.EquipmentRetired)
}

// StartMaintenance takes equipment out of service.
func (s *Reservations) StartMaintenance(ctx context.Context, id uint64) (*model.EquipmentView, error) {
	return s.setStatus(ctx, id, model.EquipmentMaintenance)
}

func (s *Reservations) setStatus(ctx context.Context, id uint64, status model.EquipmentStatus) (*model.EquipmentView, error) {
	if _, err := s.equip.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.equip.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.GetEquipment(ctx, id)
}

// FinishMaintenance returns equipment to service, stamping today as the
// last maintenance and optionally scheduling the next one.
func (s *Reservations) FinishMaintenance(ctx context.Context, id uint64, next *time.Time) (*model.EquipmentView, error) {
	e, err := s.equip.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EquipmentRetired {
		return nil, repository.ErrEquipmentUnavailable
	}
	today := s.clock.Today()
	if next != nil {
		d := model.DateOf(*next)
		if d.Before(today) {
			return nil, repository.ErrInvalidDateRange
		}
		next = &d
	}
	if err := s.equip.FinishMaintenance(ctx, id, today, next); err != nil {
		return nil, err
	}
	return s.GetEquipment(ctx, id)
}

// MaintenanceDue lists equipment whose next maintenance date has come.
func (s *Reservations) MaintenanceDue(ctx context.Context) ([]model.EquipmentView, error) {
	items, err := s.equip.MaintenanceDue(ctx, s.clock.Today())
	if err != nil {
		return nil, err
	}
	return s.views(ctx, items)
}

// EquipmentStats counts equipment by status and type.
func (s *Reservations) EquipmentStats(ctx context.Context) (model.EquipmentStats, error) {
	all, err := s.equip.All(ctx)
	if err != nil {
		return model.EquipmentStats{}, err
	}
	active, err := s.res.ActiveAt(ctx, s.clock.now())
	if err != nil {
		return model.EquipmentStats{}, err
	}
	today := s.clock.Today()
	st := model.EquipmentStats{
		Total:     len(all),
		ByStatus:  map[string]int{},
		ByType:    map[string]int{},
		ActiveNow: len(active),
	}
	for _, e := range all {
		st.ByStatus[string(e.Status)]++
		st.ByType[string(e.Type)]++
		if e.Status != model.EquipmentRetired && e.NeedsMaintenance(today) {
			st.NeedsMaintenance++
		}
	}
	return st, nil
}

func (s *Reservations) view(ctx context.Context, e *model.Equipment) (*model.EquipmentView, error) {
	views, err := s.views(ctx, []model.Equipment{*e})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// views derives is_available from the reservations active right now.
func (s *Reservations) views(ctx context.Context, items []model.Equipment) ([]model.EquipmentView, error) {
	now := s.clock.now()
	active, err := s.res.ActiveAt(ctx, now)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()
	out := make([]model.EquipmentView, 0, len(items))
	for _, e := range items {
		out = append(out, model.EquipmentView{
			Equipment:        e,
			IsAvailable:      e.IsAvailable(now, active),
			NeedsMaintenance: e.NeedsMaintenance(today),
		})
	}
	return out, nil
}
