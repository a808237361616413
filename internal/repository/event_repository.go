package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// EventRepo stores association events.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// EventFilter narrows List. Upcoming keeps events starting at or after
// Now.
type EventFilter struct {
	Status   model.EventStatus
	Type     model.EventType
	Year     int
	Upcoming bool
	Now      time.Time
}

const eventCols = `ev.id, ev.name, ev.event_type, ev.description, ev.location, ev.start_date, ev.end_date,
	ev.registration_deadline, ev.max_participants, ev.status, ev.cost, ev.notes, ev.created_by_id,
	ev.created_at, ev.updated_at`

const eventCountCols = `,
	(SELECT COUNT(*) FROM event_participants p WHERE p.event_id = ev.id AND p.status IN ('registered','confirmed')),
	(SELECT COUNT(*) FROM event_participants p WHERE p.event_id = ev.id AND p.status = 'waitlist')`

func scanEvent(s rowScanner, extra ...any) (model.Event, error) {
	var (
		e                    model.Event
		desc, loc, notes     sql.NullString
		end, deadline        sql.NullTime
		maxParticipants, uid sql.NullInt64
		cost                 decimal.NullDecimal
	)
	dest := append([]any{&e.ID, &e.Name, &e.Type, &desc, &loc, &e.StartDate, &end,
		&deadline, &maxParticipants, &e.Status, &cost, &notes, &uid,
		&e.CreatedAt, &e.UpdatedAt}, extra...)
	err := s.Scan(dest...)
	e.Description = strPtr(desc)
	e.Location = strPtr(loc)
	e.Notes = strPtr(notes)
	e.EndDate = timePtr(end)
	e.RegistrationDeadline = timePtr(deadline)
	e.MaxParticipants = intPtr(maxParticipants)
	e.CreatedByID = u64Ptr(uid)
	if cost.Valid {
		c := cost.Decimal
		e.Cost = &c
	}
	return e, err
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Create inserts an event.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (name, event_type, description, location, start_date, end_date,
			registration_deadline, max_participants, status, cost, notes, created_by_id)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.Name, e.Type, nullable(e.Description), nullable(e.Location), e.StartDate.UTC(), utcPtr(e.EndDate),
		utcPtr(e.RegistrationDeadline), nullable(e.MaxParticipants), e.Status, nullable(e.Cost), nullable(e.Notes),
		nullable(e.CreatedByID))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

// GetByID returns ErrEventNotFound when the row is missing.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	return getEvent(ctx, r.db, id, false)
}

// GetForUpdateTx locks the event row. Registrations and capacity changes
// of one event are serialised on this lock.
func (r *EventRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	return getEvent(ctx, tx, id, true)
}

func getEvent(ctx context.Context, q dbtx, id uint64, lock bool) (*model.Event, error) {
	query := "SELECT " + eventCols + " FROM events ev WHERE ev.id = ?"
	if lock {
		query += " FOR UPDATE"
	}
	e, err := scanEvent(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// View loads the event with its participant counts.
func (r *EventRepo) View(ctx context.Context, id uint64) (*model.EventView, error) {
	var active, waitlist int
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		"SELECT "+eventCols+eventCountCols+" FROM events ev WHERE ev.id = ?", id), &active, &waitlist)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	v := model.NewEventView(e, active, waitlist)
	return &v, nil
}

// UpdateTx writes every column of a locked event.
func (r *EventRepo) UpdateTx(ctx context.Context, tx *sql.Tx, e *model.Event) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE events SET name=?, event_type=?, description=?, location=?, start_date=?, end_date=?,
			registration_deadline=?, max_participants=?, status=?, cost=?, notes=?
		 WHERE id=?`,
		e.Name, e.Type, nullable(e.Description), nullable(e.Location), e.StartDate.UTC(), utcPtr(e.EndDate),
		utcPtr(e.RegistrationDeadline), nullable(e.MaxParticipants), e.Status, nullable(e.Cost), nullable(e.Notes),
		e.ID)
	return err
}

// SetStatusTx changes the status of a locked event.
func (r *EventRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.EventStatus) error {
	_, err := tx.ExecContext(ctx, "UPDATE events SET status=? WHERE id=?", status, id)
	return err
}

func eventWhere(f EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "ev.status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		conds = append(conds, "ev.event_type = ?")
		args = append(args, f.Type)
	}
	if f.Year != 0 {
		conds = append(conds, "ev.start_date >= ? AND ev.start_date < ?")
		args = append(args, yearStart(f.Year), yearStart(f.Year+1))
	}
	if f.Upcoming {
		conds = append(conds, "ev.start_date >= ? AND ev.status <> 'cancelled'")
		args = append(args, f.Now.UTC())
	}
	return whereClause(conds), args
}

// List returns one page of events with counts, by start date.
func (r *EventRepo) List(ctx context.Context, f EventFilter, page model.PageRequest) ([]model.EventView, int, error) {
	cond, args := eventWhere(f)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events ev WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, cond, args, page.PerPage, page.Offset())
	return items, total, err
}

// All returns every event matching f (reports).
func (r *EventRepo) All(ctx context.Context, f EventFilter) ([]model.EventView, error) {
	cond, args := eventWhere(f)
	return r.query(ctx, cond, args, 0, 0)
}

func (r *EventRepo) query(ctx context.Context, cond string, args []any, limit, offset int) ([]model.EventView, error) {
	q, args := limitOffset("SELECT "+eventCols+eventCountCols+" FROM events ev WHERE "+cond+" ORDER BY ev.start_date, ev.id", args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EventView
	for rows.Next() {
		var active, waitlist int
		e, err := scanEvent(rows, &active, &waitlist)
		if err != nil {
			return nil, err
		}
		out = append(out, model.NewEventView(e, active, waitlist))
	}
	return out, rows.Err()
}

// Stats counts the events starting in year by status and type. Upcoming
// counts those not yet started and not cancelled.
func (r *EventRepo) Stats(ctx context.Context, year int, now time.Time) (model.EventStats, error) {
	s := model.EventStats{Year: year, ByStatus: map[string]int{}, ByType: map[string]int{}}
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, event_type, COUNT(*), COALESCE(SUM(start_date >= ? AND status <> 'cancelled'), 0)
		FROM events
		WHERE start_date >= ? AND start_date < ?
		GROUP BY status, event_type`, now.UTC(), yearStart(year), yearStart(year+1))
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status, typ     string
			count, upcoming int
		)
		if err := rows.Scan(&status, &typ, &count, &upcoming); err != nil {
			return s, err
		}
		s.Total += count
		s.ByStatus[status] += count
		s.ByType[typ] += count
		s.Upcoming += upcoming
	}
	return s, rows.Err()
}
