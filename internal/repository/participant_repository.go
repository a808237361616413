package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// ParticipantRepo stores event registrations. Every write happens while
// the caller holds the event row lock.
type ParticipantRepo struct {
	db *sql.DB
}

// NewParticipantRepo returns a new ParticipantRepo bound to the given database.
func NewParticipantRepo(db *sql.DB) *ParticipantRepo { return &ParticipantRepo{db: db} }

const participantCols = `p.id, p.event_id, p.member_id, p.status, p.registered_at, p.notes,
	CONCAT(m.first_name, ' ', m.last_name)`

const participantFrom = ` FROM event_participants p JOIN members m ON m.id = p.member_id`

func scanParticipant(s rowScanner) (model.EventParticipant, error) {
	var (
		p     model.EventParticipant
		notes sql.NullString
	)
	err := s.Scan(&p.ID, &p.EventID, &p.MemberID, &p.Status, &p.RegisteredAt, &notes, &p.MemberName)
	p.Notes = strPtr(notes)
	return p, err
}

// ByEvent lists an event's participants in registration order; an empty
// status returns all of them.
func (r *ParticipantRepo) ByEvent(ctx context.Context, eventID uint64, status model.ParticipantStatus) ([]model.EventParticipant, error) {
	q := "SELECT " + participantCols + participantFrom + " WHERE p.event_id = ?"
	args := []any{eventID}
	if status != "" {
		q += " AND p.status = ?"
		args = append(args, status)
	}
	return r.collect(ctx, r.db, q+" ORDER BY p.registered_at, p.id", args...)
}

// ByEventTx is ByEvent inside the caller's transaction.
func (r *ParticipantRepo) ByEventTx(ctx context.Context, tx *sql.Tx, eventID uint64) ([]model.EventParticipant, error) {
	return r.collect(ctx, tx, "SELECT "+participantCols+participantFrom+
		" WHERE p.event_id = ? ORDER BY p.registered_at, p.id", eventID)
}

// ByMember lists a member's registrations.
func (r *ParticipantRepo) ByMember(ctx context.Context, memberID uint64) ([]model.EventParticipant, error) {
	return r.collect(ctx, r.db, "SELECT "+participantCols+participantFrom+
		" WHERE p.member_id = ? ORDER BY p.registered_at DESC, p.id DESC", memberID)
}

func (r *ParticipantRepo) collect(ctx context.Context, q dbtx, query string, args ...any) ([]model.EventParticipant, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EventParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByID returns ErrParticipantNotFound when the row is missing.
func (r *ParticipantRepo) GetByID(ctx context.Context, id uint64) (*model.EventParticipant, error) {
	return getParticipant(ctx, r.db, "p.id = ?", id)
}

// GetByIDTx reads the participant inside a transaction.
func (r *ParticipantRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.EventParticipant, error) {
	return getParticipant(ctx, tx, "p.id = ?", id)
}

// GetByEventMemberTx finds a member's registration for the event.
func (r *ParticipantRepo) GetByEventMemberTx(ctx context.Context, tx *sql.Tx, eventID, memberID uint64) (*model.EventParticipant, error) {
	return getParticipant(ctx, tx, "p.event_id = ? AND p.member_id = ?", eventID, memberID)
}

func getParticipant(ctx context.Context, q dbtx, cond string, args ...any) (*model.EventParticipant, error) {
	p, err := scanParticipant(q.QueryRowContext(ctx, "SELECT "+participantCols+participantFrom+" WHERE "+cond, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateTx inserts a registration; a second row for the same member is a
// conflict.
func (r *ParticipantRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.EventParticipant) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO event_participants (event_id, member_id, status, registered_at, notes) VALUES (?,?,?,?,?)",
		p.EventID, p.MemberID, p.Status, p.RegisteredAt.UTC(), nullable(p.Notes))
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyRegistered
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// ReRegisterTx revives a cancelled registration with a fresh timestamp.
func (r *ParticipantRepo) ReRegisterTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ParticipantStatus, at time.Time, notes *string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE event_participants SET status=?, registered_at=?, notes=? WHERE id=?",
		status, at.UTC(), nullable(notes), id)
	return err
}

// SetStatusTx changes one participant's status.
func (r *ParticipantRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ParticipantStatus) error {
	_, err := tx.ExecContext(ctx, "UPDATE event_participants SET status=? WHERE id=?", status, id)
	return err
}

// ActiveInYear counts registered and confirmed participants over the
// events starting in year.
func (r *ParticipantRepo) ActiveInYear(ctx context.Context, year int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_participants p JOIN events ev ON ev.id = p.event_id
		WHERE p.status IN ('registered','confirmed') AND ev.start_date >= ? AND ev.start_date < ?`,
		yearStart(year), yearStart(year+1)).Scan(&n)
	return n, err
}
