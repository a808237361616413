package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// ReservationRepo provides access to equipment reservations. Ranges are
// half-open [start_date, end_date) and stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// OverlapError lists the reservations a requested range collides with.
type OverlapError struct {
	Conflicts []model.Reservation
}

func (e *OverlapError) Error() string {
	ranges := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ranges = append(ranges, fmt.Sprintf("#%d %s..%s", c.ID,
			c.StartDate.Format(time.RFC3339), c.EndDate.Format(time.RFC3339)))
	}
	return "reservation overlaps " + strings.Join(ranges, ", ")
}

// Unwrap classifies the error as ErrReservationOverlap (a conflict).
func (e *OverlapError) Unwrap() error { return ErrReservationOverlap }

// ReservationFilter narrows List. From/To select reservations intersecting
// the window.
type ReservationFilter struct {
	EquipmentID uint64
	MemberID    uint64
	Status      model.ReservationStatus
	From        *time.Time
	To          *time.Time
}

const reservationCols = `r.id, r.equipment_id, r.member_id, r.start_date, r.end_date, r.status,
	r.purpose, r.notes, r.created_by_id, r.created_at, r.updated_at,
	e.name, CONCAT(m.first_name, ' ', m.last_name)`

const reservationFrom = ` FROM reservations r
	JOIN equipment e ON e.id = r.equipment_id
	JOIN members m   ON m.id = r.member_id`

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		res            model.Reservation
		purpose, notes sql.NullString
		createdBy      sql.NullInt64
	)
	err := s.Scan(&res.ID, &res.EquipmentID, &res.MemberID, &res.StartDate, &res.EndDate, &res.Status,
		&purpose, &notes, &createdBy, &res.CreatedAt, &res.UpdatedAt,
		&res.EquipmentName, &res.MemberName)
	res.Purpose = strPtr(purpose)
	res.Notes = strPtr(notes)
	res.CreatedByID = u64Ptr(createdBy)
	return res, err
}

// CreateTx inserts a reservation within the scope of an existing
// transaction and populates its ID. The caller holds the equipment lock and
// has checked for overlaps.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (equipment_id, member_id, start_date, end_date, status, purpose, notes, created_by_id)
		VALUES (?,?,?,?,?,?,?,?)`
	result, err := tx.ExecContext(ctx, q, res.EquipmentID, res.MemberID, res.StartDate.UTC(), res.EndDate.UTC(),
		res.Status, nullable(res.Purpose), nullable(res.Notes), nullable(res.CreatedByID))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// overlapQuery is a locking read: under REPEATABLE READ a plain SELECT
// would answer from the transaction's snapshot and miss rows committed by
// a request that held the equipment lock before us.
const overlapQuery = "SELECT " + reservationCols + reservationFrom + `
		WHERE r.equipment_id = ? AND r.status IN ('pending','confirmed')
		  AND r.start_date < ? AND ? < r.end_date AND r.id <> ?
		ORDER BY r.start_date
		FOR UPDATE OF r`

// OverlappingTx returns the blocking (pending or confirmed) reservations of
// the equipment that intersect [start, end), ignoring excludeID. The caller
// must hold the equipment row lock.
func (r *ReservationRepo) OverlappingTx(ctx context.Context, tx *sql.Tx, equipmentID uint64, start, end time.Time, excludeID uint64) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx, overlapQuery, equipmentID, end.UTC(), start.UTC(), excludeID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// GetByID returns the reservation with equipment and member names.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return getReservation(ctx, r.db, id, false)
}

// GetForUpdateTx locks the reservation row.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	return getReservation(ctx, tx, id, true)
}

func getReservation(ctx context.Context, q dbtx, id uint64, lock bool) (*model.Reservation, error) {
	query := "SELECT " + reservationCols + reservationFrom + " WHERE r.id = ?"
	if lock {
		query += " FOR UPDATE OF r"
	}
	res, err := scanReservation(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

// SetStatusTx moves a locked reservation to a new status.
func (r *ReservationRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus) error {
	_, err := tx.ExecContext(ctx, "UPDATE reservations SET status=? WHERE id=?", status, id)
	return err
}

// RescheduleTx changes the range and notes of a locked reservation.
func (r *ReservationRepo) RescheduleTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE reservations SET start_date=?, end_date=?, purpose=?, notes=? WHERE id=?",
		res.StartDate.UTC(), res.EndDate.UTC(), nullable(res.Purpose), nullable(res.Notes), res.ID)
	return err
}

func reservationWhere(f ReservationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.EquipmentID != 0 {
		conds = append(conds, "r.equipment_id = ?")
		args = append(args, f.EquipmentID)
	}
	if f.MemberID != 0 {
		conds = append(conds, "r.member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.Status != "" {
		conds = append(conds, "r.status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		conds = append(conds, "r.end_date > ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "r.start_date < ?")
		args = append(args, f.To.UTC())
	}
	return whereClause(conds), args
}

// List returns one page of reservations ordered by start.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter, page model.PageRequest) ([]model.Reservation, int, error) {
	cond, args := reservationWhere(f)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations r WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q, qargs := limitOffset("SELECT "+reservationCols+reservationFrom+" WHERE "+cond+" ORDER BY r.start_date, r.id", args, page.PerPage, page.Offset())
	rows, err := r.db.QueryContext(ctx, q, qargs...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectReservations(rows)
	return items, total, err
}

// Upcoming lists blocking reservations of one equipment that end after now.
func (r *ReservationRepo) Upcoming(ctx context.Context, equipmentID uint64, now time.Time) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+reservationCols+reservationFrom+`
		WHERE r.equipment_id = ? AND r.status IN ('pending','confirmed') AND r.end_date > ?
		ORDER BY r.start_date`, equipmentID, now.UTC())
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ActiveAt lists blocking reservations covering the instant at. It feeds
// the derived is_available flag of equipment lists.
func (r *ReservationRepo) ActiveAt(ctx context.Context, at time.Time) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+reservationCols+reservationFrom+`
		WHERE r.status IN ('pending','confirmed') AND r.start_date <= ? AND ? < r.end_date`,
		at.UTC(), at.UTC())
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
