package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// EquipmentRepo stores the club's boats and gear.
type EquipmentRepo struct {
	db *sql.DB
}

// NewEquipmentRepo returns a new EquipmentRepo bound to the given database.
func NewEquipmentRepo(db *sql.DB) *EquipmentRepo { return &EquipmentRepo{db: db} }

// EquipmentFilter narrows List.
type EquipmentFilter struct {
	Type   model.EquipmentType
	Status model.EquipmentStatus
	Search string
}

const equipmentCols = `id, name, type, status, description, inventory_number, purchase_date,
	last_maintenance, next_maintenance, notes, created_at, updated_at`

func scanEquipment(s rowScanner) (model.Equipment, error) {
	var (
		e                 model.Equipment
		desc, inv, notes  sql.NullString
		bought, last, nxt sql.NullTime
	)
	err := s.Scan(&e.ID, &e.Name, &e.Type, &e.Status, &desc, &inv, &bought, &last, &nxt, &notes, &e.CreatedAt, &e.UpdatedAt)
	e.Description = strPtr(desc)
	e.InventoryNumber = strPtr(inv)
	e.PurchaseDate = timePtr(bought)
	e.LastMaintenance = timePtr(last)
	e.NextMaintenance = timePtr(nxt)
	e.Notes = strPtr(notes)
	return e, err
}

// Create inserts equipment; a reused inventory number is a conflict.
func (r *EquipmentRepo) Create(ctx context.Context, e *model.Equipment) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO equipment (name, type, status, description, inventory_number, purchase_date,
			last_maintenance, next_maintenance, notes)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		e.Name, e.Type, e.Status, nullable(e.Description), nullable(e.InventoryNumber), nullDateArg(e.PurchaseDate),
		nullDateArg(e.LastMaintenance), nullDateArg(e.NextMaintenance), nullable(e.Notes))
	if err != nil {
		if isDuplicate(err) {
			return ErrInventoryExists
		}
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

// GetByID returns ErrEquipmentNotFound when the row is missing.
func (r *EquipmentRepo) GetByID(ctx context.Context, id uint64) (*model.Equipment, error) {
	return getEquipment(ctx, r.db, id, false)
}

// GetForUpdateTx locks the equipment row. Reservations for one piece of
// equipment are serialised on this lock.
func (r *EquipmentRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Equipment, error) {
	return getEquipment(ctx, tx, id, true)
}

func getEquipment(ctx context.Context, q dbtx, id uint64, lock bool) (*model.Equipment, error) {
	query := "SELECT " + equipmentCols + " FROM equipment WHERE id = ?"
	if lock {
		query += " FOR UPDATE"
	}
	e, err := scanEquipment(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEquipmentNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Update writes every column of e.
func (r *EquipmentRepo) Update(ctx context.Context, e *model.Equipment) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE equipment SET name=?, type=?, status=?, description=?, inventory_number=?, purchase_date=?,
			last_maintenance=?, next_maintenance=?, notes=?
		 WHERE id=?`,
		e.Name, e.Type, e.Status, nullable(e.Description), nullable(e.InventoryNumber), nullDateArg(e.PurchaseDate),
		nullDateArg(e.LastMaintenance), nullDateArg(e.NextMaintenance), nullable(e.Notes), e.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrInventoryExists
		}
		return err
	}
	updated, err := r.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *updated
	return nil
}

// SetStatus changes the stored status.
func (r *EquipmentRepo) SetStatus(ctx context.Context, id uint64, status model.EquipmentStatus) error {
	_, err := r.db.ExecContext(ctx, "UPDATE equipment SET status=? WHERE id=?", status, id)
	return err
}

// FinishMaintenance returns the equipment to service.
func (r *EquipmentRepo) FinishMaintenance(ctx context.Context, id uint64, done time.Time, next *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE equipment SET status='available', last_maintenance=?, next_maintenance=? WHERE id=?",
		dateArg(done), nullDateArg(next), id)
	return err
}

func equipmentWhere(f EquipmentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(inventory_number) LIKE ?)")
		args = append(args, p, p)
	}
	return whereClause(conds), args
}

// List returns one page of equipment by name.
func (r *EquipmentRepo) List(ctx context.Context, f EquipmentFilter, page model.PageRequest) ([]model.Equipment, int, error) {
	cond, args := equipmentWhere(f)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM equipment WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, "WHERE "+cond+" ORDER BY name, id", args, page.PerPage, page.Offset())
	return items, total, err
}

// All returns every piece of equipment.
func (r *EquipmentRepo) All(ctx context.Context) ([]model.Equipment, error) {
	return r.query(ctx, "ORDER BY name, id", nil, 0, 0)
}

// MaintenanceDue lists equipment in service whose next maintenance date
// is on or before today.
func (r *EquipmentRepo) MaintenanceDue(ctx context.Context, today time.Time) ([]model.Equipment, error) {
	return r.query(ctx,
		"WHERE status <> 'retired' AND next_maintenance IS NOT NULL AND next_maintenance <= ? ORDER BY next_maintenance, id",
		[]any{dateArg(today)}, 0, 0)
}

func (r *EquipmentRepo) query(ctx context.Context, tail string, args []any, limit, offset int) ([]model.Equipment, error) {
	q, args := limitOffset("SELECT "+equipmentCols+" FROM equipment "+tail, args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
