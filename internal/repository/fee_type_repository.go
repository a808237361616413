package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// FeeTypeRepo stores fee templates.
type FeeTypeRepo struct {
	db *sql.DB
}

func NewFeeTypeRepo(db *sql.DB) *FeeTypeRepo { return &FeeTypeRepo{db: db} }

const feeTypeCols = "id, name, amount, frequency, due_day, due_month, is_active, description, created_at"

func scanFeeType(s rowScanner) (model.FeeType, error) {
	var (
		ft          model.FeeType
		day, month  sql.NullInt64
		description sql.NullString
	)
	err := s.Scan(&ft.ID, &ft.Name, &ft.Amount, &ft.Frequency, &day, &month, &ft.IsActive, &description, &ft.CreatedAt)
	ft.DueDay = intPtr(day)
	ft.DueMonth = intPtr(month)
	ft.Description = strPtr(description)
	return ft, err
}

// Create inserts a fee type.
func (r *FeeTypeRepo) Create(ctx context.Context, ft *model.FeeType) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO fee_types (name, amount, frequency, due_day, due_month, is_active, description) VALUES (?,?,?,?,?,?,?)",
		ft.Name, ft.Amount, ft.Frequency, nullable(ft.DueDay), nullable(ft.DueMonth), ft.IsActive, nullable(ft.Description))
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
	*ft = *created
	return nil
}

// GetByID returns ErrFeeTypeNotFound when the row does not exist.
func (r *FeeTypeRepo) GetByID(ctx context.Context, id uint64) (*model.FeeType, error) {
	return getFeeType(ctx, r.db, id)
}

// GetByIDTx reads the fee type inside a transaction.
func (r *FeeTypeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.FeeType, error) {
	return getFeeType(ctx, tx, id)
}

func getFeeType(ctx context.Context, q dbtx, id uint64) (*model.FeeType, error) {
	ft, err := scanFeeType(q.QueryRowContext(ctx, "SELECT "+feeTypeCols+" FROM fee_types WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeeTypeNotFound
		}
		return nil, err
	}
	return &ft, nil
}

// List returns fee types by name; activeOnly hides retired templates.
func (r *FeeTypeRepo) List(ctx context.Context, activeOnly bool) ([]model.FeeType, error) {
	q := "SELECT " + feeTypeCols + " FROM fee_types"
	if activeOnly {
		q += " WHERE is_active = 1"
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.FeeType
	for rows.Next() {
		ft, err := scanFeeType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, rows.Err()
}

// Update writes every field of the fee type.
func (r *FeeTypeRepo) Update(ctx context.Context, ft *model.FeeType) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE fee_types SET name=?, amount=?, frequency=?, due_day=?, due_month=?, is_active=?, description=? WHERE id=?",
		ft.Name, ft.Amount, ft.Frequency, nullable(ft.DueDay), nullable(ft.DueMonth), ft.IsActive, nullable(ft.Description), ft.ID)
	return err
}

// SetActive toggles is_active, the only change allowed once fees exist.
func (r *FeeTypeRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE fee_types SET is_active=? WHERE id=?", active, id)
	return err
}

// InUse reports whether any fee references the fee type.
func (r *FeeTypeRepo) InUse(ctx context.Context, id uint64) (bool, error) {
	var used bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM fees WHERE fee_type_id = ?)", id).Scan(&used)
	return used, err
}
