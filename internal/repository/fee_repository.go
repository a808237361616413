package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// FeeRepo provides access to member fees. The stored status is one of
// pending, paid or cancelled; "overdue" exists only as a filter and is
// translated into a due-date condition relative to the caller's today.
type FeeRepo struct {
	db *sql.DB
}

// NewFeeRepo returns a new FeeRepo bound to the given database.
func NewFeeRepo(db *sql.DB) *FeeRepo { return &FeeRepo{db: db} }

// FeeFilter narrows fee lists. Status is a display status.
type FeeFilter struct {
	Status            model.FeeStatus
	MemberID          uint64
	FeeTypeID         uint64
	Year              int
	Unpaid            bool // stored status pending, overdue or not
	ActiveMembersOnly bool
	OldestFirst       bool
}

const feeCols = `f.id, f.member_id, f.fee_type_id, f.amount, f.due_date, f.period, f.status,
	f.paid_date, f.transaction_id, f.notes, f.created_at, f.updated_at`

const feeJoinCols = feeCols + `, CONCAT(m.first_name, ' ', m.last_name), ft.name`

const feeJoins = ` FROM fees f
	JOIN members m    ON m.id = f.member_id
	JOIN fee_types ft ON ft.id = f.fee_type_id`

func scanFee(s rowScanner, joined bool) (model.Fee, error) {
	var (
		f        model.Fee
		paidDate sql.NullTime
		txID     sql.NullInt64
		notes    sql.NullString
	)
	dest := []any{&f.ID, &f.MemberID, &f.FeeTypeID, &f.Amount, &f.DueDate, &f.Period, &f.Status,
		&paidDate, &txID, &notes, &f.CreatedAt, &f.UpdatedAt}
	if joined {
		dest = append(dest, &f.MemberName, &f.FeeTypeName)
	}
	err := s.Scan(dest...)
	f.PaidDate = timePtr(paidDate)
	f.TransactionID = u64Ptr(txID)
	f.Notes = strPtr(notes)
	return f, err
}

// feeWhere renders the filter. today anchors the pending/overdue split:
// overdue is pending with due_date before today, pending is the rest.
func feeWhere(f FeeFilter, today time.Time) (string, []any) {
	var (
		conds []string
		args  []any
	)
	switch f.Status {
	case model.FeeOverdue:
		conds = append(conds, "f.status = 'pending' AND f.due_date < ?")
		args = append(args, dateArg(today))
	case model.FeePending:
		conds = append(conds, "f.status = 'pending' AND f.due_date >= ?")
		args = append(args, dateArg(today))
	case model.FeePaid, model.FeeCancelled:
		conds = append(conds, "f.status = ?")
		args = append(args, f.Status)
	}
	if f.Unpaid {
		conds = append(conds, "f.status = 'pending'")
	}
	if f.MemberID != 0 {
		conds = append(conds, "f.member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.FeeTypeID != 0 {
		conds = append(conds, "f.fee_type_id = ?")
		args = append(args, f.FeeTypeID)
	}
	if f.Year != 0 {
		conds = append(conds, "f.due_date >= ? AND f.due_date < ?")
		args = append(args, yearStart(f.Year), yearStart(f.Year+1))
	}
	if f.ActiveMembersOnly {
		conds = append(conds, "m.status = 'active'")
	}
	return whereClause(conds), args
}

func yearStart(y int) string {
	return dateArg(time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC))
}

// List returns one page of fees with member and fee type names.
func (r *FeeRepo) List(ctx context.Context, f FeeFilter, today time.Time, page model.PageRequest) ([]model.Fee, int, error) {
	cond, args := feeWhere(f, today)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+feeJoins+" WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, f, cond, args, page.PerPage, page.Offset())
	return items, total, err
}

// All returns every fee matching the filter (reports).
func (r *FeeRepo) All(ctx context.Context, f FeeFilter, today time.Time) ([]model.Fee, error) {
	cond, args := feeWhere(f, today)
	return r.query(ctx, f, cond, args, 0, 0)
}

func (r *FeeRepo) query(ctx context.Context, f FeeFilter, cond string, args []any, limit, offset int) ([]model.Fee, error) {
	order := " ORDER BY f.due_date DESC, f.id DESC"
	if f.OldestFirst {
		order = " ORDER BY f.due_date, f.id"
	}
	q, args := limitOffset("SELECT "+feeJoinCols+feeJoins+" WHERE "+cond+order, args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Fee
	for rows.Next() {
		fee, err := scanFee(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, fee)
	}
	return out, rows.Err()
}

// GetByID returns the fee with joined names.
func (r *FeeRepo) GetByID(ctx context.Context, id uint64) (*model.Fee, error) {
	f, err := scanFee(r.db.QueryRowContext(ctx, "SELECT "+feeJoinCols+feeJoins+" WHERE f.id = ?", id), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeeNotFound
		}
		return nil, err
	}
	return &f, nil
}

// GetForUpdateTx locks the fee row until the transaction ends.
func (r *FeeRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Fee, error) {
	f, err := scanFee(tx.QueryRowContext(ctx, "SELECT "+feeCols+" FROM fees f WHERE f.id = ? FOR UPDATE", id), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeeNotFound
		}
		return nil, err
	}
	return &f, nil
}

// InsertIfAbsentTx inserts a pending fee unless one already exists for the
// same member, fee type and period. It reports whether a row was created.
// A concurrent generator racing on the same key turns into a skip.
func (r *FeeRepo) InsertIfAbsentTx(ctx context.Context, tx *sql.Tx, f *model.Fee) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO fees (member_id, fee_type_id, amount, due_date, period, status, notes)
		 VALUES (?,?,?,?,?,'pending',?)
		 ON DUPLICATE KEY UPDATE id = id`,
		f.MemberID, f.FeeTypeID, f.Amount, dateArg(f.DueDate), f.Period, nullable(f.Notes))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Create inserts a single manual fee; an existing fee for the same period
// is a conflict.
func (r *FeeRepo) Create(ctx context.Context, f *model.Fee) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO fees (member_id, fee_type_id, amount, due_date, period, status, notes)
		 VALUES (?,?,?,?,?,'pending',?)`,
		f.MemberID, f.FeeTypeID, f.Amount, dateArg(f.DueDate), f.Period, nullable(f.Notes))
	if err != nil {
		if isDuplicate(err) {
			return ErrFeeExists
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
	*f = *created
	return nil
}

// UpdateTx rewrites amount, due date, period and notes of a locked fee.
func (r *FeeRepo) UpdateTx(ctx context.Context, tx *sql.Tx, f *model.Fee) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE fees SET amount=?, due_date=?, period=?, notes=? WHERE id=?",
		f.Amount, dateArg(f.DueDate), f.Period, nullable(f.Notes), f.ID)
	if isDuplicate(err) {
		return ErrFeeExists
	}
	return err
}

// MarkPaidTx settles a fee. The caller holds the row lock and has checked
// that the fee is pending.
func (r *FeeRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64, paidDate time.Time, transactionID *uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE fees SET status='paid', paid_date=?, transaction_id=? WHERE id=? AND status='pending'",
		dateArg(paidDate), nullable(transactionID), id)
	return err
}

// CancelTx sets a pending fee to cancelled.
func (r *FeeRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, "UPDATE fees SET status='cancelled' WHERE id=? AND status='pending'", id)
	return err
}

// ReopenByTransactionTx returns every fee paid by the transaction to
// pending and reports how many were reopened.
func (r *FeeRepo) ReopenByTransactionTx(ctx context.Context, tx *sql.Tx, transactionID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE fees SET status='pending', paid_date=NULL, transaction_id=NULL WHERE transaction_id=? AND status='paid'",
		transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// OpenByMember returns pending fees of active members, oldest first. The
// bank matcher uses them to pair an incoming amount with a fee.
func (r *FeeRepo) OpenByMember(ctx context.Context) ([]model.Fee, error) {
	return r.All(ctx, FeeFilter{Unpaid: true, ActiveMembersOnly: true, OldestFirst: true}, time.Time{})
}

// Stats aggregates one year of fees by display status.
func (r *FeeRepo) Stats(ctx context.Context, year int, today time.Time) (model.FeeStats, error) {
	s := model.FeeStats{Year: year}
	t := dateArg(today)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0),
		       COALESCE(SUM(status = 'paid'), 0), COALESCE(SUM(CASE WHEN status = 'paid' THEN amount END), 0),
		       COALESCE(SUM(status = 'pending' AND due_date >= ?), 0),
		       COALESCE(SUM(CASE WHEN status = 'pending' AND due_date >= ? THEN amount END), 0),
		       COALESCE(SUM(status = 'pending' AND due_date < ?), 0),
		       COALESCE(SUM(CASE WHEN status = 'pending' AND due_date < ? THEN amount END), 0)
		FROM fees
		WHERE status <> 'cancelled' AND due_date >= ? AND due_date < ?`,
		t, t, t, t, yearStart(year), yearStart(year+1)).Scan(
		&s.TotalCount, &s.TotalAmount,
		&s.PaidCount, &s.PaidAmount,
		&s.PendingCount, &s.PendingAmount,
		&s.OverdueCount, &s.OverdueAmount)
	if err != nil {
		return s, err
	}
	if !s.TotalAmount.IsZero() {
		s.CollectionRate, _ = s.PaidAmount.Div(s.TotalAmount).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	}
	return s, nil
}
