package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// TransactionRepo stores bank and manual transactions.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to the given database.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// TransactionFilter narrows List. From and To are inclusive calendar dates.
type TransactionFilter struct {
	Type      model.TransactionType
	Category  string
	From      *time.Time
	To        *time.Time
	Unmatched bool
	MemberID  uint64
}

const transactionCols = `t.id, t.date, t.amount, t.type, t.category, t.description, t.counterparty,
	t.bank_reference, t.matched_member_id, t.match_confidence, t.import_source, t.import_batch,
	t.imported_at, t.created_by_id, t.created_at, t.updated_at,
	COALESCE(CONCAT(m.first_name, ' ', m.last_name), '')`

const transactionFrom = ` FROM transactions t LEFT JOIN members m ON m.id = t.matched_member_id`

func scanTransaction(s rowScanner) (model.Transaction, error) {
	var (
		t                     model.Transaction
		desc, cp, ref, batch  sql.NullString
		confidence            sql.NullString
		memberID, createdByID sql.NullInt64
		importedAt            sql.NullTime
	)
	err := s.Scan(&t.ID, &t.Date, &t.Amount, &t.Type, &t.Category, &desc, &cp,
		&ref, &memberID, &confidence, &t.ImportSource, &batch,
		&importedAt, &createdByID, &t.CreatedAt, &t.UpdatedAt,
		&t.MatchedMemberName)
	t.Description = strPtr(desc)
	t.Counterparty = strPtr(cp)
	t.BankReference = strPtr(ref)
	t.ImportBatch = strPtr(batch)
	t.MatchedMemberID = u64Ptr(memberID)
	t.CreatedByID = u64Ptr(createdByID)
	t.ImportedAt = timePtr(importedAt)
	if confidence.Valid {
		c := model.MatchConfidence(confidence.String)
		t.MatchConfidence = &c
	}
	return t, err
}

// Create inserts a transaction outside of any transaction.
func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	if err := insertTransaction(ctx, r.db, t); err != nil {
		return err
	}
	created, err := getTransaction(ctx, r.db, t.ID, false)
	if err != nil {
		return err
	}
	*t = *created
	return nil
}

// CreateTx inserts a transaction inside tx and sets its ID.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	return insertTransaction(ctx, tx, t)
}

func insertTransaction(ctx context.Context, q dbtx, t *model.Transaction) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO transactions (date, amount, type, category, description, counterparty, bank_reference,
			matched_member_id, match_confidence, import_source, import_batch, imported_at, created_by_id)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		dateArg(t.Date), t.Amount, t.Type, t.Category, nullable(t.Description), nullable(t.Counterparty),
		nullable(t.BankReference), nullable(t.MatchedMemberID), nullable(t.MatchConfidence),
		t.ImportSource, nullable(t.ImportBatch), nullable(t.ImportedAt), nullable(t.CreatedByID))
	if err != nil {
		if duplicateKey(err, "uq_transactions_ref") {
			return ErrReferenceExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// ReferenceExistsTx reports whether a bank reference was imported before.
func (r *TransactionRepo) ReferenceExistsTx(ctx context.Context, tx *sql.Tx, ref string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM transactions WHERE bank_reference = ?)", ref).Scan(&exists)
	return exists, err
}

// GetByID returns the transaction with the matched member's name.
func (r *TransactionRepo) GetByID(ctx context.Context, id uint64) (*model.Transaction, error) {
	return getTransaction(ctx, r.db, id, false)
}

// GetForUpdateTx locks the transaction row.
func (r *TransactionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Transaction, error) {
	return getTransaction(ctx, tx, id, true)
}

func getTransaction(ctx context.Context, q dbtx, id uint64, lock bool) (*model.Transaction, error) {
	query := "SELECT " + transactionCols + transactionFrom + " WHERE t.id = ?"
	if lock {
		query += " FOR UPDATE OF t"
	}
	t, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Update rewrites the descriptive fields of a transaction.
func (r *TransactionRepo) Update(ctx context.Context, t *model.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET date=?, amount=?, type=?, category=?, description=?, counterparty=?
		 WHERE id=?`,
		dateArg(t.Date), t.Amount, t.Type, t.Category, nullable(t.Description), nullable(t.Counterparty), t.ID)
	if err != nil {
		return err
	}
	updated, err := r.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	*t = *updated
	return nil
}

// SetMatchTx links the transaction to a member, or clears the link when
// memberID is nil.
func (r *TransactionRepo) SetMatchTx(ctx context.Context, tx *sql.Tx, id uint64, memberID *uint64, confidence *model.MatchConfidence) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE transactions SET matched_member_id=?, match_confidence=? WHERE id=?",
		nullable(memberID), nullable(confidence), id)
	return err
}

func transactionWhere(f TransactionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "t.type = ?")
		args = append(args, f.Type)
	}
	if f.Category != "" {
		conds = append(conds, "t.category = ?")
		args = append(args, f.Category)
	}
	if f.From != nil {
		conds = append(conds, "t.date >= ?")
		args = append(args, dateArg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "t.date <= ?")
		args = append(args, dateArg(*f.To))
	}
	if f.Unmatched {
		conds = append(conds, "t.matched_member_id IS NULL")
	}
	if f.MemberID != 0 {
		conds = append(conds, "t.matched_member_id = ?")
		args = append(args, f.MemberID)
	}
	return whereClause(conds), args
}

// List returns one page of transactions, newest first.
func (r *TransactionRepo) List(ctx context.Context, f TransactionFilter, page model.PageRequest) ([]model.Transaction, int, error) {
	cond, args := transactionWhere(f)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions t WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, cond, args, page.PerPage, page.Offset())
	return items, total, err
}

// All returns every transaction matching f (reports).
func (r *TransactionRepo) All(ctx context.Context, f TransactionFilter) ([]model.Transaction, error) {
	cond, args := transactionWhere(f)
	return r.query(ctx, cond, args, 0, 0)
}

func (r *TransactionRepo) query(ctx context.Context, cond string, args []any, limit, offset int) ([]model.Transaction, error) {
	q, args := limitOffset("SELECT "+transactionCols+transactionFrom+" WHERE "+cond+" ORDER BY t.date DESC, t.id DESC", args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Balance sums income and expenses with dates in [from, to]; nil bounds are
// open.
func (r *TransactionRepo) Balance(ctx context.Context, from, to *time.Time) (model.Balance, error) {
	cond, args := transactionWhere(TransactionFilter{From: from, To: to})
	var income, expenses decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN t.type = 'income' THEN t.amount END), 0),
		       COALESCE(SUM(CASE WHEN t.type = 'expense' THEN t.amount END), 0)
		FROM transactions t WHERE `+cond, args...).Scan(&income, &expenses)
	if err != nil {
		return model.Balance{}, err
	}
	return model.NewBalance(income, expenses), nil
}

// ByCategory totals one year per type and category.
func (r *TransactionRepo) ByCategory(ctx context.Context, year int) ([]model.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT type, category, SUM(amount), COUNT(*)
		FROM transactions
		WHERE date >= ? AND date < ?
		GROUP BY type, category
		ORDER BY type, SUM(amount) DESC`, yearStart(year), yearStart(year+1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CategoryTotal
	for rows.Next() {
		var c model.CategoryTotal
		if err := rows.Scan(&c.Type, &c.Category, &c.Total, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountUnmatchedIncome counts income of the year not linked to a member.
func (r *TransactionRepo) CountUnmatchedIncome(ctx context.Context, year int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE type = 'income' AND matched_member_id IS NULL AND date >= ? AND date < ?`,
		yearStart(year), yearStart(year+1)).Scan(&n)
	return n, err
}
