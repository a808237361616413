package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

// MemberRepo provides access to the members register. Members are never
// deleted; Deactivate in the service moves them to "former".
type MemberRepo struct {
	db *sql.DB
}

// NewMemberRepo returns a new MemberRepo bound to the given database.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

// MemberFilter narrows List. Search matches names, email and member number.
type MemberFilter struct {
	Status model.MemberStatus
	Search string
}

const memberCols = `m.id, m.member_number, m.first_name, m.last_name, m.email, m.phone, m.address,
	m.join_date, m.status, m.notes, m.data_consent, m.consent_date, m.created_at, m.updated_at,
	COALESCE((SELECT SUM(f.amount) FROM fees f WHERE f.member_id = m.id AND f.status = 'pending'), 0)`

func scanMember(s rowScanner) (model.Member, error) {
	var (
		m                       model.Member
		number, phone, addr, nt sql.NullString
		consentDate             sql.NullTime
	)
	err := s.Scan(&m.ID, &number, &m.FirstName, &m.LastName, &m.Email, &phone, &addr,
		&m.JoinDate, &m.Status, &nt, &m.DataConsent, &consentDate, &m.CreatedAt, &m.UpdatedAt,
		&m.TotalDebt)
	m.MemberNumber = strPtr(number)
	m.Phone = strPtr(phone)
	m.Address = strPtr(addr)
	m.Notes = strPtr(nt)
	m.ConsentDate = timePtr(consentDate)
	return m, err
}

func mapMemberWriteErr(err error) error {
	switch {
	case duplicateKey(err, "uq_members_email"):
		return ErrEmailExists
	case duplicateKey(err, "uq_members_number"):
		return ErrMemberNumberExists
	}
	return err
}

// Create inserts the member and reloads it so that defaults and timestamps
// are populated.
func (r *MemberRepo) Create(ctx context.Context, m *model.Member) error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO members (member_number, first_name, last_name, email, phone, address,
			join_date, status, notes, data_consent, consent_date)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		nullable(m.MemberNumber), m.FirstName, m.LastName, m.Email, nullable(m.Phone), nullable(m.Address),
		dateArg(m.JoinDate), m.Status, nullable(m.Notes), m.DataConsent, nullable(m.ConsentDate))
	if err != nil {
		return mapMemberWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*m = *created
	return nil
}

// GetByID returns the member with its computed total debt.
func (r *MemberRepo) GetByID(ctx context.Context, id uint64) (*model.Member, error) {
	return getMember(ctx, r.db, id)
}

// GetByIDTx is GetByID inside a transaction.
func (r *MemberRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Member, error) {
	return getMember(ctx, tx, id)
}

func getMember(ctx context.Context, q dbtx, id uint64) (*model.Member, error) {
	m, err := scanMember(q.QueryRowContext(ctx, "SELECT "+memberCols+" FROM members m WHERE m.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Update writes the editable fields. Status changes go through SetStatus.
func (r *MemberRepo) Update(ctx context.Context, m *model.Member) error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET member_number=?, first_name=?, last_name=?, email=?, phone=?, address=?,
			join_date=?, notes=?, data_consent=?, consent_date=?
		 WHERE id=?`,
		nullable(m.MemberNumber), m.FirstName, m.LastName, m.Email, nullable(m.Phone), nullable(m.Address),
		dateArg(m.JoinDate), nullable(m.Notes), m.DataConsent, nullable(m.ConsentDate), m.ID)
	if err != nil {
		return mapMemberWriteErr(err)
	}
	// MySQL reports zero affected rows for a no-op update, so existence is
	// checked by reloading.
	updated, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *updated
	return nil
}

// SetStatus moves the member from one status to another. The update only
// applies while the stored status still equals from, so two concurrent
// transitions cannot both succeed.
func (r *MemberRepo) SetStatus(ctx context.Context, id uint64, from, to model.MemberStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE members SET status=? WHERE id=? AND status=?", to, id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMemberTransition
	}
	return nil
}

// List returns one page of members ordered by last and first name.
func (r *MemberRepo) List(ctx context.Context, f MemberFilter, page model.PageRequest) ([]model.Member, int, error) {
	cond, args := memberWhere(f)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members m WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, cond, args, page.PerPage, page.Offset())
	return items, total, err
}

// All returns every member matching f, for reports and the matcher.
func (r *MemberRepo) All(ctx context.Context, f MemberFilter) ([]model.Member, error) {
	cond, args := memberWhere(f)
	return r.query(ctx, cond, args, 0, 0)
}

func memberWhere(f MemberFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "m.status = ?")
		args = append(args, f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := likePattern(s)
		conds = append(conds, "(LOWER(m.first_name) LIKE ? OR LOWER(m.last_name) LIKE ? OR LOWER(m.email) LIKE ? OR LOWER(m.member_number) LIKE ?)")
		args = append(args, p, p, p, p)
	}
	return whereClause(conds), args
}

func (r *MemberRepo) query(ctx context.Context, cond string, args []any, limit, offset int) ([]model.Member, error) {
	q, args := limitOffset("SELECT "+memberCols+" FROM members m WHERE "+cond+" ORDER BY m.last_name, m.first_name, m.id", args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActiveIDsTx lists the ids of active members inside a transaction.
func (r *MemberRepo) ActiveIDsTx(ctx context.Context, tx *sql.Tx) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM members WHERE status = 'active' ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats counts members per status and those with a pending balance.
func (r *MemberRepo) Stats(ctx context.Context) (model.MemberStats, error) {
	var s model.MemberStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(status = 'active'), 0),
		       COALESCE(SUM(status = 'suspended'), 0),
		       COALESCE(SUM(status = 'former'), 0),
		       COALESCE(SUM(EXISTS (SELECT 1 FROM fees f WHERE f.member_id = m.id AND f.status = 'pending')), 0)
		FROM members m`).Scan(&s.Total, &s.Active, &s.Suspended, &s.Former, &s.WithDebt)
	return s, err
}
