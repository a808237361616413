package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so that read helpers can be
// shared between plain and transactional methods.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// whereClause joins conditions with AND; no conditions yields "1=1".
func whereClause(conds []string) string {
	if len(conds) == 0 {
		return "1=1"
	}
	return strings.Join(conds, " AND ")
}

// likePattern builds a case-insensitive LIKE argument.
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.ToLower(strings.TrimSpace(s)))
	return "%" + s + "%"
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func u64Ptr(ni sql.NullInt64) *uint64 {
	if !ni.Valid {
		return nil
	}
	v := uint64(ni.Int64)
	return &v
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// nullable converts optional values for use as query arguments.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// dateArg formats a calendar date for DATE columns.
func dateArg(t time.Time) string { return t.Format("2006-01-02") }

// nullDateArg is dateArg for optional dates.
func nullDateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dateArg(*t)
}

// limitOffset appends LIMIT/OFFSET when limit is positive.
func limitOffset(q string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 {
		return q, args
	}
	return q + " LIMIT ? OFFSET ?", append(args, limit, offset)
}
