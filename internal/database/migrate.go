package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"strconv"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is bumped whenever schema.sql changes.
const SchemaVersion = 1

// Statements splits the embedded schema into single statements. Comment
// lines are dropped.
func Statements() []string {
	var (
		out []string
		buf strings.Builder
	)
	for _, line := range strings.Split(schemaSQL, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(buf.String()), ";")
			out = append(out, stmt)
			buf.Reset()
		}
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Migrate applies the embedded schema if the recorded version is older.
// Every statement is idempotent (CREATE TABLE IF NOT EXISTS), so a partially
// applied run can simply be repeated.
func Migrate(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		log.Printf("database: schema at version %d", current)
		return nil
	}
	for i, stmt := range Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO schema_meta (meta_key, meta_value) VALUES ('schema_version', ?)
		 ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`,
		strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	log.Printf("database: migrated schema %d -> %d", current, SchemaVersion)
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_name = 'schema_meta'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	var v string
	err = db.QueryRowContext(ctx,
		`SELECT meta_value FROM schema_meta WHERE meta_key = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return strconv.Atoi(v)
}
