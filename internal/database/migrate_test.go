package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	stmts := Statements()
	require.NotEmpty(t, stmts)

	var tables []string
	for _, s := range stmts {
		assert.False(t, strings.HasSuffix(s, ";"), "statement keeps its terminator: %q", s)
		assert.NotContains(t, s, "--")
		fields := strings.Fields(s)
		require.GreaterOrEqual(t, len(fields), 6)
		tables = append(tables, fields[5])
	}

	assert.Equal(t, []string{
		"schema_meta", "members", "users", "refresh_tokens", "fee_types",
		"transactions", "fees", "equipment", "reservations", "events", "event_participants",
	}, tables)
}

func TestSchemaKeepsDuplicateGuards(t *testing.T) {
	assert.Contains(t, schemaSQL, "UNIQUE KEY uq_fees_period (member_id, fee_type_id, period)")
	assert.Contains(t, schemaSQL, "UNIQUE KEY uq_participants_event_member (event_id, member_id)")
	assert.Contains(t, schemaSQL, "UNIQUE KEY uq_transactions_ref (bank_reference)")
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"club:secret@tcp(db:3306)/baltyk?charset=utf8mb4&parseTime=true&loc=UTC",
		DSN("club", "secret", "db", "3306", "baltyk"))
	assert.Equal(t,
		"root@tcp(localhost:3306)/baltyk?charset=utf8mb4&parseTime=true&loc=UTC",
		DSN("root", "", "localhost", "3306", "baltyk"))
}
