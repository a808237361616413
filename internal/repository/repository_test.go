package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestOverlapQueryLocksRows(t *testing.T) {
	q := strings.Join(strings.Fields(overlapQuery), " ")
	assert.True(t, strings.HasSuffix(q, "FOR UPDATE OF r"), q)
	assert.Contains(t, q, "r.status IN ('pending','confirmed')")
	assert.Contains(t, q, "r.start_date < ? AND ? < r.end_date")
}

func TestIsDuplicate(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.pl' for key 'members.uq_members_email'"}

	assert.True(t, isDuplicate(dup))
	assert.True(t, isDuplicate(fmt.Errorf("insert member: %w", dup)))
	assert.True(t, duplicateKey(dup, "uq_members_email"))
	assert.False(t, duplicateKey(dup, "uq_members_number"))

	assert.False(t, isDuplicate(nil))
	assert.False(t, isDuplicate(errors.New("row 1062 rejected")))
	assert.False(t, isDuplicate(&mysql.MySQLError{Number: 1452, Message: "foreign key 1062"}))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "member_not_found", Code(ErrMemberNotFound))
	assert.Equal(t, "reservation_overlap", Code(&OverlapError{}))
	assert.Equal(t, "validation", Code(Invalid("email", "required")))
	assert.Equal(t, "internal", Code(errors.New("boom")))
}
