package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MemberStatus is the lifecycle state of a member.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberFormer    MemberStatus = "former"
)

// Valid reports whether s is a known member status.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberSuspended, MemberFormer:
		return true
	}
	return false
}

// memberTransitions lists the allowed status changes. Members are never
// physically deleted; "former" is the soft-deleted state and can only be
// left by reinstating the member.
var memberTransitions = map[MemberStatus][]MemberStatus{
	MemberActive:    {MemberSuspended, MemberFormer},
	MemberSuspended: {MemberActive, MemberFormer},
	MemberFormer:    {MemberActive},
}

// CanTransition reports whether a member may move from one status to another.
func (s MemberStatus) CanTransition(to MemberStatus) bool {
	for _, next := range memberTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Member mirrors the `members` table. TotalDebt is not a column; it is
// computed from the member's pending fees whenever the member is loaded.
type Member struct {
	ID           uint64          `json:"id"`                      // members.id
	MemberNumber *string         `json:"member_number,omitempty"` // members.member_number (unique, nullable)
	FirstName    string          `json:"first_name"`              // members.first_name
	LastName     string          `json:"last_name"`               // members.last_name
	Email        string          `json:"email"`                   // members.email (unique)
	Phone        *string         `json:"phone,omitempty"`         // members.phone
	Address      *string         `json:"address,omitempty"`       // members.address
	JoinDate     time.Time       `json:"join_date"`               // members.join_date
	Status       MemberStatus    `json:"status"`                  // members.status
	Notes        *string         `json:"notes,omitempty"`         // members.notes
	DataConsent  bool            `json:"data_consent"`            // members.data_consent
	ConsentDate  *time.Time      `json:"consent_date,omitempty"`  // members.consent_date
	TotalDebt    decimal.Decimal `json:"total_debt"`              // SUM(fees.amount) WHERE status = 'pending'
	CreatedAt    time.Time       `json:"created_at"`              // members.created_at
	UpdatedAt    time.Time       `json:"updated_at"`              // members.updated_at
}

// FullName returns "First Last".
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// MemberStats summarises the member register.
type MemberStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Suspended int `json:"suspended"`
	Former    int `json:"former"`
	WithDebt  int `json:"with_debt"`
}
