package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency describes how often a fee type is charged.
type Frequency string

const (
	FrequencyYearly  Frequency = "yearly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyOneTime Frequency = "one_time"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyYearly, FrequencyMonthly, FrequencyOneTime:
		return true
	}
	return false
}

// FeeStatus is either a stored fee status or the derived display status.
// FeeOverdue is never written to the database.
type FeeStatus string

const (
	FeePending   FeeStatus = "pending"
	FeePaid      FeeStatus = "paid"
	FeeCancelled FeeStatus = "cancelled"
	FeeOverdue   FeeStatus = "overdue"
)

// ValidDisplay reports whether s may be used as a list filter.
func (s FeeStatus) ValidDisplay() bool {
	switch s {
	case FeePending, FeePaid, FeeCancelled, FeeOverdue:
		return true
	}
	return false
}

// FeeType is a fee template (`fee_types` table).
type FeeType struct {
	ID          uint64          `json:"id"`                    // fee_types.id
	Name        string          `json:"name"`                  // fee_types.name
	Amount      decimal.Decimal `json:"amount"`                // fee_types.amount DECIMAL(10,2)
	Frequency   Frequency       `json:"frequency"`             // fee_types.frequency
	DueDay      *int            `json:"due_day,omitempty"`     // fee_types.due_day
	DueMonth    *int            `json:"due_month,omitempty"`   // fee_types.due_month
	IsActive    bool            `json:"is_active"`             // fee_types.is_active
	Description *string         `json:"description,omitempty"` // fee_types.description
	CreatedAt   time.Time       `json:"created_at"`            // fee_types.created_at
}

// DueDateFor computes the template due date of the period containing today.
// Yearly fees fall on due_month/due_day (default 31 January), monthly fees on
// due_day of the current month (default the 10th), one-time fees are due today.
func (ft FeeType) DueDateFor(today time.Time) time.Time {
	day := 0
	if ft.DueDay != nil {
		day = *ft.DueDay
	}
	switch ft.Frequency {
	case FrequencyYearly:
		month := time.January
		if ft.DueMonth != nil && *ft.DueMonth >= 1 && *ft.DueMonth <= 12 {
			month = time.Month(*ft.DueMonth)
		}
		if day == 0 {
			day = 31
		}
		return clampDay(today.Year(), month, day)
	case FrequencyMonthly:
		if day == 0 {
			day = 10
		}
		return clampDay(today.Year(), today.Month(), day)
	default:
		return DateOf(today)
	}
}

// BillingPeriod returns the period key used to detect duplicate fees: the
// year for yearly fees, year-month for monthly fees and a constant for
// one-time fees, which a member is charged at most once.
func BillingPeriod(freq Frequency, due time.Time) string {
	switch freq {
	case FrequencyYearly:
		return fmt.Sprintf("%04d", due.Year())
	case FrequencyMonthly:
		return fmt.Sprintf("%04d-%02d", due.Year(), int(due.Month()))
	default:
		return "once"
	}
}

// Fee is a single charge owed by a member (`fees` table).
type Fee struct {
	ID            uint64          `json:"id"`                       // fees.id
	MemberID      uint64          `json:"member_id"`                // fees.member_id
	FeeTypeID     uint64          `json:"fee_type_id"`              // fees.fee_type_id
	Amount        decimal.Decimal `json:"amount"`                   // fees.amount
	DueDate       time.Time       `json:"due_date"`                 // fees.due_date
	Period        string          `json:"period"`                   // fees.period
	Status        FeeStatus       `json:"status"`                   // fees.status (pending|paid|cancelled)
	PaidDate      *time.Time      `json:"paid_date,omitempty"`      // fees.paid_date
	TransactionID *uint64         `json:"transaction_id,omitempty"` // fees.transaction_id
	Notes         *string         `json:"notes,omitempty"`          // fees.notes
	CreatedAt     time.Time       `json:"created_at"`               // fees.created_at
	UpdatedAt     time.Time       `json:"updated_at"`               // fees.updated_at

	// Joined columns, filled by list queries.
	MemberName  string `json:"member_name,omitempty"`
	FeeTypeName string `json:"fee_type_name,omitempty"`
}

// IsOverdue reports whether the fee is pending and past its due date.
func (f Fee) IsOverdue(today time.Time) bool {
	return f.Status == FeePending && DateOf(f.DueDate).Before(DateOf(today))
}

// DisplayStatus derives the status shown to users.
func (f Fee) DisplayStatus(today time.Time) FeeStatus {
	if f.IsOverdue(today) {
		return FeeOverdue
	}
	return f.Status
}

// DaysOverdue is zero unless the fee is overdue.
func (f Fee) DaysOverdue(today time.Time) int {
	if !f.IsOverdue(today) {
		return 0
	}
	return int(DateOf(today).Sub(DateOf(f.DueDate)).Hours() / 24)
}

// Payable reports whether the fee can still be marked paid.
func (f Fee) Payable() bool {
	return f.Status == FeePending
}

// FeeView is a fee as returned by the API, with the derived fields filled.
type FeeView struct {
	Fee
	DisplayStatus FeeStatus `json:"display_status"`
	IsOverdue     bool      `json:"is_overdue"`
	DaysOverdue   int       `json:"days_overdue"`
}

// View derives the read-time fields of f as of today.
func (f Fee) View(today time.Time) FeeView {
	return FeeView{
		Fee:           f,
		DisplayStatus: f.DisplayStatus(today),
		IsOverdue:     f.IsOverdue(today),
		DaysOverdue:   f.DaysOverdue(today),
	}
}

// FeeStats aggregates fees of one year by display status.
type FeeStats struct {
	Year           int             `json:"year"`
	TotalCount     int             `json:"total_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidCount      int             `json:"paid_count"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PendingCount   int             `json:"pending_count"`
	PendingAmount  decimal.Decimal `json:"pending_amount"`
	OverdueCount   int             `json:"overdue_count"`
	OverdueAmount  decimal.Decimal `json:"overdue_amount"`
	CollectionRate float64         `json:"collection_rate"`
}

// GenerateResult reports the outcome of a bulk fee generation.
type GenerateResult struct {
	FeeTypeID uint64    `json:"fee_type_id"`
	DueDate   time.Time `json:"due_date"`
	Period    string    `json:"period"`
	Created   int       `json:"created"`
	Skipped   int       `json:"skipped"`
}
