package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType separates income from expenses.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// Categories per transaction type.
var (
	IncomeCategories = []string{
		"fees", "donations", "grants", "events_income", "equipment_rental", "other_income",
	}
	ExpenseCategories = []string{
		"administration", "statutory_activities", "equipment_purchase", "equipment_maintenance",
		"events_expense", "training", "rent", "other_expense",
	}
)

// DefaultCategory is assigned to imported transactions of the given type.
func DefaultCategory(t TransactionType) string {
	if t == TransactionExpense {
		return "other_expense"
	}
	return "fees"
}

// ValidCategory reports whether category belongs to the transaction type.
func ValidCategory(t TransactionType, category string) bool {
	list := IncomeCategories
	if t == TransactionExpense {
		list = ExpenseCategories
	}
	for _, c := range list {
		if c == category {
			return true
		}
	}
	return false
}

// MatchConfidence records how a transaction was linked to a member.
type MatchConfidence string

const (
	MatchAuto   MatchConfidence = "auto"
	MatchManual MatchConfidence = "manual"
)

// Import sources.
const (
	SourceManual = "manual"
	SourceMT940  = "mt940"
	SourceCSV    = "csv"
)

// Transaction mirrors the `transactions` table. Amount is always positive;
// the direction is carried by Type.
type Transaction struct {
	ID              uint64           `json:"id"`                       // transactions.id
	Date            time.Time        `json:"date"`                     // transactions.date
	Amount          decimal.Decimal  `json:"amount"`                   // transactions.amount
	Type            TransactionType  `json:"type"`                     // transactions.type
	Category        string           `json:"category"`                 // transactions.category
	Description     *string          `json:"description,omitempty"`    // transactions.description
	Counterparty    *string          `json:"counterparty,omitempty"`   // transactions.counterparty
	BankReference   *string          `json:"bank_reference,omitempty"` // transactions.bank_reference (unique)
	MatchedMemberID *uint64          `json:"matched_member_id"`        // transactions.matched_member_id
	MatchConfidence *MatchConfidence `json:"match_confidence"`         // transactions.match_confidence
	ImportSource    string           `json:"import_source"`            // transactions.import_source
	ImportBatch     *string          `json:"import_batch,omitempty"`   // transactions.import_batch
	ImportedAt      *time.Time       `json:"imported_at,omitempty"`    // transactions.imported_at
	CreatedByID     *uint64          `json:"created_by_id,omitempty"`  // transactions.created_by_id
	CreatedAt       time.Time        `json:"created_at"`               // transactions.created_at
	UpdatedAt       time.Time        `json:"updated_at"`               // transactions.updated_at

	MatchedMemberName string `json:"matched_member_name,omitempty"`
}

// IsMatched reports whether the transaction is linked to a member.
func (t Transaction) IsMatched() bool {
	return t.MatchedMemberID != nil
}

// CategoryTotal is one row of a per-category aggregate.
type CategoryTotal struct {
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// Balance is income, expenses and their difference over a window.
type Balance struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
}

// NewBalance computes the difference.
func NewBalance(income, expenses decimal.Decimal) Balance {
	return Balance{Income: income, Expenses: expenses, Balance: income.Sub(expenses)}
}

// FinanceStats is the per-year breakdown by category and month.
type FinanceStats struct {
	Year       int             `json:"year"`
	Totals     Balance         `json:"totals"`
	ByCategory []CategoryTotal `json:"by_category"`
	Unmatched  int             `json:"unmatched_income"`
}
