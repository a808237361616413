// Package repository defines the data access layer and the error types that
// are reused across it. Four sentinel values classify every failure the
// higher layers care about; specific errors wrap one of them so handlers can
// map them to HTTP statuses with errors.Is and still pick a precise message.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrValidation is returned for malformed or out-of-range input.
// Handlers translate it into an HTTP 400 response.
var ErrValidation = errors.New("validation")

// ErrNotFound is returned when a referenced row does not exist.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation their
// role or ownership does not allow. Handlers translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state, such as an overlapping reservation or paying a fee
// twice. Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// Coded is a classified error with a stable machine-readable code. The code
// doubles as the message catalogue key.
type Coded struct {
	Code string
	Kind error
}

func (e *Coded) Error() string { return strings.ReplaceAll(e.Code, "_", " ") }

// Unwrap exposes the sentinel so errors.Is works.
func (e *Coded) Unwrap() error { return e.Kind }

func coded(kind error, code string) *Coded { return &Coded{Code: code, Kind: kind} }

// Specific errors. Each wraps one sentinel.
var (
	ErrInvalidCredentials = coded(ErrValidation, "invalid_credentials")
	ErrInvalidDateRange   = coded(ErrValidation, "invalid_date_range")
	ErrInvalidStatus      = coded(ErrValidation, "invalid_status")
	ErrInvalidCategory    = coded(ErrValidation, "invalid_category")
	ErrInvalidAmount      = coded(ErrValidation, "invalid_amount")
	ErrFeeMemberMismatch  = coded(ErrValidation, "fee_member_mismatch")
	ErrNoTransactions     = coded(ErrValidation, "no_transactions")
	ErrUnknownFormat      = coded(ErrValidation, "unknown_format")
	ErrWeakPassword       = coded(ErrValidation, "weak_password")

	ErrUserNotFound        = coded(ErrNotFound, "user_not_found")
	ErrMemberNotFound      = coded(ErrNotFound, "member_not_found")
	ErrFeeNotFound         = coded(ErrNotFound, "fee_not_found")
	ErrFeeTypeNotFound     = coded(ErrNotFound, "fee_type_not_found")
	ErrTransactionNotFound = coded(ErrNotFound, "transaction_not_found")
	ErrEquipmentNotFound   = coded(ErrNotFound, "equipment_not_found")
	ErrReservationNotFound = coded(ErrNotFound, "reservation_not_found")
	ErrEventNotFound       = coded(ErrNotFound, "event_not_found")
	ErrParticipantNotFound = coded(ErrNotFound, "participant_not_found")
	ErrReportEmpty         = coded(ErrNotFound, "report_empty")

	ErrNotOwnRegistration = coded(ErrForbidden, "not_own_registration")
	ErrAccountInactive    = coded(ErrForbidden, "account_inactive")

	ErrEmailExists          = coded(ErrConflict, "email_exists")
	ErrMemberNumberExists   = coded(ErrConflict, "member_number_exists")
	ErrInventoryExists      = coded(ErrConflict, "inventory_number_exists")
	ErrMemberTransition     = coded(ErrConflict, "member_status_transition")
	ErrMemberNotActive      = coded(ErrConflict, "member_not_active")
	ErrFeeTypeInactive      = coded(ErrConflict, "fee_type_inactive")
	ErrFeeTypeInUse         = coded(ErrConflict, "fee_type_in_use")
	ErrFeeNotPayable        = coded(ErrConflict, "fee_not_payable")
	ErrFeeExists            = coded(ErrConflict, "fee_exists")
	ErrAlreadyMatched       = coded(ErrConflict, "transaction_already_matched")
	ErrReferenceExists      = coded(ErrConflict, "bank_reference_exists")
	ErrEquipmentUnavailable = coded(ErrConflict, "equipment_unavailable")
	ErrReservationOverlap   = coded(ErrConflict, "reservation_overlap")
	ErrReservationState     = coded(ErrConflict, "reservation_status_transition")
	ErrRegistrationClosed   = coded(ErrConflict, "registration_closed")
	ErrAlreadyRegistered    = coded(ErrConflict, "already_registered")
	ErrParticipantState     = coded(ErrConflict, "participant_status_transition")
	ErrEventFull            = coded(ErrConflict, "event_full")
	ErrCapacityBelowActive  = coded(ErrConflict, "capacity_below_active")
	ErrEventState           = coded(ErrConflict, "event_status_transition")
)

// Invalid builds an ad-hoc validation error for a named field.
func Invalid(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrValidation)
}

// Code returns the most specific code carried by err, falling back to the
// sentinel class ("validation", "not_found", ...). Unclassified errors
// yield "internal".
func Code(err error) string {
	var c *Coded
	if errors.As(err, &c) {
		return c.Code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal"
}

// erDupEntry is MySQL's ER_DUP_ENTRY.
const erDupEntry = 1062

// isDuplicate reports a MySQL duplicate-key error.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}

// duplicateKey reports whether err is a duplicate-key error on the named
// unique index.
func duplicateKey(err error, key string) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry && strings.Contains(me.Message, key)
}
