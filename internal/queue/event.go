// Package queue defines the domain events exchanged over the message broker
// together with the publisher used by the API and the consumer run by the
// notifier.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeFeePaid              = "fee.paid"
	TypeParticipantPromoted  = "participant.promoted"
	TypeReservationConfirmed = "reservation.confirmed"
	TypeReservationCancelled = "reservation.cancelled"
	TypeImportConfirmed      = "import.confirmed"
)

// Event is the envelope put on the queue. Data holds one of the payload
// types below, selected by Type.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEvent wraps a payload in an envelope with a fresh id.
func NewEvent(typ string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC(), Data: data}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error { return json.Unmarshal(e.Data, v) }

// FeePaid is published when a fee is settled, manually or by matching a
// bank transaction.
type FeePaid struct {
	FeeID         uint64  `json:"fee_id"`
	MemberID      uint64  `json:"member_id"`
	MemberName    string  `json:"member_name"`
	FeeTypeName   string  `json:"fee_type_name"`
	Amount        string  `json:"amount"`
	PaidDate      string  `json:"paid_date"`
	TransactionID *uint64 `json:"transaction_id,omitempty"`
}

// ParticipantPromoted is published when a waitlisted member gets a seat.
type ParticipantPromoted struct {
	EventID       uint64 `json:"event_id"`
	EventName     string `json:"event_name"`
	ParticipantID uint64 `json:"participant_id"`
	MemberID      uint64 `json:"member_id"`
	MemberName    string `json:"member_name"`
}

// ReservationChanged is published for confirmed and cancelled reservations.
type ReservationChanged struct {
	ReservationID uint64 `json:"reservation_id"`
	EquipmentID   uint64 `json:"equipment_id"`
	EquipmentName string `json:"equipment_name"`
	MemberID      uint64 `json:"member_id"`
	MemberName    string `json:"member_name"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Status        string `json:"status"`
}

// ImportConfirmed summarises a persisted bank statement import.
type ImportConfirmed struct {
	Batch   string `json:"batch"`
	Source  string `json:"source"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Matched int    `json:"matched"`
}
