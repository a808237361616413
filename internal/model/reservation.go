package model

import "time"

// ReservationStatus is the lifecycle state of an equipment reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Blocking reports whether a reservation in this status holds its slot.
// Completed reservations lie in the past and cancelled ones free the slot.
func (s ReservationStatus) Blocking() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// Valid reports whether s is a known reservation status.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCompleted, ReservationCancelled:
		return true
	}
	return false
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationCancelled},
	ReservationConfirmed: {ReservationCompleted, ReservationCancelled},
}

// CanTransition reports whether a reservation may move from s to next.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
	for _, n := range reservationTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Overlaps reports whether the half-open ranges [s1,e1) and [s2,e2)
// intersect. Back-to-back ranges do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Reservation mirrors the `reservations` table.
type Reservation struct {
	ID          uint64            `json:"id"`                      // reservations.id
	EquipmentID uint64            `json:"equipment_id"`            // reservations.equipment_id
	MemberID    uint64            `json:"member_id"`               // reservations.member_id
	StartDate   time.Time         `json:"start_date"`              // reservations.start_date
	EndDate     time.Time         `json:"end_date"`                // reservations.end_date (exclusive)
	Status      ReservationStatus `json:"status"`                  // reservations.status
	Purpose     *string           `json:"purpose,omitempty"`       // reservations.purpose
	Notes       *string           `json:"notes,omitempty"`         // reservations.notes
	CreatedByID *uint64           `json:"created_by_id,omitempty"` // reservations.created_by_id
	CreatedAt   time.Time         `json:"created_at"`              // reservations.created_at
	UpdatedAt   time.Time         `json:"updated_at"`              // reservations.updated_at

	EquipmentName string `json:"equipment_name,omitempty"`
	MemberName    string `json:"member_name,omitempty"`
}

// Covers reports whether t falls inside [start, end).
func (r Reservation) Covers(t time.Time) bool {
	return !t.Before(r.StartDate) && t.Before(r.EndDate)
}

// OverlapsRange reports whether the reservation intersects [start, end).
func (r Reservation) OverlapsRange(start, end time.Time) bool {
	return Overlaps(r.StartDate, r.EndDate, start, end)
}
