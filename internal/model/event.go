package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// EventType classifies association events.
type EventType string

const (
	EventCruise    EventType = "cruise"
	EventKayakTrip EventType = "kayak_trip"
	EventTraining  EventType = "training"
	EventMeeting   EventType = "meeting"
	EventOther     EventType = "other"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventCruise, EventKayakTrip, EventTraining, EventMeeting, EventOther:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventPlanned          EventStatus = "planned"
	EventRegistrationOpen EventStatus = "registration_open"
	EventFull             EventStatus = "full"
	EventOngoing          EventStatus = "ongoing"
	EventCompleted        EventStatus = "completed"
	EventCancelled        EventStatus = "cancelled"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPlanned, EventRegistrationOpen, EventFull, EventOngoing, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// ParticipantStatus is the state of one member's registration.
type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantWaitlist   ParticipantStatus = "waitlist"
	ParticipantConfirmed  ParticipantStatus = "confirmed"
	ParticipantCancelled  ParticipantStatus = "cancelled"
)

// HoldsSeat reports whether the participant counts against capacity.
func (s ParticipantStatus) HoldsSeat() bool {
	return s == ParticipantRegistered || s == ParticipantConfirmed
}

// Event mirrors the `events` table. A nil MaxParticipants means unlimited.
type Event struct {
	ID                   uint64           `json:"id"`                              // events.id
	Name                 string           `json:"name"`                            // events.name
	Type                 EventType        `json:"event_type"`                      // events.event_type
	Description          *string          `json:"description,omitempty"`           // events.description
	Location             *string          `json:"location,omitempty"`              // events.location
	StartDate            time.Time        `json:"start_date"`                      // events.start_date
	EndDate              *time.Time       `json:"end_date,omitempty"`              // events.end_date
	RegistrationDeadline *time.Time       `json:"registration_deadline,omitempty"` // events.registration_deadline
	MaxParticipants      *int             `json:"max_participants,omitempty"`      // events.max_participants
	Status               EventStatus      `json:"status"`                          // events.status
	Cost                 *decimal.Decimal `json:"cost,omitempty"`                  // events.cost
	Notes                *string          `json:"notes,omitempty"`                 // events.notes
	CreatedByID          *uint64          `json:"created_by_id,omitempty"`         // events.created_by_id
	CreatedAt            time.Time        `json:"created_at"`                      // events.created_at
	UpdatedAt            time.Time        `json:"updated_at"`                      // events.updated_at
}

// RegistrationOpen reports whether new registrations are accepted at now.
// A full event still accepts registrations; they land on the waitlist.
func (e Event) RegistrationOpen(now time.Time) bool {
	if e.Status != EventRegistrationOpen && e.Status != EventFull {
		return false
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return false
	}
	return true
}

// HasCapacity reports whether one more participant fits beside active.
func (e Event) HasCapacity(active int) bool {
	return e.MaxParticipants == nil || active < *e.MaxParticipants
}

// FreeSpots returns the remaining seats, or -1 for unlimited events.
func (e Event) FreeSpots(active int) int {
	if e.MaxParticipants == nil {
		return -1
	}
	if n := *e.MaxParticipants - active; n > 0 {
		return n
	}
	return 0
}

// AdmissionStatus decides where a new registration goes given the number
// of registered plus confirmed participants.
func (e Event) AdmissionStatus(active int) ParticipantStatus {
	if e.HasCapacity(active) {
		return ParticipantRegistered
	}
	return ParticipantWaitlist
}

// CapacityStatus returns the open/full status matching the active count.
// Statuses other than registration_open and full are left alone.
func (e Event) CapacityStatus(active int) EventStatus {
	if e.Status != EventRegistrationOpen && e.Status != EventFull {
		return e.Status
	}
	if e.HasCapacity(active) {
		return EventRegistrationOpen
	}
	return EventFull
}

// EventParticipant mirrors the `event_participants` table.
type EventParticipant struct {
	ID           uint64            `json:"id"`              // event_participants.id
	EventID      uint64            `json:"event_id"`        // event_participants.event_id
	MemberID     uint64            `json:"member_id"`       // event_participants.member_id
	Status       ParticipantStatus `json:"status"`          // event_participants.status
	RegisteredAt time.Time         `json:"registered_at"`   // event_participants.registered_at
	Notes        *string           `json:"notes,omitempty"` // event_participants.notes

	MemberName string `json:"member_name,omitempty"`
}

// WaitlistOrder returns the waitlisted participants, longest-waiting first.
// Ties on registered_at are broken by id.
func WaitlistOrder(ps []EventParticipant) []EventParticipant {
	out := make([]EventParticipant, 0, len(ps))
	for _, p := range ps {
		if p.Status == ParticipantWaitlist {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PromotionCandidates picks the waitlisted participants that fit into the
// free seats of e, in promotion order.
func PromotionCandidates(e Event, ps []EventParticipant) []EventParticipant {
	active := 0
	for _, p := range ps {
		if p.Status.HoldsSeat() {
			active++
		}
	}
	queue := WaitlistOrder(ps)
	free := e.FreeSpots(active)
	if free < 0 || free > len(queue) {
		free = len(queue)
	}
	return queue[:free]
}

// PromotionsAfterCancel picks the waitlisted participants that move up when
// participant cancelledID withdraws. Only a cancelled seat frees room, so
// withdrawing from the waitlist promotes nobody.
func PromotionsAfterCancel(e Event, ps []EventParticipant, cancelledID uint64) []EventParticipant {
	after := make([]EventParticipant, 0, len(ps))
	freed := false
	for _, p := range ps {
		if p.ID == cancelledID {
			freed = p.Status.HoldsSeat()
			p.Status = ParticipantCancelled
		}
		after = append(after, p)
	}
	if !freed {
		return nil
	}
	return PromotionCandidates(e, after)
}

// EventView is an event with its participant counts.
type EventView struct {
	Event
	ParticipantCount int  `json:"participant_count"`
	WaitlistCount    int  `json:"waitlist_count"`
	SpotsAvailable   *int `json:"spots_available,omitempty"`
}

// NewEventView fills the counters.
func NewEventView(e Event, active, waitlist int) EventView {
	v := EventView{Event: e, ParticipantCount: active, WaitlistCount: waitlist}
	if free := e.FreeSpots(active); free >= 0 {
		v.SpotsAvailable = &free
	}
	return v
}

// EventStats summarises events of one year.
type EventStats struct {
	Year              int            `json:"year"`
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"by_status"`
	ByType            map[string]int `json:"by_type"`
	TotalParticipants int            `json:"total_participants"`
	Upcoming          int            `json:"upcoming"`
}
