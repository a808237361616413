package model

import "time"

// EquipmentType classifies club equipment.
type EquipmentType string

const (
	EquipmentKayak     EquipmentType = "kayak"
	EquipmentSailboat  EquipmentType = "sailboat"
	EquipmentSUP       EquipmentType = "sup"
	EquipmentMotorboat EquipmentType = "motorboat"
	EquipmentOther     EquipmentType = "other"
)

// Valid reports whether t is a known equipment type.
func (t EquipmentType) Valid() bool {
	switch t {
	case EquipmentKayak, EquipmentSailboat, EquipmentSUP, EquipmentMotorboat, EquipmentOther:
		return true
	}
	return false
}

// EquipmentStatus is the stored condition of a piece of equipment. Whether
// it is free right now is derived from reservations, not from this field.
type EquipmentStatus string

const (
	EquipmentAvailable   EquipmentStatus = "available"
	EquipmentReserved    EquipmentStatus = "reserved"
	EquipmentMaintenance EquipmentStatus = "maintenance"
	EquipmentRetired     EquipmentStatus = "retired"
)

// Valid reports whether s is a known equipment status.
func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentAvailable, EquipmentReserved, EquipmentMaintenance, EquipmentRetired:
		return true
	}
	return false
}

// Reservable reports whether new reservations may be taken.
func (s EquipmentStatus) Reservable() bool {
	return s == EquipmentAvailable || s == EquipmentReserved
}

// Equipment mirrors the `equipment` table.
type Equipment struct {
	ID              uint64          `json:"id"`                         // equipment.id
	Name            string          `json:"name"`                       // equipment.name
	Type            EquipmentType   `json:"type"`                       // equipment.type
	Status          EquipmentStatus `json:"status"`                     // equipment.status
	Description     *string         `json:"description,omitempty"`      // equipment.description
	InventoryNumber *string         `json:"inventory_number,omitempty"` // equipment.inventory_number (unique)
	PurchaseDate    *time.Time      `json:"purchase_date,omitempty"`    // equipment.purchase_date
	LastMaintenance *time.Time      `json:"last_maintenance,omitempty"` // equipment.last_maintenance
	NextMaintenance *time.Time      `json:"next_maintenance,omitempty"` // equipment.next_maintenance
	Notes           *string         `json:"notes,omitempty"`            // equipment.notes
	CreatedAt       time.Time       `json:"created_at"`                 // equipment.created_at
	UpdatedAt       time.Time       `json:"updated_at"`                 // equipment.updated_at
}

// NeedsMaintenance reports whether the next maintenance date has been reached.
func (e Equipment) NeedsMaintenance(today time.Time) bool {
	return e.NextMaintenance != nil && !DateOf(*e.NextMaintenance).After(DateOf(today))
}

// IsAvailable reports whether the equipment can be handed out at now: its
// stored status is available and none of the given reservations is an
// active booking covering now.
func (e Equipment) IsAvailable(now time.Time, reservations []Reservation) bool {
	if e.Status != EquipmentAvailable {
		return false
	}
	for _, r := range reservations {
		if r.EquipmentID == e.ID && r.Status.Blocking() && r.Covers(now) {
			return false
		}
	}
	return true
}

// EquipmentView is equipment with its derived flags.
type EquipmentView struct {
	Equipment
	IsAvailable      bool `json:"is_available"`
	NeedsMaintenance bool `json:"needs_maintenance"`
}

// EquipmentStats counts equipment by status and type.
type EquipmentStats struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	ByType           map[string]int `json:"by_type"`
	NeedsMaintenance int            `json:"needs_maintenance"`
	ActiveNow        int            `json:"reserved_now"`
}
