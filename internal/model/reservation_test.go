package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestOverlapsHalfOpen(t *testing.T) {
	h := func(n int) time.Time { return time.Date(2025, 6, 1, n, 0, 0, 0, time.UTC) }

	assert.True(t, Overlaps(h(8), h(12), h(10), h(14)))
	assert.True(t, Overlaps(h(8), h(12), h(9), h(10)), "contained range")
	assert.False(t, Overlaps(h(8), h(12), h(12), h(14)), "back-to-back ranges")
	assert.False(t, Overlaps(h(8), h(10), h(11), h(14)))
}

func TestOverlapsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		s1 := rapid.IntRange(0, 200).Draw(t, "s1")
		l1 := rapid.IntRange(1, 50).Draw(t, "l1")
		s2 := rapid.IntRange(0, 200).Draw(t, "s2")
		l2 := rapid.IntRange(1, 50).Draw(t, "l2")
		at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

		a := Overlaps(at(s1), at(s1+l1), at(s2), at(s2+l2))
		b := Overlaps(at(s2), at(s2+l2), at(s1), at(s1+l1))
		if a != b {
			t.Fatalf("overlap is not symmetric")
		}
		// Brute force: some hour lies in both ranges.
		shared := false
		for h := s1; h < s1+l1; h++ {
			if h >= s2 && h < s2+l2 {
				shared = true
				break
			}
		}
		if a != shared {
			t.Fatalf("Overlaps=%v but shared hour=%v", a, shared)
		}
	})
}

func TestReservationTransitions(t *testing.T) {
	assert.True(t, ReservationPending.CanTransition(ReservationConfirmed))
	assert.True(t, ReservationPending.CanTransition(ReservationCancelled))
	assert.False(t, ReservationPending.CanTransition(ReservationCompleted))
	assert.True(t, ReservationConfirmed.CanTransition(ReservationCompleted))
	assert.True(t, ReservationConfirmed.CanTransition(ReservationCancelled))
	assert.False(t, ReservationCompleted.CanTransition(ReservationCancelled))
	assert.False(t, ReservationCancelled.CanTransition(ReservationConfirmed))
}

func TestEquipmentIsAvailable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := Equipment{ID: 1, Status: EquipmentAvailable}
	covering := Reservation{EquipmentID: 1, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}

	assert.True(t, e.IsAvailable(now, nil))

	covering.Status = ReservationConfirmed
	assert.False(t, e.IsAvailable(now, []Reservation{covering}))

	covering.Status = ReservationPending
	assert.False(t, e.IsAvailable(now, []Reservation{covering}))

	covering.Status = ReservationCancelled
	assert.True(t, e.IsAvailable(now, []Reservation{covering}))

	future := Reservation{EquipmentID: 1, Status: ReservationConfirmed, StartDate: now, EndDate: now.Add(time.Hour)}
	assert.False(t, e.IsAvailable(now, []Reservation{future}), "start is inclusive")
	ended := Reservation{EquipmentID: 1, Status: ReservationConfirmed, StartDate: now.Add(-time.Hour), EndDate: now}
	assert.True(t, e.IsAvailable(now, []Reservation{ended}), "end is exclusive")

	e.Status = EquipmentMaintenance
	assert.False(t, e.IsAvailable(now, nil))
}

func TestEquipmentNeedsMaintenance(t *testing.T) {
	today := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	e := Equipment{}
	assert.False(t, e.NeedsMaintenance(today))

	next := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.NextMaintenance = &next
	assert.True(t, e.NeedsMaintenance(today))

	later := next.AddDate(0, 0, 1)
	e.NextMaintenance = &later
	assert.False(t, e.NeedsMaintenance(today))
}
