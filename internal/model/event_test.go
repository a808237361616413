package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func intPtr(i int) *int { return &i }

func TestAdmissionStatus(t *testing.T) {
	e := Event{MaxParticipants: intPtr(2)}
	assert.Equal(t, ParticipantRegistered, e.AdmissionStatus(0))
	assert.Equal(t, ParticipantRegistered, e.AdmissionStatus(1))
	assert.Equal(t, ParticipantWaitlist, e.AdmissionStatus(2))

	unlimited := Event{}
	assert.Equal(t, ParticipantRegistered, unlimited.AdmissionStatus(1000))
	assert.Equal(t, -1, unlimited.FreeSpots(1000))
}

func TestRegistrationOpen(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	deadline := now.Add(-time.Minute)

	assert.True(t, Event{Status: EventRegistrationOpen}.RegistrationOpen(now))
	assert.True(t, Event{Status: EventFull}.RegistrationOpen(now))
	assert.False(t, Event{Status: EventPlanned}.RegistrationOpen(now))
	assert.False(t, Event{Status: EventCancelled}.RegistrationOpen(now))
	assert.False(t, Event{Status: EventRegistrationOpen, RegistrationDeadline: &deadline}.RegistrationOpen(now))
}

func TestCapacityStatus(t *testing.T) {
	e := Event{Status: EventRegistrationOpen, MaxParticipants: intPtr(2)}
	assert.Equal(t, EventFull, e.CapacityStatus(2))
	e.Status = EventFull
	assert.Equal(t, EventRegistrationOpen, e.CapacityStatus(1))
	e.Status = EventPlanned
	assert.Equal(t, EventPlanned, e.CapacityStatus(5))
}

// Max 2 with A and B confirmed: C waits, and after A cancels C is promoted.
func TestWaitlistPromotionScenario(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	e := Event{ID: 1, Status: EventRegistrationOpen, MaxParticipants: intPtr(2)}
	ps := []EventParticipant{
		{ID: 1, MemberID: 100, Status: ParticipantConfirmed, RegisteredAt: t0},
		{ID: 2, MemberID: 200, Status: ParticipantConfirmed, RegisteredAt: t0.Add(time.Minute)},
	}
	require.Equal(t, ParticipantWaitlist, e.AdmissionStatus(2))
	ps = append(ps, EventParticipant{ID: 3, MemberID: 300, Status: ParticipantWaitlist, RegisteredAt: t0.Add(2 * time.Minute)})

	require.Empty(t, PromotionCandidates(e, ps))

	ps[0].Status = ParticipantCancelled
	got := PromotionCandidates(e, ps)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(300), got[0].MemberID)
}

func TestWaitlistOrderTieBreak(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	ps := []EventParticipant{
		{ID: 9, Status: ParticipantWaitlist, RegisteredAt: t0},
		{ID: 4, Status: ParticipantWaitlist, RegisteredAt: t0},
		{ID: 2, Status: ParticipantWaitlist, RegisteredAt: t0.Add(time.Second)},
		{ID: 1, Status: ParticipantRegistered, RegisteredAt: t0.Add(-time.Hour)},
	}
	got := WaitlistOrder(ps)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{4, 9, 2}, []uint64{got[0].ID, got[1].ID, got[2].ID})
}

func TestPromotionNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 10).Draw(t, "limit")
		e := Event{Status: EventRegistrationOpen, MaxParticipants: &limit}
		n := rapid.IntRange(0, 25).Draw(t, "n")
		t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		var ps []EventParticipant
		active := 0
		for i := 0; i < n; i++ {
			st := rapid.SampledFrom([]ParticipantStatus{
				ParticipantRegistered, ParticipantConfirmed, ParticipantWaitlist, ParticipantCancelled,
			}).Draw(t, "status")
			if st.HoldsSeat() {
				if active >= limit {
					st = ParticipantWaitlist
				} else {
					active++
				}
			}
			ps = append(ps, EventParticipant{
				ID:           uint64(i + 1),
				Status:       st,
				RegisteredAt: t0.Add(time.Duration(rapid.IntRange(0, 100).Draw(t, "at")) * time.Minute),
			})
		}

		promoted := PromotionCandidates(e, ps)
		if active+len(promoted) > limit {
			t.Fatalf("active %d + promoted %d exceeds max %d", active, len(promoted), limit)
		}
		queue := WaitlistOrder(ps)
		for i, p := range promoted {
			if p.ID != queue[i].ID {
				t.Fatalf("promotion skipped a longer-waiting participant")
			}
		}
		if len(promoted) < len(queue) && active+len(promoted) < limit {
			t.Fatalf("free seat left while participants wait")
		}
	})
}

func TestPromotionsAfterCancel(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	e := Event{Status: EventFull, MaxParticipants: intPtr(2)}
	ps := []EventParticipant{
		{ID: 1, Status: ParticipantRegistered, RegisteredAt: t0},
		{ID: 2, Status: ParticipantConfirmed, RegisteredAt: t0.Add(time.Minute)},
		{ID: 3, Status: ParticipantWaitlist, RegisteredAt: t0.Add(2 * time.Minute)},
		{ID: 4, Status: ParticipantWaitlist, RegisteredAt: t0.Add(3 * time.Minute)},
	}

	got := PromotionsAfterCancel(e, ps, 2)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].ID)

	assert.Empty(t, PromotionsAfterCancel(e, ps, 3), "leaving the waitlist frees no seat")
	assert.Empty(t, PromotionsAfterCancel(e, ps, 99))
	assert.Equal(t, ParticipantConfirmed, ps[1].Status, "input is not modified")
}

func TestCancelPromotesOnlyIntoFreedSeat(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 8).Draw(t, "limit")
		e := Event{Status: EventFull, MaxParticipants: &limit}
		t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		// A consistent full event: every seat taken, the rest waiting.
		waiting := rapid.IntRange(0, 6).Draw(t, "waiting")
		var ps []EventParticipant
		for i := 0; i < limit+waiting; i++ {
			st := ParticipantWaitlist
			if i < limit {
				st = rapid.SampledFrom([]ParticipantStatus{ParticipantRegistered, ParticipantConfirmed}).Draw(t, "seat")
			}
			ps = append(ps, EventParticipant{ID: uint64(i + 1), Status: st, RegisteredAt: t0.Add(time.Duration(i) * time.Minute)})
		}
		victim := ps[rapid.IntRange(0, len(ps)-1).Draw(t, "victim")]

		got := PromotionsAfterCancel(e, ps, victim.ID)
		switch {
		case !victim.Status.HoldsSeat():
			if len(got) != 0 {
				t.Fatalf("waitlist cancellation promoted %d", len(got))
			}
		case waiting == 0:
			if len(got) != 0 {
				t.Fatalf("promoted %d with an empty waitlist", len(got))
			}
		default:
			if len(got) != 1 || got[0].ID != uint64(limit+1) {
				t.Fatalf("expected the longest-waiting participant %d, got %v", limit+1, got)
			}
		}
	})
}

func TestMemberTransitions(t *testing.T) {
	assert.True(t, MemberActive.CanTransition(MemberSuspended))
	assert.True(t, MemberActive.CanTransition(MemberFormer))
	assert.True(t, MemberSuspended.CanTransition(MemberActive))
	assert.True(t, MemberFormer.CanTransition(MemberActive))
	assert.False(t, MemberFormer.CanTransition(MemberSuspended))
	assert.False(t, MemberActive.CanTransition(MemberActive))
}

func TestNewPage(t *testing.T) {
	req := NewPageRequest(0, 500)
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, MaxPerPage, req.PerPage)

	p := NewPage([]int{1, 2}, 205, NewPageRequest(3, 100))
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 3, p.Page)

	empty := NewPage[int](nil, 0, NewPageRequest(1, 10))
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.Pages)
}
