package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	ev, err := NewEvent(TypeParticipantPromoted, ParticipantPromoted{
		EventID: 7, EventName: "Rejs po Zatoce", ParticipantID: 3, MemberID: 12, MemberName: "Anna Nowak",
	}, at)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())

	body, err := json.Marshal(ev)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(body, &got))
	var p ParticipantPromoted
	require.NoError(t, got.Decode(&p))
	assert.Equal(t, "Anna Nowak", p.MemberName)
	assert.Equal(t, uint64(7), p.EventID)
}

func TestHandleDelivery(t *testing.T) {
	var seen []string
	h := func(_ context.Context, ev Event) error {
		seen = append(seen, ev.Type)
		if ev.Type == TypeImportConfirmed {
			return errors.New("boom")
		}
		return nil
	}
	ctx := context.Background()

	ev, err := NewEvent(TypeFeePaid, FeePaid{FeeID: 1}, time.Now())
	require.NoError(t, err)
	body, _ := json.Marshal(ev)
	assert.NoError(t, handleDelivery(ctx, body, h))

	ev.Type = TypeImportConfirmed
	body, _ = json.Marshal(ev)
	assert.Error(t, handleDelivery(ctx, body, h))

	assert.Error(t, handleDelivery(ctx, []byte("{not json"), h))
	assert.Error(t, handleDelivery(ctx, []byte(`{"id":"x"}`), h))
	assert.Equal(t, []string{TypeFeePaid, TypeImportConfirmed}, seen)
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeFeePaid}))

	p = &Publisher{on: false}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeFeePaid}))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}
