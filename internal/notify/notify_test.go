package notify

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
)

func testConfig(server string) config.NtfyConfig {
	return config.NtfyConfig{Server: server, Topic: "club", Token: "tk", PriorityNormal: 3, PriorityHigh: 4}
}

func TestNtfySend(t *testing.T) {
	var got *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	n := NewNtfy(testConfig(srv.URL + "/"))
	err := n.Send(context.Background(), Message{Title: "Wpłata: Łukasz", Body: "120.00 PLN", Priority: 4, Tags: []string{"a", "b"}})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/club", got.URL.Path)
	assert.Equal(t, "4", got.Header.Get("Priority"))
	assert.Equal(t, "a,b", got.Header.Get("Tags"))
	assert.Equal(t, "Bearer tk", got.Header.Get("Authorization"))
	title, err := new(mime.WordDecoder).DecodeHeader(got.Header.Get("Title"))
	require.NoError(t, err)
	assert.Equal(t, "Wpłata: Łukasz", title)
	assert.Equal(t, "120.00 PLN", body)
}

func TestNtfySendFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic limit", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewNtfy(testConfig(srv.URL)).Send(context.Background(), Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic limit")
}

type captured struct{ msgs []Message }

func (c *captured) Send(_ context.Context, m Message) error {
	c.msgs = append(c.msgs, m)
	return nil
}

func TestNotifierRendersImportPriority(t *testing.T) {
	sink := &captured{}
	n := NewNotifier(sink, testConfig(""))

	ev, err := queue.NewEvent(queue.TypeImportConfirmed, queue.ImportConfirmed{Batch: "b", Created: 5, Matched: 3, Skipped: 1}, time.Now())
	require.NoError(t, err)
	require.NoError(t, n.Handle(context.Background(), ev))

	require.Len(t, sink.msgs, 1)
	assert.Equal(t, 4, sink.msgs[0].Priority)
	assert.Contains(t, sink.msgs[0].Body, "Do ręcznego: 2")

	ev, err = queue.NewEvent(queue.TypeImportConfirmed, queue.ImportConfirmed{Created: 2, Matched: 2}, time.Now())
	require.NoError(t, err)
	msg, ok, err := n.Render(ev)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, msg.Priority)
}

func TestNotifierIgnoresUnknownTypes(t *testing.T) {
	sink := &captured{}
	n := NewNotifier(sink, testConfig(""))
	require.NoError(t, n.Handle(context.Background(), queue.Event{ID: "1", Type: "member.created"}))
	assert.Empty(t, sink.msgs)
}

func TestNotifierRejectsBrokenPayload(t *testing.T) {
	n := NewNotifier(&captured{}, testConfig(""))
	err := n.Handle(context.Background(), queue.Event{Type: queue.TypeFeePaid, Data: []byte(`{"fee_id":"x"}`)})
	assert.Error(t, err)
}
