package bus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddy/internal/assistant"
)

type hub struct {
	srv   *httptest.Server
	conns chan *ws.Conn
}

func newHub(t *testing.T) *hub {
	t.Helper()

	h := &hub{conns: make(chan *ws.Conn, 4)}
	up := ws.Upgrader{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.conns <- conn
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hub) url() string { return "ws" + strings.TrimPrefix(h.srv.URL, "http") }

func (h *hub) accept(t *testing.T) *ws.Conn {
	t.Helper()
	select {
	case c := <-h.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not connect")
		return nil
	}
}

func readFrame(t *testing.T, c *ws.Conn) map[string]any {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestPublishesStateOnConnect(t *testing.T) {
	h := newHub(t)
	b := New(h.url(), 50*time.Millisecond, func(context.Context, assistant.Intent) error { return nil })
	b.Publish(assistant.Snapshot{ActiveID: "chat-1", Loading: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	conn := h.accept(t)
	m := readFrame(t, conn)
	assert.Equal(t, KindState, m["kind"])

	state := m["state"].(map[string]any)
	assert.Equal(t, "chat-1", state["activeId"])
	assert.Equal(t, true, state["loading"])
	assert.Equal(t, "idle", state["state"])
}

func TestDispatchesIntents(t *testing.T) {
	h := newHub(t)

	got := make(chan assistant.Intent, 2)
	b := New(h.url(), 50*time.Millisecond, func(_ context.Context, in assistant.Intent) error {
		got <- in
		if in.Kind == assistant.IntentSend {
			return errors.New("a request is already in progress")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	conn := h.accept(t)
	require.NoError(t, conn.WriteJSON(Message{Kind: "select", ID: "abc"}))
	require.NoError(t, conn.WriteJSON(Message{Kind: "send", Text: "Hello"}))

	var seen []assistant.Intent
	for len(seen) < 2 {
		select {
		case in := <-got:
			seen = append(seen, in)
		case <-time.After(2 * time.Second):
			t.Fatal("intent not dispatched")
		}
	}
	assert.ElementsMatch(t, []assistant.Intent{
		{Kind: assistant.IntentSelect, ID: "abc"},
		{Kind: assistant.IntentSend, Text: "Hello"},
	}, seen)

	m := readFrame(t, conn)
	assert.Equal(t, KindError, m["kind"])
	assert.Equal(t, "a request is already in progress", m["text"])
}

func TestReconnects(t *testing.T) {
	h := newHub(t)
	b := New(h.url(), 20*time.Millisecond, func(context.Context, assistant.Intent) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	first := h.accept(t)
	first.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "bye"))
	first.Close()

	second := h.accept(t)
	assert.NotNil(t, second)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
