// Package bus mirrors the assistant state to a WebSocket hub and accepts
// intents from remote UIs connected to the same hub.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"buddy/internal/assistant"
)

const (
	KindState = "state"
	KindError = "error"

	writeTimeout = 5 * time.Second
)

// Message is the frame exchanged with the hub. Outbound frames carry the
// state; inbound frames carry an intent kind with its argument.
type Message struct {
	Kind  string              `json:"kind"`
	State *assistant.Snapshot `json:"state,omitempty"`
	Text  string              `json:"text,omitempty"`
	ID    string              `json:"id,omitempty"`
}

type Handler func(ctx context.Context, in assistant.Intent) error

type Bus struct {
	url    string
	reconn time.Duration
	handle Handler

	mu   sync.Mutex
	last *assistant.Snapshot
	kick chan struct{}

	wmu  sync.Mutex
	conn *ws.Conn
}

func New(url string, reconn time.Duration, handle Handler) *Bus {
	if reconn <= 0 {
		reconn = 3 * time.Second
	}
	return &Bus{
		url:    url,
		reconn: reconn,
		handle: handle,
		kick:   make(chan struct{}, 1),
	}
}

// Publish records snap as the latest state and wakes the writer. Older
// unsent states are superseded.
func (b *Bus) Publish(snap assistant.Snapshot) {
	b.mu.Lock()
	b.last = &snap
	b.mu.Unlock()

	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Run keeps a connection to the hub until ctx is done, redialling after
// every failure.
func (b *Bus) Run(ctx context.Context) error {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, b.url, nil)
		if err == nil {
			log.Info("Connected to bus", "url", b.url)
			err = b.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsClosed(err) {
			log.Info("Bus closed the connection", "url", b.url)
		} else {
			log.Warn("Bus connection failed", "url", b.url, "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.reconn):
		}
	}
}

func (b *Bus) serve(parent context.Context, conn *ws.Conn) error {
	b.wmu.Lock()
	b.conn = conn
	b.wmu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		b.wmu.Lock()
		b.conn = nil
		b.wmu.Unlock()
		conn.Close()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go b.writeLoop(ctx)

	// A fresh connection gets the current state right away.
	b.mu.Lock()
	has := b.last != nil
	b.mu.Unlock()
	if has {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Warn("Bad bus message", "err", err)
			continue
		}
		if m.Kind == "" || m.Kind == KindState || m.Kind == KindError {
			continue
		}

		in := assistant.Intent{Kind: assistant.IntentKind(m.Kind), Text: m.Text, ID: m.ID}
		log.Debug("Bus intent", "kind", in.Kind)
		// Intents outlive the connection that delivered them.
		go func() {
			if err := b.handle(parent, in); err != nil {
				log.Warn("Bus intent rejected", "kind", in.Kind, "err", err)
				b.write(Message{Kind: KindError, Text: err.Error()})
			}
		}()
	}
}

func (b *Bus) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
		}

		b.mu.Lock()
		snap := b.last
		b.mu.Unlock()
		if snap == nil {
			continue
		}

		if err := b.write(Message{Kind: KindState, State: snap}); err != nil {
			log.Debug("Bus write failed", "err", err)
			return
		}
	}
}

func (b *Bus) write(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b.wmu.Lock()
	defer b.wmu.Unlock()
	if b.conn == nil {
		return errors.New("not connected")
	}
	b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return b.conn.WriteMessage(ws.TextMessage, data)
}

func IsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
