package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"buddy/internal/session"
	"buddy/internal/voice"
)

// backend fakes every remote capability the assistant uses.
type backend struct {
	mu       sync.Mutex
	prompts  []string
	clips    []voice.Clip
	stops    int
	complete func(ctx context.Context, prompt string) (string, error)
	text     string
	sttErr   error
	stopFn   func(ctx context.Context) (bool, error)
	healthy  bool
	healthEr error
}

func (b *backend) Complete(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	fn := b.complete
	b.mu.Unlock()
	if fn == nil {
		return "", errors.New("no completion configured")
	}
	return fn(ctx, prompt)
}

func (b *backend) Transcribe(_ context.Context, clip voice.Clip) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clips = append(b.clips, clip)
	return b.text, b.sttErr
}

func (b *backend) Stop(ctx context.Context) (bool, error) {
	b.mu.Lock()
	b.stops++
	fn := b.stopFn
	b.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn(ctx)
}

func (b *backend) Health(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthy, b.healthEr
}

func (b *backend) promptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

func reply(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

func newTestAssistant(b *backend) *Assistant {
	return New(session.NewStore(), Config{Completer: b, Transcriber: b, Stopper: b, Health: b})
}

// micDevice hands out one scripted recording per Open.
type micDevice struct {
	frames  [][]float32
	drained chan struct{}
}

func (d *micDevice) Open(context.Context) (voice.Handle, error) {
	d.drained = make(chan struct{})
	return &micHandle{frames: append([][]float32(nil), d.frames...), drained: d.drained}, nil
}

type micHandle struct {
	mu      sync.Mutex
	frames  [][]float32
	drained chan struct{}
	once    sync.Once
}

func (h *micHandle) SampleRate() int { return voice.DefaultSampleRate }

func (h *micHandle) Read() ([]float32, error) {
	h.mu.Lock()
	if len(h.frames) > 0 {
		f := h.frames[0]
		h.frames = h.frames[1:]
		h.mu.Unlock()
		return f, nil
	}
	h.mu.Unlock()
	h.once.Do(func() { close(h.drained) })
	time.Sleep(time.Millisecond)
	return nil, nil
}

func (h *micHandle) Close() error { return nil }

type failingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (s *failingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return s.err
}

// watchStates records every distinct orchestrator state seen by watchers.
func watchStates(a *Assistant) func() []State {
	var mu sync.Mutex
	var seen []State
	a.Watch(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != s.State {
			seen = append(seen, s.State)
		}
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), seen...)
	}
}
