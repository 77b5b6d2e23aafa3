package voice

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
)

// Speaker turns text into audible speech and returns once playback ended
// or ctx was cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Synthesizer converts text into a reference to an audio resource.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Player plays the audio behind a reference.
type Player interface {
	Play(ctx context.Context, ref string) error
}

// SynthSpeaker speaks through a remote synthesizer and a local player.
type SynthSpeaker struct {
	Synth  Synthesizer
	Player Player
}

func (s SynthSpeaker) Speak(ctx context.Context, text string) error {
	ref, err := s.Synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if err := s.Player.Play(ctx, ref); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: play %s: %v", ErrSynthesis, ref, err)
	}
	return nil
}

// Playback plays one utterance at a time. A new Speak pre-empts the
// current one: it is cancelled and waited for before the next starts.
type Playback struct {
	speaker  Speaker
	onChange func()

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	speaking bool
	status   string
}

func NewPlayback(speaker Speaker, onChange func()) *Playback {
	return &Playback{speaker: speaker, onChange: onChange}
}

// Speak schedules text and returns immediately.
func (p *Playback) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" || p.speaker == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	prevCancel, prevDone := p.cancel, p.done
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	go p.run(ctx, text, prevDone, done)
}

// Stop interrupts the current utterance, if any.
func (p *Playback) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the most recently scheduled utterance has finished.
func (p *Playback) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Playback) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

func (p *Playback) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Playback) run(ctx context.Context, text string, prev <-chan struct{}, done chan struct{}) {
	defer close(done)

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		p.set(false, p.Status())
		return
	}

	p.set(true, "")

	err := p.speaker.Speak(ctx, text)

	status := ""
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status = "speech interrupted"
	default:
		log.Error("Failed to voice out", "err", err)
		status = err.Error()
	}
	p.set(false, status)
}

func (p *Playback) set(speaking bool, status string) {
	p.mu.Lock()
	p.speaking = speaking
	p.status = status
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange()
	}
}
