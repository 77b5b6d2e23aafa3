// Package assistant sequences user intents into backend round trips and
// writes the results into the conversation store.
package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"buddy/internal/session"
	"buddy/internal/voice"
)

const ApologyText = "I'm sorry, I encountered an error while processing your message. Please try again."

var (
	ErrBusy       = errors.New("a request is already in progress")
	ErrStopFailed = errors.New("stop request failed")
)

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, clip voice.Clip) (string, error)
}

type Stopper interface {
	Stop(ctx context.Context) (bool, error)
}

type HealthChecker interface {
	Health(ctx context.Context) (bool, error)
}

type Config struct {
	Completer   Completer
	Transcriber Transcriber
	Stopper     Stopper
	Health      HealthChecker
	VoiceMode   bool
}

// Assistant is the request orchestrator. At most one completion is in
// flight at a time; the loading flag is the guard.
type Assistant struct {
	store       *session.Store
	completer   Completer
	transcriber Transcriber
	stopper     Stopper
	health      HealthChecker

	capture  *voice.Capture
	playback *voice.Playback

	mu          sync.Mutex
	state       State
	loading     bool
	connected   bool
	voiceMode   bool
	status      string
	lastCapture string
	lastSpeech  string

	stopping atomic.Bool

	watchMu  sync.RWMutex
	watchers []func(Snapshot)
}

func New(store *session.Store, cfg Config) *Assistant {
	return &Assistant{
		store:       store,
		completer:   cfg.Completer,
		transcriber: cfg.Transcriber,
		stopper:     cfg.Stopper,
		health:      cfg.Health,
		voiceMode:   cfg.VoiceMode,
	}
}

// EnableCapture wires a microphone into the assistant. Finalized
// recordings come back through HandleClip.
func (a *Assistant) EnableCapture(device voice.Device, cfg voice.CaptureConfig) *voice.Capture {
	next := cfg.OnChange
	cfg.OnChange = func() {
		a.absorb(&a.lastCapture, a.capture.Status())
		if next != nil {
			next()
		}
	}
	a.capture = voice.NewCapture(device, a, cfg)
	a.absorb(&a.lastCapture, a.capture.Status())
	return a.capture
}

// EnableSpeech wires a speaker used for replies while voice mode is on.
func (a *Assistant) EnableSpeech(sp voice.Speaker) *voice.Playback {
	a.playback = voice.NewPlayback(sp, a.onPlaybackChange)
	return a.playback
}

func (a *Assistant) Store() *session.Store { return a.store }

func (a *Assistant) CreateChat() string {
	id := a.store.CreateChat()
	a.notify()
	return id
}

func (a *Assistant) SelectChat(id string) {
	if a.store.SelectChat(id) {
		a.notify()
	}
}

func (a *Assistant) DeleteChat(id string) {
	if a.store.DeleteChat(id) {
		a.notify()
	}
}

func (a *Assistant) SetVoiceMode(on bool) {
	a.mu.Lock()
	a.voiceMode = on
	a.mu.Unlock()
	if !on && a.playback != nil {
		a.playback.Stop()
	}
	a.notify()
}

func (a *Assistant) VoiceMode() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.voiceMode
}

func (a *Assistant) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Send posts typed text to the active chat and waits for the reply.
// Blank text is ignored. Backend failures end up as an apology message in
// the chat, never as an error; the only error is ErrBusy.
func (a *Assistant) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	chatID, err := a.begin(AwaitingCompletion)
	if err != nil {
		return err
	}

	reply, ok := a.textTurn(ctx, chatID, text)
	if ok {
		a.speak(reply)
	}
	return nil
}

// SendVoice transcribes clip and continues as if the transcript was typed.
func (a *Assistant) SendVoice(ctx context.Context, clip voice.Clip) error {
	if a.transcriber == nil {
		a.setStatus("transcription unavailable")
		return nil
	}

	chatID, err := a.begin(AwaitingTranscription)
	if err != nil {
		return err
	}

	reply, ok := a.voiceTurn(ctx, chatID, clip)
	if ok {
		a.speak(reply)
	}
	return nil
}

// HandleClip is the capture sink.
func (a *Assistant) HandleClip(ctx context.Context, clip voice.Clip) error {
	return a.SendVoice(ctx, clip)
}

// ToggleRecording starts a recording, or stops the running one and sends
// it. Starting is refused while a request is in flight.
func (a *Assistant) ToggleRecording(ctx context.Context) error {
	if a.capture == nil {
		a.setStatus(voice.ErrCaptureUnsupported.Error())
		return nil
	}
	if a.capture.Recording() {
		return a.capture.Stop(ctx)
	}
	if a.Loading() {
		return ErrBusy
	}
	return a.capture.Start(ctx)
}

// Stop asks the backend to abandon the running generation. The pending
// completion is not aborted locally; its outcome is whatever the backend
// returns. Calls made while a stop is outstanding return false at once.
func (a *Assistant) Stop(ctx context.Context) bool {
	if a.stopper == nil {
		return false
	}
	if !a.stopping.CompareAndSwap(false, true) {
		return false
	}
	defer a.stopping.Store(false)

	stopped, err := a.stopper.Stop(ctx)
	switch {
	case err != nil:
		log.Error("Failed to stop generation", "err", err)
		a.setStatus(fmt.Sprintf("%v: %v", ErrStopFailed, err))
		return false
	case stopped:
		log.Info("Generation stopped")
		a.setStatus("generation stopped")
	default:
		log.Info("Backend did not stop")
		a.setStatus("backend did not stop")
	}
	return stopped
}

// CheckHealth refreshes the connectivity flag.
func (a *Assistant) CheckHealth(ctx context.Context) bool {
	if a.health == nil {
		return false
	}

	ok, err := a.health.Health(ctx)
	if err != nil {
		log.Debug("Health check failed", "err", err)
		ok = false
	}

	a.mu.Lock()
	changed := a.connected != ok
	a.connected = ok
	a.mu.Unlock()

	if changed {
		log.Info("Backend connectivity changed", "connected", ok)
		a.notify()
	}
	return ok
}

// MonitorHealth checks once and then every interval until ctx is done.
// A non-positive interval checks once.
func (a *Assistant) MonitorHealth(ctx context.Context, interval time.Duration) {
	a.CheckHealth(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.CheckHealth(ctx)
		}
	}
}

func (a *Assistant) Snapshot() Snapshot {
	a.mu.Lock()
	snap := Snapshot{
		State:     a.state,
		Loading:   a.loading,
		Connected: a.connected,
		VoiceMode: a.voiceMode,
		Status:    a.status,
	}
	a.mu.Unlock()

	snap.Chats = a.store.Chats()
	snap.ActiveID = a.store.ActiveID()
	if a.capture != nil {
		snap.Recording = a.capture.Recording()
	}
	if a.playback != nil {
		snap.Speaking = a.playback.Speaking()
	}
	return snap
}

// Watch registers fn to be called with a fresh snapshot after every
// change. fn may be called from several goroutines.
func (a *Assistant) Watch(fn func(Snapshot)) {
	a.watchMu.Lock()
	a.watchers = append(a.watchers, fn)
	a.watchMu.Unlock()
}

func (a *Assistant) textTurn(ctx context.Context, chatID, text string) (reply string, ok bool) {
	defer func() { a.finish(ok) }()
	return a.exchange(ctx, chatID, text)
}

func (a *Assistant) voiceTurn(ctx context.Context, chatID string, clip voice.Clip) (reply string, ok bool) {
	failedTurn := true
	defer func() { a.finish(!failedTurn) }()

	text, err := a.transcriber.Transcribe(ctx, clip)
	if err != nil {
		log.Error("Failed to transcribe", "err", err)
		a.setStatus("transcription failed: " + err.Error())
		return "", false
	}

	text = strings.TrimSpace(text)
	log.Info("Transcribed", "text", text)
	if text == "" {
		failedTurn = false
		a.setStatus("no speech recognized")
		return "", false
	}

	a.setState(AwaitingCompletion)
	reply, ok = a.exchange(ctx, chatID, text)
	failedTurn = !ok
	return reply, ok
}

// exchange appends the user message, runs the completion and appends its
// outcome to chatID, the chat that was active when the intent was issued.
func (a *Assistant) exchange(ctx context.Context, chatID, text string) (string, bool) {
	if _, err := a.store.AppendMessage(chatID, session.RoleUser, text); err != nil {
		log.Warn("Chat is gone, dropping message", "chat", chatID, "err", err)
		return "", false
	}
	a.notify()

	reply, err := a.completer.Complete(ctx, text)
	if err != nil {
		log.Error("Failed to get completion", "err", err)
		if _, err := a.store.AppendFailure(chatID, ApologyText); err != nil {
			log.Warn("Chat is gone, dropping apology", "chat", chatID, "err", err)
		}
		a.setStatus("completion failed: " + err.Error())
		return "", false
	}

	a.appendReply(chatID, reply)
	return reply, true
}

func (a *Assistant) appendReply(chatID, content string) {
	if _, err := a.store.AppendMessage(chatID, session.RoleAssistant, content); err != nil {
		log.Warn("Chat is gone, dropping reply", "chat", chatID, "err", err)
	}
}

func (a *Assistant) begin(st State) (string, error) {
	a.mu.Lock()
	if a.loading {
		a.mu.Unlock()
		return "", ErrBusy
	}
	a.loading = true
	a.state = st
	a.status = ""
	a.mu.Unlock()

	chatID := a.store.ActiveID()
	a.notify()
	return chatID, nil
}

// finish clears the loading flag on every exit of a turn. A failed turn
// passes through Errored, which watchers observe once, and settles in Idle
// with the failure kept in the status string.
func (a *Assistant) finish(ok bool) {
	a.mu.Lock()
	a.loading = false
	if ok {
		a.state = Idle
		a.mu.Unlock()
		a.notify()
		return
	}
	a.state = Errored
	a.mu.Unlock()
	a.notify()

	a.mu.Lock()
	if a.state == Errored {
		a.state = Idle
	}
	a.mu.Unlock()
	a.notify()
}

// speak hands a reply to the playback controller when voice mode is on.
// Playback is best effort and never touches the chat.
func (a *Assistant) speak(reply string) {
	if a.playback == nil {
		return
	}

	a.mu.Lock()
	if !a.voiceMode || a.loading {
		a.mu.Unlock()
		return
	}
	a.state = AwaitingSynthesis
	a.mu.Unlock()
	a.notify()

	a.playback.Speak(reply)
}

func (a *Assistant) onPlaybackChange() {
	speaking := a.playback.Speaking()

	a.mu.Lock()
	if !speaking && a.state == AwaitingSynthesis {
		a.state = Idle
	}
	a.mu.Unlock()

	a.absorb(&a.lastSpeech, a.playback.Status())
}

// absorb surfaces a new non-empty component status as the session status.
func (a *Assistant) absorb(last *string, status string) {
	a.mu.Lock()
	if status != *last {
		*last = status
		if status != "" {
			a.status = status
		}
	}
	a.mu.Unlock()
	a.notify()
}

func (a *Assistant) setState(st State) {
	a.mu.Lock()
	a.state = st
	a.mu.Unlock()
	a.notify()
}

func (a *Assistant) setStatus(s string) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
	a.notify()
}

func (a *Assistant) notify() {
	a.watchMu.RLock()
	watchers := a.watchers
	a.watchMu.RUnlock()
	if len(watchers) == 0 {
		return
	}

	snap := a.Snapshot()
	for _, fn := range watchers {
		fn(snap)
	}
}
