package voice

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
)

// Device is the platform microphone.
type Device interface {
	Open(ctx context.Context) (Handle, error)
}

// Handle is an open capture stream. Read blocks until the next frame is
// available; the returned slice is owned by the caller.
type Handle interface {
	SampleRate() int
	Read() ([]float32, error)
	Close() error
}

// Sink receives every finalized recording.
type Sink interface {
	HandleClip(ctx context.Context, clip Clip) error
}

type SinkFunc func(ctx context.Context, clip Clip) error

func (f SinkFunc) HandleClip(ctx context.Context, clip Clip) error { return f(ctx, clip) }

type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureCapturing
	CaptureFinalizing
	CaptureUnsupported
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureCapturing:
		return "capturing"
	case CaptureFinalizing:
		return "finalizing"
	case CaptureUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("CaptureState(%d)", int(s))
}

type Mode int

const (
	// Manual records until Stop is called.
	Manual Mode = iota
	// Continuous ends the utterance on trailing silence.
	Continuous
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "manual":
		return Manual, nil
	case "continuous":
		return Continuous, nil
	}
	return Manual, fmt.Errorf("unknown capture mode %q", s)
}

type CaptureConfig struct {
	Mode     Mode
	Detector DetectorConfig
	// OnStart runs after the microphone opened, e.g. to play a cue.
	OnStart func()
	// OnChange runs after every state or status change, without locks held.
	OnChange func()
}

// Capture owns the one recording session a process may have.
type Capture struct {
	mu    sync.Mutex
	state CaptureState
	// status only reports problems; state tells whether a recording runs.
	status string
	rec    *recording

	// opening reserves the session while the device is being opened.
	opening bool

	device Device
	sink   Sink
	cfg    CaptureConfig
}

type recording struct {
	handle Handle
	ctx    context.Context
	chunks [][]float32
	stop   chan struct{}
	done   chan struct{}
}

// NewCapture builds the controller. A nil device leaves it Unsupported for
// its whole lifetime.
func NewCapture(device Device, sink Sink, cfg CaptureConfig) *Capture {
	c := &Capture{device: device, sink: sink, cfg: cfg}
	if device == nil {
		c.state = CaptureUnsupported
		c.status = ErrCaptureUnsupported.Error()
		log.Warn("Voice capture unavailable on this platform")
	}
	return c
}

func (c *Capture) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Capture) Recording() bool { return c.State() == CaptureCapturing }

func (c *Capture) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start opens the microphone and begins buffering. Unsupported platforms
// make it a no-op.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case CaptureUnsupported:
		c.mu.Unlock()
		return nil
	case CaptureCapturing, CaptureFinalizing:
		c.mu.Unlock()
		return ErrAlreadyCapturing
	}
	if c.opening {
		c.mu.Unlock()
		return ErrAlreadyCapturing
	}
	c.opening = true
	c.mu.Unlock()

	// Open may sit behind a permission prompt; readers must not wait on it.
	handle, err := c.device.Open(ctx)

	c.mu.Lock()
	c.opening = false
	if err != nil {
		c.status = ErrCaptureDenied.Error()
		c.mu.Unlock()
		c.changed()

		log.Error("Failed to open microphone", "err", err)
		if errors.Is(err, ErrCaptureDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCaptureDenied, err)
	}

	rec := &recording{
		handle: handle,
		ctx:    context.WithoutCancel(ctx),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.rec = rec
	c.state = CaptureCapturing
	c.status = ""
	c.mu.Unlock()

	log.Info("Recording started", "mode", c.cfg.Mode)
	if c.cfg.OnStart != nil {
		c.cfg.OnStart()
	}
	c.changed()

	go c.read(rec)
	return nil
}

// Stop finalizes the recording and hands it to the sink. It returns the
// sink's error; the controller is Idle again either way. Stop outside of
// Capturing is a no-op.
func (c *Capture) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != CaptureCapturing {
		c.mu.Unlock()
		return nil
	}
	rec := c.rec
	c.rec = nil
	c.state = CaptureFinalizing
	c.mu.Unlock()
	c.changed()

	close(rec.stop)
	<-rec.done
	if err := rec.handle.Close(); err != nil {
		log.Warn("Failed to release microphone", "err", err)
	}

	clip := rec.clip()
	log.Info("Recorded", "samples", len(clip.Samples), "duration", clip.Duration())

	err := c.handoff(ctx, clip)
	c.finish(err)
	return err
}

func (c *Capture) read(rec *recording) {
	defer close(rec.done)

	var det *detector
	if c.cfg.Mode == Continuous {
		det = newDetector(c.cfg.Detector, rec.handle.SampleRate())
	}

	for {
		select {
		case <-rec.stop:
			return
		default:
		}

		frame, err := rec.handle.Read()

		// A frame that completes after Stop lies outside the recording.
		select {
		case <-rec.stop:
			return
		default:
		}

		if err != nil {
			c.abort(rec, err)
			return
		}

		if det == nil {
			rec.chunks = append(rec.chunks, frame)
			continue
		}

		keep, end := det.feed(frame)
		if keep {
			rec.chunks = append(rec.chunks, frame)
		}
		if end {
			c.endOfUtterance(rec)
			return
		}
	}
}

// endOfUtterance closes a continuous recording from the reader goroutine.
func (c *Capture) endOfUtterance(rec *recording) {
	if !c.detach(rec) {
		return
	}

	if err := rec.handle.Close(); err != nil {
		log.Warn("Failed to release microphone", "err", err)
	}

	clip := rec.clip()
	log.Info("Utterance ended", "samples", len(clip.Samples), "duration", clip.Duration())
	c.finish(c.handoff(rec.ctx, clip))
}

func (c *Capture) abort(rec *recording, err error) {
	if !c.detach(rec) {
		return
	}

	log.Error("Recording failed", "err", err)
	if cerr := rec.handle.Close(); cerr != nil {
		log.Warn("Failed to release microphone", "err", cerr)
	}
	c.setStatus("recording failed: " + err.Error())
}

// detach moves a still-active recording back to Idle. It reports false when
// Stop already took ownership of rec.
func (c *Capture) detach(rec *recording) bool {
	c.mu.Lock()
	if c.rec != rec || c.state != CaptureCapturing {
		c.mu.Unlock()
		return false
	}
	c.rec = nil
	c.state = CaptureIdle
	c.mu.Unlock()
	c.changed()
	return true
}

func (c *Capture) handoff(ctx context.Context, clip Clip) error {
	if clip.Empty() {
		c.setStatus("no audio recorded")
		return nil
	}
	if c.sink == nil {
		return nil
	}
	return c.sink.HandleClip(ctx, clip)
}

func (c *Capture) finish(err error) {
	c.mu.Lock()
	if c.state == CaptureFinalizing {
		c.state = CaptureIdle
	}
	if err != nil {
		c.status = "voice message failed: " + err.Error()
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Capture) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.changed()
}

func (c *Capture) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}

func (r *recording) clip() Clip {
	n := 0
	for _, ch := range r.chunks {
		n += len(ch)
	}
	samples := make([]float32, 0, n)
	for _, ch := range r.chunks {
		samples = append(samples, ch...)
	}
	return Clip{SampleRate: r.handle.SampleRate(), Samples: samples}
}
