package voice

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeDevice struct {
	mu      sync.Mutex
	openErr error
	handles []*fakeHandle
	script  [][]float32
	readErr error
}

func (d *fakeDevice) Open(context.Context) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	h := &fakeHandle{
		frames:  append([][]float32(nil), d.script...),
		readErr: d.readErr,
		drained: make(chan struct{}),
	}
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDevice) last() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handles[len(d.handles)-1]
}

// fakeHandle replays frames, then yields empty frames until closed.
type fakeHandle struct {
	mu      sync.Mutex
	frames  [][]float32
	readErr error
	closed  bool
	drained chan struct{}
	once    sync.Once
}

func (h *fakeHandle) SampleRate() int { return DefaultSampleRate }

func (h *fakeHandle) Read() ([]float32, error) {
	h.mu.Lock()
	if len(h.frames) > 0 {
		f := h.frames[0]
		h.frames = h.frames[1:]
		h.mu.Unlock()
		return f, nil
	}
	err := h.readErr
	h.mu.Unlock()

	h.once.Do(func() { close(h.drained) })
	if err != nil {
		return nil, err
	}
	time.Sleep(time.Millisecond)
	return []float32{}, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("closed twice")
	}
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type recordingSink struct {
	mu    sync.Mutex
	clips []Clip
	err   error
	got   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan struct{}, 8)}
}

func (s *recordingSink) HandleClip(_ context.Context, clip Clip) error {
	s.mu.Lock()
	s.clips = append(s.clips, clip)
	s.mu.Unlock()
	s.got <- struct{}{}
	return s.err
}

func (s *recordingSink) received() []Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Clip(nil), s.clips...)
}

func tone(n int, amp float32) []float32 {
	f := make([]float32, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = amp
		} else {
			f[i] = -amp
		}
	}
	return f
}

// gatedDevice blocks Open until release is closed.
type gatedDevice struct {
	fakeDevice
	opening chan struct{}
	release chan struct{}
}

func (d *gatedDevice) Open(ctx context.Context) (Handle, error) {
	close(d.opening)
	<-d.release
	return d.fakeDevice.Open(ctx)
}

// lateDevice hands out a handle whose second Read blocks until release.
type lateDevice struct {
	h *lateHandle
}

func (d *lateDevice) Open(context.Context) (Handle, error) { return d.h, nil }

type lateHandle struct {
	reads   int
	waiting chan struct{}
	release chan struct{}
	closed  bool
}

func (h *lateHandle) SampleRate() int { return DefaultSampleRate }

func (h *lateHandle) Read() ([]float32, error) {
	h.reads++
	switch h.reads {
	case 1:
		return []float32{0.1}, nil
	case 2:
		close(h.waiting)
		<-h.release
		return []float32{0.9}, nil
	}
	return nil, errors.New("read after stop")
}

func (h *lateHandle) Close() error {
	h.closed = true
	return nil
}
