// Package audio binds the voice controllers to the local sound system:
// portaudio for the microphone, beep for playback, pactl for ducking.
package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"buddy/internal/voice"
)

const (
	sampleRate = voice.DefaultSampleRate
	frameSize  = 320 // 20ms
)

// Microphone is the default portaudio input device.
type Microphone struct {
	mu     sync.Mutex
	inited bool
}

// NewMicrophone initialises portaudio and checks that an input device
// exists. The error means capture is unsupported on this machine.
func NewMicrophone() (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", voice.ErrCaptureUnsupported, err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil || dev.MaxInputChannels < 1 {
		portaudio.Terminate()
		if err == nil {
			err = errors.New("no input channels")
		}
		return nil, fmt.Errorf("%w: %v", voice.ErrCaptureUnsupported, err)
	}

	log.Debug("Microphone found", "device", dev.Name, "rate", dev.DefaultSampleRate)
	return &Microphone{inited: true}, nil
}

// Close releases portaudio. Open handles must be closed first.
func (m *Microphone) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inited {
		portaudio.Terminate()
		m.inited = false
	}
}

// Open starts a 16 kHz mono input stream.
func (m *Microphone) Open(ctx context.Context) (voice.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.inited {
		return nil, voice.ErrCaptureUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, openError(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, openError(err)
	}

	return &stream16k{stream: stream, buf: buf}, nil
}

// openError maps permission style failures onto ErrCaptureDenied.
func openError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") ||
		strings.Contains(msg, "unanticipated host error") || strings.Contains(msg, "device unavailable") {
		return fmt.Errorf("%w: %v", voice.ErrCaptureDenied, err)
	}
	return err
}

type stream16k struct {
	stream *portaudio.Stream
	buf    []float32
	once   sync.Once
}

func (s *stream16k) SampleRate() int { return sampleRate }

func (s *stream16k) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		// Overflow drops a frame but the stream stays usable.
		if errors.Is(err, portaudio.InputOverflowed) {
			log.Debug("Input overflowed")
		} else {
			return nil, err
		}
	}
	out := make([]float32, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *stream16k) Close() error {
	var err error
	s.once.Do(func() {
		if e := s.stream.Stop(); e != nil {
			err = e
		}
		if e := s.stream.Close(); e != nil && err == nil {
			err = e
		}
	})
	return err
}
