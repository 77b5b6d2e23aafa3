// Package voice drives microphone capture and speech playback for the
// assistant. Platform audio is reached only through the Device and Speaker
// interfaces so the state machines can run against fakes.
package voice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const DefaultSampleRate = 16000

// Clip is an assembled recording: mono float32 PCM in [-1, 1].
type Clip struct {
	SampleRate int
	Samples    []float32
}

func (c Clip) Empty() bool { return len(c.Samples) == 0 }

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// WAV encodes the clip as 16-bit mono PCM WAV.
func (c Clip) WAV() ([]byte, error) {
	if c.SampleRate <= 0 {
		return nil, errors.New("clip has no sample rate")
	}

	ints := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		ints[i] = int(s * 32767)
	}

	var ws writeSeeker
	enc := wav.NewEncoder(&ws, c.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}

	return ws.buf.Bytes(), nil
}

// writeSeeker is the in-memory io.WriteSeeker the wav encoder needs to
// patch its header on Close.
type writeSeeker struct {
	buf bytes.Buffer
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if grow := end - w.buf.Len(); grow > 0 {
		w.buf.Write(make([]byte, grow))
	}
	copy(w.buf.Bytes()[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(w.buf.Len())
	default:
		return 0, errors.New("invalid whence")
	}

	next := base + offset
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}
