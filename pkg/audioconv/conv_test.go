package audioconv

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddy/internal/voice"
)

func TestResample(t *testing.T) {
	in := []float32{0, 1, 0, -1}

	assert.Equal(t, in, Resample(in, 16000, 16000))

	up := Resample(in, 8000, 16000)
	require.Len(t, up, 8)
	assert.InDelta(t, 0.5, up[1], 1e-6)
	assert.InDelta(t, 1, up[2], 1e-6)

	down := Resample([]float32{0, 0.5, 1, 0.5}, 16000, 8000)
	assert.Equal(t, []float32{0, 1}, down)
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, Downmix([]float32{1, 0, 0.5, -0.5}, 2))
	assert.Equal(t, []float32{1, 2}, Downmix([]float32{1, 2}, 1))
}

func TestSniff(t *testing.T) {
	cases := map[string]Format{
		"RIFF\x00\x00\x00\x00WAVE": FormatWAV,
		"OggS\x00\x02":             FormatOgg,
		"ID3\x04\x00":              FormatMP3,
		"\xff\xfb\x90\x00":         FormatMP3,
	}
	for header, want := range cases {
		got, err := Sniff(bytes.NewReader([]byte(header)))
		require.NoError(t, err)
		assert.Equal(t, want, got, "%q", header)
	}

	_, err := Sniff(bytes.NewReader([]byte("%PDF")))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeWAVFile(t *testing.T) {
	clip := voice.Clip{SampleRate: 8000, Samples: make([]float32, 800)}
	for i := range clip.Samples {
		clip.Samples[i] = 0.5
	}
	data, err := clip.WAV()
	require.NoError(t, err)

	// No extension: the format has to be sniffed.
	path := filepath.Join(t.TempDir(), "note")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	pcm, err := DecodeFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleRate, pcm.SampleRate)
	assert.Len(t, pcm.Samples, 1600)
	assert.InDelta(t, 0.5, pcm.Samples[100], 0.001)

	pcm, err = DecodeFile(context.Background(), path, Options{SampleRate: 8000, MaxSamples: 100})
	require.NoError(t, err)
	assert.Len(t, pcm.Samples, 100)
}

func TestDecodeGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("not audio at all"), 0o644))

	_, err := DecodeFile(context.Background(), path, Options{})
	assert.Error(t, err)
}
