package voice

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipWAVHeaderAndSamples(t *testing.T) {
	clip := Clip{SampleRate: 16000, Samples: []float32{0, 0.5, -0.5, 1, -1, 2}}

	data, err := clip.WAV()
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))

	dec := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, []int{0, 16383, -16383, 32767, -32767, 32767}, buf.Data)
}

func TestClipWAVRequiresSampleRate(t *testing.T) {
	_, err := Clip{Samples: []float32{0.1}}.WAV()
	assert.Error(t, err)
}

func TestClipDuration(t *testing.T) {
	clip := Clip{SampleRate: 16000, Samples: make([]float32, 8000)}
	assert.Equal(t, 500*time.Millisecond, clip.Duration())
	assert.Equal(t, time.Duration(0), Clip{}.Duration())
	assert.True(t, Clip{}.Empty())
}
