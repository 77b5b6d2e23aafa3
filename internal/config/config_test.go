package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"BUDDY_API_URL", "BUDDY_PROXY", "BUDDY_TIMEOUT", "BUDDY_HEALTH_INTERVAL",
		"BUDDY_VOICE", "BUDDY_CAPTURE_MODE", "BUDDY_STT", "BUDDY_TTS",
		"BUDDY_COMPLETER", "OPENAI_API_KEY", "OPENAI_MODEL", "BUDDY_SOCKET",
		"BUDDY_BUS_URL", "BUDDY_CUE", "BUDDY_DUCK", "BUDDY_WHISPER_MODEL",
		"BUDDY_STT_LANGUAGE",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Empty(t, cfg.Backend.Proxy)
	assert.Equal(t, 120*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Backend.HealthInterval)
	assert.Equal(t, "backend", cfg.Backend.Completer)

	assert.False(t, cfg.Voice.Enabled)
	assert.Equal(t, "manual", cfg.Voice.CaptureMode)
	assert.Equal(t, "backend", cfg.Voice.STT)
	assert.Equal(t, "backend", cfg.Voice.TTS)
	assert.Equal(t, "auto", cfg.Voice.Language)
	assert.Equal(t, "models/ggml-base.bin", cfg.Voice.WhisperModel)

	assert.Equal(t, "gpt-5-nano", cfg.OpenAI.Model)
	assert.Equal(t, "/tmp/buddy.sock", cfg.Control.Socket)
	assert.Empty(t, cfg.Control.BusURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BUDDY_API_URL", " http://10.0.0.2:9000/ ")
	t.Setenv("BUDDY_TIMEOUT", "15")
	t.Setenv("BUDDY_HEALTH_INTERVAL", "0")
	t.Setenv("BUDDY_VOICE", "true")
	t.Setenv("BUDDY_CAPTURE_MODE", "Continuous")
	t.Setenv("BUDDY_TTS", "off")
	t.Setenv("BUDDY_COMPLETER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.2:9000/", cfg.Backend.URL)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Zero(t, cfg.Backend.HealthInterval)
	assert.True(t, cfg.Voice.Enabled)
	assert.Equal(t, "continuous", cfg.Voice.CaptureMode)
	assert.Equal(t, "off", cfg.Voice.TTS)
	assert.Equal(t, "openai", cfg.Backend.Completer)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"BUDDY_TIMEOUT":         "soon",
		"BUDDY_VOICE":           "maybe",
		"BUDDY_CAPTURE_MODE":    "always",
		"BUDDY_STT":             "cloud",
		"BUDDY_HEALTH_INTERVAL": "-5s",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestOpenAICompleterNeedsKey(t *testing.T) {
	t.Setenv("BUDDY_COMPLETER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
