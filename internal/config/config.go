// Package config reads the client settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Backend BackendConfig
	Voice   VoiceConfig
	OpenAI  OpenAIConfig
	Control ControlConfig
}

type BackendConfig struct {
	URL            string
	Proxy          string
	Timeout        time.Duration
	HealthInterval time.Duration
	Completer      string
}

type VoiceConfig struct {
	Enabled      bool
	CaptureMode  string
	STT          string
	WhisperModel string
	Language     string
	TTS          string
	Cue          string
	Duck         bool
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type ControlConfig struct {
	Socket string
	BusURL string
}

// Load builds a Config from the environment. Unset variables fall back to
// their defaults; malformed ones are reported.
func Load() (*Config, error) {
	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	openai := OpenAIConfig{
		APIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:  getEnvOrDefault("OPENAI_MODEL", "gpt-5-nano"),
	}
	if backend.Completer == "openai" && openai.APIKey == "" {
		return nil, fmt.Errorf("BUDDY_COMPLETER=openai needs OPENAI_API_KEY")
	}

	control := ControlConfig{
		Socket: getEnvOrDefault("BUDDY_SOCKET", "/tmp/buddy.sock"),
		BusURL: strings.TrimSpace(os.Getenv("BUDDY_BUS_URL")),
	}

	return &Config{Backend: backend, Voice: voice, OpenAI: openai, Control: control}, nil
}

func loadBackendConfig() (BackendConfig, error) {
	timeout, err := parseDurationEnv("BUDDY_TIMEOUT", 120*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	interval, err := parseDurationEnv("BUDDY_HEALTH_INTERVAL", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	completer, err := parseChoiceEnv("BUDDY_COMPLETER", "backend", "openai")
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{
		URL:            getEnvOrDefault("BUDDY_API_URL", "http://localhost:8000"),
		Proxy:          strings.TrimSpace(os.Getenv("BUDDY_PROXY")),
		Timeout:        timeout,
		HealthInterval: interval,
		Completer:      completer,
	}, nil
}

func loadVoiceConfig() (VoiceConfig, error) {
	enabled, err := parseBoolEnv("BUDDY_VOICE", false)
	if err != nil {
		return VoiceConfig{}, err
	}

	duck, err := parseBoolEnv("BUDDY_DUCK", false)
	if err != nil {
		return VoiceConfig{}, err
	}

	mode, err := parseChoiceEnv("BUDDY_CAPTURE_MODE", "manual", "continuous")
	if err != nil {
		return VoiceConfig{}, err
	}

	stt, err := parseChoiceEnv("BUDDY_STT", "backend", "whisper")
	if err != nil {
		return VoiceConfig{}, err
	}

	tts, err := parseChoiceEnv("BUDDY_TTS", "backend", "espeak", "off")
	if err != nil {
		return VoiceConfig{}, err
	}

	return VoiceConfig{
		Enabled:      enabled,
		CaptureMode:  mode,
		STT:          stt,
		WhisperModel: getEnvOrDefault("BUDDY_WHISPER_MODEL", "models/ggml-base.bin"),
		Language:     getEnvOrDefault("BUDDY_STT_LANGUAGE", "auto"),
		TTS:          tts,
		Cue:          strings.TrimSpace(os.Getenv("BUDDY_CUE")),
		Duck:         duck,
	}, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return v, nil
}

// parseDurationEnv accepts Go durations and bare seconds.
func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s value %q: negative", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s value %q: negative", key, raw)
	}
	return d, nil
}

// parseChoiceEnv returns the lower-cased value when it is one of choices.
// The first choice is the default.
func parseChoiceEnv(key string, choices ...string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return choices[0], nil
	}
	for _, c := range choices {
		if raw == c {
			return raw, nil
		}
	}
	return "", fmt.Errorf("invalid %s value %q, want one of %s", key, raw, strings.Join(choices, ", "))
}
