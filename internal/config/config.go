package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the asklet service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// ListenWindow bounds how long a capture session may stay open before the
	// countdown expires and the session falls back to idle.
	ListenWindow time.Duration

	AgentWSURL          string
	AgentConnectTimeout time.Duration
	AgentBackoffBase    time.Duration
	AgentBackoffCap     time.Duration

	SpeechProvider     string
	SpeechWSBaseURL    string
	SpeechAPIKey       string
	SpeechSTTModel     string
	SpeechTTSVoice     string
	SpeechSampleRate   int
	SpeechOutputFormat string

	DatabaseURL  string
	HistoryLimit int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "asklet"),
		AllowAnyOrigin:   false,
		ListenWindow:     60 * time.Second,

		AgentWSURL:          envTrimmed("AGENT_WS_URL"),
		AgentConnectTimeout: 5 * time.Second,
		AgentBackoffBase:    500 * time.Millisecond,
		AgentBackoffCap:     15 * time.Second,

		SpeechProvider:  envOrDefault("SPEECH_PROVIDER", "auto"),
		SpeechWSBaseURL: envOrDefault("SPEECH_WS_BASE_URL", "wss://api.scribe.dev"),
		SpeechAPIKey:    envTrimmed("SPEECH_API_KEY"),
		SpeechSTTModel:  envOrDefault("SPEECH_STT_MODEL_ID", "scribe_v1"),
		SpeechTTSVoice:  envOrDefault("SPEECH_TTS_VOICE_ID", "narrator"),
		// Low-latency PCM for realtime playback; the preview endpoint wraps it as WAV.
		SpeechSampleRate:   16000,
		SpeechOutputFormat: envOrDefault("SPEECH_TTS_OUTPUT_FORMAT", "pcm_16000"),

		DatabaseURL:  envTrimmed("DATABASE_URL"),
		HistoryLimit: 50,

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ListenWindow, err = durationFromEnv("APP_LISTEN_WINDOW", cfg.ListenWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentConnectTimeout, err = durationFromEnv("AGENT_CONNECT_TIMEOUT", cfg.AgentConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentBackoffBase, err = durationFromEnv("AGENT_BACKOFF_BASE", cfg.AgentBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentBackoffCap, err = durationFromEnv("AGENT_BACKOFF_CAP", cfg.AgentBackoffCap)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechSampleRate, err = intFromEnv("SPEECH_SAMPLE_RATE", cfg.SpeechSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("APP_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}

	if cfg.ListenWindow < time.Second {
		return Config{}, fmt.Errorf("APP_LISTEN_WINDOW must be at least 1s")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.AgentBackoffBase <= 0 || cfg.AgentBackoffCap < cfg.AgentBackoffBase {
		return Config{}, fmt.Errorf("AGENT_BACKOFF_BASE/AGENT_BACKOFF_CAP must be positive and ordered")
	}
	if cfg.SpeechSampleRate <= 0 {
		return Config{}, fmt.Errorf("SPEECH_SAMPLE_RATE must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("APP_HISTORY_LIMIT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
