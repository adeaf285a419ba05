package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ListenWindow != 60*time.Second {
		t.Fatalf("ListenWindow = %v, want 60s", cfg.ListenWindow)
	}
	if cfg.SpeechProvider != "auto" {
		t.Fatalf("SpeechProvider = %q, want %q", cfg.SpeechProvider, "auto")
	}
	if cfg.AgentWSURL != "" {
		t.Fatalf("AgentWSURL = %q, want empty default", cfg.AgentWSURL)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("APP_LISTEN_WINDOW", "45s")
	t.Setenv("AGENT_WS_URL", "ws://localhost:7777/agent")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9191")
	}
	if cfg.ListenWindow != 45*time.Second {
		t.Fatalf("ListenWindow = %v, want 45s", cfg.ListenWindow)
	}
	if cfg.AgentWSURL != "ws://localhost:7777/agent" {
		t.Fatalf("AgentWSURL = %q, want explicit value", cfg.AgentWSURL)
	}
}

func TestLoadRejectsShortListenWindow(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_LISTEN_WINDOW", "500ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want listen window validation error")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want duration parse error")
	}
}

func TestLoadRejectsUnorderedBackoff(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AGENT_BACKOFF_BASE", "10s")
	t.Setenv("AGENT_BACKOFF_CAP", "1s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want backoff ordering error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LISTEN_WINDOW",
		"APP_HISTORY_LIMIT",
		"AGENT_WS_URL",
		"AGENT_CONNECT_TIMEOUT",
		"AGENT_BACKOFF_BASE",
		"AGENT_BACKOFF_CAP",
		"SPEECH_PROVIDER",
		"SPEECH_WS_BASE_URL",
		"SPEECH_API_KEY",
		"SPEECH_STT_MODEL_ID",
		"SPEECH_TTS_VOICE_ID",
		"SPEECH_SAMPLE_RATE",
		"SPEECH_TTS_OUTPUT_FORMAT",
		"DATABASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
