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

	if cfg.BindAddr != ":3000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":3000")
	}
	if cfg.TTSEndpoint != "https://api.openai.com" {
		t.Fatalf("TTSEndpoint = %q, want default endpoint", cfg.TTSEndpoint)
	}
	if cfg.DefaultVoice != "alloy" || cfg.DefaultModel != "tts-1" || cfg.DefaultFormat != "mp3" {
		t.Fatalf("synthesis defaults = %q/%q/%q", cfg.DefaultVoice, cfg.DefaultModel, cfg.DefaultFormat)
	}
	if cfg.MaxChunkChars != 4096 {
		t.Fatalf("MaxChunkChars = %d, want 4096", cfg.MaxChunkChars)
	}
	if cfg.QueueInterJobDelay != 500*time.Millisecond {
		t.Fatalf("QueueInterJobDelay = %v, want 500ms", cfg.QueueInterJobDelay)
	}
	if !cfg.FileManagementEnabled {
		t.Fatalf("FileManagementEnabled = false, want true by default")
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("TTS_ENDPOINT", "http://localhost:8880")
	t.Setenv("TTS_MAX_CHUNK_CHARS", "2000")
	t.Setenv("TTS_DEFAULT_SPEED", "1.5")
	t.Setenv("QUEUE_INTER_JOB_DELAY", "1s")
	t.Setenv("ENABLE_FILE_MANAGEMENT", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want explicit value", cfg.BindAddr)
	}
	if cfg.TTSEndpoint != "http://localhost:8880" {
		t.Fatalf("TTSEndpoint = %q, want explicit value", cfg.TTSEndpoint)
	}
	if cfg.MaxChunkChars != 2000 {
		t.Fatalf("MaxChunkChars = %d, want 2000", cfg.MaxChunkChars)
	}
	if cfg.DefaultSpeed != 1.5 {
		t.Fatalf("DefaultSpeed = %v, want 1.5", cfg.DefaultSpeed)
	}
	if cfg.QueueInterJobDelay != time.Second {
		t.Fatalf("QueueInterJobDelay = %v, want 1s", cfg.QueueInterJobDelay)
	}
	if cfg.FileManagementEnabled {
		t.Fatalf("FileManagementEnabled = true, want false")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"speed out of range", "TTS_DEFAULT_SPEED", "5.0"},
		{"chunk chars zero", "TTS_MAX_CHUNK_CHARS", "0"},
		{"negative delay", "QUEUE_INTER_JOB_DELAY", "-1s"},
		{"timeout too small", "TTS_REQUEST_TIMEOUT", "100ms"},
		{"bad bool", "ENABLE_FILE_MANAGEMENT", "maybe"},
		{"bad duration", "APP_SHUTDOWN_TIMEOUT", "soon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"TTS_ENDPOINT",
		"TTS_API_KEY",
		"TTS_REQUEST_TIMEOUT",
		"TTS_DEFAULT_VOICE",
		"TTS_DEFAULT_MODEL",
		"TTS_DEFAULT_FORMAT",
		"TTS_DEFAULT_SPEED",
		"TTS_MAX_CHUNK_CHARS",
		"QUEUE_INTER_JOB_DELAY",
		"DATA_DIR",
		"OUTPUT_DIR",
		"TEMP_DIR",
		"FFMPEG_PATH",
		"ENABLE_FILE_MANAGEMENT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
