package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the speech generation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	TTSEndpoint   string
	TTSAPIKey     string
	TTSTimeout    time.Duration
	DefaultVoice  string
	DefaultModel  string
	DefaultFormat string
	DefaultSpeed  float64
	MaxChunkChars int

	QueueInterJobDelay time.Duration

	DataDir               string
	OutputDir             string
	TempDir               string
	FFmpegPath            string
	FileManagementEnabled bool

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":3000"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "openspeech"),
		AllowAnyOrigin:        false,
		TTSEndpoint:           envOrDefault("TTS_ENDPOINT", "https://api.openai.com"),
		TTSAPIKey:             envTrimmed("TTS_API_KEY"),
		DefaultVoice:          envOrDefault("TTS_DEFAULT_VOICE", "alloy"),
		DefaultModel:          envOrDefault("TTS_DEFAULT_MODEL", "tts-1"),
		DefaultFormat:         envOrDefault("TTS_DEFAULT_FORMAT", "mp3"),
		DefaultSpeed:          1.0,
		MaxChunkChars:         4096,
		QueueInterJobDelay:    500 * time.Millisecond,
		DataDir:               envOrDefault("DATA_DIR", "data"),
		OutputDir:             envOrDefault("OUTPUT_DIR", "output"),
		TempDir:               envOrDefault("TEMP_DIR", "temp"),
		FFmpegPath:            envOrDefault("FFMPEG_PATH", "ffmpeg"),
		FileManagementEnabled: true,
		DatabaseURL:           envTrimmed("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
		TTSTimeout:            5 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSTimeout, err = durationFromEnv("TTS_REQUEST_TIMEOUT", cfg.TTSTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.QueueInterJobDelay, err = durationFromEnv("QUEUE_INTER_JOB_DELAY", cfg.QueueInterJobDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxChunkChars, err = intFromEnv("TTS_MAX_CHUNK_CHARS", cfg.MaxChunkChars)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultSpeed, err = floatFromEnv("TTS_DEFAULT_SPEED", cfg.DefaultSpeed)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.FileManagementEnabled, err = boolFromEnv("ENABLE_FILE_MANAGEMENT", cfg.FileManagementEnabled)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxChunkChars <= 0 {
		return Config{}, fmt.Errorf("TTS_MAX_CHUNK_CHARS must be positive")
	}
	if cfg.DefaultSpeed < 0.25 || cfg.DefaultSpeed > 4.0 {
		return Config{}, fmt.Errorf("TTS_DEFAULT_SPEED must be between 0.25 and 4.0")
	}
	if cfg.QueueInterJobDelay < 0 {
		return Config{}, fmt.Errorf("QUEUE_INTER_JOB_DELAY must not be negative")
	}
	if cfg.TTSTimeout < time.Second {
		return Config{}, fmt.Errorf("TTS_REQUEST_TIMEOUT must be at least 1s")
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

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
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
