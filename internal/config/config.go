package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the gateway service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	AgentScope               string
	SessionInactivityTimeout time.Duration
	SessionBackend           string
	SessionFilePath          string

	TenantCredentialsPath string

	LLMProvider       string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMTemperature    float64
	LLMMaxTokens      int
	LLMRequestTimeout time.Duration
	LLMMaxRetries     int

	TTSProvider         string
	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsTTSVoice  string
	ElevenLabsTTSModel  string
	ElevenLabsOutputFmt string

	DatabaseURL        string
	MemoryEmbeddingDim int

	CheckpointTriggerTokens int
	CheckpointMaxSummary    int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("GATEWAY_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("GATEWAY_METRICS_NAMESPACE", "turnstream"),
		AllowAnyOrigin:   false,

		AgentScope:      envOrDefault("GATEWAY_AGENT_SCOPE", "default"),
		SessionBackend:  envOrDefault("GATEWAY_SESSION_BACKEND", "memory"),
		SessionFilePath: stringsTrimSpace("GATEWAY_SESSION_FILE_PATH"),

		TenantCredentialsPath: stringsTrimSpace("GATEWAY_TENANT_CREDENTIALS_PATH"),

		LLMProvider: envOrDefault("LLM_PROVIDER", "auto"),
		LLMBaseURL:  stringsTrimSpace("LLM_BASE_URL"),
		LLMAPIKey:   stringsTrimSpace("LLM_API_KEY"),
		LLMModel:    envOrDefault("LLM_MODEL", "default"),

		TTSProvider:         envOrDefault("TTS_PROVIDER", "auto"),
		ElevenLabsAPIKey:    stringsTrimSpace("TTS_ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("TTS_ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSVoice:  envOrDefault("TTS_ELEVENLABS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel:  envOrDefault("TTS_ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsOutputFmt: envOrDefault("TTS_ELEVENLABS_OUTPUT_FORMAT", "mp3_44100_128"),

		DatabaseURL:        stringsTrimSpace("DB_URL"),
		MemoryEmbeddingDim: 1536,

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,

		LLMTemperature:    0.7,
		LLMMaxTokens:      512,
		LLMRequestTimeout: 30 * time.Second,
		LLMMaxRetries:     2,

		CheckpointTriggerTokens: 1024,
		CheckpointMaxSummary:    128,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("GATEWAY_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMRequestTimeout, err = durationFromEnv("LLM_REQUEST_TIMEOUT", cfg.LLMRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxRetries, err = intFromEnv("LLM_MAX_RETRIES", cfg.LLMMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("GATEWAY_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryEmbeddingDim, err = intFromEnv("DB_MEMORY_EMBEDDING_DIM", cfg.MemoryEmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("GATEWAY_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.CheckpointTriggerTokens, err = intFromEnv("CHECKPOINT_SUMMARY_TRIGGER_TOKENS", cfg.CheckpointTriggerTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.CheckpointMaxSummary, err = intFromEnv("CHECKPOINT_SUMMARY_MAX_TOKENS", cfg.CheckpointMaxSummary)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("GATEWAY_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MemoryEmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("DB_MEMORY_EMBEDDING_DIM must be positive")
	}
	if cfg.CheckpointTriggerTokens <= 0 {
		return Config{}, fmt.Errorf("CHECKPOINT_SUMMARY_TRIGGER_TOKENS must be positive")
	}
	if cfg.CheckpointMaxSummary <= 0 {
		return Config{}, fmt.Errorf("CHECKPOINT_SUMMARY_MAX_TOKENS must be positive")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if cfg.LLMMaxRetries < 0 {
		return Config{}, fmt.Errorf("LLM_MAX_RETRIES must not be negative")
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

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
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
	v := strings.ToLower(stringsTrimSpace(key))
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
