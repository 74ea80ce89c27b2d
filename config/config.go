// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the voice-agent service.
// Defaults are suitable for local development only.
type Config struct {
	Port int

	// Redis connection shared by the session store and the task queue.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth service used to verify bearer tokens.
	AuthServiceURL string

	// Completion provider (OpenAI-compatible chat completions API).
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Speech synthesis provider.
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModel   string

	// Speech transcription. Google Cloud Speech relies on Application
	// Default Credentials, so it is opt-in for local development.
	SpeechEnabled bool

	// File storage for uploaded utterances and synthesized responses.
	UploadDir        string
	AudioResponseDir string

	// Session idle TTL. Reset on every interaction.
	SessionTTL time.Duration

	// Task queue tuning.
	QueueStream       string
	QueueGroup        string
	QueueBlock        time.Duration
	QueueMinIdle      time.Duration
	QueueMaxAttempts  int
	QueueErrorBackoff time.Duration

	// Maximum agent<->tool round trips per conversational turn.
	AgentMaxToolRounds int

	LogLevel string
}

// Load reads configuration from the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               envInt("PORT", 8000),
		RedisAddr:          envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      envStr("REDIS_PASSWORD", ""),
		RedisDB:            envInt("REDIS_DB", 0),
		AuthServiceURL:     envStr("AUTH_SERVICE_URL", "http://auth-service:8080"),
		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		OpenAIModel:        envStr("OPENAI_MODEL", "gpt-4"),
		OpenAIBaseURL:      envStr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ElevenLabsAPIKey:   envStr("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  envStr("ELEVENLABS_VOICE_ID", "default-voice-id"),
		ElevenLabsModel:    envStr("ELEVENLABS_MODEL", "eleven_monolingual_v1"),
		SpeechEnabled:      envBool("GOOGLE_SPEECH_ENABLED", false),
		UploadDir:          envStr("UPLOAD_DIR", "./uploads"),
		AudioResponseDir:   envStr("AUDIO_RESPONSE_DIR", "./audio_responses"),
		SessionTTL:         envSeconds("SESSION_TTL_SECONDS", 3600),
		QueueStream:        envStr("QUEUE_STREAM", "voice_processing_queue"),
		QueueGroup:         envStr("QUEUE_GROUP", "voice_processors"),
		QueueBlock:         envSeconds("QUEUE_BLOCK_SECONDS", 5),
		QueueMinIdle:       envSeconds("QUEUE_MIN_IDLE_SECONDS", 30),
		QueueMaxAttempts:   envInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueErrorBackoff:  envSeconds("QUEUE_BACKOFF_SECONDS", 5),
		AgentMaxToolRounds: envInt("AGENT_MAX_TOOL_ROUNDS", 5),
		LogLevel:           envStr("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	if c.QueueStream == "" || c.QueueGroup == "" {
		return fmt.Errorf("QUEUE_STREAM and QUEUE_GROUP must not be empty")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.QueueMaxAttempts)
	}
	if c.AgentMaxToolRounds < 1 {
		return fmt.Errorf("AGENT_MAX_TOOL_ROUNDS must be at least 1, got %d", c.AgentMaxToolRounds)
	}
	return nil
}

// EnsureDirs creates the upload and audio response directories if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadDir, c.AudioResponseDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", dir, err)
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}
