// Verifies the resolved service configuration and prints it for ops.
package main

import (
	"fmt"
	"os"

	"github.com/varannik/dental-saas/config"
)

// ANSI color codes for formatted output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

func main() {
	fmt.Printf("%s--- Voice Agent Config Verifier ---%s\n", ColorBlue, ColorReset)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("%s[FAIL]%s %v\n", ColorRed, ColorReset, err)
		os.Exit(1)
	}

	fmt.Printf("%s[OK]%s configuration is valid\n\n", ColorGreen, ColorReset)

	show("PORT", fmt.Sprintf("%d", cfg.Port))
	show("REDIS_ADDR", cfg.RedisAddr)
	show("REDIS_DB", fmt.Sprintf("%d", cfg.RedisDB))
	show("AUTH_SERVICE_URL", cfg.AuthServiceURL)
	show("OPENAI_MODEL", cfg.OpenAIModel)
	show("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	show("OPENAI_API_KEY", redact(cfg.OpenAIAPIKey))
	show("ELEVENLABS_VOICE_ID", cfg.ElevenLabsVoiceID)
	show("ELEVENLABS_MODEL", cfg.ElevenLabsModel)
	show("ELEVENLABS_API_KEY", redact(cfg.ElevenLabsAPIKey))
	show("GOOGLE_SPEECH_ENABLED", fmt.Sprintf("%t", cfg.SpeechEnabled))
	show("UPLOAD_DIR", cfg.UploadDir)
	show("AUDIO_RESPONSE_DIR", cfg.AudioResponseDir)
	show("SESSION_TTL", cfg.SessionTTL.String())
	show("QUEUE_STREAM", cfg.QueueStream)
	show("QUEUE_GROUP", cfg.QueueGroup)
	show("QUEUE_BLOCK", cfg.QueueBlock.String())
	show("QUEUE_MIN_IDLE", cfg.QueueMinIdle.String())
	show("QUEUE_MAX_ATTEMPTS", fmt.Sprintf("%d", cfg.QueueMaxAttempts))
	show("QUEUE_BACKOFF", cfg.QueueErrorBackoff.String())
	show("AGENT_MAX_TOOL_ROUNDS", fmt.Sprintf("%d", cfg.AgentMaxToolRounds))
	show("LOG_LEVEL", cfg.LogLevel)

	if cfg.OpenAIAPIKey == "" {
		fmt.Printf("\n%s[WARN]%s OPENAI_API_KEY is unset, completions will fail\n", ColorYellow, ColorReset)
	}
	if cfg.ElevenLabsAPIKey == "" {
		fmt.Printf("%s[WARN]%s ELEVENLABS_API_KEY is unset, responses will have no audio\n", ColorYellow, ColorReset)
	}
}

func show(name, value string) {
	fmt.Printf("  %-24s %s\n", name, value)
}

func redact(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
