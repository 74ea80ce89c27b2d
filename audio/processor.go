// Package audio turns utterances into text and response text into
// playable audio files.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/varannik/dental-saas/interfaces"
)

// URLPrefix is the public route synthesized responses are served under.
const URLPrefix = "/audio_responses"

// Processor orchestrates the external speech collaborators. Provider
// failures degrade (empty transcript, empty audio URL) rather than fail
// the turn.
type Processor struct {
	transcriber interfaces.Transcriber
	synthesizer interfaces.Synthesizer
	responseDir string
	logger      *slog.Logger
}

// NewProcessor creates a processor. transcriber may be nil when speech
// recognition is not configured; transcription then degrades to an
// empty transcript.
func NewProcessor(transcriber interfaces.Transcriber, synthesizer interfaces.Synthesizer, responseDir string, logger *slog.Logger) *Processor {
	return &Processor{
		transcriber: transcriber,
		synthesizer: synthesizer,
		responseDir: responseDir,
		logger:      logger.With("component", "audio"),
	}
}

// Transcribe converts one utterance to text. Failures are logged and
// yield an empty transcript so the caller can still answer.
func (p *Processor) Transcribe(ctx context.Context, data []byte) string {
	if p.transcriber == nil {
		p.logger.Warn("transcription requested but no transcriber configured")
		return ""
	}

	transcript, err := p.transcriber.Transcribe(ctx, data)
	if err != nil {
		p.logger.Error("transcription failed", "error", err)
		return ""
	}
	return transcript
}

// Generate synthesizes the response text, stores the audio under the
// response directory and returns its public URL. Failures are logged
// and yield an empty URL.
func (p *Processor) Generate(ctx context.Context, text string) string {
	if p.synthesizer == nil || text == "" {
		return ""
	}

	data, err := p.synthesizer.Synthesize(ctx, text)
	if err != nil {
		p.logger.Error("speech synthesis failed", "error", err)
		return ""
	}

	filename := fmt.Sprintf("response_%s.mp3", uuid.NewString())
	path := filepath.Join(p.responseDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.logger.Error("could not store synthesized audio", "path", path, "error", err)
		return ""
	}

	return URLPrefix + "/" + filename
}
