// Package interfaces defines the boundaries to external speech providers.
package interfaces

import "context"

// Transcriber converts one recorded utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Close() error
}

// Synthesizer converts response text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
