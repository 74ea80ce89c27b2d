// Package stt transcribes recorded utterances with Google Cloud Speech.
package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// STT is the speech-to-text client. It relies on Application Default
// Credentials for authentication.
type STT struct {
	speechClient *speech.Client
}

func New(ctx context.Context) (*STT, error) {
	speechClient, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &STT{speechClient: speechClient}, nil
}

// Close cleans up the speech client connection.
func (s *STT) Close() error {
	if s.speechClient != nil {
		return s.speechClient.Close()
	}
	return nil
}

// Transcribe runs batch recognition over one utterance. Clients send
// 16kHz mono PCM frames.
func (s *STT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := s.speechClient.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: 16000,
			LanguageCode:    "en-US",
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("could not recognize audio: %w", err)
	}

	var transcript strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			transcript.WriteString(result.Alternatives[0].Transcript)
		}
	}
	return strings.TrimSpace(transcript.String()), nil
}
