// Package handlers implements the realtime voice streaming endpoint.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/varannik/dental-saas/pipeline"
	"github.com/varannik/dental-saas/registry"
	"github.com/varannik/dental-saas/session"
)

// Message types sent to streaming clients.
const (
	TypeConnectionEstablished = "connection_established"
	TypeTranscript            = "transcript"
	TypeResponse              = "response"
	TypeError                 = "error"
)

// StreamMessage is the envelope for everything the server sends over a
// voice stream.
type StreamMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id,omitempty"`
	Text             string `json:"text,omitempty"`
	Transcript       string `json:"transcript,omitempty"`
	ResponseText     string `json:"response_text,omitempty"`
	ResponseAudioURL string `json:"response_audio_url,omitempty"`
	Message          string `json:"message,omitempty"`
}

// VoiceStream upgrades clients to a websocket and runs their utterances
// through the turn pipeline, one frame per turn.
type VoiceStream struct {
	pipeline *pipeline.Pipeline
	registry *registry.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewVoiceStream(p *pipeline.Pipeline, reg *registry.Registry, logger *slog.Logger) *VoiceStream {
	return &VoiceStream{
		pipeline: p,
		registry: reg,
		logger:   logger.With("component", "voice-stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *VoiceStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	source := session.Source(chi.URLParam(r, "source"))
	if !source.Valid() {
		http.Error(w, `{"error":"unknown source"}`, http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	clientID := uuid.NewString()
	h.registry.Register(clientID, conn)
	defer h.registry.Unregister(clientID)

	// The connection's lifetime bounds every turn started on it.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID, err := h.pipeline.EnsureSession(ctx, r.URL.Query().Get("session_id"), clinicID, source)
	if err != nil {
		h.logger.Error("session setup failed", "client_id", clientID, "error", err)
		h.fail(clientID, "could not establish session")
		return
	}

	logger := h.logger.With("client_id", clientID, "session_id", sessionID)
	logger.Info("client connected", "clinic_id", clinicID, "source", string(source))

	_ = h.registry.Send(clientID, StreamMessage{
		Type:      TypeConnectionEstablished,
		SessionID: sessionID,
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("client disconnected", "error", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		if err := h.turn(ctx, clientID, sessionID, data); err != nil {
			logger.Error("voice turn failed", "error", err)
			h.fail(clientID, turnErrorMessage(err))
			return
		}
	}
}

// turn runs one utterance and streams the transcript and final response
// back to the client.
func (h *VoiceStream) turn(ctx context.Context, clientID, sessionID string, utterance []byte) error {
	result, err := h.pipeline.RunTurnWith(ctx, sessionID, utterance, func(transcript string) {
		_ = h.registry.Send(clientID, StreamMessage{
			Type: TypeTranscript,
			Text: transcript,
		})
	})
	if err != nil {
		return err
	}

	return h.registry.Send(clientID, StreamMessage{
		Type:             TypeResponse,
		SessionID:        result.SessionID,
		Transcript:       result.Transcript,
		ResponseText:     result.ResponseText,
		ResponseAudioURL: result.ResponseAudioURL,
	})
}

// fail sends a terminal error message and tears the connection down.
// Clients never see a half-open stream after a failed turn.
func (h *VoiceStream) fail(clientID, message string) {
	_ = h.registry.Send(clientID, StreamMessage{
		Type:    TypeError,
		Message: message,
	})
	h.registry.Unregister(clientID)
}

func turnErrorMessage(err error) string {
	if errors.Is(err, pipeline.ErrSessionGone) {
		return "session not found"
	}
	return "could not process voice command"
}
