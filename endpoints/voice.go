// Package endpoints implements the HTTP API for voice interactions.
package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/varannik/dental-saas/auth"
	"github.com/varannik/dental-saas/pipeline"
	"github.com/varannik/dental-saas/queue"
	"github.com/varannik/dental-saas/session"
)

const maxUploadBytes = 32 << 20

// SuggestedAction is a UI hint derived from the assistant's answer.
type SuggestedAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
}

type uploadResponse struct {
	pipeline.Result
	SuggestedActions []SuggestedAction `json:"suggested_actions"`
}

// Voice serves the voice command API.
type Voice struct {
	pipeline  *pipeline.Pipeline
	sessions  *session.Store
	queue     *queue.Queue
	uploadDir string
	logger    *slog.Logger
}

func NewVoice(p *pipeline.Pipeline, sessions *session.Store, q *queue.Queue, uploadDir string, logger *slog.Logger) *Voice {
	return &Voice{
		pipeline:  p,
		sessions:  sessions,
		queue:     q,
		uploadDir: uploadDir,
		logger:    logger.With("component", "voice-api"),
	}
}

// Routes mounts the voice endpoints on a fresh router.
func (v *Voice) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/upload", v.upload)
	r.Get("/sessions/{sessionID}", v.getSession)
	r.Post("/queue", v.queueTask)
	return r
}

func (v *Voice) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	clinicID := r.FormValue("clinic_id")
	if clinicID == "" {
		writeError(w, http.StatusBadRequest, "clinic_id is required")
		return
	}
	source := session.Source(r.FormValue("source"))
	if !source.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", source))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	utterance, tempPath, err := v.saveUpload(file)
	if err != nil {
		v.logger.Error("saving upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	defer func() { _ = os.Remove(tempPath) }()

	sessionID, err := v.pipeline.EnsureSession(r.Context(), r.FormValue("session_id"), clinicID, source)
	if err != nil {
		v.logger.Error("session setup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	result, err := v.pipeline.RunTurn(r.Context(), sessionID, utterance)
	if err != nil {
		if errors.Is(err, pipeline.ErrSessionGone) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		v.logger.Error("voice turn failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not process voice command")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Result:           *result,
		SuggestedActions: suggestActions(result.ResponseText),
	})
}

// saveUpload spools the uploaded audio to disk and returns its bytes.
// The file is kept only for the duration of the request.
func (v *Voice) saveUpload(file io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading upload: %w", err)
	}

	path := filepath.Join(v.uploadDir, fmt.Sprintf("audio_%s.wav", uuid.NewString()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, "", fmt.Errorf("writing upload to %s: %w", path, err)
	}
	return data, path, nil
}

func (v *Voice) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	history, err := v.sessions.History(r.Context(), sessionID)
	if err != nil {
		v.logger.Error("session lookup failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"history":    history,
	})
}

func (v *Voice) queueTask(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	actor := ""
	if user, ok := auth.FromContext(r.Context()); ok {
		actor = user.Username
	}

	taskID, err := v.queue.Enqueue(r.Context(), queue.TypeVoiceProcessing, payload, actor)
	if err != nil {
		v.logger.Error("enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not queue task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"status":  "queued",
	})
}

// suggestActions derives follow-up UI actions from keywords in the
// assistant's answer.
func suggestActions(responseText string) []SuggestedAction {
	actions := []SuggestedAction{}
	lower := strings.ToLower(responseText)
	if strings.Contains(lower, "appointment") {
		actions = append(actions, SuggestedAction{Action: "view_calendar", Label: "Open Calendar"})
	}
	if strings.Contains(lower, "patient") && strings.Contains(lower, "information") {
		actions = append(actions, SuggestedAction{Action: "search_patient", Label: "Search Patient"})
	}
	return actions
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
