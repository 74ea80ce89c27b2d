// Package pipeline runs one full voice turn: transcript in, orchestrated
// answer out, session updated, response audio rendered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/varannik/dental-saas/agent"
	"github.com/varannik/dental-saas/audio"
	"github.com/varannik/dental-saas/session"
)

// ErrSessionGone reports that the target session expired or never
// existed. Callers surface it as "session not found", not as a crash.
var ErrSessionGone = errors.New("session not found")

// Result is the outcome of one completed turn.
type Result struct {
	SessionID        string `json:"session_id"`
	Transcript       string `json:"transcript"`
	ResponseText     string `json:"response_text"`
	ResponseAudioURL string `json:"response_audio_url"`
}

// Pipeline coordinates the collaborators for a turn and serializes
// concurrent turns on the same session, so interactions are appended in
// the order they were submitted.
type Pipeline struct {
	sessions *session.Store
	agent    *agent.Orchestrator
	audio    *audio.Processor
	logger   *slog.Logger
	turns    keyedMutex
}

func New(sessions *session.Store, orchestrator *agent.Orchestrator, processor *audio.Processor, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		sessions: sessions,
		agent:    orchestrator,
		audio:    processor,
		logger:   logger.With("component", "pipeline"),
	}
}

// EnsureSession returns the given session id, or creates a new session
// when none was supplied.
func (p *Pipeline) EnsureSession(ctx context.Context, sessionID, clinicID string, source session.Source) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	id, err := p.sessions.Create(ctx, clinicID, source)
	if err != nil {
		return "", fmt.Errorf("could not create session: %w", err)
	}
	return id, nil
}

// RunTurn processes one utterance against a session. Transcription and
// synthesis degrade on provider failure; a missing or expired session
// returns ErrSessionGone.
func (p *Pipeline) RunTurn(ctx context.Context, sessionID string, utterance []byte) (*Result, error) {
	return p.RunTurnWith(ctx, sessionID, utterance, nil)
}

// RunTurnWith is RunTurn with an optional hook invoked as soon as the
// transcript is available, before the answer is generated. Streaming
// clients use it to show the caller's words while the answer is pending.
func (p *Pipeline) RunTurnWith(ctx context.Context, sessionID string, utterance []byte, onTranscript func(string)) (*Result, error) {
	transcript := p.audio.Transcribe(ctx, utterance)
	if onTranscript != nil {
		onTranscript(transcript)
	}

	responseText, err := p.converse(ctx, sessionID, transcript)
	if err != nil {
		return nil, err
	}

	audioURL := p.audio.Generate(ctx, responseText)

	return &Result{
		SessionID:        sessionID,
		Transcript:       transcript,
		ResponseText:     responseText,
		ResponseAudioURL: audioURL,
	}, nil
}

// RunTextTurn processes an utterance that already arrived as text, as
// deferred queue tasks do. Same semantics as RunTurn minus transcription.
func (p *Pipeline) RunTextTurn(ctx context.Context, sessionID, transcript string) (*Result, error) {
	responseText, err := p.converse(ctx, sessionID, transcript)
	if err != nil {
		return nil, err
	}

	return &Result{
		SessionID:        sessionID,
		Transcript:       transcript,
		ResponseText:     responseText,
		ResponseAudioURL: p.audio.Generate(ctx, responseText),
	}, nil
}

// converse holds the per-session lock across orchestration and append,
// preserving the interaction order for the session.
func (p *Pipeline) converse(ctx context.Context, sessionID, transcript string) (string, error) {
	unlock := p.turns.lock(sessionID)
	defer unlock()

	messages := []agent.Message{{Role: agent.RoleUser, Content: transcript}}
	responseText, err := p.agent.Invoke(ctx, messages, sessionID)
	if err != nil {
		return "", fmt.Errorf("turn cancelled: %w", err)
	}

	ok, err := p.sessions.Append(ctx, sessionID, transcript, responseText)
	if err != nil {
		return "", fmt.Errorf("could not record interaction: %w", err)
	}
	if !ok {
		return "", ErrSessionGone
	}

	return responseText, nil
}

// keyedMutex serializes callers per key. Entries are reference-counted
// so idle sessions do not accumulate locks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
