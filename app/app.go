// Package app wires the service together and owns its run loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/varannik/dental-saas/agent"
	"github.com/varannik/dental-saas/audio"
	"github.com/varannik/dental-saas/auth"
	"github.com/varannik/dental-saas/cache"
	"github.com/varannik/dental-saas/config"
	"github.com/varannik/dental-saas/endpoints"
	"github.com/varannik/dental-saas/handlers"
	"github.com/varannik/dental-saas/health"
	"github.com/varannik/dental-saas/interfaces"
	"github.com/varannik/dental-saas/llm"
	"github.com/varannik/dental-saas/pipeline"
	"github.com/varannik/dental-saas/queue"
	"github.com/varannik/dental-saas/registry"
	"github.com/varannik/dental-saas/session"
	"github.com/varannik/dental-saas/stt"
	"github.com/varannik/dental-saas/tools"
	"github.com/varannik/dental-saas/tts"
	"github.com/varannik/dental-saas/worker"
)

const shutdownTimeout = 10 * time.Second

// App holds every wired component of the voice-agent service.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Cache    *cache.Client
	Sessions *session.Store
	Registry *registry.Registry
	Queue    *queue.Queue
	Worker   *worker.Worker
	Pipeline *pipeline.Pipeline

	transcriber interfaces.Transcriber
	server      *http.Server
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.LogLevel)

	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	c, err := cache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Cache:    c,
		Sessions: session.NewStore(c, cfg.SessionTTL),
		Registry: registry.New(),
		Queue:    queue.New(c, cfg, logger),
	}

	// Transcription is opt-in: Google Cloud Speech requires ambient
	// credentials that local setups usually lack. Without it, turns
	// degrade to empty transcripts instead of failing.
	if cfg.SpeechEnabled {
		transcriber, err := stt.New(ctx)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("speech client: %w", err)
		}
		a.transcriber = transcriber
	} else {
		logger.Warn("speech transcription disabled, utterances will produce empty transcripts")
	}

	processor := audio.NewProcessor(a.transcriber, tts.NewClient(cfg), cfg.AudioResponseDir, logger)
	orchestrator := agent.New(llm.NewClient(cfg), tools.DentalTable(), a.Sessions, cfg.AgentMaxToolRounds, logger)
	a.Pipeline = pipeline.New(a.Sessions, orchestrator, processor, logger)

	a.Worker = worker.New(a.Queue, cfg.QueueErrorBackoff, logger)
	a.Worker.Handle(queue.TypeVoiceProcessing, a.handleVoiceTask)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Router assembles the HTTP surface. Health and synthesized audio are
// public; everything else requires a verified bearer token.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.Logger))

	r.Method(http.MethodGet, "/health", health.NewHandler(a.Cache, a.Logger))
	r.Handle("/audio_responses/*", http.StripPrefix("/audio_responses/",
		http.FileServer(http.Dir(a.Config.AudioResponseDir))))

	verifier := auth.NewVerifier(a.Config, a.Logger)
	voice := endpoints.NewVoice(a.Pipeline, a.Sessions, a.Queue, a.Config.UploadDir, a.Logger)
	r.Route("/voice", func(r chi.Router) {
		r.Use(verifier.Middleware)
		r.Mount("/", voice.Routes())
	})

	stream := handlers.NewVoiceStream(a.Pipeline, a.Registry, a.Logger)
	r.Get("/ws/voice/{clinicID}/{source}", stream.ServeHTTP)

	return r
}

// Run serves HTTP and consumes queue tasks until the context is
// cancelled, then shuts both down in order.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := a.Worker.Run(workerCtx); err != nil {
			a.Logger.Error("worker stopped", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", a.server.Addr)
		serverErr <- a.server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown", "error", err)
	}

	stopWorker()
	<-workerDone

	a.Close()
	return runErr
}

// Close releases external clients. Safe after Run, or on a failed boot.
func (a *App) Close() {
	if a.transcriber != nil {
		if err := a.transcriber.Close(); err != nil {
			a.Logger.Error("closing speech client", "error", err)
		}
	}
	if err := a.Cache.Close(); err != nil {
		a.Logger.Error("closing redis", "error", err)
	}
}

// handleVoiceTask runs a deferred voice turn from the queue. The payload
// carries text that was transcribed elsewhere; the outcome is written to
// a task result hash for pollers.
func (a *App) handleVoiceTask(ctx context.Context, task *queue.Task) error {
	sessionID, _ := task.Payload["session_id"].(string)
	transcript, _ := task.Payload["transcript"].(string)
	if sessionID == "" || transcript == "" {
		return fmt.Errorf("task %s payload missing session_id or transcript", task.ID)
	}

	result, err := a.Pipeline.RunTextTurn(ctx, sessionID, transcript)
	if err != nil {
		return fmt.Errorf("deferred turn for session %s: %w", sessionID, err)
	}

	key := a.Cache.Key("task", task.ID)
	rdb := a.Cache.Redis()
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"status":             string(queue.StatusCompleted),
		"session_id":         result.SessionID,
		"response_text":      result.ResponseText,
		"response_audio_url": result.ResponseAudioURL,
		"processed_at":       time.Now().UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, a.Config.SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording task result: %w", err)
	}
	return nil
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// requestLogger logs one line per completed request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
