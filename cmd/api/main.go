// Package main implements the threadsage API server: it ingests a
// subreddit into an in-memory index on demand and answers session-scoped
// questions against it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/threadsage/threadsage/engine/chat"
	"github.com/threadsage/threadsage/engine/domain"
	"github.com/threadsage/threadsage/engine/pipeline"
	"github.com/threadsage/threadsage/engine/source"
	"github.com/threadsage/threadsage/pkg/metrics"
	"github.com/threadsage/threadsage/pkg/mid"
	"github.com/threadsage/threadsage/pkg/ollama"
	"github.com/threadsage/threadsage/pkg/status"
)

// Config holds all environment-based server configuration.
type Config struct {
	Port       string
	OllamaURL  string
	NATSURL    string
	CORSOrigin string
	Pipeline   domain.Config
}

func loadConfig() Config {
	pc := domain.DefaultConfig()
	pc.Subreddit = envOr("SUBREDDIT", pc.Subreddit)
	pc.TimeFilter = domain.TimeFilter(envOr("TIME_FILTER", string(pc.TimeFilter)))
	pc.ItemLimit = envInt("ITEM_LIMIT", pc.ItemLimit)
	pc.Granularity = domain.Granularity(envOr("GRANULARITY", string(pc.Granularity)))
	pc.EmbedModel = envOr("EMBED_MODEL", pc.EmbedModel)
	pc.ChatModel = envOr("CHAT_MODEL", pc.ChatModel)
	pc.TopK = envInt("TOP_K", pc.TopK)
	pc.MaxContext = envInt("MAX_CONTEXT", pc.MaxContext)
	pc.HistoryWindow = envInt("HISTORY_WINDOW", pc.HistoryWindow)

	return Config{
		Port:       envOr("PORT", "8080"),
		OllamaURL:  envOr("OLLAMA_URL", "http://localhost:11434"),
		NATSURL:    os.Getenv("NATS_URL"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		Pipeline:   pc,
	}
}

func envOr(key, fallback string) string {
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

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// Status events go to the log, and to NATS when configured so an
	// external UI can follow ingestion progress.
	emitter := status.LogEmitter(logger)
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("threadsage-api"))
		if err != nil {
			return err
		}
		defer nc.Drain()
		emitter = status.Multi(emitter, status.NewNATSEmitter(nc, "", logger))
		logger.Info("status events broadcast to NATS", "url", cfg.NATSURL)
	}

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.Pipeline.EmbedModel)
	generator := ollama.NewChatClient(cfg.OllamaURL, cfg.Pipeline.ChatModel)
	src := source.NewClient(logger)

	pipe, err := pipeline.New(cfg.Pipeline, src, embedder, emitter, reg, logger)
	if err != nil {
		return err
	}

	chatSvc := chat.New(pipe, generator, chat.Options{
		HistoryWindow: cfg.Pipeline.HistoryWindow,
	}, logger)

	srv := &server{
		pipe:       pipe,
		chat:       chatSvc,
		sessions:   make(map[string]*chat.Session),
		logger:     logger,
		mQuestions: reg.Counter("threadsage_questions_total", "Questions answered"),
		mAskErrors: reg.Counter("threadsage_ask_errors_total", "Failed ask calls"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("POST /api/ingest", srv.handleIngest)
	mux.HandleFunc("POST /api/sessions", srv.handleNewSession)
	mux.HandleFunc("POST /api/chat", srv.handleChat)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("threadsage-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // ingest and chat calls block on model services
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

type server struct {
	pipe *pipeline.Pipeline
	chat *chat.Service

	mu       sync.Mutex
	sessions map[string]*chat.Session

	logger     *slog.Logger
	mQuestions *metrics.Counter
	mAskErrors *metrics.Counter
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ready":  s.pipe.Ready(),
	})
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipe.Run(r.Context())
	if err != nil {
		s.logger.Error("ingest failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleNewSession(w http.ResponseWriter, _ *http.Request) {
	sess := chat.NewSession()
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID()})
}

type chatPayload struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id and question required"})
		return
	}

	s.mu.Lock()
	sess := s.sessions[req.SessionID]
	s.mu.Unlock()
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
		return
	}

	answer, err := s.chat.Ask(r.Context(), sess, req.Question)
	if err != nil {
		s.mAskErrors.Inc()
		switch {
		case errors.Is(err, domain.ErrNotReady):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "index not built yet, POST /api/ingest first"})
		case errors.Is(err, domain.ErrSessionBusy):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session is already handling a question"})
		default:
			s.logger.Error("ask failed", "session", req.SessionID, "kind", domain.KindOf(err), "err", err)
			writeError(w, http.StatusBadGateway, err)
		}
		return
	}

	s.mQuestions.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"answer":     answer,
		"turns":      sess.Len(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{
		"error": err.Error(),
		"kind":  string(domain.KindOf(err)),
	})
}
