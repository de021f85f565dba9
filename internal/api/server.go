// Package api exposes the HTTP surface of the context-assembly service:
// code completion, debugging, context inspection, chat with session memory,
// and health reporting.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/contextd/contextd/internal/auth"
	"github.com/contextd/contextd/internal/llm"
	"github.com/contextd/contextd/pkg/models"
)

// Chunker splits source code into semantic chunks.
type Chunker interface {
	ChunkCode(code, filePath, language string, maxChunkSize int) []models.CodeChunk
}

// ContextService retrieves ranked context chunks and records dialog turns.
type ContextService interface {
	RelevantContext(ctx context.Context, query string, chunks []models.CodeChunk, sessionID string, maxChunks int) ([]models.CodeChunk, error)
	AddDialogContext(ctx context.Context, sessionID, role, content string, chunkIDs []string) error
}

// Dialog is the session memory surface the handlers need.
type Dialog interface {
	GetOrCreateSession(id string) string
	ContextMessages(ctx context.Context, sessionID, query string, max int) ([]models.DialogMessage, error)
	History(sessionID string, limit int) ([]models.DialogMessage, int)
	Summaries() []models.SessionSummary
	DeleteSession(id string) bool
}

// Config carries the tunables the handlers and health endpoints report.
type Config struct {
	Version             string
	LLMProvider         string
	DefaultModel        string
	MaxChunkSize        int
	MaxContextLength    int
	MaxChunksPerRequest int
	SimilarityThreshold float64
}

// Server wires the retrieval core to HTTP handlers.
type Server struct {
	chunker Chunker
	retr    ContextService
	dialog  Dialog
	llm     llm.Client
	cfg     Config
	logger  zerolog.Logger
}

// NewServer builds a Server from its collaborators.
func NewServer(chunker Chunker, retr ContextService, dialog Dialog, llmClient llm.Client, cfg Config, logger zerolog.Logger) *Server {
	if cfg.MaxChunksPerRequest <= 0 {
		cfg.MaxChunksPerRequest = 10
	}
	return &Server{
		chunker: chunker,
		retr:    retr,
		dialog:  dialog,
		llm:     llmClient,
		cfg:     cfg,
		logger:  logger,
	}
}

// Routes assembles the router. Health endpoints stay open; everything else
// goes through the optional bearer-auth middleware.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/", s.handleRoot)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.handleHealth)
		r.Get("/models", s.handleHealthModels)
		r.Get("/config", s.handleHealthConfig)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/code", func(r chi.Router) {
			r.Post("/complete", s.handleComplete)
			r.Post("/debug", s.handleDebug)
			r.Post("/context", s.handleContext)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/message", s.handleChatMessage)
			r.Get("/history/{sessionID}", s.handleChatHistory)
			r.Delete("/session/{sessionID}", s.handleDeleteSession)
			r.Get("/sessions", s.handleListSessions)
		})
	})

	return r
}

// corsMiddleware answers preflight requests and marks responses for any
// origin; IDE clients connect from arbitrary local origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{
		"service": "contextd",
		"version": s.cfg.Version,
		"status":  "running",
		"health":  "/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	llmHealthy := s.llm.HealthCheck(r.Context())

	status := "healthy"
	llmStatus := "connected"
	if !llmHealthy {
		status = "degraded"
		llmStatus = "disconnected"
	}

	s.respond(w, http.StatusOK, map[string]string{
		"status":       status,
		"version":      s.cfg.Version,
		"llm_provider": s.cfg.LLMProvider,
		"llm_status":   llmStatus,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealthModels(w http.ResponseWriter, r *http.Request) {
	modelNames, err := s.llm.ListModels(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "failed to list models", err)
		return
	}
	if modelNames == nil {
		modelNames = []string{}
	}
	s.respond(w, http.StatusOK, map[string]any{
		"provider":      s.cfg.LLMProvider,
		"models":        modelNames,
		"default_model": s.cfg.DefaultModel,
	})
}

func (s *Server) handleHealthConfig(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"version":                s.cfg.Version,
		"llm_provider":           s.cfg.LLMProvider,
		"default_model":          s.cfg.DefaultModel,
		"max_context_length":     s.cfg.MaxContextLength,
		"max_chunk_size":         s.cfg.MaxChunkSize,
		"max_chunks_per_request": s.cfg.MaxChunksPerRequest,
		"similarity_threshold":   s.cfg.SimilarityThreshold,
	})
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	s.respond(w, status, map[string]string{"detail": msg + ": " + err.Error()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
