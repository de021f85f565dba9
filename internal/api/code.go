package api

import (
	"net/http"
	"time"

	"github.com/contextd/contextd/pkg/models"
)

const (
	defaultCompletionTokens = 256
	defaultTemperature      = 0.7
)

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// handleComplete serves POST /code/complete.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.CompletionRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	sessionID := s.dialog.GetOrCreateSession(req.SessionID)

	chunks := s.chunker.ChunkCode(req.Code, req.FilePath, req.Language, 0)
	prompt := buildCompletionPrompt(req.Code, req.CursorPosition, req.Language)

	contextChunks, err := s.retr.RelevantContext(ctx, prompt, chunks, sessionID, 3)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "code completion failed", err)
		return
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultCompletionTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	fullPrompt := buildFullCompletionPrompt(prompt, contextChunks)
	suggestionsText, err := s.llm.GenerateCompletion(ctx, fullPrompt, "", maxTokens, temperature)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "code completion failed", err)
		return
	}

	suggestions := parseSuggestions(suggestionsText)
	confidences := make([]float64, len(suggestions))
	for i := range confidences {
		confidences[i] = 0.8
	}

	if err := s.retr.AddDialogContext(ctx, sessionID, models.RoleUser,
		"Code completion request for "+req.FilePath, chunkIDs(contextChunks)); err != nil {
		s.fail(w, r, http.StatusInternalServerError, "code completion failed", err)
		return
	}

	s.respond(w, http.StatusOK, models.CompletionResponse{
		Suggestions:      suggestions,
		ConfidenceScores: confidences,
		ContextChunks:    orEmpty(contextChunks),
		SessionID:        sessionID,
		ResponseTimeMs:   elapsedMs(start),
	})
}

// handleDebug serves POST /code/debug.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.DebugRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	sessionID := s.dialog.GetOrCreateSession(req.SessionID)

	chunks := s.chunker.ChunkCode(req.Code, req.FilePath, req.Language, 0)
	prompt := buildDebugPrompt(req.Code, req.ErrorMessage, req.Language)

	contextChunks, err := s.retr.RelevantContext(ctx, prompt, chunks, sessionID, 5)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "debug analysis failed", err)
		return
	}

	fullPrompt := buildFullDebugPrompt(prompt, contextChunks)
	// Lower temperature for more consistent analysis.
	analysisText, err := s.llm.GenerateCompletion(ctx, fullPrompt, "", 512, 0.3)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "debug analysis failed", err)
		return
	}

	analysis, suggestions, fixedCode := parseDebugAnalysis(analysisText)

	if err := s.retr.AddDialogContext(ctx, sessionID, models.RoleUser,
		"Debug analysis for "+req.FilePath+": "+req.ErrorMessage, chunkIDs(contextChunks)); err != nil {
		s.fail(w, r, http.StatusInternalServerError, "debug analysis failed", err)
		return
	}

	if suggestions == nil {
		suggestions = []string{}
	}
	s.respond(w, http.StatusOK, models.DebugResponse{
		Analysis:       analysis,
		Suggestions:    suggestions,
		FixedCode:      fixedCode,
		ContextChunks:  orEmpty(contextChunks),
		SessionID:      sessionID,
		ResponseTimeMs: elapsedMs(start),
	})
}

// handleContext serves POST /code/context: chunking only, no model call.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.ContextRequest
	if !s.decode(w, r, &req) {
		return
	}

	chunks := s.chunker.ChunkCode(req.Code, req.FilePath, req.Language, 0)

	totalTokens := 0
	for _, chunk := range chunks {
		totalTokens += chunk.TokenCount
	}

	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = s.cfg.MaxChunksPerRequest
	}
	if len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}

	s.respond(w, http.StatusOK, models.ContextResponse{
		Chunks:           orEmpty(chunks),
		TotalTokens:      totalTokens,
		ProcessingTimeMs: elapsedMs(start),
	})
}

func chunkIDs(chunks []models.CodeChunk) []string {
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		ids = append(ids, chunk.ID)
	}
	return ids
}

func orEmpty(chunks []models.CodeChunk) []models.CodeChunk {
	if chunks == nil {
		return []models.CodeChunk{}
	}
	return chunks
}
