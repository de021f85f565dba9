package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contextd/contextd/pkg/models"
)

const defaultHistoryLimit = 50

// handleChatMessage serves POST /chat/message.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	sessionID := s.dialog.GetOrCreateSession(req.SessionID)

	var contextChunks []models.CodeChunk
	if req.ContextCode != "" && req.FilePath != "" && req.Language != "" {
		contextChunks = s.chunker.ChunkCode(req.ContextCode, req.FilePath, req.Language, 0)
	}

	history, err := s.dialog.ContextMessages(ctx, sessionID, req.Message, 10)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "chat message failed", err)
		return
	}

	turns := []models.ChatTurn{{Role: models.RoleSystem, Content: buildSystemPrompt(req.Language)}}
	for _, msg := range history {
		if msg.Role == models.RoleUser || msg.Role == models.RoleAssistant {
			turns = append(turns, models.ChatTurn{Role: msg.Role, Content: msg.Content})
		}
	}
	if len(contextChunks) > 0 {
		shown := contextChunks
		if len(shown) > 3 {
			shown = shown[:3]
		}
		turns = append(turns, models.ChatTurn{
			Role:    models.RoleUser,
			Content: "Current code context:\n" + chunkContextText(shown),
		})
	}
	turns = append(turns, models.ChatTurn{Role: models.RoleUser, Content: req.Message})

	responseText, err := s.llm.GenerateChat(ctx, turns, "", 512, defaultTemperature)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, "chat message failed", err)
		return
	}

	ids := chunkIDs(contextChunks)
	if err := s.retr.AddDialogContext(ctx, sessionID, models.RoleUser, req.Message, ids); err != nil {
		s.fail(w, r, http.StatusInternalServerError, "chat message failed", err)
		return
	}
	if err := s.retr.AddDialogContext(ctx, sessionID, models.RoleAssistant, responseText, ids); err != nil {
		s.fail(w, r, http.StatusInternalServerError, "chat message failed", err)
		return
	}

	s.respond(w, http.StatusOK, models.ChatResponse{
		Response:       responseText,
		SessionID:      sessionID,
		ContextChunks:  orEmpty(contextChunks),
		ResponseTimeMs: elapsedMs(start),
	})
}

// handleChatHistory serves GET /chat/history/{sessionID}. Unknown sessions
// yield an empty transcript, not an error.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, total := s.dialog.History(sessionID, limit)
	if msgs == nil {
		msgs = []models.DialogMessage{}
	}

	s.respond(w, http.StatusOK, models.HistoryResponse{
		Messages:      msgs,
		SessionID:     sessionID,
		TotalMessages: total,
	})
}

// handleDeleteSession serves DELETE /chat/session/{sessionID}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	msg := "Session cleared"
	if !s.dialog.DeleteSession(sessionID) {
		msg = "Session not found"
	}
	s.respond(w, http.StatusOK, map[string]string{
		"message":    msg,
		"session_id": sessionID,
	})
}

// handleListSessions serves GET /chat/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries := s.dialog.Summaries()
	if summaries == nil {
		summaries = []models.SessionSummary{}
	}
	s.respond(w, http.StatusOK, map[string]any{"sessions": summaries})
}
