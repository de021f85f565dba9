package models

import "time"

// Message roles recognized by the dialog memory and the LLM backends.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// CodeChunk is a bounded, line-addressable slice of source code.
//
// Chunks are immutable once created: embeddings computed during ranking are
// kept in an id-keyed cache owned by the embedding service, never written
// back onto the chunk.
type CodeChunk struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	FilePath   string         `json:"file_path"`
	Language   string         `json:"language"`
	StartLine  int            `json:"start_line"`
	EndLine    int            `json:"end_line"`
	TokenCount int            `json:"token_count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ScoredChunk pairs a chunk with its similarity score against a query.
type ScoredChunk struct {
	Chunk CodeChunk `json:"chunk"`
	Score float64   `json:"score"`
}

// DialogMessage is one turn in a session. ContextChunks holds the ids of
// chunks associated with the turn; messages never own chunk objects.
type DialogMessage struct {
	ID            string         `json:"id"`
	Role          string         `json:"role"`
	Content       string         `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	SessionID     string         `json:"session_id"`
	ContextChunks []string       `json:"context_chunks,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ChatTurn is a role-tagged message in the shape LLM backends accept.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionSummary describes a session without exposing its messages.
type SessionSummary struct {
	SessionID    string     `json:"session_id"`
	MessageCount int        `json:"message_count"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Roles        []string   `json:"roles"`
}

// CompletionRequest asks for completion suggestions at a cursor position.
type CompletionRequest struct {
	Code           string  `json:"code"`
	FilePath       string  `json:"file_path"`
	CursorPosition int     `json:"cursor_position"`
	Language       string  `json:"language"`
	ContextWindow  int     `json:"context_window,omitempty"`
	SessionID      string  `json:"session_id,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
}

type CompletionResponse struct {
	Suggestions      []string    `json:"suggestions"`
	ConfidenceScores []float64   `json:"confidence_scores"`
	ContextChunks    []CodeChunk `json:"context_chunks"`
	SessionID        string      `json:"session_id"`
	ResponseTimeMs   float64     `json:"response_time_ms"`
}

// DebugRequest asks for an analysis of code that misbehaves.
type DebugRequest struct {
	Code         string `json:"code"`
	FilePath     string `json:"file_path"`
	ErrorMessage string `json:"error_message,omitempty"`
	Language     string `json:"language"`
	SessionID    string `json:"session_id,omitempty"`
}

type DebugResponse struct {
	Analysis       string      `json:"analysis"`
	Suggestions    []string    `json:"suggestions"`
	FixedCode      string      `json:"fixed_code,omitempty"`
	ContextChunks  []CodeChunk `json:"context_chunks"`
	SessionID      string      `json:"session_id"`
	ResponseTimeMs float64     `json:"response_time_ms"`
}

// ContextRequest asks for the chunked view of a piece of code.
type ContextRequest struct {
	Code      string `json:"code"`
	FilePath  string `json:"file_path"`
	Language  string `json:"language"`
	MaxChunks int    `json:"max_chunks,omitempty"`
}

type ContextResponse struct {
	Chunks           []CodeChunk `json:"chunks"`
	TotalTokens      int         `json:"total_tokens"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
}

// ChatRequest carries a conversational message, optionally with code the
// assistant should consider.
type ChatRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"session_id,omitempty"`
	ContextCode string `json:"context_code,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	Language    string `json:"language,omitempty"`
}

type ChatResponse struct {
	Response       string      `json:"response"`
	SessionID      string      `json:"session_id"`
	ContextChunks  []CodeChunk `json:"context_chunks"`
	ResponseTimeMs float64     `json:"response_time_ms"`
}

// HistoryResponse is the transcript view of one session.
type HistoryResponse struct {
	Messages      []DialogMessage `json:"messages"`
	SessionID     string          `json:"session_id"`
	TotalMessages int             `json:"total_messages"`
}
