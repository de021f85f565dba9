// Package retrieval assembles the ranked, deduplicated context handed to
// the language model: current-code chunks ranked by relevance, merged with
// chunks referenced by related dialog turns.
package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextd/contextd/pkg/models"
)

// Ranker orders chunks by similarity to a query; the embedding service
// satisfies it.
type Ranker interface {
	FindSimilarChunks(ctx context.Context, query string, chunks []models.CodeChunk, topK int, threshold float64) ([]models.ScoredChunk, error)
}

// History is the dialog memory surface retrieval depends on.
type History interface {
	GetOrCreateSession(id string) string
	AddMessage(ctx context.Context, msg models.DialogMessage) error
	ContextMessages(ctx context.Context, sessionID, query string, max int) ([]models.DialogMessage, error)
}

// Service orchestrates chunk ranking and dialog cross-referencing.
type Service struct {
	ranker Ranker
	memory History
	logger zerolog.Logger

	now func() time.Time
}

// NewService builds a retrieval service.
func NewService(ranker Ranker, memory History, logger zerolog.Logger) *Service {
	return &Service{
		ranker: ranker,
		memory: memory,
		logger: logger,
		now:    time.Now,
	}
}

// RelevantContext returns up to maxChunks chunks relevant to query. All
// candidates are ranked first; when a session is given, chunks referenced by
// relevant dialog turns are ranked again as a smaller second pass and
// appended. Duplicates are dropped by chunk id keeping first-seen order, so
// the code-similarity ranking wins ties over the dialog-derived one.
func (s *Service) RelevantContext(ctx context.Context, query string, chunks []models.CodeChunk, sessionID string, maxChunks int) ([]models.CodeChunk, error) {
	start := s.now()

	ranked, err := s.ranker.FindSimilarChunks(ctx, query, chunks, maxChunks, 0)
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		dialogRanked, err := s.dialogPass(ctx, query, chunks, sessionID, maxChunks/2)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, dialogRanked...)
	}

	seen := make(map[string]bool, len(ranked))
	unique := make([]models.CodeChunk, 0, maxChunks)
	for _, sc := range ranked {
		if seen[sc.Chunk.ID] {
			continue
		}
		seen[sc.Chunk.ID] = true
		unique = append(unique, sc.Chunk)
	}

	if len(unique) > maxChunks {
		unique = unique[:maxChunks]
	}

	s.logger.Info().
		Int("chunks_found", len(unique)).
		Float64("processing_time_ms", float64(s.now().Sub(start).Microseconds())/1000).
		Msg("context retrieval completed")

	return unique, nil
}

// dialogPass ranks the subset of chunks whose ids appear on dialog turns
// relevant to the query.
func (s *Service) dialogPass(ctx context.Context, query string, chunks []models.CodeChunk, sessionID string, topK int) ([]models.ScoredChunk, error) {
	msgs, err := s.memory.ContextMessages(ctx, sessionID, query, 0)
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]bool)
	for _, msg := range msgs {
		for _, id := range msg.ContextChunks {
			referenced[id] = true
		}
	}
	if len(referenced) == 0 {
		return nil, nil
	}

	var subset []models.CodeChunk
	for _, chunk := range chunks {
		if referenced[chunk.ID] {
			subset = append(subset, chunk)
		}
	}
	if len(subset) == 0 {
		return nil, nil
	}

	return s.ranker.FindSimilarChunks(ctx, query, subset, topK, 0)
}

// AddDialogContext records a new dialog turn with a fresh id and the current
// time, associating the given chunk ids with it.
func (s *Service) AddDialogContext(ctx context.Context, sessionID, role, content string, chunkIDs []string) error {
	msg := models.DialogMessage{
		ID:            uuid.NewString(),
		Role:          role,
		Content:       content,
		Timestamp:     s.now(),
		SessionID:     sessionID,
		ContextChunks: chunkIDs,
	}
	return s.memory.AddMessage(ctx, msg)
}
