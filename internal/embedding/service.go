// Package embedding ranks code chunks and dialog text by cosine similarity
// against a query, backed by a pluggable embedding provider and bounded LRU
// caches.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/contextd/contextd/internal/ai"
	"github.com/contextd/contextd/pkg/models"
)

const (
	DefaultCacheSize = 4096
	DefaultThreshold = 0.7
)

// Service computes and caches embedding vectors and performs similarity
// ranking. Vectors are cached two ways: by exact text (query and message
// similarity) and by chunk id (chunk ranking), so chunks stay immutable and
// repeated ranking of the same chunk never re-embeds it.
type Service struct {
	client    ai.Client
	threshold float64
	logger    zerolog.Logger

	textCache  *lru.Cache[string, []float32]
	chunkCache *lru.Cache[string, []float32]
}

// NewService builds a Service. cacheSize <= 0 and threshold == 0 select the
// defaults.
func NewService(client ai.Client, cacheSize int, threshold float64, logger zerolog.Logger) (*Service, error) {
	if client == nil {
		return nil, errors.New("embedding client is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	textCache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("text cache: %w", err)
	}
	chunkCache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("chunk cache: %w", err)
	}

	return &Service{
		client:     client,
		threshold:  threshold,
		logger:     logger,
		textCache:  textCache,
		chunkCache: chunkCache,
	}, nil
}

// Threshold returns the configured default similarity threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// GetEmbedding returns the vector for text, computing and caching it on a
// miss. The cache key is the exact text; no normalization is applied.
func (s *Service) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.textCache.Get(text); ok {
		return vec, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec, err := s.client.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	s.textCache.Add(text, vec)
	return vec, nil
}

// ComputeSimilarity returns the cosine similarity of two texts. Identical
// non-empty texts score 1.0 within floating-point tolerance.
func (s *Service) ComputeSimilarity(ctx context.Context, text1, text2 string) (float64, error) {
	v1, err := s.GetEmbedding(ctx, text1)
	if err != nil {
		return 0, err
	}
	v2, err := s.GetEmbedding(ctx, text2)
	if err != nil {
		return 0, err
	}
	return Cosine(v1, v2), nil
}

// chunkEmbedding returns the vector for a chunk, keyed by chunk id. Content
// is embedded through the text cache so identical content across ids costs
// one provider call.
func (s *Service) chunkEmbedding(ctx context.Context, chunk models.CodeChunk) ([]float32, error) {
	if vec, ok := s.chunkCache.Get(chunk.ID); ok {
		return vec, nil
	}
	vec, err := s.GetEmbedding(ctx, chunk.Content)
	if err != nil {
		return nil, err
	}
	s.chunkCache.Add(chunk.ID, vec)
	return vec, nil
}

// FindSimilarChunks ranks chunks against query by cosine similarity.
// Results are sorted non-increasing by score (ties keep input order),
// filtered to score >= threshold, and truncated to topK. threshold == 0
// selects the configured default. Empty chunks input or topK <= 0 returns
// an empty result without embedding the query.
func (s *Service) FindSimilarChunks(ctx context.Context, query string, chunks []models.CodeChunk, topK int, threshold float64) ([]models.ScoredChunk, error) {
	if threshold == 0 {
		threshold = s.threshold
	}
	if len(chunks) == 0 || topK <= 0 {
		return nil, nil
	}

	queryVec, err := s.GetEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := s.chunkEmbedding(ctx, chunk)
		if err != nil {
			return nil, err
		}
		scored = append(scored, models.ScoredChunk{
			Chunk: chunk,
			Score: Cosine(queryVec, vec),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	out := make([]models.ScoredChunk, 0, topK)
	for _, sc := range scored {
		if sc.Score < threshold {
			continue
		}
		out = append(out, sc)
		if len(out) == topK {
			break
		}
	}

	s.logger.Debug().
		Int("candidates", len(chunks)).
		Int("matched", len(out)).
		Float64("threshold", threshold).
		Msg("ranked chunks")

	return out, nil
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
