// Package dialog keeps per-session conversation history with TTL-based
// pruning and relevance-aware retrieval.
package dialog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextd/contextd/pkg/models"
)

const (
	DefaultTTL         = time.Hour
	DefaultMaxHistory  = 20
	DefaultMaxSessions = 1024
)

// Store is the session storage backend. Implementations need not be safe
// for concurrent use; Memory serializes all access through its own lock.
type Store interface {
	Get(sessionID string) ([]models.DialogMessage, bool)
	Set(sessionID string, messages []models.DialogMessage)
	Delete(sessionID string) bool
	IDs() []string
	Len() int
}

// mapStore is the default in-memory Store.
type mapStore struct {
	sessions map[string][]models.DialogMessage
}

// NewMapStore returns an empty in-memory session store.
func NewMapStore() Store {
	return &mapStore{sessions: make(map[string][]models.DialogMessage)}
}

func (s *mapStore) Get(id string) ([]models.DialogMessage, bool) {
	msgs, ok := s.sessions[id]
	return msgs, ok
}

func (s *mapStore) Set(id string, messages []models.DialogMessage) {
	s.sessions[id] = messages
}

func (s *mapStore) Delete(id string) bool {
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

func (s *mapStore) IDs() []string {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *mapStore) Len() int { return len(s.sessions) }

// Similarity scores two texts; the embedding service satisfies it.
type Similarity interface {
	ComputeSimilarity(ctx context.Context, text1, text2 string) (float64, error)
}

// Memory is the session-scoped dialog log. All mutation is serialized
// through a single lock so concurrent appends to one session cannot
// interleave.
type Memory struct {
	mu sync.Mutex

	store       Store
	sim         Similarity
	ttl         time.Duration
	maxHistory  int
	maxSessions int
	logger      zerolog.Logger

	// touched tracks last activity per session for capacity eviction;
	// TTL pruning alone does not bound the session count.
	touched map[string]time.Time

	now func() time.Time
}

// Options tunes a Memory. Zero values select the defaults.
type Options struct {
	Store       Store
	TTL         time.Duration
	MaxHistory  int
	MaxSessions int
	Logger      zerolog.Logger
}

// NewMemory builds a dialog memory backed by sim for relevance scoring.
func NewMemory(sim Similarity, opts Options) *Memory {
	if opts.Store == nil {
		opts.Store = NewMapStore()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	return &Memory{
		store:       opts.Store,
		sim:         sim,
		ttl:         opts.TTL,
		maxHistory:  opts.MaxHistory,
		maxSessions: opts.MaxSessions,
		logger:      opts.Logger,
		touched:     make(map[string]time.Time),
		now:         time.Now,
	}
}

// GetOrCreateSession returns id, registering an empty session when it is
// unknown. An empty id gets a fresh identifier. Idempotent on known ids.
func (m *Memory) GetOrCreateSession(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(id)
}

func (m *Memory) getOrCreateLocked(id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := m.store.Get(id); !ok {
		m.evictForCapacityLocked()
		m.store.Set(id, nil)
		m.touched[id] = m.now()
	}
	return id
}

// evictForCapacityLocked drops the least recently touched session when the
// store is full.
func (m *Memory) evictForCapacityLocked() {
	if m.store.Len() < m.maxSessions {
		return
	}
	var oldest string
	var oldestAt time.Time
	for _, id := range m.store.IDs() {
		at := m.touched[id]
		if oldest == "" || at.Before(oldestAt) {
			oldest = id
			oldestAt = at
		}
	}
	if oldest != "" {
		m.store.Delete(oldest)
		delete(m.touched, oldest)
		m.logger.Debug().Str("session_id", oldest).Msg("evicted oldest session")
	}
}

// AddMessage appends msg to its session, creating the session when unknown,
// then prunes expired messages from that session.
func (m *Memory) AddMessage(ctx context.Context, msg models.DialogMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.getOrCreateLocked(msg.SessionID)
	msg.SessionID = id

	msgs, _ := m.store.Get(id)
	msgs = append(msgs, msg)
	m.store.Set(id, m.pruneLocked(msgs))
	m.touched[id] = m.now()
	return nil
}

// pruneLocked drops messages older than the TTL cutoff, keeping system
// messages regardless of age. Order is preserved.
func (m *Memory) pruneLocked(msgs []models.DialogMessage) []models.DialogMessage {
	cutoff := m.now().Add(-m.ttl)
	kept := msgs[:0]
	for _, msg := range msgs {
		if msg.Timestamp.After(cutoff) || msg.Role == models.RoleSystem {
			kept = append(kept, msg)
		}
	}
	return kept
}

// History returns the last limit messages of a session in stored order plus
// the session's total message count. Unknown sessions yield empty results.
func (m *Memory) History(sessionID string, limit int) ([]models.DialogMessage, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs, ok := m.store.Get(sessionID)
	if !ok {
		return nil, 0
	}
	total := len(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.DialogMessage, len(msgs))
	copy(out, msgs)
	return out, total
}

// ContextMessages selects up to max messages for prompting. Without a query
// it returns the most recent messages in stored order. With a query every
// message is scored (system messages are always 1.0, others by similarity to
// the query), the top max by (score, timestamp) are selected, and the
// selection is returned in chronological order. Unknown sessions yield an
// empty result.
func (m *Memory) ContextMessages(ctx context.Context, sessionID, query string, max int) ([]models.DialogMessage, error) {
	if max <= 0 {
		max = m.maxHistory
	}

	m.mu.Lock()
	stored, ok := m.store.Get(sessionID)
	msgs := make([]models.DialogMessage, len(stored))
	copy(msgs, stored)
	m.mu.Unlock()

	if !ok || len(msgs) == 0 {
		return nil, nil
	}

	if query == "" {
		if len(msgs) > max {
			msgs = msgs[len(msgs)-max:]
		}
		return msgs, nil
	}

	type scoredMessage struct {
		msg   models.DialogMessage
		score float64
	}
	scored := make([]scoredMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == models.RoleSystem {
			scored = append(scored, scoredMessage{msg, 1.0})
			continue
		}
		score, err := m.sim.ComputeSimilarity(ctx, query, msg.Content)
		if err != nil {
			return nil, err
		}
		scored = append(scored, scoredMessage{msg, score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].msg.Timestamp.After(scored[j].msg.Timestamp)
	})

	if len(scored) > max {
		scored = scored[:max]
	}

	selected := make([]models.DialogMessage, len(scored))
	for i, sm := range scored {
		selected[i] = sm.msg
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})

	return selected, nil
}

// Summary describes a session without exposing its messages. Unknown
// sessions yield an empty summary.
func (m *Memory) Summary(sessionID string) models.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked(sessionID)
}

func (m *Memory) summaryLocked(sessionID string) models.SessionSummary {
	msgs, ok := m.store.Get(sessionID)
	if !ok {
		return models.SessionSummary{}
	}

	summary := models.SessionSummary{
		SessionID:    sessionID,
		MessageCount: len(msgs),
		Roles:        []string{},
	}
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1].Timestamp
		summary.LastActivity = &last
	}

	seen := make(map[string]bool)
	for _, msg := range msgs {
		if !seen[msg.Role] {
			seen[msg.Role] = true
			summary.Roles = append(summary.Roles, msg.Role)
		}
	}
	return summary
}

// Summaries returns a summary for every live session.
func (m *Memory) Summaries() []models.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.store.IDs()
	sort.Strings(ids)

	out := make([]models.SessionSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.summaryLocked(id))
	}
	return out
}

// DeleteSession removes a session and reports whether it existed.
func (m *Memory) DeleteSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.touched, sessionID)
	return m.store.Delete(sessionID)
}
