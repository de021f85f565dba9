// Package llm talks to the text-generation backend. Two backend shapes are
// supported: an Ollama-style local server and any OpenAI-compatible API
// (which also covers LM Studio via its local base URL). Failures surface as
// ErrUpstreamUnavailable and are never retried here.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/contextd/contextd/pkg/models"
)

// ErrUpstreamUnavailable marks the generation backend as unreachable or
// returning a non-success status.
var ErrUpstreamUnavailable = errors.New("llm backend unavailable")

// Provider selects the backend shape.
type Provider string

const (
	ProviderOllama   Provider = "ollama"
	ProviderOpenAI   Provider = "openai"
	ProviderLMStudio Provider = "lm_studio"
)

// Per-operation timeouts.
const (
	generateTimeout = 30 * time.Second
	listTimeout     = 10 * time.Second
	healthTimeout   = 5 * time.Second
)

// Client generates text against a configured backend.
type Client interface {
	// GenerateCompletion produces a completion for a flat prompt. An empty
	// model selects the configured default.
	GenerateCompletion(ctx context.Context, prompt, model string, maxTokens int, temperature float64) (string, error)
	// GenerateChat produces a reply to a role-tagged message list.
	GenerateChat(ctx context.Context, turns []models.ChatTurn, model string, maxTokens int, temperature float64) (string, error)
	// ListModels returns the model identifiers the backend advertises.
	ListModels(ctx context.Context) ([]string, error)
	// HealthCheck reports whether the backend answers its status endpoint.
	HealthCheck(ctx context.Context) bool
	// Provider identifies the backend shape in use.
	Provider() Provider
}

// Config holds backend connection settings.
type Config struct {
	Provider     Provider
	OllamaURL    string
	OpenAIURL    string
	APIKey       string
	DefaultModel string
}

// New builds a Client for the configured provider.
func New(cfg Config) (Client, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "codellama"
	}

	switch cfg.Provider {
	case ProviderOllama:
		return newOllamaClient(cfg), nil
	case ProviderOpenAI:
		if cfg.OpenAIURL == "" {
			cfg.OpenAIURL = "https://api.openai.com/v1"
		}
		return newOpenAIClient(cfg), nil
	case ProviderLMStudio:
		// LM Studio speaks the OpenAI wire format on its local port.
		if cfg.OpenAIURL == "" {
			cfg.OpenAIURL = "http://localhost:1234/v1"
		}
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

func upstreamStatus(provider Provider, op string, status int) error {
	return fmt.Errorf("%w: %s %s returned status %d", ErrUpstreamUnavailable, provider, op, status)
}

func upstreamErr(provider Provider, op string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, provider, op, err)
}

func newHTTPClient() *http.Client {
	// Per-call deadlines come from request contexts.
	return &http.Client{}
}
