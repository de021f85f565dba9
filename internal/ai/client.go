package ai

import (
	"context"
	"errors"
	"hash/fnv"
)

// Client computes embedding vectors for chunk and dialog text.
type Client interface {
	Embed(text string) ([]float32, error)
	Dim() int
}

// Provider is enumeration of supported embedding providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderOllama   Provider = "ollama"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for embedding clients
type ClientConfig struct {
	APIKey     string
	EmbedModel string
	Dim        int
	ProjectID  string
	Provider   Provider
	Location   string
	BaseURL    string
}

// NewClient creates a new embedding client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderOllama:
		return NewOllamaClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(context.Background(), config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// DefaultStubDim matches the width of the MiniLM sentence embeddings the
// service was originally tuned against.
const DefaultStubDim = 384

// StubClient is a deterministic, model-free implementation of the Client
// interface for development and testing.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient. dim <= 0 selects DefaultStubDim.
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = DefaultStubDim
	}
	return &StubClient{dim: dim}
}

// Embed derives a pseudo-embedding from a hash of the text. Identical inputs
// always produce identical vectors, so similarity ranking stays stable
// without an external model.
func (s *StubClient) Embed(text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, s.dim)
	for i := range vec {
		// splitmix64 step
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		vec[i] = float32(z>>40)/float32(1<<24) - 0.5
	}
	return vec, nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
