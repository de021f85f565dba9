package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/contextd/contextd/pkg/models"
)

// OllamaClient targets a local Ollama server.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	http         *http.Client
}

func newOllamaClient(cfg Config) *OllamaClient {
	baseURL := cfg.OllamaURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: cfg.DefaultModel,
		http:         newHTTPClient(),
	}
}

func (c *OllamaClient) Provider() Provider { return ProviderOllama }

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

func (c *OllamaClient) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return upstreamErr(ProviderOllama, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return upstreamStatus(ProviderOllama, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GenerateCompletion calls POST /api/generate.
func (c *OllamaClient) GenerateCompletion(ctx context.Context, prompt, model string, maxTokens int, temperature float64) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	payload := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"options": ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, "/api/generate", payload, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// GenerateChat calls POST /api/chat.
func (c *OllamaClient) GenerateChat(ctx context.Context, turns []models.ChatTurn, model string, maxTokens int, temperature float64) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	payload := map[string]any{
		"model":    model,
		"messages": turns,
		"stream":   false,
		"options": ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	}

	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.post(ctx, "/api/chat", payload, &out); err != nil {
		return "", err
	}
	if out.Message.Content == "" {
		return "", errors.New("ollama chat: empty message content")
	}
	return out.Message.Content, nil
}

// ListModels calls GET /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, upstreamErr(ProviderOllama, "/api/tags", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamStatus(ProviderOllama, "/api/tags", resp.StatusCode)
	}

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HealthCheck probes GET /api/tags.
func (c *OllamaClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()
	return resp.StatusCode == http.StatusOK
}
