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

// OpenAIClient targets any OpenAI-compatible API, including LM Studio.
type OpenAIClient struct {
	provider     Provider
	baseURL      string
	apiKey       string
	defaultModel string
	http         *http.Client
}

func newOpenAIClient(cfg Config) *OpenAIClient {
	return &OpenAIClient{
		provider:     cfg.Provider,
		baseURL:      strings.TrimRight(cfg.OpenAIURL, "/"),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		http:         newHTTPClient(),
	}
}

func (c *OpenAIClient) Provider() Provider { return c.provider }

func (c *OpenAIClient) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return upstreamErr(c.provider, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return upstreamStatus(c.provider, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GenerateCompletion calls POST /completions.
func (c *OpenAIClient) GenerateCompletion(ctx context.Context, prompt, model string, maxTokens int, temperature float64) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	payload := map[string]any{
		"model":       model,
		"prompt":      prompt,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	var out struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("completions: no choices returned")
	}
	return out.Choices[0].Text, nil
}

// GenerateChat calls POST /chat/completions.
func (c *OpenAIClient) GenerateChat(ctx context.Context, turns []models.ChatTurn, model string, maxTokens int, temperature float64) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	payload := map[string]any{
		"model":       model,
		"messages":    turns,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat/completions: no choices returned")
	}
	return out.Choices[0].Message.Content, nil
}

// ListModels returns the configured default model; OpenAI-compatible local
// servers frequently do not implement a useful listing endpoint.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	return []string{c.defaultModel}, nil
}

// HealthCheck probes GET /models.
func (c *OpenAIClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
