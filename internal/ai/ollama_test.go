package ai

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestNewOllamaClient(t *testing.T) {
	tests := []struct {
		name          string
		config        *ClientConfig
		expectedURL   string
		expectedModel string
		expectedDim   int
	}{
		{
			name:          "defaults",
			config:        &ClientConfig{},
			expectedURL:   "http://localhost:11434",
			expectedModel: "nomic-embed-text",
			expectedDim:   768,
		},
		{
			name: "explicit settings",
			config: &ClientConfig{
				BaseURL:    "http://ollama.internal:11434",
				EmbedModel: "mxbai-embed-large",
				Dim:        1024,
			},
			expectedURL:   "http://ollama.internal:11434",
			expectedModel: "mxbai-embed-large",
			expectedDim:   1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOllamaClient(tt.config)

			if client.config.BaseURL != tt.expectedURL {
				t.Errorf("Expected BaseURL %q, got %q", tt.expectedURL, client.config.BaseURL)
			}
			if client.config.EmbedModel != tt.expectedModel {
				t.Errorf("Expected EmbedModel %q, got %q", tt.expectedModel, client.config.EmbedModel)
			}
			if client.Dim() != tt.expectedDim {
				t.Errorf("Expected Dim %d, got %d", tt.expectedDim, client.Dim())
			}
		})
	}
}

func TestOllamaClient_Embed(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody string
		expectError  bool
		errorMsg     string
		expectedLen  int
	}{
		{
			name:         "successful embedding",
			statusCode:   200,
			responseBody: `{"embedding": [0.1, -0.2, 0.3]}`,
			expectError:  false,
			expectedLen:  3,
		},
		{
			name:         "non-200 status code",
			statusCode:   500,
			responseBody: `{"error": "model not found"}`,
			expectError:  true,
			errorMsg:     "ollama embedding non-200",
		},
		{
			name:         "empty embedding",
			statusCode:   200,
			responseBody: `{"embedding": []}`,
			expectError:  true,
			errorMsg:     "no embedding",
		},
		{
			name:         "invalid JSON response",
			statusCode:   200,
			responseBody: `not json`,
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()
			transport.AddResponse("POST", "http://localhost:11434/api/embeddings",
				tt.statusCode, tt.responseBody)

			client := NewOllamaClient(&ClientConfig{})
			client.http = &http.Client{Transport: transport}

			embedding, err := client.Embed("some code")

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(embedding) != tt.expectedLen {
				t.Errorf("Expected embedding length %d, got %d", tt.expectedLen, len(embedding))
			}

			requests := transport.GetRequests()
			if len(requests) != 1 {
				t.Fatalf("Expected 1 request, got %d", len(requests))
			}
			body, _ := io.ReadAll(requests[0].Body)
			var payload map[string]string
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Fatalf("Request body is not JSON: %v", err)
			}
			if payload["model"] != "nomic-embed-text" {
				t.Errorf("Expected model nomic-embed-text, got %q", payload["model"])
			}
			if payload["prompt"] != "some code" {
				t.Errorf("Expected prompt to carry the text, got %q", payload["prompt"])
			}
		})
	}
}

func TestOllamaClient_EmbedTrimsTrailingSlash(t *testing.T) {
	transport := NewMockTransport()
	transport.AddResponse("POST", "http://ollama:11434/api/embeddings",
		200, `{"embedding": [1.0]}`)

	client := NewOllamaClient(&ClientConfig{BaseURL: "http://ollama:11434/"})
	client.http = &http.Client{Transport: transport}

	if _, err := client.Embed("x"); err != nil {
		t.Fatalf("Expected trailing slash to be trimmed, got error: %v", err)
	}
}

// Verify OllamaClient satisfies the Client interface
func TestOllamaClient_InterfaceCompliance(t *testing.T) {
	var _ Client = NewOllamaClient(&ClientConfig{})
}
