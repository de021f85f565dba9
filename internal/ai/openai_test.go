package ai

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockTransport implements http.RoundTripper for testing
type MockTransport struct {
	mu             sync.RWMutex
	responses      map[string]*http.Response
	responseBodies map[string]string
	requests       []*http.Request
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses:      make(map[string]*http.Response),
		responseBodies: make(map[string]string),
		requests:       make([]*http.Request, 0),
	}
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Store the request for inspection
	m.requests = append(m.requests, req)

	// Create a key based on method and URL
	key := fmt.Sprintf("%s %s", req.Method, req.URL.String())

	if respData, exists := m.responses[key]; exists {
		// Get the stored body for this response
		body := m.responseBodies[key]
		// Create a fresh response with a new body reader
		return &http.Response{
			StatusCode: respData.StatusCode,
			Status:     respData.Status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     copyHeaders(respData.Header),
		}, nil
	}

	// Default response if no mock is set up
	return &http.Response{
		StatusCode: 500,
		Status:     "500 Internal Server Error",
		Body:       io.NopCloser(strings.NewReader(`{"error": {"message": "Mock not configured"}}`)),
		Header:     make(http.Header),
	}, nil
}

func (m *MockTransport) AddResponse(method, url string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s %s", method, url)
	m.responses[key] = &http.Response{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:     make(http.Header),
	}
	m.responseBodies[key] = body
}

func (m *MockTransport) GetRequests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid concurrent access issues
	requests := make([]*http.Request, len(m.requests))
	copy(requests, m.requests)
	return requests
}

// Helper function to copy HTTP headers
func copyHeaders(original http.Header) http.Header {
	copy := make(http.Header)
	for key, values := range original {
		copy[key] = make([]string, len(values))
		for i, value := range values {
			copy[key][i] = value
		}
	}
	return copy
}

// Test NewOpenAIClient
func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name          string
		config        *ClientConfig
		expectedEmbed string
		expectedDim   int
	}{
		{
			name: "with model specified",
			config: &ClientConfig{
				APIKey:     "test-key",
				EmbedModel: "custom-embed-model",
				Dim:        768,
			},
			expectedEmbed: "custom-embed-model",
			expectedDim:   768,
		},
		{
			name: "with default model",
			config: &ClientConfig{
				APIKey: "test-key",
			},
			expectedEmbed: "text-embedding-3-small",
			expectedDim:   1536,
		},
		{
			name: "large model default dim",
			config: &ClientConfig{
				APIKey:     "test-key",
				EmbedModel: "text-embedding-3-large",
			},
			expectedEmbed: "text-embedding-3-large",
			expectedDim:   3072,
		},
		{
			name: "ada model default dim",
			config: &ClientConfig{
				APIKey:     "test-key",
				EmbedModel: "text-embedding-ada-002",
			},
			expectedEmbed: "text-embedding-ada-002",
			expectedDim:   1536,
		},
		{
			name: "unknown model default dim",
			config: &ClientConfig{
				APIKey:     "test-key",
				EmbedModel: "mystery-model",
			},
			expectedEmbed: "mystery-model",
			expectedDim:   1536,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAIClient(tt.config)

			if client == nil {
				t.Fatal("Expected client instance, got nil")
			}
			if client.config.EmbedModel != tt.expectedEmbed {
				t.Errorf("Expected EmbedModel '%s', got '%s'", tt.expectedEmbed, client.config.EmbedModel)
			}
			if client.Dim() != tt.expectedDim {
				t.Errorf("Expected Dim %d, got %d", tt.expectedDim, client.Dim())
			}
			if client.http == nil {
				t.Error("Expected HTTP client to be initialized")
			}
			if client.http.Timeout != 20*time.Second {
				t.Errorf("Expected timeout 20s, got %v", client.http.Timeout)
			}
		})
	}
}

// Test OpenAIClient.Embed method
func TestOpenAIClient_Embed(t *testing.T) {
	tests := []struct {
		name         string
		apiKey       string
		text         string
		statusCode   int
		responseBody string
		expectError  bool
		errorMsg     string
		expectedLen  int
	}{
		{
			name:        "missing API key",
			apiKey:      "",
			text:        "test text",
			expectError: true,
			errorMsg:    "PROVIDER_API_KEY unset",
		},
		{
			name:       "successful embedding",
			apiKey:     "test-key",
			text:       "test text",
			statusCode: 200,
			responseBody: `{
				"data": [
					{
						"embedding": [0.1, 0.2, 0.3, 0.4, 0.5]
					}
				]
			}`,
			expectError: false,
			expectedLen: 5,
		},
		{
			name:         "non-200 status code",
			apiKey:       "test-key",
			text:         "test text",
			statusCode:   400,
			responseBody: `{"error": {"message": "Bad request"}}`,
			expectError:  true,
			errorMsg:     "openai embedding non-200",
		},
		{
			name:         "invalid JSON response",
			apiKey:       "test-key",
			text:         "test text",
			statusCode:   200,
			responseBody: `invalid json`,
			expectError:  true,
		},
		{
			name:         "empty data array",
			apiKey:       "test-key",
			text:         "test text",
			statusCode:   200,
			responseBody: `{"data": []}`,
			expectError:  true,
			errorMsg:     "no embedding",
		},
		{
			name:         "rate limit error",
			apiKey:       "test-key",
			text:         "test text",
			statusCode:   429,
			responseBody: `{"error": {"message": "Rate limit exceeded"}}`,
			expectError:  true,
			errorMsg:     "openai embedding non-200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()

			if tt.statusCode != 0 {
				transport.AddResponse("POST", "https://api.openai.com/v1/embeddings",
					tt.statusCode, tt.responseBody)
			}

			config := &ClientConfig{
				APIKey:     tt.apiKey,
				EmbedModel: "text-embedding-3-small",
				Dim:        512,
			}

			client := NewOpenAIClient(config)
			client.http = &http.Client{Transport: transport}

			embedding, err := client.Embed(tt.text)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				if embedding != nil {
					t.Errorf("Expected nil embedding when error occurs, got %v", embedding)
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				if len(embedding) != tt.expectedLen {
					t.Errorf("Expected embedding length %d, got %d", tt.expectedLen, len(embedding))
				}
			}

			// Verify request was made correctly (unless API key was missing)
			if tt.apiKey != "" {
				requests := transport.GetRequests()
				if len(requests) != 1 {
					t.Errorf("Expected 1 request, got %d", len(requests))
				} else {
					req := requests[0]
					if req.Method != "POST" {
						t.Errorf("Expected POST method, got %s", req.Method)
					}
					if req.URL.String() != "https://api.openai.com/v1/embeddings" {
						t.Errorf("Expected embeddings URL, got %s", req.URL.String())
					}
					if auth := req.Header.Get("Authorization"); auth != "Bearer "+tt.apiKey {
						t.Errorf("Expected bearer auth header, got %q", auth)
					}
				}
			}
		})
	}
}

// Test setHeaders behavior, including the project header for project keys
func TestOpenAIClient_setHeaders(t *testing.T) {
	tests := []struct {
		name          string
		apiKey        string
		projectID     string
		expectProject bool
	}{
		{"standard key", "sk-abc123", "proj-1", false},
		{"project key with project id", "sk-proj-abc123", "proj-1", true},
		{"project key without project id", "sk-proj-abc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAIClient(&ClientConfig{
				APIKey:    tt.apiKey,
				ProjectID: tt.projectID,
			})

			req, _ := http.NewRequest("POST", "https://api.openai.com/v1/embeddings", nil)
			client.setHeaders(req)

			if ct := req.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got %q", ct)
			}
			if auth := req.Header.Get("Authorization"); auth != "Bearer "+tt.apiKey {
				t.Errorf("Expected bearer auth, got %q", auth)
			}

			project := req.Header.Get("OpenAI-Project")
			if tt.expectProject && project != tt.projectID {
				t.Errorf("Expected OpenAI-Project %q, got %q", tt.projectID, project)
			}
			if !tt.expectProject && project != "" {
				t.Errorf("Expected no OpenAI-Project header, got %q", project)
			}
		})
	}
}

// Verify OpenAIClient satisfies the Client interface
func TestOpenAIClient_InterfaceCompliance(t *testing.T) {
	var _ Client = NewOpenAIClient(&ClientConfig{APIKey: "test"})
}

func BenchmarkOpenAIClient_setHeaders(b *testing.B) {
	client := NewOpenAIClient(&ClientConfig{APIKey: "sk-proj-test", ProjectID: "proj"})
	req, _ := http.NewRequest("POST", "https://api.openai.com/v1/embeddings", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		client.setHeaders(req)
	}
}
