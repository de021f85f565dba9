package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"

	"github.com/contextd/contextd/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockChunker implements Chunker for testing.
type MockChunker struct {
	ChunkFunc func(code, filePath, language string, maxChunkSize int) []models.CodeChunk
}

func (m *MockChunker) ChunkCode(code, filePath, language string, maxChunkSize int) []models.CodeChunk {
	if m.ChunkFunc != nil {
		return m.ChunkFunc(code, filePath, language, maxChunkSize)
	}
	return []models.CodeChunk{{
		ID:       filePath + ":0",
		Content:  code,
		FilePath: filePath,
		Language: language,
	}}
}

// MockFileSystemWalker implements FileSystemWalker for testing
type MockFileSystemWalker struct {
	FilesToProcess []string
	WalkError      error
}

func (m *MockFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	if m.WalkError != nil {
		return m.WalkError
	}
	for _, filePath := range m.FilesToProcess {
		// Drive the callback directly with a nil Dirent; the scanner
		// treats nil as a regular file.
		if err := options.Callback(filePath, nil); err != nil {
			return err
		}
	}
	return nil
}

// MockFileReader implements FileReader for testing
type MockFileReader struct {
	Files     map[string]string
	ReadError error
}

func (m *MockFileReader) ReadFile(filename string) ([]byte, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if content, ok := m.Files[filename]; ok {
		return []byte(content), nil
	}
	return nil, errors.New("file not found: " + filename)
}

func decodeChunks(t *testing.T, buf *bytes.Buffer) []models.CodeChunk {
	t.Helper()
	var chunks []models.CodeChunk
	dec := json.NewDecoder(buf)
	for dec.More() {
		var c models.CodeChunk
		if err := dec.Decode(&c); err != nil {
			t.Fatalf("Failed to decode chunk record: %v", err)
		}
		chunks = append(chunks, c)
	}
	return chunks
}

func TestRunEmitsChunkRecords(t *testing.T) {
	var buf bytes.Buffer
	sc := NewWithDependencies(
		"/repo",
		&MockChunker{},
		&MockFileSystemWalker{FilesToProcess: []string{"/repo/main.py", "/repo/util.go"}},
		&MockFileReader{Files: map[string]string{
			"/repo/main.py": "def f():\n    pass",
			"/repo/util.go": "package util",
		}},
		&buf,
	)

	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	chunks := decodeChunks(t, &buf)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunk records, got %d", len(chunks))
	}

	byPath := make(map[string]models.CodeChunk)
	for _, c := range chunks {
		byPath[c.FilePath] = c
	}
	if byPath["main.py"].Language != "python" {
		t.Errorf("Expected python language for main.py, got %q", byPath["main.py"].Language)
	}
	if byPath["util.go"].Language != "go" {
		t.Errorf("Expected go language for util.go, got %q", byPath["util.go"].Language)
	}
}

func TestRunSkipsUnreadableFiles(t *testing.T) {
	var buf bytes.Buffer
	sc := NewWithDependencies(
		"/repo",
		&MockChunker{},
		&MockFileSystemWalker{FilesToProcess: []string{"/repo/a.py", "/repo/missing.py"}},
		&MockFileReader{Files: map[string]string{"/repo/a.py": "x = 1"}},
		&buf,
	)

	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	chunks := decodeChunks(t, &buf)
	if len(chunks) != 1 {
		t.Errorf("Expected 1 chunk from the readable file, got %d", len(chunks))
	}
}

func TestRunPropagatesWalkError(t *testing.T) {
	var buf bytes.Buffer
	sc := NewWithDependencies(
		"/repo",
		&MockChunker{},
		&MockFileSystemWalker{WalkError: errors.New("walk failed")},
		&MockFileReader{},
		&buf,
	)

	err := sc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "walk failed") {
		t.Errorf("Expected walk error, got %v", err)
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/repo/main.py", false},
		{"/repo/vendor/lib.go", true},
		{"/repo/.git/config", true},
		{"/repo/node_modules/pkg/index.js", true},
		{"/repo/__pycache__/mod.pyc", true},
		{"/repo/logo.png", true},
		{"/repo/go.sum", true},
		{"/repo/go.mod", true},
		{"/repo/src/app.ts", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ShouldSkip(tt.path); got != tt.want {
				t.Errorf("ShouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGuessLang(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.py", "python"},
		{"app.js", "javascript"},
		{"app.tsx", "tsx"},
		{"server.go", "go"},
		{"lib.rs", "rust"},
		{"header.hpp", "cpp"},
		{"script.sh", "shell"},
		{"README.md", "markdown"},
		{"data.xyz", "xyz"},
		{"Makefile", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := GuessLang(tt.path); got != tt.want {
				t.Errorf("GuessLang(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
