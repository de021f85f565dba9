// Package scanner walks a source tree, runs the semantic chunker over every
// eligible file, and streams the resulting chunk records to a sink. It backs
// the chunker CLI; nothing here persists state.
package scanner

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/contextd/contextd/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Chunker is the chunking surface the scanner drives.
type Chunker interface {
	ChunkCode(code, filePath, language string, maxChunkSize int) []models.CodeChunk
}

// Scanner chunks every file under Root and writes one JSON record per chunk
// to Out.
type Scanner struct {
	Root       string
	Chunker    Chunker
	Walker     FileSystemWalker
	FileReader FileReader

	mu  sync.Mutex
	out *json.Encoder
}

// New creates a Scanner that writes chunk records to out.
func New(root string, chunker Chunker, out io.Writer) *Scanner {
	return &Scanner{
		Root:       root,
		Chunker:    chunker,
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
		out:        json.NewEncoder(out),
	}
}

// NewWithDependencies creates a Scanner with custom dependencies for testing
func NewWithDependencies(root string, chunker Chunker, walker FileSystemWalker, fileReader FileReader, out io.Writer) *Scanner {
	return &Scanner{
		Root:       root,
		Chunker:    chunker,
		Walker:     walker,
		FileReader: fileReader,
		out:        json.NewEncoder(out),
	}
}

// workItem represents a file to be processed
type workItem struct {
	path    string
	content string
}

// processWorkItem chunks a single file and emits its records.
func (sc *Scanner) processWorkItem(item workItem) error {
	relPath := rel(sc.Root, item.path)
	lang := GuessLang(item.path)
	chunks := sc.Chunker.ChunkCode(item.content, relPath, lang, 0)

	log.Debug().Str("path", relPath).Str("language", lang).Int("chunks", len(chunks)).Msg("chunked file")

	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, chunk := range chunks {
		if err := sc.out.Encode(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Run walks the tree and fans files out to a capped worker pool.
func (sc *Scanner) Run(ctx context.Context) error {
	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8
	}

	log.Info().Int("workers", numWorkers).Str("root", sc.Root).Msg("starting scan")

	workChan := make(chan workItem, numWorkers*2)
	errorChan := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")

			for item := range workChan {
				if err := sc.processWorkItem(item); err != nil {
					select {
					case errorChan <- err:
					default:
						log.Error().Err(err).Str("path", item.path).Msg("worker processing error")
					}
				}
			}

			log.Debug().Int("worker", workerID).Msg("worker finished")
		}(i)
	}

	walkErr := sc.Walker.Walk(sc.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			// de is nil when tests drive the callback directly.
			if de != nil && de.IsDir() {
				return nil
			}
			if ShouldSkip(path) {
				return nil
			}

			b, err := sc.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}

			select {
			case workChan <- workItem{path: path, content: string(b)}:
			case <-ctx.Done():
				return ctx.Err()
			}

			return nil
		},
	})

	close(workChan)
	wg.Wait()

	select {
	case err := <-errorChan:
		if err != nil {
			return err
		}
	default:
	}

	return walkErr
}

// ShouldSkip reports whether the file at path is outside the scan set:
// build output, dependency trees, caches, and binary formats.
func ShouldSkip(path string) bool {
	p := strings.ToLower(path)
	if strings.Contains(p, "/vendor/") ||
		strings.Contains(p, "/.git/") ||
		strings.Contains(p, "/node_modules/") ||
		strings.Contains(p, "/target/") ||
		strings.Contains(p, "/build/") ||
		strings.Contains(p, "/dist/") ||
		strings.Contains(p, "/out/") ||
		strings.Contains(p, "/bin/") ||
		strings.Contains(p, "/obj/") ||
		strings.Contains(p, "/.venv/") ||
		strings.Contains(p, "/venv/") ||
		strings.Contains(p, "/__pycache__/") ||
		strings.Contains(p, "/.pytest_cache/") ||
		strings.Contains(p, "/.gradle/") ||
		strings.Contains(p, "/.idea/") ||
		strings.Contains(p, "/coverage/") ||
		strings.Contains(p, "/.cache/") {
		return true
	}
	switch filepath.Ext(p) {
	case ".png", ".jpg", ".jpeg", ".gif", ".pdf", ".webp", ".lock", ".zip", ".svg", ".exe", ".dll", ".sum", ".mod":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}

// GuessLang maps a file extension to the language tag the chunker's
// boundary detectors key on.
func GuessLang(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".jsx":
		return "jsx"
	case ".tsx":
		return "tsx"
	case ".go":
		return "go"
	case ".java":
		return "java"
	case ".c":
		return "c"
	case ".cpp", ".cc":
		return "cpp"
	case ".h", ".hpp":
		return "cpp"
	case ".cs":
		return "csharp"
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".sh":
		return "shell"
	case ".md":
		return "markdown"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}
