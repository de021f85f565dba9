// Package chunker splits source code into bounded, overlapping,
// line-addressable chunks suitable for embedding and retrieval.
//
// Segmentation is heuristic: per-language-family regex detectors mark lines
// that open a new semantic region, segments between adjacent boundaries
// become chunks, and segments whose token count exceeds the limit are
// re-split on token windows. A final pass prepends the tail of each chunk's
// predecessor so neighboring chunks share context.
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/contextd/contextd/pkg/models"
)

const (
	// encodingName is the tiktoken vocabulary used for all token counting.
	encodingName = "cl100k_base"

	DefaultMaxChunkSize = 2000
	DefaultOverlapRatio = 0.25
)

// Encoder converts text to and from token ids. *tiktoken.Tiktoken satisfies
// it; tests substitute deterministic fakes.
type Encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Chunker performs semantic chunking of source code.
type Chunker struct {
	enc          Encoder
	maxChunkSize int
	overlapRatio float64
}

// New builds a Chunker backed by the cl100k_base tokenizer. maxChunkSize <= 0
// and out-of-range overlapRatio select the defaults.
func New(maxChunkSize int, overlapRatio float64) (*Chunker, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}
	return NewWithEncoder(enc, maxChunkSize, overlapRatio), nil
}

// NewWithEncoder builds a Chunker around a caller-supplied tokenizer.
func NewWithEncoder(enc Encoder, maxChunkSize int, overlapRatio float64) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlapRatio <= 0 || overlapRatio >= 1 {
		overlapRatio = DefaultOverlapRatio
	}
	return &Chunker{enc: enc, maxChunkSize: maxChunkSize, overlapRatio: overlapRatio}
}

// CountTokens returns the token count of text under the chunker's encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// splitByTokens cuts text into pieces of at most maxTokens tokens each.
// Concatenating the pieces reproduces the original text.
func (c *Chunker) splitByTokens(text string, maxTokens int) []string {
	tokens := c.enc.Encode(text, nil, nil)
	var parts []string
	for i := 0; i < len(tokens); i += maxTokens {
		end := i + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		parts = append(parts, c.enc.Decode(tokens[i:end]))
	}
	return parts
}

// SemanticBoundaries returns the sorted, deduplicated line indices at which
// code splits into semantic segments. The result always contains 0 and
// len(lines), so adjacent pairs partition the whole line range.
func (c *Chunker) SemanticBoundaries(code, language string) []int {
	det := DetectorFor(language)
	lines := strings.Split(code, "\n")

	seen := map[int]bool{0: true, len(lines): true}
	boundaries := []int{0, len(lines)}
	for i, line := range lines {
		if !seen[i] && det.Match(line) {
			seen[i] = true
			boundaries = append(boundaries, i)
		}
	}

	sort.Ints(boundaries)
	return boundaries
}

// ChunkCode splits code into semantic chunks. maxChunkSize <= 0 selects the
// chunker's configured limit. It never fails: empty input yields a single
// empty chunk.
func (c *Chunker) ChunkCode(code, filePath, language string, maxChunkSize int) []models.CodeChunk {
	if maxChunkSize <= 0 {
		maxChunkSize = c.maxChunkSize
	}

	boundaries := c.SemanticBoundaries(code, language)
	lines := strings.Split(code, "\n")

	var chunks []models.CodeChunk
	for i := 0; i < len(boundaries)-1; i++ {
		startLine := boundaries[i]
		endLine := boundaries[i+1] - 1

		content := strings.Join(lines[startLine:endLine+1], "\n")
		if c.CountTokens(content) <= maxChunkSize {
			chunks = append(chunks, c.newChunk(content, filePath, startLine, endLine, language, ""))
			continue
		}

		// Oversized segment: re-split on token windows. The line ranges
		// assigned to the pieces are proportional estimates and may not
		// reconstruct the exact span.
		subs := c.splitByTokens(content, maxChunkSize)
		step := len(lines) / len(subs)
		for j, sub := range subs {
			subStart := startLine + j*step
			subEnd := subStart + step
			if subEnd > endLine {
				subEnd = endLine
			}
			chunks = append(chunks, c.newChunk(sub, filePath, subStart, subEnd, language, ""))
		}
	}

	return c.addOverlap(chunks)
}

// addOverlap replaces every chunk after the first with a copy that carries
// the tail of its predecessor. Chunk count is preserved and the first chunk
// is returned unchanged.
func (c *Chunker) addOverlap(chunks []models.CodeChunk) []models.CodeChunk {
	if len(chunks) <= 1 {
		return chunks
	}

	out := make([]models.CodeChunk, 0, len(chunks))
	out = append(out, chunks[0])

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		cur := chunks[i]

		prevLines := strings.Split(prev.Content, "\n")
		overlapLines := int(float64(len(prevLines)) * c.overlapRatio)
		if overlapLines < 1 {
			overlapLines = 1
		}

		tail := strings.Join(prevLines[len(prevLines)-overlapLines:], "\n")
		out = append(out, c.newChunk(
			tail+"\n"+cur.Content,
			cur.FilePath,
			prev.EndLine-overlapLines+1,
			cur.EndLine,
			cur.Language,
			cur.ID+"_overlap",
		))
	}
	return out
}

func (c *Chunker) newChunk(content, filePath string, startLine, endLine int, language, id string) models.CodeChunk {
	if id == "" {
		id = ChunkID(filePath, startLine, endLine)
	}
	return models.CodeChunk{
		ID:         id,
		Content:    content,
		FilePath:   filePath,
		Language:   language,
		StartLine:  startLine,
		EndLine:    endLine,
		TokenCount: c.CountTokens(content),
		Metadata: map[string]any{
			"line_count": endLine - startLine + 1,
			"char_count": utf8.RuneCountInString(content),
		},
	}
}

// ChunkID derives a stable chunk identifier from the file path and line span.
func ChunkID(filePath string, startLine, endLine int) string {
	h := md5.Sum([]byte(fmt.Sprintf("%s:%d:%d", filePath, startLine, endLine)))
	return hex.EncodeToString(h[:])
}
