package api

import (
	"strings"
	"testing"

	"github.com/contextd/contextd/pkg/models"
)

func TestBuildCompletionPromptClampsCursor(t *testing.T) {
	code := "line one\nline two\nline three"

	tests := []struct {
		name      string
		cursorPos int
		wantLine  string
	}{
		{"negative cursor", -10, "Cursor is at line 1."},
		{"zero cursor", 0, "Cursor is at line 1."},
		{"mid cursor", len("line one\nline "), "Cursor is at line 2."},
		{"past end", len(code) + 100, "Cursor is at line 3."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := buildCompletionPrompt(code, tt.cursorPos, "python")
			if !strings.Contains(prompt, tt.wantLine) {
				t.Errorf("Expected prompt to contain %q:\n%s", tt.wantLine, prompt)
			}
		})
	}
}

func TestBuildCompletionPromptIncludesContextLines(t *testing.T) {
	prompt := buildCompletionPrompt("a\nb\nc", 0, "go")
	for _, want := range []string{"1: a", "2: b", "3: c", "go code"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
}

func TestBuildFullCompletionPromptLimitsChunks(t *testing.T) {
	base := "base prompt"
	chunks := []models.CodeChunk{
		{FilePath: "a.py", Content: "first"},
		{FilePath: "b.py", Content: "second"},
		{FilePath: "c.py", Content: "third"},
	}

	full := buildFullCompletionPrompt(base, chunks)
	if !strings.Contains(full, "first") || !strings.Contains(full, "second") {
		t.Error("Expected first two chunks included")
	}
	if strings.Contains(full, "third") {
		t.Error("Expected third chunk excluded")
	}

	if got := buildFullCompletionPrompt(base, nil); got != base {
		t.Errorf("Expected base prompt unchanged for no chunks, got %q", got)
	}
}

func TestBuildDebugPrompt(t *testing.T) {
	withErr := buildDebugPrompt("x = 1/0", "ZeroDivisionError", "python")
	if !strings.Contains(withErr, "Error message: ZeroDivisionError") {
		t.Error("Expected error message section")
	}
	if !strings.Contains(withErr, "```python") {
		t.Error("Expected fenced code block")
	}

	withoutErr := buildDebugPrompt("x = 1", "", "python")
	if strings.Contains(withoutErr, "Error message:") {
		t.Error("Expected no error message section when message is empty")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	plain := buildSystemPrompt("")
	if strings.Contains(plain, "Focus on") {
		t.Error("Expected no language section without a language")
	}

	langed := buildSystemPrompt("rust")
	if !strings.Contains(langed, "Focus on rust") {
		t.Error("Expected language-specific section")
	}
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "numbered list",
			text: "1. return x + 1\n2. return x - 1\n3. raise ValueError",
			want: []string{"return x + 1", "return x - 1", "raise ValueError"},
		},
		{
			name: "skips comments and blanks",
			text: "# header\n\nresult = compute()\n// note",
			want: []string{"result = compute()"},
		},
		{
			name: "falls back to raw text",
			text: "   \n# only a comment\n",
			want: []string{"# only a comment"},
		},
		{
			name: "caps at five",
			text: "a1\nb2\nc3\nd4\ne5\nf6\ng7",
			want: []string{"a1", "b2", "c3", "d4", "e5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSuggestions(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d suggestions, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Suggestion %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestParseSuggestionsFallbackRaw(t *testing.T) {
	// Entirely empty output yields the trimmed raw text as the only entry.
	got := parseSuggestions("")
	if len(got) != 1 || got[0] != "" {
		t.Errorf("Expected single empty fallback, got %v", got)
	}
}

func TestParseDebugAnalysis(t *testing.T) {
	text := `Analysis:
The loop index is off by one.
It reads past the slice.

Suggestions:
1. Use i < len(items)
2. Add a bounds check

Fixed code:
for i := 0; i < len(items); i++ {
}
` + "```"

	analysis, suggestions, fixed := parseDebugAnalysis(text)

	if !strings.Contains(analysis, "off by one") {
		t.Errorf("Unexpected analysis: %q", analysis)
	}
	if len(suggestions) != 2 || suggestions[0] != "Use i < len(items)" {
		t.Errorf("Unexpected suggestions: %v", suggestions)
	}
	if !strings.Contains(fixed, "for i := 0") {
		t.Errorf("Unexpected fixed code: %q", fixed)
	}
}

func TestParseDebugAnalysisUnstructured(t *testing.T) {
	text := "The code looks fine overall."
	analysis, suggestions, fixed := parseDebugAnalysis(text)

	if analysis != text {
		t.Errorf("Expected whole text as analysis, got %q", analysis)
	}
	if len(suggestions) != 0 || fixed != "" {
		t.Errorf("Expected no suggestions or fixed code, got %v / %q", suggestions, fixed)
	}
}
