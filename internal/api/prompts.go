package api

import (
	"fmt"
	"strings"

	"github.com/contextd/contextd/pkg/models"
)

// buildCompletionPrompt frames the lines around the cursor for the model.
// cursorPos is clamped into [0, len(code)].
func buildCompletionPrompt(code string, cursorPos int, language string) string {
	if cursorPos < 0 {
		cursorPos = 0
	}
	if cursorPos > len(code) {
		cursorPos = len(code)
	}

	lines := strings.Split(code, "\n")
	currentLine := strings.Count(code[:cursorPos], "\n")

	contextStart := currentLine - 5
	if contextStart < 0 {
		contextStart = 0
	}
	contextEnd := currentLine + 5
	if contextEnd > len(lines) {
		contextEnd = len(lines)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Complete the following %s code at the cursor position:\n\nContext:\n", language)
	for i, line := range lines[contextStart:contextEnd] {
		fmt.Fprintf(&b, "%d: %s\n", i+contextStart+1, line)
	}
	fmt.Fprintf(&b, "\nCursor is at line %d.\n\n", currentLine+1)
	fmt.Fprintf(&b, "Provide 3-5 intelligent code completion suggestions that fit the context and follow best practices for %s.\n\nSuggestions:", language)
	return b.String()
}

// buildFullCompletionPrompt appends up to two retrieved context chunks.
func buildFullCompletionPrompt(basePrompt string, contextChunks []models.CodeChunk) string {
	if len(contextChunks) == 0 {
		return basePrompt
	}
	if len(contextChunks) > 2 {
		contextChunks = contextChunks[:2]
	}
	return basePrompt + "\n\nAdditional Context:\n" + chunkContextText(contextChunks) +
		"\n\nConsider this additional context when providing suggestions."
}

func buildDebugPrompt(code, errorMessage, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s code for potential issues:\n\n```%s\n%s\n```\n\n", language, language, code)
	if errorMessage != "" {
		fmt.Fprintf(&b, "Error message: %s\n\n", errorMessage)
	}
	b.WriteString("Provide:\n1. Analysis of the issue\n2. Specific suggestions to fix it\n3. Fixed code (if applicable)\n\nAnalysis:")
	return b.String()
}

// buildFullDebugPrompt appends up to three retrieved context chunks.
func buildFullDebugPrompt(basePrompt string, contextChunks []models.CodeChunk) string {
	if len(contextChunks) == 0 {
		return basePrompt
	}
	if len(contextChunks) > 3 {
		contextChunks = contextChunks[:3]
	}
	return basePrompt + "\n\nAdditional Context:\n" + chunkContextText(contextChunks) +
		"\n\nConsider this additional context in your analysis."
}

func chunkContextText(chunks []models.CodeChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("Related code from %s (lines %d-%d):\n%s",
			chunk.FilePath, chunk.StartLine, chunk.EndLine, chunk.Content))
	}
	return strings.Join(parts, "\n\n")
}

const baseSystemPrompt = `You are an intelligent coding assistant integrated with an IDE.
You help developers with code completion, debugging, explanation, and best practices.
You have access to relevant code context and conversation history to provide accurate, helpful responses.

Your role is to:
- Provide accurate and helpful coding assistance
- Explain code concepts clearly
- Suggest improvements and best practices
- Help debug and fix issues
- Consider the provided code context in your responses`

func buildSystemPrompt(language string) string {
	if language == "" {
		return baseSystemPrompt
	}
	return baseSystemPrompt + fmt.Sprintf(`

Focus on %s programming language and its specific:
- Syntax and conventions
- Best practices and patterns
- Common pitfalls and issues
- Standard libraries and frameworks`, language)
}

// parseSuggestions extracts up to five completion suggestions from the
// model's output, one per non-comment line, stripping list prefixes. When
// nothing parses, the raw text is returned as the single suggestion.
func parseSuggestions(text string) []string {
	var suggestions []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		clean := strings.TrimLeft(line, "0123456789.- ")
		if clean != "" {
			suggestions = append(suggestions, clean)
		}
	}
	if len(suggestions) == 0 {
		suggestions = []string{strings.TrimSpace(text)}
	}
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}

// parseDebugAnalysis splits the model's output into analysis lines,
// suggestion items, and an optional fixed-code block delimited by a fence
// after a "Fixed code:" header.
func parseDebugAnalysis(text string) (analysis string, suggestions []string, fixedCode string) {
	var analysisLines, codeLines []string
	section := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, "analysis:"):
			section = "analysis"
		case strings.HasPrefix(lower, "suggestions:"):
			section = "suggestions"
		case strings.HasPrefix(lower, "fixed code:"):
			section = "fixed_code"
		case strings.HasPrefix(line, "```"):
			if section == "fixed_code" && len(codeLines) > 0 {
				fixedCode = strings.Join(codeLines, "\n")
				codeLines = nil
			}
			section = ""
		case section == "analysis":
			if line != "" {
				analysisLines = append(analysisLines, line)
			}
		case section == "suggestions":
			if line == "" {
				continue
			}
			if line[0] >= '0' && line[0] <= '9' {
				suggestions = append(suggestions, strings.TrimLeft(line, "0123456789.- "))
			} else {
				suggestions = append(suggestions, line)
			}
		case section == "fixed_code":
			codeLines = append(codeLines, line)
		}
	}

	if len(analysisLines) == 0 && len(suggestions) == 0 {
		return text, nil, fixedCode
	}
	return strings.Join(analysisLines, "\n"), suggestions, fixedCode
}
