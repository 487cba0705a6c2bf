package extract

import (
	"strings"
	"unicode/utf8"
)

// TextAdapter handles plain text and markdown references
type TextAdapter struct{}

// NewTextAdapter creates a new text adapter
func NewTextAdapter() *TextAdapter {
	return &TextAdapter{}
}

// Name returns the adapter name
func (a *TextAdapter) Name() string {
	return "text"
}

// CanHandle accepts .txt and .md files and text/plain or text/markdown bodies
func (a *TextAdapter) CanHandle(name string, contentType string) bool {
	switch extOf(name) {
	case ".txt", ".md", ".markdown":
		return true
	}
	switch mediaType(contentType) {
	case "text/plain", "text/markdown":
		return true
	}
	return false
}

// Extract normalizes line endings and drops a leading byte order mark
func (a *TextAdapter) Extract(content []byte) (string, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
