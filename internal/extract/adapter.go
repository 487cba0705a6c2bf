// Package extract turns clinical reference documents into plain text for the
// generation context.
package extract

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned when no adapter handles a document
var ErrUnsupported = errors.New("unsupported document format")

// Adapter converts one document format to plain text
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter can handle a document with the given
	// file name and (possibly empty) content type
	CanHandle(name string, contentType string) bool

	// Extract returns the readable text of the document
	Extract(content []byte) (string, error)
}

// Registry manages document adapters
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry with the built-in text, markdown and HTML adapters.
// PDF and other binary formats need an adapter registered by the caller.
func NewRegistry() *Registry {
	registry := &Registry{}
	registry.Register(NewHTMLAdapter())
	registry.Register(NewTextAdapter())
	return registry
}

// Register registers a new adapter. Later registrations take precedence.
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append([]Adapter{adapter}, r.adapters...)
}

// FindAdapter finds the adapter for the given document, or nil
func (r *Registry) FindAdapter(name string, contentType string) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(name, contentType) {
			return adapter
		}
	}
	return nil
}

// Extract converts a document using the first adapter that handles it
func (r *Registry) Extract(name, contentType string, content []byte) (string, error) {
	adapter := r.FindAdapter(name, contentType)
	if adapter == nil {
		return "", ErrUnsupported
	}
	return adapter.Extract(content)
}

// Supported reports whether some adapter handles the file name
func (r *Registry) Supported(name string) bool {
	return r.FindAdapter(name, "") != nil
}

// FuncAdapter wraps an external conversion function, such as a PDF text extractor
type FuncAdapter struct {
	name       string
	extensions map[string]bool
	fn         func([]byte) (string, error)
}

// NewFuncAdapter creates an adapter handling the given file extensions (".pdf")
func NewFuncAdapter(name string, extensions []string, fn func([]byte) (string, error)) *FuncAdapter {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[normalizeExt(ext)] = true
	}
	return &FuncAdapter{name: name, extensions: exts, fn: fn}
}

// Name returns the adapter name
func (a *FuncAdapter) Name() string {
	return a.name
}

// CanHandle matches on file extension only
func (a *FuncAdapter) CanHandle(name string, contentType string) bool {
	return a.extensions[extOf(name)]
}

// Extract delegates to the wrapped function
func (a *FuncAdapter) Extract(content []byte) (string, error) {
	return a.fn(content)
}

func extOf(name string) string {
	return normalizeExt(filepath.Ext(name))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// mediaType strips parameters from a Content-Type value
func mediaType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
