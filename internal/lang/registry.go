package lang

import (
	"path/filepath"
	"strings"
	"sync"
)

type entry struct {
	producer Producer
	language string
	grammar  bool
}

// Registry maps file extensions to content-item producers.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]entry // extension (without dot) → entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]entry)}
}

// Register adds a producer for a language under the given extensions.
// grammar marks producers backed by a concrete syntax tree; on parse failure
// callers fall back to Fallback for the same path.
func (r *Registry) Register(language string, p Producer, grammar bool, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.byExt[ext] = entry{producer: p, language: language, grammar: grammar}
	}
}

// Lookup returns the producer for a file path based on its extension.
// ok is false when no producer is registered for the extension.
func (r *Registry) Lookup(path string) (p Producer, language string, grammar bool, ok bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, found := r.byExt[ext]
	if !found {
		return nil, "", false, false
	}
	return e.producer, e.language, e.grammar, true
}

// Fallback returns the heuristic producer used when a grammar fails to parse
// a file, or when no producer is registered at all. Fixed-size line windows
// work for any text.
func (r *Registry) Fallback(path string) (Producer, string) {
	return Window{}, "text"
}

// Extensions returns the set of all registered file extensions (without dot).
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.byExt))
	for ext := range r.byExt {
		exts[ext] = true
	}
	return exts
}

// DefaultRegistry returns a registry with all built-in producers: tree-sitter
// grammars for Go, JavaScript, TypeScript, and Python, plus heuristic
// splitters for Markdown, key/value formats, and plain text.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterGo(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterPython(r)
	r.Register("markdown", Markdown{}, false, "md", "markdown")
	r.Register("yaml", KeyValue{Assign: ":"}, false, "yaml", "yml")
	r.Register("toml", KeyValue{Assign: "="}, false, "toml", "ini")
	r.Register("text", Window{}, false, "txt")
	return r
}
