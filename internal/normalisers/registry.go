package normalisers

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/normalisers/html"
	"github.com/custodia-labs/sercha-rag/internal/normalisers/markdown"
	"github.com/custodia-labs/sercha-rag/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches files to normalisers by extension, highest priority first.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry creates a registry with the built-in normalisers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(markdown.New())
	r.Register(plaintext.New())
	r.Register(html.New())
	return r
}

// Register adds a normaliser, keeping the list ordered by priority.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Lookup returns the preferred normaliser for path, or nil.
func (r *Registry) Lookup(path string) driven.Normaliser {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.normalisers {
		for _, e := range n.SupportedExtensions() {
			if e == ext {
				return n
			}
		}
	}
	return nil
}

// Supports reports whether some normaliser handles path.
func (r *Registry) Supports(path string) bool {
	return r.Lookup(path) != nil
}

// Normalise converts a file using the best matching normaliser.
func (r *Registry) Normalise(ctx context.Context, path string, content []byte) (*driven.NormaliseResult, error) {
	n := r.Lookup(path)
	if n == nil {
		return nil, oops.Code("normaliser.unsupported").In("normalisers").
			With("path", path).
			Wrapf(domain.ErrUnsupportedType, "no normaliser for %q", filepath.Ext(path))
	}
	return n.Normalise(ctx, path, content)
}

// SupportedExtensions returns all extensions that can be normalised, sorted.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, n := range r.normalisers {
		for _, e := range n.SupportedExtensions() {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				out = append(out, e)
			}
		}
	}
	sort.Strings(out)
	return out
}
