package retrieve

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"quarry/internal/embed"
	"quarry/internal/store"
)

const cacheSize = 256

// Retriever issues hybrid vector+lexical queries. Query embeddings come from
// the embedder; when embedding fails the search degrades to lexical-only
// rather than failing the request.
type Retriever struct {
	store    store.Store
	embedder embed.Embedder
	cache    *lru.Cache[[32]byte, []store.Candidate]
	logger   *slog.Logger
}

// NewRetriever creates a retriever with a small in-process result cache.
func NewRetriever(s store.Store, e embed.Embedder, logger *slog.Logger) *Retriever {
	cache, _ := lru.New[[32]byte, []store.Candidate](cacheSize)
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: s, embedder: e, cache: cache, logger: logger}
}

// Search returns the top-k candidates for the query text within scope, with
// both component scores populated.
func (r *Retriever) Search(ctx context.Context, text string, scope store.Scope, k int) ([]store.Candidate, error) {
	if k <= 0 {
		k = 10
	}
	key := cacheKey(text, scope, k)
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	var vector []float32
	if r.embedder != nil {
		var err error
		vector, err = r.embedder.EmbedOne(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("query embedding failed, lexical-only search", "error", err)
			vector = nil
		}
	}

	candidates, err := r.store.HybridQuery(ctx, store.HybridRequest{
		Text:   text,
		Vector: vector,
		Scope:  scope,
		K:      k,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid query: %w", err)
	}

	r.cache.Add(key, candidates)
	return candidates, nil
}

// InvalidateCache drops cached results, e.g. after a reindex.
func (r *Retriever) InvalidateCache() {
	r.cache.Purge()
}

func cacheKey(text string, scope store.Scope, k int) [32]byte {
	var b strings.Builder
	b.WriteString(text)
	b.WriteByte(0)
	repos := append([]string(nil), scope.RepoIDs...)
	sort.Strings(repos)
	for _, id := range repos {
		b.WriteString(id)
		b.WriteByte('@')
		b.WriteString(scope.CommitPins[id])
		b.WriteByte(0)
	}
	fmt.Fprintf(&b, "k=%d", k)
	return sha256.Sum256([]byte(b.String()))
}
