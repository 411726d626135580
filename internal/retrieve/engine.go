package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"quarry/internal/embed"
	"quarry/internal/refs"
	"quarry/internal/store"
)

// Engine runs the full query pipeline: hybrid retrieval, reference-graph
// expansion, boost directives, and budgeted assembly.
type Engine struct {
	retriever *Retriever
	expander  *Expander
	booster   *Booster
	assembler *Assembler
	logger    *slog.Logger
}

// NewEngine wires the pipeline over one store, embedder, and resolver.
func NewEngine(s store.Store, e embed.Embedder, r *refs.Resolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		retriever: NewRetriever(s, e, logger),
		expander:  NewExpander(s, r),
		booster:   NewBooster(s, r, logger),
		assembler: NewAssembler(),
		logger:    logger,
	}
}

// Query answers one request. Retrieval failure before anything is fetched is
// a hard error; failures in later stages degrade the result to what was
// already fetched, with Degraded set, rather than silently returning empty.
func (e *Engine) Query(ctx context.Context, req Request) (Result, error) {
	if req.K <= 0 {
		req.K = 10
	}

	raw, err := e.retriever.Search(ctx, req.Query, req.Scope, req.K)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: %w", err)
	}

	degraded := false
	cands, err := e.expander.Expand(ctx, raw, req.Scope)
	if err != nil {
		e.logger.Warn("rank expansion failed, using retrieval order", "error", err)
		degraded = true
		cands = withoutExpansion(raw)
	}

	boosted, err := e.booster.Apply(ctx, cands, req.Boosts, req.Scope)
	if err != nil {
		e.logger.Warn("boost resolution failed, skipping directives", "error", err)
		degraded = true
		boosted = cands
	}

	result := e.assembler.Assemble(boosted, req.ApproxLength)
	result.Degraded = degraded
	return result, nil
}

// InvalidateCache drops cached retrievals after index writes.
func (e *Engine) InvalidateCache() {
	e.retriever.InvalidateCache()
}

// withoutExpansion converts raw store candidates into ranked candidates
// using retrieval score alone.
func withoutExpansion(raw []store.Candidate) []Candidate {
	retrieval := normalizeRetrieval(raw)
	out := make([]Candidate, len(raw))
	for i, c := range raw {
		out[i] = Candidate{
			Chunk:        c.Chunk,
			RepoID:       c.RepoID,
			FilePath:     c.FilePath,
			Retrieval:    retrieval[i],
			VectorScore:  c.VectorScore,
			LexicalScore: c.LexicalScore,
			Combined:     retrievalWeight * retrieval[i],
		}
	}
	sortCandidates(out)
	return out
}
