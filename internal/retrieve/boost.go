package retrieve

import (
	"context"
	"log/slog"

	"quarry/internal/refs"
	"quarry/internal/store"
)

// Booster applies must-include directives on top of the ranked candidates.
// Boosted chunks are placed first in directive order; they override rank
// ordering but still compete for the assembler's budget.
type Booster struct {
	store    store.Store
	resolver *refs.Resolver
	logger   *slog.Logger
}

// NewBooster creates a booster over the given store and resolver.
func NewBooster(s store.Store, r *refs.Resolver, logger *slog.Logger) *Booster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Booster{store: s, resolver: r, logger: logger}
}

// Apply folds directives into the candidate list. A file directive includes
// every chunk of the file as one contiguous run; a declaration directive
// resolves the identifier to its defining chunk and marks it
// must-render-fully. Directives naming unknown files or declarations are
// skipped with a warning.
func (b *Booster) Apply(ctx context.Context, cands []Candidate, d Directives, scope store.Scope) ([]Candidate, error) {
	byChunk := make(map[int64]int, len(cands))
	for i, c := range cands {
		byChunk[c.Chunk.ID] = i
	}

	order := 0
	var boosted []Candidate

	promote := func(c Candidate) {
		if i, ok := byChunk[c.Chunk.ID]; ok {
			cands[i].Boosted = true
			cands[i].BoostOrder = order
			cands[i].MustRenderFull = cands[i].MustRenderFull || c.MustRenderFull
		} else {
			c.Boosted = true
			c.BoostOrder = order
			byChunk[c.Chunk.ID] = len(cands) + len(boosted)
			boosted = append(boosted, c)
		}
		order++
	}

	for _, fd := range d.Files {
		chunks, err := b.store.ChunksForFile(ctx, fd.RepoID, fd.Path, scope)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			b.logger.Warn("boost directive names unknown file, skipping", "repo", fd.RepoID, "path", fd.Path)
			continue
		}
		for _, c := range chunks {
			promote(Candidate{Chunk: c, RepoID: fd.RepoID, FilePath: fd.Path})
		}
	}

	for _, dd := range d.Declarations {
		defs, err := b.resolver.Resolve(ctx, dd.Identifier, refs.Constraints{
			FromRepo: dd.RepoID,
			FromFile: dd.Path,
			Scope:    scope,
			Max:      1,
		})
		if err != nil {
			return nil, err
		}
		if len(defs) == 0 || defs[0].ChunkID == 0 {
			b.logger.Warn("boost directive names unknown declaration, skipping", "identifier", dd.Identifier)
			continue
		}
		infos, err := b.store.GetChunks(ctx, []int64{defs[0].ChunkID})
		if err != nil {
			return nil, err
		}
		if len(infos) == 0 {
			continue
		}
		promote(Candidate{
			Chunk:          infos[0].Chunk,
			RepoID:         infos[0].RepoID,
			FilePath:       infos[0].FilePath,
			MustRenderFull: true,
		})
	}

	merged := make([]Candidate, 0, len(cands)+len(boosted))
	merged = append(merged, cands...)
	merged = append(merged, boosted...)
	return merged, nil
}
