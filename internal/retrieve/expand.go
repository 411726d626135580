package retrieve

import (
	"context"
	"sort"

	"quarry/internal/refs"
	"quarry/internal/store"
)

const (
	// retrievalWeight and pageRankWeight combine the two normalized scores
	// into the final rank.
	retrievalWeight = 0.6
	pageRankWeight  = 0.4

	// inclusionThreshold gates chunks reached only via expansion: below it a
	// neighbor is dropped so weakly related chunks never crowd out direct
	// hits.
	inclusionThreshold = 0.05
)

// Expander grows the candidate set along the reference graph and reranks
// with personalized PageRank seeded at the retrieval candidates.
type Expander struct {
	store    store.Store
	resolver *refs.Resolver
	opts     PageRankOptions
}

// NewExpander creates an expander over the given store and resolver.
func NewExpander(s store.Store, r *refs.Resolver) *Expander {
	return &Expander{store: s, resolver: r, opts: DefaultPageRankOptions()}
}

// Expand builds the one-hop reference subgraph around the candidates (both
// edge directions), runs PageRank seeded by retrieval score, and returns the
// merged, reranked candidate list. Candidates keep their retrieval scores;
// expansion-only chunks must clear the inclusion threshold.
func (e *Expander) Expand(ctx context.Context, candidates []store.Candidate, scope store.Scope) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	chunkIDs := make([]int64, len(candidates))
	for i, c := range candidates {
		chunkIDs[i] = c.Chunk.ID
	}

	outgoing, err := e.resolver.EdgesFor(ctx, chunkIDs, scope)
	if err != nil {
		return nil, err
	}
	incoming, err := e.resolver.Inbound(ctx, chunkIDs, scope)
	if err != nil {
		return nil, err
	}

	graph := NewGraph()
	for _, id := range chunkIDs {
		graph.AddNode(id)
	}
	seen := make(map[[2]int64]bool)
	for _, edge := range append(outgoing, incoming...) {
		key := [2]int64{edge.From, edge.To}
		if seen[key] {
			continue
		}
		seen[key] = true
		graph.AddEdge(edge.From, edge.To, edge.Weight)
	}

	retrieval := normalizeRetrieval(candidates)

	seeds := make(map[int64]float64, len(candidates))
	for i, c := range candidates {
		seeds[c.Chunk.ID] = retrieval[i] + 1e-9
	}
	ranks := graph.Personalized(seeds, e.opts)

	maxRank := 0.0
	for _, v := range ranks {
		if v > maxRank {
			maxRank = v
		}
	}

	known := make(map[int64]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		known[id] = true
	}
	var expandedIDs []int64
	for id := range ranks {
		if !known[id] {
			expandedIDs = append(expandedIDs, id)
		}
	}
	sort.Slice(expandedIDs, func(i, j int) bool { return expandedIDs[i] < expandedIDs[j] })
	expanded, err := e.store.GetChunks(ctx, expandedIDs)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for i, c := range candidates {
		cand := Candidate{
			Chunk:        c.Chunk,
			RepoID:       c.RepoID,
			FilePath:     c.FilePath,
			Retrieval:    retrieval[i],
			VectorScore:  c.VectorScore,
			LexicalScore: c.LexicalScore,
		}
		if maxRank > 0 {
			cand.PageRank = ranks[c.Chunk.ID] / maxRank
		}
		cand.Combined = retrievalWeight*cand.Retrieval + pageRankWeight*cand.PageRank
		out = append(out, cand)
	}
	for _, info := range expanded {
		cand := Candidate{
			Chunk:    info.Chunk,
			RepoID:   info.RepoID,
			FilePath: info.FilePath,
			Expanded: true,
		}
		if maxRank > 0 {
			cand.PageRank = ranks[info.Chunk.ID] / maxRank
		}
		cand.Combined = pageRankWeight * cand.PageRank
		if cand.Combined < inclusionThreshold {
			continue
		}
		out = append(out, cand)
	}

	sortCandidates(out)
	return out, nil
}

// normalizeRetrieval scales the store's fused scores to [0,1].
func normalizeRetrieval(candidates []store.Candidate) []float64 {
	maxScore := 0.0
	for _, c := range candidates {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		if maxScore > 0 {
			out[i] = c.Score / maxScore
		}
	}
	return out
}

// sortCandidates orders by combined score descending with deterministic
// file-path then line tie-breaks.
func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Chunk.StartLine < b.Chunk.StartLine
	})
}
