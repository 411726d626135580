package retrieve

import "sort"

const (
	// elisionMarker replaces the body of a chunk that was selected but did
	// not fit the budget in full.
	elisionMarker = "[content elided]"

	// metaOverhead approximates the serialized cost of an elided entry's
	// boundary metadata.
	metaOverhead = 64

	defaultBudget = 16000
)

// Assembler decides final inclusion and per-chunk rendering under an
// approximate character budget.
type Assembler struct{}

// NewAssembler creates an assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble orders candidates (boosted first in directive order, then by
// combined rank), walks the budget, and serializes per-file sections.
// Chunks render in full while they fit; once a chunk would overflow it is
// elided down to boundary metadata; when even metadata no longer fits the
// remainder is dropped. Must-render-fully chunks always render in full,
// which bounds overflow to one chunk's worth.
func (a *Assembler) Assemble(cands []Candidate, budget int) Result {
	if budget <= 0 {
		budget = defaultBudget
	}

	ordered := make([]Candidate, len(cands))
	copy(ordered, cands)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Boosted != b.Boosted {
			return a.Boosted
		}
		if a.Boosted {
			return a.BoostOrder < b.BoostOrder
		}
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Chunk.StartLine < b.Chunk.StartLine
	})

	type selected struct {
		cand   Candidate
		elided bool
	}
	var picks []selected
	used := 0
	seen := make(map[int64]bool)

	for _, c := range ordered {
		if seen[c.Chunk.ID] {
			continue
		}
		cost := len(c.Chunk.Content)
		switch {
		case c.MustRenderFull:
			picks = append(picks, selected{cand: c})
			used += cost
		case used+cost <= budget:
			picks = append(picks, selected{cand: c})
			used += cost
		case used+metaOverhead <= budget:
			picks = append(picks, selected{cand: c, elided: true})
			used += len(elisionMarker) + metaOverhead
		default:
			continue
		}
		seen[c.Chunk.ID] = true
	}

	// Group by file in order of first appearance.
	type fileKey struct {
		repo string
		path string
	}
	sections := make(map[fileKey]*FileSection)
	var keys []fileKey
	for _, p := range picks {
		key := fileKey{repo: p.cand.RepoID, path: p.cand.FilePath}
		sec, ok := sections[key]
		if !ok {
			sec = &FileSection{
				RepoID:   p.cand.RepoID,
				FilePath: p.cand.FilePath,
				Language: p.cand.Chunk.Language,
			}
			sections[key] = sec
			keys = append(keys, key)
		}
		rc := RenderedChunk{
			Name:      p.cand.Chunk.Name,
			DeclType:  p.cand.Chunk.DeclType,
			StartLine: p.cand.Chunk.StartLine,
			EndLine:   p.cand.Chunk.EndLine,
			Content:   p.cand.Chunk.Content,
		}
		if p.elided {
			rc.Content = elisionMarker
			rc.Elided = true
		}
		sec.Chunks = append(sec.Chunks, rc)
	}

	result := Result{Budget: budget, Used: used}
	for _, key := range keys {
		sec := sections[key]
		sort.Slice(sec.Chunks, func(i, j int) bool {
			return sec.Chunks[i].StartLine < sec.Chunks[j].StartLine
		})
		sec.Chunks = mergeAdjacent(sec.Chunks)
		result.Files = append(result.Files, *sec)
	}
	return result
}

// mergeAdjacent joins touching fully rendered chunks of one file into a
// single contiguous section spanning the union of their line ranges.
func mergeAdjacent(chunks []RenderedChunk) []RenderedChunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := chunks[:1]
	for _, c := range chunks[1:] {
		last := &out[len(out)-1]
		if !last.Elided && !c.Elided && c.StartLine == last.EndLine+1 {
			last.EndLine = c.EndLine
			last.Content += "\n" + c.Content
			if last.Name == "" {
				last.Name = c.Name
			}
			continue
		}
		out = append(out, c)
	}
	return out
}
