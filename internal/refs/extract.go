// Package refs extracts per-chunk definition and reference records and
// resolves references to definitions at query time.
package refs

import (
	"sort"

	"quarry/internal/chunk"
	"quarry/internal/lang"
	"quarry/internal/store"
)

// Extraction is the per-file output of Extract. Definition and Reference
// ChunkID fields hold indexes into the chunk list, matching the write batch
// convention; RefSymbols is parallel to the chunk list.
type Extraction struct {
	Definitions []store.Definition
	References  []store.Reference
	RefSymbols  [][]string
}

// Extract maps a file's items and references onto its chunks. Named items
// become definition records owned by the chunk containing their start line;
// references attach the same way and are deduplicated per
// (chunk, identifier, kind).
func Extract(items []lang.Item, fileRefs []lang.Ref, chunks []chunk.Chunk) Extraction {
	ex := Extraction{RefSymbols: make([][]string, len(chunks))}

	for _, it := range items {
		if it.Name == "" {
			continue
		}
		ex.Definitions = append(ex.Definitions, store.Definition{
			ChunkID:    int64(chunkIndexFor(chunks, it.StartLine)),
			Identifier: it.Name,
			EntityType: it.Kind,
			StartLine:  it.StartLine,
			EndLine:    it.EndLine,
		})
	}

	type refKey struct {
		chunk int
		ident string
		kind  lang.RefKind
	}
	seen := make(map[refKey]bool)
	symbols := make([]map[string]bool, len(chunks))

	for _, ref := range fileRefs {
		if ref.Identifier == "" {
			continue
		}
		idx := chunkIndexFor(chunks, ref.Line)
		key := refKey{chunk: idx, ident: ref.Identifier, kind: ref.Kind}
		if seen[key] {
			continue
		}
		seen[key] = true
		ex.References = append(ex.References, store.Reference{
			ChunkID:    int64(idx),
			Identifier: ref.Identifier,
			Kind:       string(ref.Kind),
			Line:       ref.Line,
			ImportPath: ref.ImportPath,
		})
		if idx >= 0 && idx < len(symbols) {
			if symbols[idx] == nil {
				symbols[idx] = make(map[string]bool)
			}
			symbols[idx][ref.Identifier] = true
		}
	}

	for i, set := range symbols {
		if len(set) == 0 {
			continue
		}
		syms := make([]string, 0, len(set))
		for s := range set {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		ex.RefSymbols[i] = syms
	}
	return ex
}

// chunkIndexFor returns the index of the chunk whose span contains the line.
// Chunk spans cover the file, so every line lands somewhere; out-of-range
// lines clamp to the nearest chunk.
func chunkIndexFor(chunks []chunk.Chunk, line int) int {
	if len(chunks) == 0 {
		return 0
	}
	for i, c := range chunks {
		if line >= c.StartLine && line <= c.EndLine {
			return i
		}
	}
	if line < chunks[0].StartLine {
		return 0
	}
	return len(chunks) - 1
}
