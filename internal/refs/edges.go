package refs

import (
	"context"

	"quarry/internal/lang"
	"quarry/internal/store"
)

// Edge is a directed dependency between two stored chunks: From uses
// something that To defines.
type Edge struct {
	From   int64
	To     int64
	Weight float64
}

// edgeWeight grades reference kinds by how strongly they couple chunks.
func edgeWeight(kind string) float64 {
	switch lang.RefKind(kind) {
	case lang.RefCall:
		return 1.0
	case lang.RefReexport:
		return 0.9
	case lang.RefImport:
		return 0.8
	case lang.RefLink:
		return 0.7
	default:
		return 0.5
	}
}

// EdgesFor derives outgoing edges for the given chunks: each reference they
// own is resolved to its top candidate definition, and the definition's
// owning chunk becomes the edge target. Unresolved references contribute
// nothing.
func (r *Resolver) EdgesFor(ctx context.Context, chunkIDs []int64, scope store.Scope) ([]Edge, error) {
	references, err := r.store.ReferencesInChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	var edges []Edge
	seen := make(map[[2]int64]bool)
	for _, ref := range references {
		defs, err := r.ResolveRef(ctx, ref, scope, 1)
		if err != nil {
			return nil, err
		}
		if len(defs) == 0 || defs[0].ChunkID == 0 || defs[0].ChunkID == ref.ChunkID {
			continue
		}
		key := [2]int64{ref.ChunkID, defs[0].ChunkID}
		if seen[key] {
			continue
		}
		seen[key] = true
		edges = append(edges, Edge{From: ref.ChunkID, To: defs[0].ChunkID, Weight: edgeWeight(ref.Kind)})
	}
	return edges, nil
}

// Inbound derives incoming edges for the given chunks: for each definition
// they own, references elsewhere to the same identifier become edges into
// the defining chunk when this chunk is the reference's top resolution.
func (r *Resolver) Inbound(ctx context.Context, chunkIDs []int64, scope store.Scope) ([]Edge, error) {
	defs, err := r.store.DefinitionsInChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	owned := make(map[int64]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		owned[id] = true
	}

	var edges []Edge
	seen := make(map[[2]int64]bool)
	for _, def := range defs {
		references, err := r.store.ReferencesByIdentifier(ctx, def.Identifier, store.RefFilter{Scope: scope})
		if err != nil {
			return nil, err
		}
		for _, ref := range references {
			if ref.ChunkID == 0 || ref.ChunkID == def.ChunkID {
				continue
			}
			resolved, err := r.ResolveRef(ctx, ref, scope, 1)
			if err != nil {
				return nil, err
			}
			if len(resolved) == 0 || !owned[resolved[0].ChunkID] {
				continue
			}
			key := [2]int64{ref.ChunkID, resolved[0].ChunkID}
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, Edge{From: ref.ChunkID, To: resolved[0].ChunkID, Weight: edgeWeight(ref.Kind)})
		}
	}
	return edges, nil
}
