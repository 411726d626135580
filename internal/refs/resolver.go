package refs

import (
	"context"
	"path"
	"sort"
	"strings"

	"quarry/internal/lang"
	"quarry/internal/store"
)

// Constraints narrow and order a resolution. FromRepo and FromFile anchor
// path proximity; PathHint (usually an import path fragment) filters when it
// matches anything.
type Constraints struct {
	EntityType string
	PathHint   string
	FromRepo   string
	FromFile   string
	Scope      store.Scope
	Max        int
}

// Resolver answers identifier-to-definition queries over the stored graph.
// Resolution is query-time only: nothing is cached or written back, so a
// definition moving between versions never leaves stale links behind.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns candidate definitions for an exact identifier, best first.
// The store's visibility rules already reduce each file to the one version
// valid for the scope, so ordering is path proximity to the referencing file
// (same file, same directory, same repo, cross-repo), then version recency,
// then definition ID for determinism. A reference with no candidate is not an
// error; the list is empty.
func (r *Resolver) Resolve(ctx context.Context, identifier string, c Constraints) ([]store.Definition, error) {
	defs, err := r.store.DefinitionsByIdentifier(ctx, identifier, store.DefFilter{
		EntityType: c.EntityType,
		Scope:      c.Scope,
	})
	if err != nil {
		return nil, err
	}
	defs = applyPathHint(defs, c.PathHint)

	sort.Slice(defs, func(i, j int) bool {
		a, b := defs[i], defs[j]
		pa, pb := proximity(a, c), proximity(b, c)
		if pa != pb {
			return pa < pb
		}
		if !a.VersionTime.Equal(b.VersionTime) {
			return a.VersionTime.After(b.VersionTime)
		}
		return a.ID < b.ID
	})

	if c.Max > 0 && len(defs) > c.Max {
		defs = defs[:c.Max]
	}
	return defs, nil
}

// ResolveRef resolves one stored reference. When the direct lookup finds
// nothing and the scope holds a reexport of the same identifier, the
// resolver follows that alias's import path for one additional hop. Deeper
// alias chains stay unresolved.
func (r *Resolver) ResolveRef(ctx context.Context, ref store.Reference, scope store.Scope, max int) ([]store.Definition, error) {
	c := Constraints{
		PathHint: ref.ImportPath,
		FromRepo: ref.RepoID,
		FromFile: ref.FilePath,
		Scope:    scope,
		Max:      max,
	}
	defs, err := r.Resolve(ctx, ref.Identifier, c)
	if err != nil {
		return nil, err
	}
	if len(defs) > 0 {
		return defs, nil
	}

	aliases, err := r.store.ReferencesByIdentifier(ctx, ref.Identifier, store.RefFilter{
		Kinds: []string{string(lang.RefReexport)},
		Scope: scope,
	})
	if err != nil {
		return nil, err
	}
	for _, alias := range aliases {
		if alias.ImportPath == "" {
			continue
		}
		// A renamed reexport stores the original name as a sibling import
		// usage with the same source path; resolve that original name.
		if alias.ChunkID != 0 {
			siblings, err := r.store.ReferencesInChunks(ctx, []int64{alias.ChunkID})
			if err != nil {
				return nil, err
			}
			for _, sib := range siblings {
				if sib.Kind != string(lang.RefImport) || sib.ImportPath != alias.ImportPath || sib.Identifier == ref.Identifier {
					continue
				}
				defs, err = r.Resolve(ctx, sib.Identifier, Constraints{
					PathHint: sib.ImportPath,
					FromRepo: alias.RepoID,
					FromFile: alias.FilePath,
					Scope:    scope,
					Max:      max,
				})
				if err != nil {
					return nil, err
				}
				if len(defs) > 0 {
					return defs, nil
				}
			}
		}
		// Same-name reexport: retry with the alias file's own hint.
		defs, err = r.Resolve(ctx, ref.Identifier, Constraints{
			PathHint: alias.ImportPath,
			FromRepo: alias.RepoID,
			FromFile: alias.FilePath,
			Scope:    scope,
			Max:      max,
		})
		if err != nil {
			return nil, err
		}
		if len(defs) > 0 {
			return defs, nil
		}
	}
	return nil, nil
}

// applyPathHint keeps only definitions whose path matches the hint, unless
// nothing matches, in which case the hint is ignored.
func applyPathHint(defs []store.Definition, hint string) []store.Definition {
	hint = hintFragment(hint)
	if hint == "" {
		return defs
	}
	var matched []store.Definition
	for _, d := range defs {
		if strings.Contains(d.FilePath, hint) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return defs
	}
	return matched
}

// hintFragment reduces an import path to its most path-like fragment:
// relative prefixes and a trailing extension are stripped.
func hintFragment(p string) string {
	p = strings.TrimPrefix(p, "./")
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	if ext := path.Ext(p); ext != "" && !strings.Contains(ext, "/") {
		p = strings.TrimSuffix(p, ext)
	}
	return p
}

// proximity ranks a definition's location against the referencing file:
// 0 same file, 1 same directory, 2 same repository, 3 elsewhere.
func proximity(d store.Definition, c Constraints) int {
	if c.FromRepo == "" {
		return 3
	}
	if d.RepoID != c.FromRepo {
		return 3
	}
	if d.FilePath == c.FromFile {
		return 0
	}
	if path.Dir(d.FilePath) == path.Dir(c.FromFile) {
		return 1
	}
	return 2
}
