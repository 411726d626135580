package refs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/store"
)

type seed struct {
	repoID string
	path   string
	hash   string
	at     time.Time
	commit *store.CommitFileVersion
	defs   []store.Definition
	refs   []store.Reference
}

// writeSeed stores one file version with a single chunk owning everything.
func writeSeed(t *testing.T, st store.Store, s seed) store.FileVersion {
	t.Helper()
	v, err := st.WriteFileIndex(context.Background(), store.WriteBatch{
		Version: store.FileVersion{
			RepoID:      s.repoID,
			FilePath:    s.path,
			ContentHash: s.hash,
			Language:    "typescript",
			IndexedAt:   s.at,
		},
		Commit:      s.commit,
		Chunks:      []store.Chunk{{StartLine: 1, EndLine: 100, Content: "content of " + s.path}},
		Definitions: s.defs,
		References:  s.refs,
	})
	require.NoError(t, err)
	return v
}

func TestResolveProximityAndDeterminism(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	def := func(line int) []store.Definition {
		return []store.Definition{{Identifier: "Parse", EntityType: "function", StartLine: line, EndLine: line + 5}}
	}
	writeSeed(t, st, seed{repoID: "A", path: "pkg/parser/parse.ts", hash: "h1", at: at, defs: def(1)})
	writeSeed(t, st, seed{repoID: "A", path: "pkg/parser/other.ts", hash: "h2", at: at, defs: def(10)})
	writeSeed(t, st, seed{repoID: "A", path: "pkg/util/helpers.ts", hash: "h3", at: at, defs: def(20)})
	writeSeed(t, st, seed{repoID: "B", path: "pkg/parser/parse.ts", hash: "h4", at: at, defs: def(30)})

	r := NewResolver(st)
	c := Constraints{
		FromRepo: "A",
		FromFile: "pkg/parser/parse.ts",
		Scope:    store.Scope{RepoIDs: []string{"A", "B"}},
	}

	got, err := r.Resolve(ctx, "Parse", c)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "pkg/parser/parse.ts", got[0].FilePath)
	assert.Equal(t, "A", got[0].RepoID)
	assert.Equal(t, "pkg/parser/other.ts", got[1].FilePath, "same directory beats same repo")
	assert.Equal(t, "pkg/util/helpers.ts", got[2].FilePath)
	assert.Equal(t, "B", got[3].RepoID, "cross-repo last")

	again, err := r.Resolve(ctx, "Parse", c)
	require.NoError(t, err)
	assert.Equal(t, got, again, "identical inputs must return the identical ordered list")
}

func TestResolveProximityBeatsIndexingOrder(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	// The distant file was indexed later; wall-clock recency must not let it
	// outrank the same-directory definition.
	writeSeed(t, st, seed{repoID: "A", path: "pkg/parser/helpers.ts", hash: "h1", at: at, defs: []store.Definition{
		{Identifier: "Parse", EntityType: "function", StartLine: 1, EndLine: 6},
	}})
	writeSeed(t, st, seed{repoID: "A", path: "other/unrelated.ts", hash: "h2", at: at.Add(2 * time.Second), defs: []store.Definition{
		{Identifier: "Parse", EntityType: "function", StartLine: 1, EndLine: 6},
	}})

	r := NewResolver(st)
	got, err := r.Resolve(ctx, "Parse", Constraints{
		FromRepo: "A",
		FromFile: "pkg/parser/parse.ts",
		Scope:    store.Scope{RepoIDs: []string{"A"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pkg/parser/helpers.ts", got[0].FilePath)
	assert.Equal(t, "other/unrelated.ts", got[1].FilePath)
}

func TestResolveEntityTypeFilterAndMax(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	writeSeed(t, st, seed{repoID: "A", path: "a.ts", hash: "h1", at: at, defs: []store.Definition{
		{Identifier: "Config", EntityType: "class", StartLine: 1, EndLine: 10},
		{Identifier: "Config", EntityType: "interface", StartLine: 20, EndLine: 25},
	}})

	r := NewResolver(st)
	scope := store.Scope{RepoIDs: []string{"A"}}

	got, err := r.Resolve(ctx, "Config", Constraints{EntityType: "interface", Scope: scope})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "interface", got[0].EntityType)

	got, err = r.Resolve(ctx, "Config", Constraints{Scope: scope, Max: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResolvePinnedCommitSeesOldVersion(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	v1 := writeSeed(t, st, seed{
		repoID: "A", path: "widget.ts", hash: "v1", at: t1,
		commit: &store.CommitFileVersion{CommitHash: "c1", CommittedAt: t1},
		defs:   []store.Definition{{Identifier: "Widget", EntityType: "class", StartLine: 1, EndLine: 5}},
	})
	v2 := writeSeed(t, st, seed{
		repoID: "A", path: "widget.ts", hash: "v2", at: t2,
		commit: &store.CommitFileVersion{CommitHash: "c2", CommittedAt: t2},
		defs:   []store.Definition{{Identifier: "Widget", EntityType: "class", StartLine: 1, EndLine: 9}},
	})
	require.NotEqual(t, v1.ID, v2.ID)

	r := NewResolver(st)

	pinned, err := r.Resolve(ctx, "Widget", Constraints{Scope: store.Scope{
		RepoIDs:    []string{"A"},
		CommitPins: map[string]string{"A": "c1"},
	}})
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, v1.ID, pinned[0].FileVersionID, "pin to c1 must resolve V1's definition")

	latest, err := r.Resolve(ctx, "Widget", Constraints{Scope: store.Scope{RepoIDs: []string{"A"}}})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, v2.ID, latest[0].FileVersionID)
}

func TestResolveRefAliasHop(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	writeSeed(t, st, seed{repoID: "A", path: "impl.ts", hash: "h1", at: at, defs: []store.Definition{
		{Identifier: "Impl", EntityType: "class", StartLine: 1, EndLine: 40},
	}})
	// barrel.ts: export { Impl as Widget } from './impl'
	writeSeed(t, st, seed{repoID: "A", path: "barrel.ts", hash: "h2", at: at, refs: []store.Reference{
		{Identifier: "Widget", Kind: "reexport", Line: 1, ImportPath: "./impl"},
		{Identifier: "Impl", Kind: "import", Line: 1, ImportPath: "./impl"},
	}})
	appVersion := writeSeed(t, st, seed{repoID: "A", path: "app.ts", hash: "h3", at: at, refs: []store.Reference{
		{Identifier: "Widget", Kind: "call", Line: 10},
	}})

	r := NewResolver(st)
	scope := store.Scope{RepoIDs: []string{"A"}}

	appRefs, err := st.ReferencesInChunks(ctx, chunkIDsOf(t, st, appVersion))
	require.NoError(t, err)
	require.Len(t, appRefs, 1)

	got, err := r.ResolveRef(ctx, appRefs[0], scope, 1)
	require.NoError(t, err)
	require.Len(t, got, 1, "alias hop must reach the original definition")
	assert.Equal(t, "impl.ts", got[0].FilePath)
	assert.Equal(t, "Impl", got[0].Identifier)
}

func chunkIDsOf(t *testing.T, st store.Store, v store.FileVersion) []int64 {
	t.Helper()
	chunks, err := st.ChunksForFile(context.Background(), v.RepoID, v.FilePath, store.Scope{RepoIDs: []string{v.RepoID}})
	require.NoError(t, err)
	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
