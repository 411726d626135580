package retrieve

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/refs"
	"quarry/internal/store"
)

// seedVersion stores one file with the given chunks, definitions, and
// references (ChunkID fields index into chunks).
func seedVersion(t *testing.T, st store.Store, path, hash string, chunks []store.Chunk, defs []store.Definition, references []store.Reference) {
	t.Helper()
	_, err := st.WriteFileIndex(context.Background(), store.WriteBatch{
		Version: store.FileVersion{
			RepoID:      "repo",
			FilePath:    path,
			ContentHash: hash,
			Language:    "go",
			IndexedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		Chunks:      chunks,
		Definitions: defs,
		References:  references,
	})
	require.NoError(t, err)
}

func newTestEngine(st store.Store) *Engine {
	return NewEngine(st, nil, refs.NewResolver(st), nil)
}

func TestQueryExpandsAlongReferenceGraph(t *testing.T) {
	st := store.NewMemStore()
	require.NoError(t, st.UpsertRepo(context.Background(), store.Repository{ID: "repo"}))

	// pool.go matches the query and calls spawnWorker, defined in worker.go,
	// which matches nothing lexically.
	seedVersion(t, st, "pool.go", "h1",
		[]store.Chunk{{Name: "Pool", DeclType: "type", StartLine: 1, EndLine: 40,
			Content: "concurrency logic for the worker pool calls spawnWorker()"}},
		nil,
		[]store.Reference{{ChunkID: 0, Identifier: "spawnWorker", Kind: "call", Line: 12}},
	)
	seedVersion(t, st, "worker.go", "h2",
		[]store.Chunk{{Name: "spawnWorker", DeclType: "function", StartLine: 1, EndLine: 30,
			Content: "func body with no matching terms at all"}},
		[]store.Definition{{ChunkID: 0, Identifier: "spawnWorker", EntityType: "function", StartLine: 1, EndLine: 30}},
		nil,
	)

	engine := newTestEngine(st)
	result, err := engine.Query(context.Background(), Request{
		Query: "concurrency logic",
		Scope: store.Scope{RepoIDs: []string{"repo"}},
		K:     1,
	})
	require.NoError(t, err)
	assert.False(t, result.Degraded)

	var paths []string
	for _, f := range result.Files {
		paths = append(paths, f.FilePath)
	}
	assert.Contains(t, paths, "pool.go")
	assert.Contains(t, paths, "worker.go",
		"the referenced definition must enter the result via graph expansion")
}

func TestQueryBoostedFileIncludedUnderBudget(t *testing.T) {
	st := store.NewMemStore()
	require.NoError(t, st.UpsertRepo(context.Background(), store.Repository{ID: "repo"}))

	// Many files matching the query crowd out README.md, which matches
	// nothing.
	for i := 0; i < 8; i++ {
		path := "src/file" + string(rune('a'+i)) + ".go"
		seedVersion(t, st, path, "h"+path,
			[]store.Chunk{{StartLine: 1, EndLine: 50,
				Content: "concurrency logic " + strings.Repeat("pad ", 200)}},
			nil, nil)
	}
	readme := "# Project\n\nHow the concurrency model works.\n"
	seedVersion(t, st, "README.md", "hr",
		[]store.Chunk{{Name: "Project", DeclType: "section", StartLine: 1, EndLine: 3, Content: readme}},
		nil, nil)

	engine := newTestEngine(st)
	result, err := engine.Query(context.Background(), Request{
		Query:        "concurrency logic",
		Scope:        store.Scope{RepoIDs: []string{"repo"}},
		K:            5,
		ApproxLength: 8000,
		Boosts: Directives{
			Files: []FileDirective{{RepoID: "repo", Path: "README.md"}},
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Files)
	assert.Equal(t, "README.md", result.Files[0].FilePath, "boosted file leads the response")
	require.Len(t, result.Files[0].Chunks, 1)
	assert.False(t, result.Files[0].Chunks[0].Elided, "boosted file renders fully under a non-trivial budget")
	assert.Equal(t, readme, result.Files[0].Chunks[0].Content)
}

func TestQueryBoostDeclarationMustRenderFull(t *testing.T) {
	st := store.NewMemStore()
	require.NoError(t, st.UpsertRepo(context.Background(), store.Repository{ID: "repo"}))

	seedVersion(t, st, "engine.go", "h1",
		[]store.Chunk{{Name: "Engine", DeclType: "type", StartLine: 1, EndLine: 60,
			Content: strings.Repeat("type Engine struct{}\n", 30)}},
		[]store.Definition{{ChunkID: 0, Identifier: "Engine", EntityType: "type", StartLine: 1, EndLine: 60}},
		nil)
	seedVersion(t, st, "other.go", "h2",
		[]store.Chunk{{StartLine: 1, EndLine: 40, Content: "ranking pipeline " + strings.Repeat("pad ", 300)}},
		nil, nil)

	engine := newTestEngine(st)
	result, err := engine.Query(context.Background(), Request{
		Query:        "ranking pipeline",
		Scope:        store.Scope{RepoIDs: []string{"repo"}},
		K:            5,
		ApproxLength: 700,
		Boosts: Directives{
			Declarations: []DeclDirective{{Identifier: "Engine"}},
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Files)
	assert.Equal(t, "engine.go", result.Files[0].FilePath)
	assert.False(t, result.Files[0].Chunks[0].Elided, "declaration boost means full rendering even over budget")
}

func TestQueryUnknownBoostDirectivesSkipped(t *testing.T) {
	st := store.NewMemStore()
	require.NoError(t, st.UpsertRepo(context.Background(), store.Repository{ID: "repo"}))

	seedVersion(t, st, "main.go", "h1",
		[]store.Chunk{{StartLine: 1, EndLine: 10, Content: "entry point logic"}},
		nil, nil)

	engine := newTestEngine(st)
	result, err := engine.Query(context.Background(), Request{
		Query: "entry point",
		Scope: store.Scope{RepoIDs: []string{"repo"}},
		Boosts: Directives{
			Files:        []FileDirective{{RepoID: "repo", Path: "nope.go"}},
			Declarations: []DeclDirective{{Identifier: "DoesNotExist"}},
		},
	})
	require.NoError(t, err, "unknown directives are skipped, not fatal")
	require.Len(t, result.Files, 1)
	assert.Equal(t, "main.go", result.Files[0].FilePath)
}

func TestRetrieverCacheInvalidation(t *testing.T) {
	st := store.NewMemStore()
	require.NoError(t, st.UpsertRepo(context.Background(), store.Repository{ID: "repo"}))
	seedVersion(t, st, "a.go", "h1",
		[]store.Chunk{{StartLine: 1, EndLine: 5, Content: "alpha beta"}}, nil, nil)

	r := NewRetriever(st, nil, nil)
	scope := store.Scope{RepoIDs: []string{"repo"}}

	first, err := r.Search(context.Background(), "alpha", scope, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	seedVersion(t, st, "b.go", "h2",
		[]store.Chunk{{StartLine: 1, EndLine: 5, Content: "alpha gamma"}}, nil, nil)

	cached, err := r.Search(context.Background(), "alpha", scope, 5)
	require.NoError(t, err)
	assert.Len(t, cached, 1, "stale cache entry still serves")

	r.InvalidateCache()
	fresh, err := r.Search(context.Background(), "alpha", scope, 5)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}
