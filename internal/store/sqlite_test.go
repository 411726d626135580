package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteOpenAndRepoRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	repo := Repository{ID: "r1", Name: "proj", RootPath: "/tmp/proj", CurrentCommit: "c0"}
	require.NoError(t, st.UpsertRepo(ctx, repo))

	got, ok, err := st.GetRepo(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, repo, got)

	byRoot, ok, err := st.RepoByRoot(ctx, "/tmp/proj")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", byRoot.ID)

	_, ok, err = st.GetRepo(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteWriteAndLexicalQuery(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertRepo(ctx, Repository{ID: "r1"}))

	v, err := st.WriteFileIndex(ctx, WriteBatch{
		Version: FileVersion{RepoID: "r1", FilePath: "retry.go", ContentHash: "h1", Language: "go"},
		Chunks: []Chunk{
			{Name: "retryWithBackoff", DeclType: "function", StartLine: 1, EndLine: 20,
				Content: "retry with exponential backoff", RefSymbols: []string{"sleep"}},
			{StartLine: 21, EndLine: 40, Content: "unrelated helper code"},
		},
		Definitions: []Definition{
			{ChunkID: 0, Identifier: "retryWithBackoff", EntityType: "function", StartLine: 1, EndLine: 20},
		},
		References: []Reference{
			{ChunkID: 0, Identifier: "sleep", Kind: "call", Line: 12},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, v.ID)

	// Unchanged hash short-circuits to the same version.
	again, err := st.WriteFileIndex(ctx, WriteBatch{
		Version: FileVersion{RepoID: "r1", FilePath: "retry.go", ContentHash: "h1", Language: "go"},
	})
	require.NoError(t, err)
	assert.Equal(t, v.ID, again.ID)

	scope := Scope{RepoIDs: []string{"r1"}}
	cands, err := st.HybridQuery(ctx, HybridRequest{Text: "backoff", Scope: scope, K: 5})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "retry.go", cands[0].FilePath)
	assert.Equal(t, "retryWithBackoff", cands[0].Chunk.Name)
	assert.Equal(t, []string{"sleep"}, cands[0].Chunk.RefSymbols)

	chunks, err := st.ChunksForFile(ctx, "r1", "retry.go", scope)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	defs, err := st.DefinitionsByIdentifier(ctx, "retryWithBackoff", DefFilter{Scope: scope})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, chunks[0].ID, defs[0].ChunkID)

	refs, err := st.ReferencesInChunks(ctx, []int64{chunks[0].ID})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "sleep", refs[0].Identifier)
}

func TestSQLitePinVisibility(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertRepo(ctx, Repository{ID: "r1"}))

	t1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	old, err := st.WriteFileIndex(ctx, WriteBatch{
		Version: FileVersion{RepoID: "r1", FilePath: "old.go", ContentHash: "h1"},
		Chunks:  []Chunk{{StartLine: 1, EndLine: 10, Content: "alpha token"}},
		Commit:  &CommitFileVersion{CommitHash: "c1", CommittedAt: t1},
	})
	require.NoError(t, err)
	_, err = st.WriteFileIndex(ctx, WriteBatch{
		Version: FileVersion{RepoID: "r1", FilePath: "new.go", ContentHash: "h2"},
		Chunks:  []Chunk{{StartLine: 1, EndLine: 10, Content: "alpha token"}},
		Commit:  &CommitFileVersion{CommitHash: "c2", CommittedAt: t2},
	})
	require.NoError(t, err)
	loose, err := st.WriteFileIndex(ctx, WriteBatch{
		Version: FileVersion{RepoID: "r1", FilePath: "notes.md", ContentHash: "h3"},
		Chunks:  []Chunk{{StartLine: 1, EndLine: 5, Content: "alpha token"}},
	})
	require.NoError(t, err)

	pinned := Scope{RepoIDs: []string{"r1"}, CommitPins: map[string]string{"r1": "c1"}}
	cands, err := st.HybridQuery(ctx, HybridRequest{Text: "alpha", Scope: pinned, K: 10})
	require.NoError(t, err)

	byPath := map[string]int64{}
	for _, c := range cands {
		byPath[c.FilePath] = c.Chunk.FileVersionID
	}
	assert.Equal(t, old.ID, byPath["old.go"])
	assert.NotContains(t, byPath, "new.go",
		"a file whose provenance starts after the pin was absent from that commit")
	assert.Equal(t, loose.ID, byPath["notes.md"],
		"a file with no provenance at all falls back to its latest version")

	// Unknown pin degrades to latest-version visibility.
	unknown := Scope{RepoIDs: []string{"r1"}, CommitPins: map[string]string{"r1": "nope"}}
	cands, err = st.HybridQuery(ctx, HybridRequest{Text: "alpha", Scope: unknown, K: 10})
	require.NoError(t, err)
	assert.Len(t, cands, 3)
}

func TestSQLitePinnedDefinitionTimes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertRepo(ctx, Repository{ID: "r1"}))

	at := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	_, err := st.WriteFileIndex(ctx, WriteBatch{
		Version: FileVersion{RepoID: "r1", FilePath: "a.go", ContentHash: "h1"},
		Chunks:  []Chunk{{StartLine: 1, EndLine: 10, Content: "body"}},
		Definitions: []Definition{
			{ChunkID: 0, Identifier: "Thing", EntityType: "type", StartLine: 1, EndLine: 10},
		},
		Commit: &CommitFileVersion{CommitHash: "c1", CommittedAt: at},
	})
	require.NoError(t, err)

	defs, err := st.DefinitionsByIdentifier(ctx, "Thing", DefFilter{Scope: Scope{RepoIDs: []string{"r1"}}})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.True(t, defs[0].VersionTime.Equal(at), "commit provenance drives the version time")
}

func TestSQLiteDeleteRepoData(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertRepo(ctx, Repository{ID: "r1"}))

	_, err := st.WriteFileIndex(ctx, WriteBatch{
		Version: FileVersion{RepoID: "r1", FilePath: "a.go", ContentHash: "h1"},
		Chunks:  []Chunk{{StartLine: 1, EndLine: 10, Content: "searchable body"}},
	})
	require.NoError(t, err)

	require.NoError(t, st.DeleteRepoData(ctx, "r1"))

	files, err := st.ListFiles(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, files)

	cands, err := st.HybridQuery(ctx, HybridRequest{Text: "searchable", Scope: Scope{RepoIDs: []string{"r1"}}, K: 5})
	require.NoError(t, err)
	assert.Empty(t, cands, "lexical rows are removed with their chunks")
}

func TestSQLiteMetaRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	got, err := st.GetMeta(ctx, "embedding_model")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, st.SetMeta(ctx, "embedding_model", "nomic-embed-text"))
	require.NoError(t, st.SetMeta(ctx, "embedding_model", "mxbai-embed-large"))

	got, err = st.GetMeta(ctx, "embedding_model")
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", got)
}
