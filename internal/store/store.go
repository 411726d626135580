// Package store persists chunks, definitions, references, and file versions
// into the hybrid (vector + lexical) index. The engine depends only on these
// semantic operations, never on a particular query language.
package store

import (
	"context"
	"time"
)

// Store is the persistence boundary for the indexing and query engine.
// Records are append-only: a changed file gets a new FileVersion and fresh
// chunk/definition/reference rows; the previous version stays intact and
// queryable until explicitly pruned.
type Store interface {
	// UpsertRepo registers or updates a repository record.
	UpsertRepo(ctx context.Context, r Repository) error
	// GetRepo returns a repository by ID; ok is false when unknown.
	GetRepo(ctx context.Context, id string) (Repository, bool, error)
	// RepoByRoot returns the repository whose checkout root matches.
	RepoByRoot(ctx context.Context, root string) (Repository, bool, error)

	// LatestFileVersion returns the most recent version for a path.
	LatestFileVersion(ctx context.Context, repoID, path string) (FileVersion, bool, error)
	// WriteFileIndex atomically writes a new file version with its chunks,
	// vectors, definitions, and references. If a version with the same
	// content hash already exists it is returned unchanged and nothing is
	// written.
	WriteFileIndex(ctx context.Context, b WriteBatch) (FileVersion, error)
	// AttachCommit records commit provenance for an existing version.
	AttachCommit(ctx context.Context, fileVersionID int64, commitHash string, at time.Time) error
	// DeleteChunksForFileVersion removes a version's chunks and extraction
	// records, e.g. when pruning history.
	DeleteChunksForFileVersion(ctx context.Context, fileVersionID int64) error
	// DeleteRepoData removes every record owned by a repository.
	DeleteRepoData(ctx context.Context, repoID string) error

	// HybridQuery runs the combined vector + lexical search over chunks
	// visible in scope and returns fused candidates with both component
	// scores populated.
	HybridQuery(ctx context.Context, req HybridRequest) ([]Candidate, error)
	// GetChunks returns chunks with file locations, in input order; missing
	// IDs are skipped.
	GetChunks(ctx context.Context, ids []int64) ([]ChunkInfo, error)
	// ChunksForFile returns the visible version's chunks in file order.
	ChunksForFile(ctx context.Context, repoID, path string, scope Scope) ([]Chunk, error)

	// DefinitionsByIdentifier returns definitions of an exact identifier
	// visible in scope.
	DefinitionsByIdentifier(ctx context.Context, identifier string, f DefFilter) ([]Definition, error)
	// DefinitionsInChunks returns the definitions owned by the given chunks.
	DefinitionsInChunks(ctx context.Context, chunkIDs []int64) ([]Definition, error)
	// ReferencesInChunks returns the references owned by the given chunks.
	ReferencesInChunks(ctx context.Context, chunkIDs []int64) ([]Reference, error)
	// ReferencesByIdentifier returns references to an exact identifier
	// visible in scope.
	ReferencesByIdentifier(ctx context.Context, identifier string, f RefFilter) ([]Reference, error)

	// ListFiles summarizes a repository's visible files.
	ListFiles(ctx context.Context, repoID string) ([]FileEntry, error)
	// GetMeta returns a metadata value by key, or "" if unset.
	GetMeta(ctx context.Context, key string) (string, error)
	// SetMeta sets a metadata key-value pair.
	SetMeta(ctx context.Context, key, value string) error

	Close() error
}
