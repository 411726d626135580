package store

import "time"

// Repository identifies one indexed source repository. Identity is
// immutable; CurrentCommit is the mutable "last known commit" pointer.
type Repository struct {
	ID            string
	Name          string
	Origin        string
	RootPath      string
	CurrentCommit string
}

// FileVersion is one immutable content snapshot of one file path. A new
// version is created whenever the content hash changes; older versions are
// superseded by recency, never edited.
type FileVersion struct {
	ID          int64
	RepoID      string
	ProjectDir  string
	FilePath    string
	ContentHash string
	Language    string
	IndexedAt   time.Time
}

// CommitFileVersion associates a FileVersion with a commit when commit-level
// provenance is known. A version unchanged across commits is visible at each
// of them.
type CommitFileVersion struct {
	ID            int64
	FileVersionID int64
	CommitHash    string
	CommittedAt   time.Time
}

// Chunk is a stored, size-bounded excerpt of one file version: the unit of
// retrieval. Content is verbatim; elision happens at retrieval time only.
type Chunk struct {
	ID            int64
	FileVersionID int64
	Name          string
	DeclType      string
	Language      string
	StartLine     int
	EndLine       int
	Content       string
	Commentary    string
	RefSymbols    []string
	HasVector     bool
}

// Definition records that Identifier of kind EntityType is defined at
// StartLine..EndLine within one file version. RepoID, FilePath, and
// VersionTime are denormalized from the owning version for resolution
// ordering.
type Definition struct {
	ID            int64
	FileVersionID int64
	ChunkID       int64
	RepoID        string
	FilePath      string
	Identifier    string
	EntityType    string
	StartLine     int
	EndLine       int
	VersionTime   time.Time
}

// Reference is a usage record: the user's-side facts only. The resolved
// definition is never stored; resolution is query-time so the target can
// change independently without staleness.
type Reference struct {
	ID            int64
	FileVersionID int64
	ChunkID       int64
	RepoID        string
	FilePath      string
	Identifier    string
	Kind          string
	Line          int
	ImportPath    string
}

// Scope restricts queries to repositories, each optionally pinned to a
// commit. Unpinned repos resolve to the latest file version per path.
type Scope struct {
	RepoIDs    []string
	CommitPins map[string]string // repoID → commitHash
}

// DefFilter narrows definition lookups.
type DefFilter struct {
	EntityType string
	Scope      Scope
}

// RefFilter narrows reference lookups.
type RefFilter struct {
	Kinds        []string
	PathContains string
	Scope        Scope
}

// Candidate is a chunk returned by a hybrid query with its component scores
// exposed separately so ranking can recombine them.
type Candidate struct {
	Chunk        Chunk
	RepoID       string
	FilePath     string
	VectorScore  float64
	LexicalScore float64
	Score        float64 // store-fused score
}

// HybridRequest is a combined vector + lexical query. A nil Vector degrades
// to lexical-only.
type HybridRequest struct {
	Text   string
	Vector []float32
	Scope  Scope
	K      int
}

// ChunkInfo is a chunk with its owning file's location.
type ChunkInfo struct {
	Chunk    Chunk
	RepoID   string
	FilePath string
}

// FileEntry summarizes an indexed file.
type FileEntry struct {
	Path     string
	Language string
	Chunks   int
}

// WriteBatch is everything extracted from one file version, written
// atomically. Vectors is parallel to Chunks; a nil entry stores the chunk
// lexical-only.
type WriteBatch struct {
	Version     FileVersion
	Commit      *CommitFileVersion
	Chunks      []Chunk
	Vectors     [][]float32
	Definitions []Definition
	References  []Reference
}
