// Package retrieve implements the query side of the engine: hybrid search,
// reference-graph rank expansion, boost directives, and budgeted assembly.
package retrieve

import "quarry/internal/store"

// Candidate is one chunk moving through the ranking pipeline.
type Candidate struct {
	Chunk    store.Chunk
	RepoID   string
	FilePath string

	// Retrieval is the store's fused hybrid score normalized to [0,1].
	Retrieval    float64
	VectorScore  float64
	LexicalScore float64
	// PageRank is the personalized PageRank score normalized to [0,1].
	PageRank float64
	// Combined is the final rank score.
	Combined float64

	// Expanded marks chunks reached only through the reference graph.
	Expanded bool
	// Boosted chunks sort before everything else, in directive order.
	Boosted        bool
	BoostOrder     int
	MustRenderFull bool
}

// FileDirective force-includes every chunk of one file as a contiguous unit.
type FileDirective struct {
	RepoID string
	Path   string
}

// DeclDirective force-includes the chunk defining one declaration and marks
// it must-render-fully.
type DeclDirective struct {
	RepoID     string
	Path       string
	Identifier string
}

// Directives are caller-supplied must-include instructions. Entries naming
// unknown files or declarations are skipped, not fatal.
type Directives struct {
	Files        []FileDirective
	Declarations []DeclDirective
}

// Request is one engine query.
type Request struct {
	Query        string
	Scope        store.Scope
	K            int
	ApproxLength int
	Boosts       Directives
}

// RenderedChunk is one chunk in the assembled response. An elided chunk
// keeps its boundary metadata with a placeholder body.
type RenderedChunk struct {
	Name      string
	DeclType  string
	StartLine int
	EndLine   int
	Content   string
	Elided    bool
}

// FileSection groups the selected chunks of one file.
type FileSection struct {
	RepoID   string
	FilePath string
	Language string
	Chunks   []RenderedChunk
}

// Result is the assembled response.
type Result struct {
	Files  []FileSection
	Budget int
	// Used is the total rendered character count.
	Used int
	// Degraded is set when part of the pipeline failed and the result was
	// built from what had already been fetched.
	Degraded bool
}
