package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/chunk"
	"quarry/internal/lang"
)

func TestExtractAssignsChunksByLine(t *testing.T) {
	chunks := []chunk.Chunk{
		{StartLine: 1, EndLine: 10},
		{StartLine: 11, EndLine: 30},
	}
	items := []lang.Item{
		{Name: "helper", Kind: "function", StartLine: 2, EndLine: 8},
		{Name: "Widget", Kind: "class", StartLine: 11, EndLine: 30},
		{Kind: "window", StartLine: 1, EndLine: 1}, // unnamed: no definition
	}
	fileRefs := []lang.Ref{
		{Identifier: "fmt", Kind: lang.RefImport, Line: 1, ImportPath: "fmt"},
		{Identifier: "helper", Kind: lang.RefCall, Line: 15},
		{Identifier: "parse", Kind: lang.RefCall, Line: 20},
	}

	ex := Extract(items, fileRefs, chunks)

	require.Len(t, ex.Definitions, 2)
	assert.Equal(t, int64(0), ex.Definitions[0].ChunkID)
	assert.Equal(t, "helper", ex.Definitions[0].Identifier)
	assert.Equal(t, "function", ex.Definitions[0].EntityType)
	assert.Equal(t, int64(1), ex.Definitions[1].ChunkID)

	require.Len(t, ex.References, 3)
	assert.Equal(t, int64(0), ex.References[0].ChunkID)
	assert.Equal(t, int64(1), ex.References[1].ChunkID)

	require.Len(t, ex.RefSymbols, 2)
	assert.Equal(t, []string{"fmt"}, ex.RefSymbols[0])
	assert.Equal(t, []string{"helper", "parse"}, ex.RefSymbols[1])
}

func TestExtractDeduplicatesPerChunk(t *testing.T) {
	chunks := []chunk.Chunk{{StartLine: 1, EndLine: 50}}
	fileRefs := []lang.Ref{
		{Identifier: "parse", Kind: lang.RefCall, Line: 5},
		{Identifier: "parse", Kind: lang.RefCall, Line: 30},
		{Identifier: "parse", Kind: lang.RefImport, Line: 1, ImportPath: "./parser"},
	}

	ex := Extract(nil, fileRefs, chunks)

	require.Len(t, ex.References, 2, "same identifier+kind in one chunk collapses")
	assert.Equal(t, []string{"parse"}, ex.RefSymbols[0])
}

func TestExtractClampsOutOfRangeLines(t *testing.T) {
	chunks := []chunk.Chunk{
		{StartLine: 1, EndLine: 10},
		{StartLine: 11, EndLine: 20},
	}
	fileRefs := []lang.Ref{
		{Identifier: "late", Kind: lang.RefCall, Line: 99},
	}

	ex := Extract(nil, fileRefs, chunks)

	require.Len(t, ex.References, 1)
	assert.Equal(t, int64(1), ex.References[0].ChunkID)
}
