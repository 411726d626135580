package retrieve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/store"
)

func cand(id int64, path string, start, end int, content string, combined float64) Candidate {
	return Candidate{
		Chunk: store.Chunk{
			ID:        id,
			StartLine: start,
			EndLine:   end,
			Content:   content,
		},
		RepoID:   "repo",
		FilePath: path,
		Combined: combined,
	}
}

func TestAssembleRespectsBudget(t *testing.T) {
	body := strings.Repeat("x", 400)
	cands := []Candidate{
		cand(1, "a.go", 1, 10, body, 0.9),
		cand(2, "b.go", 1, 10, body, 0.8),
		cand(3, "c.go", 1, 10, body, 0.7),
		cand(4, "d.go", 1, 10, body, 0.6),
	}

	a := NewAssembler()
	result := a.Assemble(cands, 1000)

	assert.LessOrEqual(t, result.Used, 1000+len(body), "at most one chunk of overflow")

	var full, elided int
	for _, f := range result.Files {
		for _, c := range f.Chunks {
			if c.Elided {
				elided++
				assert.Equal(t, elisionMarker, c.Content)
				assert.NotZero(t, c.EndLine, "elided chunks keep boundary metadata")
			} else {
				full++
			}
		}
	}
	assert.Equal(t, 2, full, "two full chunks fit a 1000-char budget")
	assert.GreaterOrEqual(t, elided, 1, "next chunks are elided, not dropped")
}

func TestAssembleTailCut(t *testing.T) {
	body := strings.Repeat("x", 900)
	var cands []Candidate
	for i := int64(1); i <= 30; i++ {
		cands = append(cands, cand(i, "f.go", int(i)*100, int(i)*100+10, body, 1.0/float64(i)))
	}

	a := NewAssembler()
	result := a.Assemble(cands, 1000)

	total := 0
	for _, f := range result.Files {
		total += len(f.Chunks)
	}
	assert.Less(t, total, 30, "lowest-ranked remainder is dropped once metadata no longer fits")
}

func TestAssembleBoostedFirstAndMustRenderFull(t *testing.T) {
	big := strings.Repeat("x", 2000)
	boosted := cand(1, "README.md", 1, 40, big, 0)
	boosted.Boosted = true
	boosted.BoostOrder = 0
	boosted.MustRenderFull = true

	ranked := cand(2, "main.go", 1, 40, strings.Repeat("y", 500), 0.99)

	a := NewAssembler()
	result := a.Assemble([]Candidate{ranked, boosted}, 2100)

	require.NotEmpty(t, result.Files)
	assert.Equal(t, "README.md", result.Files[0].FilePath, "boosted file leads the output")
	assert.False(t, result.Files[0].Chunks[0].Elided, "must-render-full is never elided")
}

func TestAssembleMergesAdjacentChunks(t *testing.T) {
	cands := []Candidate{
		cand(1, "a.go", 1, 10, "first", 0.9),
		cand(2, "a.go", 11, 20, "second", 0.8),
		cand(3, "a.go", 30, 40, "third", 0.7),
	}

	a := NewAssembler()
	result := a.Assemble(cands, 10000)

	require.Len(t, result.Files, 1)
	chunks := result.Files[0].Chunks
	require.Len(t, chunks, 2, "touching chunks merge into one section")
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 20, chunks[0].EndLine)
	assert.Equal(t, "first\nsecond", chunks[0].Content)
	assert.Equal(t, 30, chunks[1].StartLine)
}

func TestAssembleDeterministicTieBreak(t *testing.T) {
	cands := []Candidate{
		cand(1, "b.go", 5, 10, "bbb", 0.5),
		cand(2, "a.go", 1, 4, "aaa", 0.5),
	}

	a := NewAssembler()
	result := a.Assemble(cands, 10000)

	require.Len(t, result.Files, 2)
	assert.Equal(t, "a.go", result.Files[0].FilePath, "ties break by path then line")
}
