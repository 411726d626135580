package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/lang"
)

// makeLines returns n lines of roughly width bytes each.
func makeLines(n, width int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = strings.Repeat("x", width-1)
	}
	return lines
}

func buildSource(blocks ...[]string) ([]byte, []lang.Item) {
	var lines []string
	var items []lang.Item
	for i, block := range blocks {
		start := len(lines) + 1
		lines = append(lines, block...)
		items = append(items, lang.Item{
			Name:      fmt.Sprintf("decl%d", i),
			Kind:      "function",
			StartLine: start,
			EndLine:   len(lines),
		})
	}
	return []byte(strings.Join(lines, "\n")), items
}

func assertCoverage(t *testing.T, chunks []Chunk, totalLines int) {
	t.Helper()
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine, "first chunk must start at line 1")
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndLine+1, chunks[i].StartLine,
			"chunk %d must start where chunk %d ends", i, i-1)
	}
	assert.Equal(t, totalLines, chunks[len(chunks)-1].EndLine, "last chunk must reach the final line")
}

func TestBuildCoversWholeFile(t *testing.T) {
	src, items := buildSource(makeLines(5, 40), makeLines(30, 40), makeLines(8, 40))
	total := len(strings.Split(string(src), "\n"))

	b := NewBuilder(DefaultConfig())
	chunks := b.Build("go", src, items)
	assertCoverage(t, chunks, total)
}

func TestBuildNoItemsSingleChunk(t *testing.T) {
	src := []byte(strings.Join(makeLines(12, 30), "\n"))

	b := NewBuilder(DefaultConfig())
	chunks := b.Build("text", src, nil)

	require.Len(t, chunks, 1)
	assert.Equal(t, "file", chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 12, chunks[0].EndLine)
	assert.Equal(t, string(src), chunks[0].Content)
}

func TestMergeThreshold(t *testing.T) {
	// Five consecutive declarations, each ~120 bytes, all under MinBytes.
	blocks := make([][]string, 5)
	for i := range blocks {
		blocks[i] = makeLines(3, 40)
	}
	src, items := buildSource(blocks...)

	b := NewBuilder(DefaultConfig())
	chunks := b.Build("go", src, items)

	assert.Less(t, len(chunks), 5, "small declarations must merge")
	assertCoverage(t, chunks, len(strings.Split(string(src), "\n")))
}

func TestOversizedDeclarationStaysWhole(t *testing.T) {
	// One declaration far beyond MaxBytes.
	src, items := buildSource(makeLines(400, 60))

	b := NewBuilder(DefaultConfig())
	chunks := b.Build("go", src, items)

	require.Len(t, chunks, 1, "oversized declaration must never split")
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 400, chunks[0].EndLine)
	assert.Equal(t, string(src), chunks[0].Content)
}

func TestThreeSmallFunctionsAndLargeClass(t *testing.T) {
	src, items := buildSource(
		makeLines(4, 30),
		makeLines(4, 30),
		makeLines(4, 30),
		makeLines(500, 40),
	)
	items[3].Kind = "class"
	items[3].Name = "Widget"

	b := NewBuilder(DefaultConfig())
	chunks := b.Build("typescript", src, items)

	require.Len(t, chunks, 2, "expect merged trio plus the class")
	assert.Equal(t, "group", chunks[0].Kind)
	assert.Equal(t, "Widget", chunks[1].Name)
	assert.Equal(t, "class", chunks[1].Kind)
	assertCoverage(t, chunks, 512)
}

func TestGapsAttachToPrecedingChunk(t *testing.T) {
	// Items with blank lines between them: lines 1-10, 16-40 (over MinBytes
	// each), gap 11-15 must attach to the first chunk.
	lines := makeLines(40, 80)
	src := []byte(strings.Join(lines, "\n"))
	items := []lang.Item{
		{Name: "a", Kind: "function", StartLine: 1, EndLine: 10},
		{Name: "b", Kind: "function", StartLine: 16, EndLine: 40},
	}

	b := NewBuilder(DefaultConfig())
	chunks := b.Build("go", src, items)

	require.Len(t, chunks, 2)
	assert.Equal(t, 15, chunks[0].EndLine)
	assert.Equal(t, 16, chunks[1].StartLine)
}

func TestContainedItemsDropped(t *testing.T) {
	lines := makeLines(30, 80)
	src := []byte(strings.Join(lines, "\n"))
	items := []lang.Item{
		{Name: "outer", Kind: "class", StartLine: 1, EndLine: 30},
		{Name: "inner", Kind: "method", StartLine: 5, EndLine: 10},
	}

	b := NewBuilder(DefaultConfig())
	chunks := b.Build("python", src, items)

	require.Len(t, chunks, 1)
	assert.Equal(t, "outer", chunks[0].Name)
}
