// Package chunk turns a file's content items into an ordered list of
// size-banded chunks whose line ranges cover the file exactly once.
package chunk

import (
	"sort"
	"strings"

	"quarry/internal/lang"
)

// Config bounds chunk sizes in bytes. Consecutive items below MinBytes merge
// into one chunk; a chunk never exceeds MaxBytes except for a single
// oversized item, which is kept whole so reference extraction sees complete
// syntax.
type Config struct {
	MinBytes int
	MaxBytes int
}

// DefaultConfig returns the default size band.
func DefaultConfig() Config {
	return Config{MinBytes: 512, MaxBytes: 8192}
}

// Chunk is a contiguous excerpt of one file version, pre-persistence.
type Chunk struct {
	Name      string
	Kind      string
	Language  string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	Content   string
}

// Builder builds chunks from content items.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder with the given size band. Zero or negative
// bounds fall back to defaults.
func NewBuilder(cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = def.MinBytes
	}
	if cfg.MaxBytes < cfg.MinBytes {
		cfg.MaxBytes = def.MaxBytes
	}
	return &Builder{cfg: cfg}
}

// Build produces the chunk list for one file version. The first chunk starts
// at line 1 (leading imports and header comments attach to it), gaps between
// items attach to the preceding chunk, and the last chunk runs to the final
// line, so the union of chunk spans is the whole file with no overlaps.
func (b *Builder) Build(language string, src []byte, items []lang.Item) []Chunk {
	lines := strings.Split(string(src), "\n")
	total := len(lines)
	if total == 0 {
		return nil
	}

	items = normalize(items, total)
	if len(items) == 0 {
		return []Chunk{{
			Kind:      "file",
			Language:  language,
			StartLine: 1,
			EndLine:   total,
			Content:   strings.Join(lines, "\n"),
		}}
	}

	groups := b.group(lines, items)

	chunks := make([]Chunk, 0, len(groups))
	for i, g := range groups {
		start := g[0].StartLine
		if i == 0 {
			start = 1
		}
		end := total
		if i+1 < len(groups) {
			end = groups[i+1][0].StartLine - 1
		}
		if end < start {
			end = start
		}
		name, kind := g[0].Name, g[0].Kind
		for _, it := range g {
			if name == "" && it.Name != "" {
				name = it.Name
			}
		}
		if len(g) > 1 {
			kind = "group"
		}
		chunks = append(chunks, Chunk{
			Name:      name,
			Kind:      kind,
			Language:  language,
			StartLine: start,
			EndLine:   end,
			Content:   strings.Join(lines[start-1:end], "\n"),
		})
	}
	return chunks
}

// group merges runs of consecutive small items. An item at or above MinBytes
// always stands alone; small items accumulate until the run reaches MinBytes
// or adding another would exceed MaxBytes.
func (b *Builder) group(lines []string, items []lang.Item) [][]lang.Item {
	var groups [][]lang.Item
	var cur []lang.Item
	curSize := 0

	flush := func() {
		if len(cur) > 0 {
			groups = append(groups, cur)
			cur = nil
			curSize = 0
		}
	}

	for _, it := range items {
		size := spanBytes(lines, it.StartLine, it.EndLine)
		if size >= b.cfg.MinBytes {
			flush()
			groups = append(groups, []lang.Item{it})
			continue
		}
		if len(cur) > 0 && (curSize >= b.cfg.MinBytes || curSize+size > b.cfg.MaxBytes) {
			flush()
		}
		cur = append(cur, it)
		curSize += size
	}
	flush()
	return groups
}

// normalize clamps item spans to the file, sorts by position, and drops
// items contained in a preceding one.
func normalize(items []lang.Item, total int) []lang.Item {
	kept := make([]lang.Item, 0, len(items))
	for _, it := range items {
		if it.StartLine < 1 {
			it.StartLine = 1
		}
		if it.EndLine > total {
			it.EndLine = total
		}
		if it.EndLine < it.StartLine {
			continue
		}
		kept = append(kept, it)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].StartLine != kept[j].StartLine {
			return kept[i].StartLine < kept[j].StartLine
		}
		return kept[i].EndLine > kept[j].EndLine
	})

	var out []lang.Item
	lastEnd := 0
	for _, it := range kept {
		if it.StartLine <= lastEnd {
			continue
		}
		out = append(out, it)
		lastEnd = it.EndLine
	}
	return out
}

func spanBytes(lines []string, start, end int) int {
	n := 0
	for i := start - 1; i < end && i < len(lines); i++ {
		n += len(lines[i]) + 1
	}
	return n
}
