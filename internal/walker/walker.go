// Package walker discovers indexable files under a repository root.
package walker

import (
	"bufio"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"quarry/internal/lang"
)

// FileInfo describes one discovered indexable file.
type FileInfo struct {
	AbsPath string
	RelPath string
	Size    int64
}

// Stats counts what a walk saw and why entries were left out.
type Stats struct {
	Matched      int
	SkippedDirs  int
	Oversized    int
	Unregistered int
}

// maxFileSize is the largest file we'll consider (1 MB).
const maxFileSize = 1 << 20

// defaultRules are written to .quarryignore when none exists.
var defaultRules = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	".quarry",
	"dist",
	"build",
}

// Walk returns the indexable files under root in path order. A file is kept
// when the registry knows its extension, it is non-empty and within the size
// limit, and no ignore rule excludes it. Unreadable entries are skipped, not
// fatal.
func Walk(root string, reg *lang.Registry) ([]FileInfo, Stats, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, Stats{}, err
	}

	rules := loadRules(absRoot)
	var files []FileInfo
	var stats Stats

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p == absRoot {
			return nil
		}
		rel, _ := filepath.Rel(absRoot, p)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rules.excluded(rel, d.Name()) {
				stats.SkippedDirs++
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if rules.excluded(rel, d.Name()) {
			return nil
		}
		if _, _, _, ok := reg.Lookup(p); !ok {
			stats.Unregistered++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 {
			return nil
		}
		if info.Size() > maxFileSize {
			stats.Oversized++
			return nil
		}

		files = append(files, FileInfo{AbsPath: p, RelPath: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	stats.Matched = len(files)
	return files, stats, nil
}

type rule struct {
	pattern string
	negate  bool
}

// ruleSet holds ignore rules in file order; the last matching rule wins, so
// a later !pattern can re-include what an earlier pattern excluded. Files
// inside a skipped directory are never revisited, so a negation cannot
// resurrect them.
type ruleSet struct {
	rules []rule
}

func (rs ruleSet) excluded(rel, name string) bool {
	out := false
	for _, r := range rs.rules {
		if matchPattern(r.pattern, rel, name) {
			out = !r.negate
		}
	}
	return out
}

// matchPattern matches one ignore pattern against a slash-separated relative
// path. Bare patterns match any path component; patterns with a slash match
// the whole relative path, with ** spanning any number of components.
func matchPattern(pattern, rel, name string) bool {
	if !strings.Contains(pattern, "/") && !strings.Contains(pattern, "**") {
		if pattern == name {
			return true
		}
		ok, _ := path.Match(pattern, name)
		return ok
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, _ := path.Match(pat[0], segs[0]); !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

// loadRules reads .quarryignore from the repository root, creating it with
// the defaults when missing.
func loadRules(root string) ruleSet {
	ignorePath := filepath.Join(root, ".quarryignore")

	f, err := os.Open(ignorePath)
	if err != nil {
		writeDefaultIgnoreFile(ignorePath)
		return toRuleSet(defaultRules)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return toRuleSet(defaultRules)
	}
	return toRuleSet(lines)
}

func toRuleSet(lines []string) ruleSet {
	rs := ruleSet{rules: make([]rule, 0, len(lines))}
	for _, line := range lines {
		r := rule{pattern: line}
		if strings.HasPrefix(line, "!") {
			r.negate = true
			r.pattern = line[1:]
		}
		rs.rules = append(rs.rules, r)
	}
	return rs
}

func writeDefaultIgnoreFile(path string) {
	var b strings.Builder
	b.WriteString("# Paths to exclude from indexing, one pattern per line.\n")
	b.WriteString("# Globs, ** across directories, and !negation are supported.\n\n")
	for _, p := range defaultRules {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	// Best-effort write; if it fails the defaults are still used in memory.
	os.WriteFile(path, []byte(b.String()), 0o644)
}
