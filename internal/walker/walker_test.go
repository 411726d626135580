package walker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/lang"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestWalkCreatesDefaultIgnoreFile(t *testing.T) {
	root := t.TempDir()
	write(t, root, "main.go", "package main\n")
	write(t, root, "node_modules/lib/x.js", "module.exports = 1\n")

	files, stats, err := Walk(root, lang.DefaultRegistry())
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, relPaths(files))
	assert.Equal(t, 1, stats.Matched)
	assert.GreaterOrEqual(t, stats.SkippedDirs, 1)

	_, err = os.Stat(filepath.Join(root, ".quarryignore"))
	assert.NoError(t, err, "a default ignore file is written on first walk")
}

func TestWalkNegationReincludes(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".quarryignore", "*.md\n!README.md\n")
	write(t, root, "README.md", "# keep\n")
	write(t, root, "notes.md", "# drop\n")
	write(t, root, "main.go", "package main\n")

	files, _, err := Walk(root, lang.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "main.go"}, relPaths(files))
}

func TestWalkDoubleStarPrunesNestedDirs(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".quarryignore", "**/gen\n")
	write(t, root, "src/gen/out.go", "package gen\n")
	write(t, root, "src/real.go", "package src\n")
	write(t, root, "gen/top.go", "package gen\n")

	files, stats, err := Walk(root, lang.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/real.go"}, relPaths(files))
	assert.Equal(t, 2, stats.SkippedDirs)
}

func TestWalkSkipsOversizedAndUnregistered(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".quarryignore", ".git\n")
	write(t, root, "big.md", strings.Repeat("x", maxFileSize+1))
	write(t, root, "binary.dat", "data")
	write(t, root, "ok.md", "# fine\n")

	files, stats, err := Walk(root, lang.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.md"}, relPaths(files))
	assert.Equal(t, 1, stats.Oversized)
	assert.GreaterOrEqual(t, stats.Unregistered, 1)
}

func TestWalkSortedOutput(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".quarryignore", ".git\n")
	write(t, root, "b/two.go", "package b\n")
	write(t, root, "a/one.go", "package a\n")
	write(t, root, "zz.go", "package main\n")

	files, _, err := Walk(root, lang.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one.go", "b/two.go", "zz.go"}, relPaths(files))
}
