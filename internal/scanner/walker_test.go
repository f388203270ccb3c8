package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func paths(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Path)
	}
	return out
}

func TestWalkIncludeExclude(t *testing.T) {
	dir := t.TempDir()
	goFile := writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "README.md", "# readme\n")
	writeFile(t, dir, "vendor/dep/dep.go", "package dep\n")
	nested := writeFile(t, dir, "pkg/util/util.go", "package util\n")

	w := NewWalker([]string{"*.go"}, []string{"vendor"}, 0)
	candidates, skips, err := w.Walk([]string{dir})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{goFile, nested}, paths(candidates))
	assert.Empty(t, skips)
}

func TestWalkMaxFileSizeSkipIsRecorded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.go", string(make([]byte, 2048)))
	small := writeFile(t, dir, "small.go", "package small\n")

	w := NewWalker(nil, nil, 1024)
	candidates, skips, err := w.Walk([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, []string{small}, paths(candidates))
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0].Reason, "max file size")
}

func TestWalkZeroMatchesIsSuccess(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "hello\n")

	w := NewWalker([]string{"*.rs"}, nil, 0)
	candidates, skips, err := w.Walk([]string{dir})
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Empty(t, skips)
}

func TestWalkMissingRootIsError(t *testing.T) {
	w := NewWalker(nil, nil, 0)
	_, _, err := w.Walk([]string{filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestWalkOverlappingRootsDeduplicate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")

	w := NewWalker(nil, nil, 0)
	candidates, _, err := w.Walk([]string{dir, dir})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestWalkSingleFileRoot(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "one.go", "package one\n")

	w := NewWalker(nil, nil, 0)
	candidates, _, err := w.Walk([]string{file})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, file, candidates[0].Path)
	assert.Equal(t, int64(len("package one\n")), candidates[0].Size)
}

func TestWalkExcludesNestedDirPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/node_modules/x/x.js", "var x\n")
	keep := writeFile(t, dir, "a/app.js", "var app\n")

	w := NewWalker(nil, []string{"node_modules"}, 0)
	candidates, _, err := w.Walk([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, paths(candidates))
}
