package analyzers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

func TestRegistryVersionIsStable(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	assert.Equal(t, a.Version(), b.Version())
	assert.True(t, strings.HasPrefix(a.Version(), "v"))
}

func TestSecretsAnalyzer(t *testing.T) {
	src := []byte("package db\n\nvar apiKey = \"sk_live_abcdef12345678\"\nvar region = \"us-east-1\"\n")
	fs := NewSecretsAnalyzer().Analyze("internal/db/conn.go", src, 1)

	require.Len(t, fs, 1)
	assert.Equal(t, "hardcoded-secret", fs[0].Rule)
	assert.Equal(t, 3, fs[0].Line)
	assert.Equal(t, findings.SeverityHigh, fs[0].Severity)
}

func TestInjectionAnalyzer(t *testing.T) {
	src := []byte(`q := "SELECT * FROM users WHERE name = '" + name + "'"`)
	fs := NewInjectionAnalyzer().Analyze("repo.go", src, 10)

	require.Len(t, fs, 1)
	assert.Equal(t, "sql-string-concat", fs[0].Rule)
	assert.Equal(t, 10, fs[0].Line)
}

func TestDependencyAnalyzerOnlyFiresOnManifests(t *testing.T) {
	src := []byte("lodash = \"*\"\n")
	assert.Empty(t, NewDependencyAnalyzer().Analyze("main.go", src, 1))
	assert.NotEmpty(t, NewDependencyAnalyzer().Analyze("vendor/package.json", src, 1))
}

func TestChunkBaseLineOffsets(t *testing.T) {
	src := []byte("// TODO: remove\n")
	fs := NewNonProductionAnalyzer().Analyze("svc.go", src, 4242)

	require.Len(t, fs, 1)
	assert.Equal(t, 4242, fs[0].Line)
}

func TestRegistryRunsAllAnalyzers(t *testing.T) {
	src := []byte("password := \"hunter2hunter2\" // TODO: load from env, md5 for now\n")
	fs := NewRegistry().AnalyzeFile("auth.go", src)

	rules := map[string]bool{}
	for _, f := range fs {
		rules[f.Rule] = true
	}
	assert.True(t, rules["hardcoded-secret"])
	assert.True(t, rules["todo-marker"])
	assert.True(t, rules["weak-hash"])
}
