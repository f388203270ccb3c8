package analyzers

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// catalogVersion bumps whenever rule behavior changes, so cached results
// produced by an older rule set are invalidated.
const catalogVersion = "2"

// Analyzer inspects a chunk of file content. baseLine is the 1-based
// line number of the chunk's first line, so streamed chunks report real
// locations.
type Analyzer interface {
	Name() string
	Analyze(path string, content []byte, baseLine int) []findings.Finding
}

// Registry holds the closed analyzer set. Analyzers are registered
// statically; there is no plugin loading.
type Registry struct {
	analyzers []Analyzer
	version   string
}

// NewRegistry builds the default analyzer set.
func NewRegistry() *Registry {
	r := &Registry{
		analyzers: []Analyzer{
			NewSecretsAnalyzer(),
			NewInjectionAnalyzer(),
			NewCryptoAnalyzer(),
			NewNonProductionAnalyzer(),
			NewPerformanceAnalyzer(),
			NewDependencyAnalyzer(),
		},
	}
	r.version = r.computeVersion()
	return r
}

func (r *Registry) computeVersion() string {
	names := make([]string, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		names = append(names, a.Name())
	}
	h := sha256.Sum256([]byte(catalogVersion + ":" + strings.Join(names, ",")))
	return fmt.Sprintf("v%s-%x", catalogVersion, h[:4])
}

// Version identifies the analyzer set for cache fingerprinting.
func (r *Registry) Version() string {
	return r.version
}

// Analyzers returns the registered set.
func (r *Registry) Analyzers() []Analyzer {
	return r.analyzers
}

// AnalyzeChunk runs every analyzer over a content chunk.
func (r *Registry) AnalyzeChunk(path string, content []byte, baseLine int) []findings.Finding {
	var out []findings.Finding
	for _, a := range r.analyzers {
		out = append(out, a.Analyze(path, content, baseLine)...)
	}
	return out
}

// AnalyzeFile runs every analyzer over a whole file.
func (r *Registry) AnalyzeFile(path string, content []byte) []findings.Finding {
	return r.AnalyzeChunk(path, content, 1)
}

// eachLine calls fn for every line of content with its line number.
func eachLine(content []byte, baseLine int, fn func(line string, n int)) {
	n := baseLine
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			fn(string(content[start:i]), n)
			start = i + 1
			n++
		}
	}
	if start < len(content) {
		fn(string(content[start:]), n)
	}
}
