package analyzers

import (
	"path/filepath"
	"regexp"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// DependencyAnalyzer inspects manifest files for risky dependency
// declarations. It only fires on known manifest names.
type DependencyAnalyzer struct {
	wildcard *regexp.Regexp
	insecure *regexp.Regexp
	gitDep   *regexp.Regexp
}

var manifestNames = map[string]bool{
	"go.mod":           true,
	"package.json":     true,
	"requirements.txt": true,
	"Cargo.toml":       true,
	"pom.xml":          true,
	"Gemfile":          true,
}

func NewDependencyAnalyzer() *DependencyAnalyzer {
	return &DependencyAnalyzer{
		wildcard: regexp.MustCompile(`["']?\*["']?\s*$|[:=]\s*["']\s*\*\s*["']`),
		insecure: regexp.MustCompile(`http://[^\s"']+`),
		gitDep:   regexp.MustCompile(`(?i)(git\+|git://|github\.com/[^\s"']+\.git)`),
	}
}

func (a *DependencyAnalyzer) Name() string { return "dependency" }

func (a *DependencyAnalyzer) Analyze(path string, content []byte, baseLine int) []findings.Finding {
	if !manifestNames[filepath.Base(path)] {
		return nil
	}
	var out []findings.Finding
	eachLine(content, baseLine, func(line string, n int) {
		if a.wildcard.MatchString(line) {
			out = append(out, findings.New(a.Name(), "wildcard-version", findings.SeverityMedium, path, n,
				"dependency pinned to a wildcard version").
				WithSuggestion("Pin an explicit version range"))
		}
		if a.insecure.MatchString(line) {
			out = append(out, findings.New(a.Name(), "insecure-registry", findings.SeverityHigh, path, n,
				"dependency fetched over plain HTTP"))
		}
		if a.gitDep.MatchString(line) {
			out = append(out, findings.New(a.Name(), "git-dependency", findings.SeverityLow, path, n,
				"dependency resolved directly from a git repository"))
		}
	})
	return out
}
