package analyzers

import (
	"regexp"
	"strings"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// NonProductionAnalyzer flags markers that should not ship: debug output,
// TODO/FIXME hygiene, panics left in library code.
type NonProductionAnalyzer struct {
	todo  *regexp.Regexp
	debug *regexp.Regexp
}

func NewNonProductionAnalyzer() *NonProductionAnalyzer {
	return &NonProductionAnalyzer{
		todo:  regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX)\b[:\s]`),
		debug: regexp.MustCompile(`\b(console\.log|fmt\.Println|print\(|println!|dbg!|debugger)\b`),
	}
}

func (a *NonProductionAnalyzer) Name() string { return "non_production" }

func (a *NonProductionAnalyzer) Analyze(path string, content []byte, baseLine int) []findings.Finding {
	var out []findings.Finding
	isTest := strings.Contains(path, "_test.") || strings.Contains(path, "/test")
	eachLine(content, baseLine, func(line string, n int) {
		if a.todo.MatchString(line) {
			out = append(out, findings.New(a.Name(), "todo-marker", findings.SeverityInfo, path, n,
				"unresolved TODO/FIXME marker"))
		}
		if !isTest && a.debug.MatchString(line) {
			out = append(out, findings.New(a.Name(), "debug-statement", findings.SeverityLow, path, n,
				"debug output statement in non-test code").
				WithSuggestion("Use the project logger instead"))
		}
	})
	return out
}

// PerformanceAnalyzer applies cheap line-level heuristics for hot-path
// smells. Deep analysis belongs to the enhanced feature extractor, not
// here.
type PerformanceAnalyzer struct {
	regexInLoop *regexp.Regexp
	longLine    int
}

func NewPerformanceAnalyzer() *PerformanceAnalyzer {
	return &PerformanceAnalyzer{
		regexInLoop: regexp.MustCompile(`for\b.*\b(regexp\.MustCompile|regexp\.Compile|re\.compile|Pattern\.compile)`),
		longLine:    500,
	}
}

func (a *PerformanceAnalyzer) Name() string { return "performance" }

func (a *PerformanceAnalyzer) Analyze(path string, content []byte, baseLine int) []findings.Finding {
	var out []findings.Finding
	eachLine(content, baseLine, func(line string, n int) {
		if a.regexInLoop.MatchString(line) {
			out = append(out, findings.New(a.Name(), "regex-compile-in-loop", findings.SeverityMedium, path, n,
				"regular expression compiled inside a loop").
				WithSuggestion("Hoist the compilation out of the loop"))
		}
		if len(line) > a.longLine {
			out = append(out, findings.New(a.Name(), "oversized-line", findings.SeverityInfo, path, n,
				"line exceeds 500 characters, likely generated or minified"))
		}
	})
	return out
}
