package ml

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// ErrSyntaxUnavailable signals that syntax context could not be
// derived; callers fall back to the 8-dim base vector.
var ErrSyntaxUnavailable = errors.New("syntax context unavailable")

var (
	branchRe  = regexp.MustCompile(`\b(if|switch|case|match|when)\b`)
	loopRe    = regexp.MustCompile(`\b(for|while|loop|range)\b`)
	funcRe    = regexp.MustCompile(`\b(func|fn|def|function)\b`)
	callRe    = regexp.MustCompile(`\w+\s*\(`)
	importRe  = regexp.MustCompile(`^\s*(import|use|require|#include|from\s+\S+\s+import)\b`)
	stringRe  = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	numberRe  = regexp.MustCompile(`\b\d[\d_.]*\b`)
	commentRe = regexp.MustCompile(`^\s*(//|#|/\*|\*|--)`)
)

// EnhancedExtractor layers 16 syntax-context features on top of the base
// vector. The base 8 stay a strict prefix so a model trained in one mode
// stays portable to the other.
type EnhancedExtractor struct {
	base *FeatureExtractor
}

func NewEnhancedExtractor() *EnhancedExtractor {
	return &EnhancedExtractor{base: NewFeatureExtractor()}
}

// Base exposes the underlying 8-dim extractor.
func (e *EnhancedExtractor) Base() *FeatureExtractor {
	return e.base
}

// Extract returns the 24-dim vector for a finding given its file
// content. When content is unusable it returns the 8-dim base vector
// and ErrSyntaxUnavailable so callers can record the fallback.
func (e *EnhancedExtractor) Extract(f *findings.Finding, content []byte) ([]float64, error) {
	base := e.base.Extract(f)
	if len(content) == 0 || !utf8.Valid(content) {
		return base, ErrSyntaxUnavailable
	}
	syn := syntaxFeatures(string(content))
	return append(base, syn...), nil
}

// syntaxFeatures computes the 16 context features from raw source text.
// This is a lexical approximation of tree-derived metrics; it is
// deterministic for identical content.
func syntaxFeatures(src string) []float64 {
	lines := strings.Split(src, "\n")
	total := float64(len(lines))

	var (
		maxDepth, depth    int
		branches, loops    int
		funcs, calls       int
		imports, comments  int
		blanks, longLines  int
		strLits, numLits   int
		lineLenSum         int
		identChars         strings.Builder
	)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lineLenSum += len(line)
		if trimmed == "" {
			blanks++
			continue
		}
		if len(line) > 120 {
			longLines++
		}
		if commentRe.MatchString(line) {
			comments++
			continue
		}
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth > maxDepth {
			maxDepth = depth
		}
		branches += len(branchRe.FindAllString(line, -1))
		loops += len(loopRe.FindAllString(line, -1))
		funcs += len(funcRe.FindAllString(line, -1))
		calls += len(callRe.FindAllString(line, -1))
		strLits += len(stringRe.FindAllString(line, -1))
		numLits += len(numberRe.FindAllString(line, -1))
		if importRe.MatchString(line) {
			imports++
		}
		if identChars.Len() < 4096 {
			identChars.WriteString(trimmed)
		}
	}

	codeLines := total - float64(blanks) - float64(comments)
	if codeLines < 1 {
		codeLines = 1
	}
	avgFuncLen := codeLines
	if funcs > 0 {
		avgFuncLen = codeLines / float64(funcs)
	}

	return []float64{
		clamp(float64(maxDepth)/10.0, 0, 1),            // nesting depth
		clamp(float64(branches)/codeLines, 0, 1),       // branch density
		clamp(float64(loops)/codeLines, 0, 1),          // loop density
		clamp(float64(funcs)/50.0, 0, 1),               // function count
		clamp(avgFuncLen/200.0, 0, 1),                  // avg function length
		clamp(float64(comments)/total, 0, 1),           // comment ratio
		clamp(float64(blanks)/total, 0, 1),             // blank ratio
		normalizedEntropy(identChars.String()),         // identifier entropy
		clamp(float64(strLits)/codeLines, 0, 1),        // string literal density
		clamp(float64(numLits)/codeLines, 0, 1),        // numeric literal density
		clamp(float64(calls)/codeLines, 0, 1),          // call density
		clamp(float64(imports)/30.0, 0, 1),             // import count
		clamp(float64(lineLenSum)/total/120.0, 0, 1),   // avg line length
		clamp(float64(longLines)/total, 0, 1),          // long line ratio
		boolFeature(strings.Contains(src, "test") || strings.Contains(src, "Test")), // test indicator
		clamp(total/5000.0, 0, 1),                      // file size
	}
}

// PadToEnhanced zero-extends a base vector to the enhanced width. Used
// when a 24-dim model must score findings whose syntax context failed.
func PadToEnhanced(v []float64) []float64 {
	if len(v) >= EnhancedDim {
		return v
	}
	out := make([]float64, EnhancedDim)
	copy(out, v)
	return out
}
