package ml

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// BasicDim is the size of the base feature vector. EnhancedDim prepends
// the same 8 features, so a basic vector is always a strict prefix of an
// enhanced one.
const (
	BasicDim    = 8
	SyntaxDim   = 16
	EnhancedDim = BasicDim + SyntaxDim
)

// FeatureExtractor converts a finding into the 8-dim base vector.
// Extraction is deterministic: identical findings always yield
// identical vectors, which cache stability depends on.
type FeatureExtractor struct {
	fileTypeScores     map[string]float64
	analyzerConfidence map[string]float64
}

func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{
		// Higher scores = more likely to carry real issues.
		fileTypeScores: map[string]float64{
			"go":   0.8,
			"rs":   0.9,
			"c":    0.9,
			"cpp":  0.9,
			"java": 0.8,
			"py":   0.8,
			"ts":   0.8,
			"js":   0.7,
			"rb":   0.7,
			"php":  0.7,
			"json": 0.6,
			"yaml": 0.6,
			"yml":  0.6,
			"toml": 0.6,
			"md":   0.3,
			"txt":  0.2,
		},
		analyzerConfidence: map[string]float64{
			"secrets":        0.95,
			"injection":      0.9,
			"crypto":         0.85,
			"dependency":     0.8,
			"performance":    0.7,
			"non_production": 0.75,
		},
	}
}

// Extract returns the 8-dim base feature vector for a finding.
func (e *FeatureExtractor) Extract(f *findings.Finding) []float64 {
	v := make([]float64, 0, BasicDim)
	v = append(v, severityScore(f.Severity))
	v = append(v, e.fileTypeScore(f.File))
	v = append(v, e.analyzerScore(f.Analyzer))
	v = append(v, clamp(float64(len(f.Message))/200.0, 0, 1))
	v = append(v, linePosition(f.Line))
	v = append(v, boolFeature(f.Description != ""))
	v = append(v, boolFeature(f.Suggestion != ""))
	v = append(v, ruleSpecificity(f.Rule))
	return v
}

func severityScore(s findings.Severity) float64 {
	switch s {
	case findings.SeverityCritical:
		return 1.0
	case findings.SeverityHigh:
		return 0.8
	case findings.SeverityMedium:
		return 0.6
	case findings.SeverityLow:
		return 0.4
	default:
		return 0.2
	}
}

func (e *FeatureExtractor) fileTypeScore(path string) float64 {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return 0.3
	}
	if s, ok := e.fileTypeScores[strings.ToLower(ext)]; ok {
		return s
	}
	return 0.5
}

func (e *FeatureExtractor) analyzerScore(name string) float64 {
	if s, ok := e.analyzerConfidence[name]; ok {
		return s
	}
	return 0.5
}

// linePosition favors early lines; imports and declarations live there.
func linePosition(line int) float64 {
	return clamp(1.0-(float64(line)-1.0)/1000.0, 0.1, 1.0)
}

func ruleSpecificity(rule string) float64 {
	lengthScore := clamp(float64(len(rule))/50.0, 0, 1)
	specificity := 0.5
	if strings.ContainsAny(rule, "_-") {
		specificity = 0.8
	}
	return (lengthScore + specificity) / 2.0
}

func boolFeature(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// entropy of a string in bits per character, normalized against the
// ~6.6 bit ceiling of printable ASCII.
func normalizedEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := map[rune]int{}
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return clamp(h/6.6, 0, 1)
}
