package findings

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// Severity enum, ordered from most to least severe.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank maps severity to a sortable order, lower is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	default:
		return 5
	}
}

// Label assigned by the classifier. Unclassified findings pass through
// when no model is loaded (fail-open).
type Label string

const (
	LabelUnclassified  Label = ""
	LabelTruePositive  Label = "true_positive"
	LabelFalsePositive Label = "false_positive"
)

// Finding is a single reported issue. Immutable once persisted; the
// classifier sets RawScore and Label before persistence.
type Finding struct {
	ID          string   `json:"id"`
	Analyzer    string   `json:"analyzer"`
	Rule        string   `json:"rule"`
	Severity    Severity `json:"severity"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	EndLine     int      `json:"end_line,omitempty"`
	Message     string   `json:"message"`
	Description string   `json:"description,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
	RawScore    float64  `json:"raw_score,omitempty"`
	Label       Label    `json:"label,omitempty"`
}

// New builds a Finding with a content-stable ID so the same issue on
// unchanged input hashes identically across runs.
func New(analyzer, rule string, sev Severity, file string, line int, message string) Finding {
	return Finding{
		ID:       StableID(analyzer, rule, file, line, message),
		Analyzer: analyzer,
		Rule:     rule,
		Severity: sev,
		File:     file,
		Line:     line,
		Message:  message,
	}
}

// StableID derives the finding ID from location, rule and message.
func StableID(analyzer, rule, file string, line int, message string) string {
	h := sha256.New()
	h.Write([]byte(analyzer))
	h.Write([]byte(rule))
	h.Write([]byte(file))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(line))
	h.Write(buf[:])
	h.Write([]byte(message))
	return fmt.Sprintf("%x", h.Sum(nil))[:32]
}

// WithDescription returns a copy with the description set.
func (f Finding) WithDescription(d string) Finding {
	f.Description = d
	return f
}

// WithSuggestion returns a copy with the suggestion set.
func (f Finding) WithSuggestion(s string) Finding {
	f.Suggestion = s
	return f
}

// SeverityCounts value object.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Add counts one finding.
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	case SeverityInfo:
		c.Info++
	}
	c.Total++
}

// Count tallies a slice of findings.
func Count(fs []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range fs {
		c.Add(f.Severity)
	}
	return c
}

// Sort orders findings deterministically: severity, file, line, rule.
func Sort(fs []Finding) {
	sort.Slice(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Rule < b.Rule
	})
}
