package analyzers

import (
	"regexp"
	"strings"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// SecretsAnalyzer flags values that look like embedded credentials.
type SecretsAnalyzer struct {
	patterns []secretPattern
}

type secretPattern struct {
	rule     string
	severity findings.Severity
	re       *regexp.Regexp
	message  string
}

func NewSecretsAnalyzer() *SecretsAnalyzer {
	return &SecretsAnalyzer{
		patterns: []secretPattern{
			{
				rule:     "aws-access-key",
				severity: findings.SeverityCritical,
				re:       regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
				message:  "AWS access key ID embedded in source",
			},
			{
				rule:     "hardcoded-secret",
				severity: findings.SeverityHigh,
				re:       regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|token)\s*[:=]\s*["'][^"']{8,}["']`),
				message:  "possible hardcoded credential",
			},
			{
				rule:     "private-key",
				severity: findings.SeverityCritical,
				re:       regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
				message:  "private key material embedded in source",
			},
		},
	}
}

func (a *SecretsAnalyzer) Name() string { return "secrets" }

func (a *SecretsAnalyzer) Analyze(path string, content []byte, baseLine int) []findings.Finding {
	var out []findings.Finding
	eachLine(content, baseLine, func(line string, n int) {
		for _, p := range a.patterns {
			if p.re.MatchString(line) {
				f := findings.New(a.Name(), p.rule, p.severity, path, n, p.message).
					WithSuggestion("Move the secret to environment or a secret manager")
				out = append(out, f)
			}
		}
	})
	return out
}

// InjectionAnalyzer flags string-built SQL, a common injection vector.
type InjectionAnalyzer struct {
	concat *regexp.Regexp
	format *regexp.Regexp
}

func NewInjectionAnalyzer() *InjectionAnalyzer {
	return &InjectionAnalyzer{
		concat: regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\s+.*["']\s*\+`),
		format: regexp.MustCompile(`(?i)(Sprintf|format!?|String\.format)\s*\(\s*["'][^"']*(SELECT|INSERT|UPDATE|DELETE)\b`),
	}
}

func (a *InjectionAnalyzer) Name() string { return "injection" }

func (a *InjectionAnalyzer) Analyze(path string, content []byte, baseLine int) []findings.Finding {
	var out []findings.Finding
	eachLine(content, baseLine, func(line string, n int) {
		if a.concat.MatchString(line) {
			out = append(out, findings.New(a.Name(), "sql-string-concat", findings.SeverityHigh, path, n,
				"SQL statement built by string concatenation").
				WithSuggestion("Use parameterized queries"))
		}
		if a.format.MatchString(line) {
			out = append(out, findings.New(a.Name(), "sql-string-format", findings.SeverityHigh, path, n,
				"SQL statement built with a format call").
				WithSuggestion("Use parameterized queries"))
		}
	})
	return out
}

// CryptoAnalyzer flags digests and ciphers that no longer belong in new code.
type CryptoAnalyzer struct {
	weak *regexp.Regexp
}

func NewCryptoAnalyzer() *CryptoAnalyzer {
	return &CryptoAnalyzer{
		weak: regexp.MustCompile(`(?i)\b(md5|sha1|des|rc4)\b`),
	}
}

func (a *CryptoAnalyzer) Name() string { return "crypto" }

func (a *CryptoAnalyzer) Analyze(path string, content []byte, baseLine int) []findings.Finding {
	// Comment-only mentions of old algorithms are noise the classifier
	// learns to suppress; the analyzer stays simple on purpose.
	var out []findings.Finding
	eachLine(content, baseLine, func(line string, n int) {
		if m := a.weak.FindString(line); m != "" {
			out = append(out, findings.New(a.Name(), "weak-hash", findings.SeverityMedium, path, n,
				"use of weak algorithm "+strings.ToUpper(m)).
				WithSuggestion("Prefer SHA-256 or stronger"))
		}
	})
	return out
}
