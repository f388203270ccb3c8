package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codewarden/codewarden/internal/logging"
)

// Candidate is a file selected for analysis.
type Candidate struct {
	Path string
	Size int64
}

// Skip records a file the walker saw but will not analyze.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Walker discovers candidate files under one or more roots. Patterns
// are shell globs matched against the base name and the slash path.
// An empty include list means everything.
type Walker struct {
	include     []string
	exclude     []string
	maxFileSize int64
}

// NewWalker builds a walker. maxFileSize <= 0 disables the size skip.
func NewWalker(include, exclude []string, maxFileSize int64) *Walker {
	return &Walker{include: include, exclude: exclude, maxFileSize: maxFileSize}
}

// Walk traverses the roots and returns candidates plus recorded skips.
// A root that matches nothing is a success with an empty result. A
// missing root is an error.
func (w *Walker) Walk(roots []string) ([]Candidate, []Skip, error) {
	var candidates []Candidate
	var skips []Skip
	seen := map[string]bool{}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, nil, err
		}
		if !info.IsDir() {
			if c, s, ok := w.consider(root, info.Size()); ok {
				if !seen[c.Path] {
					seen[c.Path] = true
					candidates = append(candidates, c)
				}
			} else if s != nil {
				skips = append(skips, *s)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// A subtree that vanished mid-walk is not fatal.
				logging.L().Warnw("walk: subtree error", "path", path, "err", err)
				return fs.SkipDir
			}
			if d.IsDir() {
				if w.excluded(path, d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				skips = append(skips, Skip{Path: path, Reason: "stat failed: " + err.Error()})
				return nil
			}
			if c, s, ok := w.consider(path, fi.Size()); ok {
				if !seen[c.Path] {
					seen[c.Path] = true
					candidates = append(candidates, c)
				}
			} else if s != nil {
				skips = append(skips, *s)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return candidates, skips, nil
}

// consider decides a single file. The bool is true for a candidate;
// a nil Skip with false means the file was silently filtered out.
func (w *Walker) consider(path string, size int64) (Candidate, *Skip, bool) {
	if w.excluded(path, filepath.Base(path)) {
		return Candidate{}, nil, false
	}
	if !w.included(path) {
		return Candidate{}, nil, false
	}
	if w.maxFileSize > 0 && size > w.maxFileSize {
		return Candidate{}, &Skip{Path: path, Reason: "exceeds max file size"}, false
	}
	return Candidate{Path: path, Size: size}, nil, true
}

func (w *Walker) included(path string) bool {
	if len(w.include) == 0 {
		return true
	}
	return matchAny(w.include, path)
}

func (w *Walker) excluded(path, base string) bool {
	for _, pat := range w.exclude {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if matchPath(pat, path) {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if matchPath(pat, path) {
			return true
		}
	}
	return false
}

// matchPath matches a glob against the slash form of the full path and
// against every path suffix, so "vendor/*" excludes nested vendor dirs.
func matchPath(pattern, path string) bool {
	p := filepath.ToSlash(path)
	if ok, _ := filepath.Match(pattern, p); ok {
		return true
	}
	parts := strings.Split(p, "/")
	for i := range parts {
		if ok, _ := filepath.Match(pattern, strings.Join(parts[i:], "/")); ok {
			return true
		}
	}
	return false
}
