// Package exclude decides which paths under a deploy root stay out of the manifest.
package exclude

import (
	"fmt"
	"path"
	"strings"
)

type ruleKind int

const (
	ruleDir   ruleKind = iota // "build/" matches the directory and everything beneath it
	ruleGlob                  // "*.map" matches the full path or the base name
	ruleExact                 // "CNAME" matches the path, a path prefix, or a file's base name
)

type rule struct {
	kind    ruleKind
	pattern string
}

// Matcher is immutable and safe for concurrent use. A nil Matcher excludes nothing.
type Matcher struct {
	rules []rule
}

// CommonPatterns are editor, VCS and secret files that rarely belong in a
// published site. They apply only when requested.
func CommonPatterns() []string {
	return []string{
		".git/",
		".hg/",
		".svn/",
		".DS_Store",
		"Thumbs.db",
		"._*",
		"*.swp",
		".env",
		".env.*",
		"*.pem",
		"*.key",
	}
}

// New compiles patterns, optionally prefixed by CommonPatterns. Empty
// patterns are ignored; malformed globs are rejected.
func New(patterns []string, withCommon bool) (*Matcher, error) {
	var all []string
	if withCommon {
		all = append(all, CommonPatterns()...)
	}
	all = append(all, patterns...)

	m := &Matcher{}
	for _, p := range all {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		if p == "" {
			continue
		}
		switch {
		case strings.HasSuffix(p, "/"):
			m.rules = append(m.rules, rule{kind: ruleDir, pattern: strings.TrimSuffix(p, "/")})
		case strings.ContainsAny(p, "*?["):
			if _, err := path.Match(p, ""); err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
			}
			m.rules = append(m.rules, rule{kind: ruleGlob, pattern: p})
		default:
			m.rules = append(m.rules, rule{kind: ruleExact, pattern: p})
		}
	}
	return m, nil
}

// IsExcluded reports whether relPath (slash-separated, relative to the root)
// is excluded. isDir lets directory rules prune a whole subtree.
func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	base := path.Base(relPath)

	for _, r := range m.rules {
		switch r.kind {
		case ruleDir:
			if underDir(relPath, r.pattern) {
				return true
			}
			if isDir && !strings.Contains(r.pattern, "/") && base == r.pattern {
				return true
			}
		case ruleGlob:
			if ok, _ := path.Match(r.pattern, relPath); ok {
				return true
			}
			if ok, _ := path.Match(r.pattern, base); ok {
				return true
			}
		case ruleExact:
			if underDir(relPath, r.pattern) {
				return true
			}
			if !isDir && base == r.pattern {
				return true
			}
		}
	}
	return false
}

func underDir(relPath, dir string) bool {
	return relPath == dir || strings.HasPrefix(relPath, dir+"/")
}
