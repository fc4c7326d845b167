package filter

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// pattern is a parsed glob, held as path segments so matching walks
// components instead of compiling a regexp: each segment is a
// path.Match glob, and a bare "**" segment spans any number of
// components.
//
// Rules follow rsync's: a trailing "/" restricts the pattern to
// directories, a pattern containing "/" is anchored at the copy root,
// and an unanchored pattern matches against the basename at any depth.
type pattern struct {
	segments []string
	anchored bool
	dirOnly  bool
	spec     string
}

func parsePattern(spec string) (*pattern, error) {
	p := &pattern{spec: spec}

	s := spec
	if strings.HasSuffix(s, "/") {
		p.dirOnly = true
		s = strings.TrimSuffix(s, "/")
	}
	if strings.HasPrefix(s, "/") {
		s = strings.TrimPrefix(s, "/")
		p.anchored = true
	}
	if strings.Contains(s, "/") {
		p.anchored = true
	}
	if s == "" {
		return nil, fmt.Errorf("filter: empty pattern %q", spec)
	}

	p.segments = strings.Split(s, "/")
	for _, seg := range p.segments {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return nil, fmt.Errorf("filter: bad pattern %q: %w", spec, err)
		}
	}
	return p, nil
}

// match tests relPath (in the platform's separator) against the
// pattern.
func (p *pattern) match(relPath string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if !p.anchored {
		ok, _ := path.Match(p.segments[0], parts[len(parts)-1])
		return ok
	}
	return matchSegments(p.segments, parts)
}

// matchSegments matches a segment pattern against path components,
// recursing only at "**" wildcards.
func matchSegments(pat, parts []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(pat[1:], parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], parts[0]); !ok {
			return false
		}
		pat, parts = pat[1:], parts[1:]
	}
	return len(parts) == 0
}
