// Package filter implements the copy job's file-inclusion predicate:
// an ordered chain of include/exclude glob rules plus size bounds,
// evaluated first-match-wins the way rsync filter lists are.
package filter

// Chain is the ordered rule list. The zero rule set includes
// everything; the first rule whose pattern matches a path decides it.
type Chain struct {
	rules   []rule
	minSize int64
	maxSize int64
}

type rule struct {
	pat     *pattern
	include bool
}

// NewChain returns an empty chain that includes everything.
func NewChain() *Chain {
	return &Chain{}
}

// AddInclude appends an include rule for spec.
func (c *Chain) AddInclude(spec string) error {
	return c.add(spec, true)
}

// AddExclude appends an exclude rule for spec.
func (c *Chain) AddExclude(spec string) error {
	return c.add(spec, false)
}

func (c *Chain) add(spec string, include bool) error {
	p, err := parsePattern(spec)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{pat: p, include: include})
	return nil
}

// SetMinSize drops regular files smaller than n bytes.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize drops regular files larger than n bytes.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// Empty reports whether the chain constrains nothing.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Match reports whether relPath should be included. relPath is
// relative to the copy root; size is ignored for directories. A
// directory verdict of false means the walker may prune the whole
// subtree.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	for _, r := range c.rules {
		if r.pat.match(relPath, isDir) {
			return r.include
		}
	}
	return true
}
