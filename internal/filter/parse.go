package filter

import (
	"fmt"
	"os"
	"strings"
)

// LoadFile appends rules read from an rsync-style filter file:
//
//	+ pattern   include
//	- pattern   exclude
//	pattern     exclude (the bare-line default)
//	!           clear every rule added so far
//	# comment   ignored, as are blank lines
func (c *Chain) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("filter: read rules: %w", err)
	}

	for i, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "!" {
			c.rules = nil
			continue
		}

		var addErr error
		switch {
		case strings.HasPrefix(line, "+ "):
			addErr = c.AddInclude(strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "- "):
			addErr = c.AddExclude(strings.TrimSpace(line[2:]))
		default:
			addErr = c.AddExclude(line)
		}
		if addErr != nil {
			return fmt.Errorf("filter: %s:%d: %w", path, i+1, addErr)
		}
	}
	return nil
}
