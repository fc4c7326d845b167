package filter

import (
	"fmt"
	"strconv"
	"strings"
)

var sizeSuffixes = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a human-readable size into bytes: a number with an
// optional K/M/G/T multiplier (powers of 1024) and an optional
// trailing B, case-insensitive — "100", "64K", "1.5M", "2GB" all work.
func ParseSize(s string) (int64, error) {
	num := strings.ToUpper(strings.TrimSpace(s))
	if num == "" {
		return 0, fmt.Errorf("filter: empty size")
	}

	mult := int64(1)
	num = strings.TrimSuffix(num, "B")
	if num != "" {
		if m, ok := sizeSuffixes[num[len(num)-1]]; ok {
			mult = m
			num = num[:len(num)-1]
		}
	}
	if num == "" {
		return 0, fmt.Errorf("filter: invalid size %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		return n * mult, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("filter: invalid size %q", s)
	}
	return int64(f * float64(mult)), nil
}
