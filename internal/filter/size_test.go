package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"100", 100},
		{"100B", 100},
		{"64K", 64 << 10},
		{"64k", 64 << 10},
		{"64KB", 64 << 10},
		{"2M", 2 << 20},
		{"2MB", 2 << 20},
		{"1.5M", 1<<20 + 512<<10},
		{"3G", 3 << 30},
		{"1T", 1 << 40},
		{" 10M ", 10 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "  ", "K", "KB", "B", "12X", "1.2.3", "M10"} {
		_, err := ParseSize(input)
		assert.Error(t, err, "input %q", input)
	}
}
