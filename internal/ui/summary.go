// Package ui renders a one-shot summary of a finished copy job: file
// tallies, byte counts, and the per-operation-class I/O timing table
// collected in an obs.Aggregate.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/eacopy/eacopy/internal/obs"
)

// Catppuccin Mocha palette.
var (
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorTeal   = lipgloss.Color("#94e2d5")
	ColorMuted  = lipgloss.Color("#5a6278")
	ColorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	styleLabel  = lipgloss.NewStyle().Foreground(ColorMuted)
	styleValue  = lipgloss.NewStyle().Foreground(ColorBright)
	styleGood   = lipgloss.NewStyle().Foreground(ColorGreen)
	styleWarn   = lipgloss.NewStyle().Foreground(ColorYellow)
	styleBad    = lipgloss.NewStyle().Foreground(ColorRed)
	styleClass  = lipgloss.NewStyle().Foreground(ColorTeal)
)

// Summary renders agg as a styled multi-line report. errs is the job's
// recent-errors list (last-N ring, oldest first); duration is the
// job's wall-clock time.
func Summary(agg *obs.Aggregate, errs []string, duration time.Duration) string {
	var b strings.Builder

	b.WriteString(styleHeader.Render("copy complete"))
	b.WriteString("  ")
	b.WriteString(styleLabel.Render(FormatDuration(duration)))
	b.WriteByte('\n')

	row := func(label string, val string, style lipgloss.Style) {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			styleLabel.Render(fmt.Sprintf("%-12s", label)),
			style.Render(val)))
	}

	row("copied", FormatCount(agg.FilesCopied), styleGood)
	if agg.FilesSkipped > 0 {
		row("skipped", FormatCount(agg.FilesSkipped), styleValue)
	}
	if agg.FilesHardlinked > 0 {
		row("hardlinked", FormatCount(agg.FilesHardlinked), styleGood)
	}
	if agg.FilesDelta > 0 {
		row("delta", FormatCount(agg.FilesDelta), styleGood)
	}
	if agg.FilesCompressed > 0 {
		row("compressed", FormatCount(agg.FilesCompressed), styleValue)
	}
	if agg.FilesFailed > 0 {
		row("failed", FormatCount(agg.FilesFailed), styleBad)
	}
	if agg.HardlinkFellBack > 0 {
		row("link fallback", FormatCount(agg.HardlinkFellBack), styleWarn)
	}
	row("bytes", FormatBytes(agg.BytesWritten), styleValue)
	if agg.BytesWire > 0 && agg.BytesWire != agg.BytesWritten {
		row("wire bytes", FormatBytes(agg.BytesWire), styleValue)
	}
	if duration > 0 && agg.BytesWritten > 0 {
		row("rate", FormatRate(float64(agg.BytesWritten)/duration.Seconds()), styleValue)
	}

	if classes := agg.Snapshot(); len(classes) > 0 {
		b.WriteString(styleLabel.Render("  io classes"))
		b.WriteByte('\n')
		for _, c := range classes {
			b.WriteString(fmt.Sprintf("    %s %s × %s\n",
				styleClass.Render(fmt.Sprintf("%-12s", c.Class.String())),
				styleValue.Render(c.Duration.Round(time.Microsecond).String()),
				styleValue.Render(FormatCount(c.Count))))
		}
	}

	if len(errs) > 0 {
		b.WriteString(styleBad.Render(fmt.Sprintf("  last %d errors", len(errs))))
		b.WriteByte('\n')
		for _, e := range errs {
			b.WriteString("    ")
			b.WriteString(styleLabel.Render(e))
			b.WriteByte('\n')
		}
	}

	return b.String()
}
