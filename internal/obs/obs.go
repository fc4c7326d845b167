// Package obs provides the observability primitives the copy engine and
// server share: a Logger wrapping log/slog with an explicit context
// stack instead of a package-global logger, a bounded error cache for
// user-facing summaries, and the per-operation-class IO Statistics
// Aggregate every worker merges into a job total on join.
//
// Everything here is threaded explicitly through constructors — no
// package-level logger or counters.
package obs

import (
	"log/slog"
	"os"
)

// Logger wraps log/slog.Logger with a LogContext stack.
type Logger struct {
	base *slog.Logger
}

// New returns a Logger writing structured text to w (os.Stderr if nil)
// at the given level.
func New(w *os.File, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{base: slog.New(h)}
}

// Scope returns a LogContext rooted at this Logger, tagged with attrs.
// Calling code pushes further attrs by calling Push on the returned
// context; nothing is shared with other goroutines.
func (l *Logger) Scope(attrs ...any) *LogContext {
	return &LogContext{logger: l.base.With(attrs...)}
}

// LogContext is a borrowed, per-goroutine stack of slog attributes. Push
// returns a child context carrying additional attrs; the parent is left
// untouched so "pop" is simply discarding the child and resuming use of
// the parent value already held on the stack (Go's lexical scoping does
// the popping for us — no explicit stack data structure is needed).
type LogContext struct {
	logger *slog.Logger
	muted  bool
}

// Push returns a child LogContext with additional attributes merged in.
func (c *LogContext) Push(attrs ...any) *LogContext {
	return &LogContext{logger: c.logger.With(attrs...), muted: c.muted}
}

// Muted returns a child LogContext that discards all records until the
// caller is done with a best-effort operation — e.g. the hardlink probe
// the copy engine attempts before falling back to a raw copy (spec
// §4.7): a CrossVolumeLink failure there is expected, not worth a log
// line at normal verbosity.
func (c *LogContext) Muted() *LogContext {
	return &LogContext{logger: c.logger, muted: true}
}

func (c *LogContext) Debug(msg string, attrs ...any) {
	if !c.muted {
		c.logger.Debug(msg, attrs...)
	}
}

func (c *LogContext) Info(msg string, attrs ...any) {
	if !c.muted {
		c.logger.Info(msg, attrs...)
	}
}

func (c *LogContext) Warn(msg string, attrs ...any) {
	if !c.muted {
		c.logger.Warn(msg, attrs...)
	}
}

// Error always logs, even when muted: a muted scope suppresses noise
// from expected failures during a probe, but an actual Error call means
// the caller decided this failure is worth reporting regardless.
func (c *LogContext) Error(msg string, attrs ...any) {
	c.logger.Error(msg, attrs...)
}
