package forestkv

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with forestkv-specific helpers that attach
// structured fields to build and search calls.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger around handler. A nil handler falls back to a
// text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger emitting JSON to stderr at level.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger creates a Logger emitting human-readable text to stderr at
// level.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithTag returns a Logger with tag bound as a field on every entry.
func (l *Logger) WithTag(tag uint16) *Logger {
	return &Logger{Logger: l.Logger.With("tag", tag)}
}

func (l *Logger) logBuild(ctx context.Context, seed uint64, nTrees, items int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed", "seed", seed, "n_trees", nTrees, "items", items, "error", err)
		return
	}
	l.InfoContext(ctx, "build completed", "seed", seed, "n_trees", nTrees, "items", items)
}

func (l *Logger) logSearch(ctx context.Context, k, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "k", k, "error", err)
		return
	}
	l.DebugContext(ctx, "search completed", "k", k, "results", found)
}
