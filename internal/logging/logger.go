// Package logging sets up the process-wide slog logger and carries
// request-scoped loggers in contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hrygo/rhythm/internal/profile"
)

type loggerKey struct{}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w with the profile's level and format.
func New(w io.Writer, p *profile.Profile) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(p.LogLevel)}

	var handler slog.Handler
	if p.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("mode", p.Mode)
}

// Setup installs the profile's logger as the slog default and returns it.
func Setup(p *profile.Profile) *slog.Logger {
	logger := New(os.Stdout, p)
	slog.SetDefault(logger)
	return logger
}

// FromContext extracts the logger from context, falling back to the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// ToContext adds the logger to context.
func ToContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}
