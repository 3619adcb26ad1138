package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats understood by NewHandler.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// HandlerOptions configures the process log handler.
type HandlerOptions struct {
	Level  string
	Format string
	Output io.Writer
}

// NewHandler creates the slog handler used by the process.
// Nil options produce a text handler at info level writing to stdout.
func NewHandler(opts *HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	}

	if strings.EqualFold(opts.Format, FormatJSON) {
		return slog.NewJSONHandler(out, handlerOpts)
	}

	return slog.NewTextHandler(out, handlerOpts)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
