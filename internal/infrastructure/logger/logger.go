package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a JSON slog logger writing to stdout at the given level
func NewLogger(level string) *slog.Logger {
	return Setup(os.Stdout, level)
}

// Setup builds a JSON slog logger writing to w.
// Unknown levels fall back to info.
func Setup(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error onto slog levels
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
