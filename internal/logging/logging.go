// Package logging wraps log/slog with a JSON handler writing
// newline-delimited diagnostic records to ARIA_LOG_PATH (or stderr). It is
// deliberately separate from internal/store's audit chain: this stream
// carries no durability or tamper-evidence guarantee, and exists purely for
// operator diagnostics.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Open builds a slog.Logger writing JSON lines at the given level to path.
// An empty path logs to stderr. The returned io.Closer must be closed by
// the caller on shutdown; closing a stderr-backed logger is a no-op.
func Open(path, level string) (*slog.Logger, io.Closer, error) {
	var out io.WriteCloser = nopCloser{os.Stderr}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		out = f
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(level)})
	logger := slog.New(handler).With("component", "aria")
	return logger, out, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// nopCloser adapts an io.Writer that must not be closed (stderr) to
// io.WriteCloser.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
