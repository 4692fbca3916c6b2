// Package logging wires the operator's structured logger. Records fan
// out to stderr and to logs/operator.log under the operator root; the
// file handler is best-effort and the logger degrades to stderr alone
// when the log directory cannot be created.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

var level = new(slog.LevelVar)

// SetVerbose switches the log level to debug.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// New builds the operator logger for the given root.
func New(root string) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	logDir := filepath.Join(root, "logs")
	if err := os.MkdirAll(logDir, 0755); err == nil {
		f, err := os.OpenFile(
			filepath.Join(logDir, "operator.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY,
			0644,
		)
		if err == nil {
			handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{
				Level: level,
			}))
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without an explicit logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
