// Package logger configures JSON structured logging for the service.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup builds a slog.Logger with a JSON handler writing to w.
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault installs the JSON logger as the global slog default.
// Production passes os.Stdout; tests pass a buffer.
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}
