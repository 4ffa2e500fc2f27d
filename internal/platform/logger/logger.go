package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Services receive it through
// options rather than reading a global.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// NewNop returns a logger that discards everything; handy default for
// services constructed without an explicit logger.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
