package logger

import (
	"log/slog"
	"os"
)

// New returns a structured stdout logger shared by services and handlers.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
