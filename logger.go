package appmigrate

import (
	"log/slog"
	"os"
)

func newDefaultLogger() Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("component", "appmigrate")
}
