package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger: JSON when configured, text
// otherwise. Every record carries the service name so the api and worker
// binaries are distinguishable in shared log streams.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "homeledger"))
}
