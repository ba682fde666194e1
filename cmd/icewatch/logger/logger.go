// Package logger constructs the slog.Logger used by the icewatch binary.
//
// The handler (text or json) and level are selected from configuration.
// Unrecognized values fall back to text at info level.
package logger

import (
	"log/slog"
	"os"

	"github.com/nunatak-io/icewatch/cmd/icewatch/config"
)

// New creates a logger from the configured level and format.
func New(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
