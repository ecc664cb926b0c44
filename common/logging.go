package common

import (
	"log/slog"
	"os"
	"strings"
)

// LoggingOpts controls the shape of the process-wide structured logger.
type LoggingOpts struct {
	// Debug forces the debug level regardless of Level.
	Debug bool

	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// Service is attached to every record as "service" when non-empty.
	Service string

	// Version is attached to every record as "version" when non-empty.
	Version string
}

// ParseLevel maps a textual log level onto slog.Level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger builds the logger used by every binary in this repository.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	level := ParseLevel(opts.Level)
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
