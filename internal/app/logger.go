package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogFormats lists the accepted -log-format values.
var LogFormats = []string{"text", "json"}

// ParseLogLevel maps a level name (any case) to its slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// ValidLogFormat reports whether name is one of LogFormats.
func ValidLogFormat(name string) bool {
	for _, f := range LogFormats {
		if strings.EqualFold(name, f) {
			return true
		}
	}
	return false
}

// newLogger builds the logger of one reducer run from the -log-level and
// -log-format settings. The global logger is left alone.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	level, err := ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}
