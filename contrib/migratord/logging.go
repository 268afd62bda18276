package migratord

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"

	"github.com/surrealdb/migrator/pkg/logger"
)

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the daemon logger: slog text lines, or zerolog JSON to w
// or to the configured log file.
func NewLogger(conf Config, w io.Writer) (logger.Logger, io.Closer, error) {
	level, err := parseLevel(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if conf.LogFormat != "json" {
		return logger.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nopCloser{}, nil
	}

	build := logger.NewBuild().FromBuffer(w).WithLevel(zerologLevel(level))
	if conf.LogFile != "" {
		build = build.FromPath(conf.LogFile)
	}
	l, err := build.Make()
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return l, l, nil
}
