package testenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogHandler is a slog.Handler that prints a running index, the level and
// the message without a timestamp, so facade log output can be asserted in
// examples.
type LogHandler struct {
	state    *logState
	attrs    []slog.Attr
	groups   []string
	minLevel slog.Level
}

type logState struct {
	mu    sync.Mutex
	w     io.Writer
	index int
}

type LogHandlerOption func(*LogHandler)

// WithOutput replaces os.Stdout.
func WithOutput(w io.Writer) LogHandlerOption {
	return func(h *LogHandler) {
		h.state.w = w
	}
}

// WithMinLevel drops records below level. The default keeps DEBUG.
func WithMinLevel(level slog.Level) LogHandlerOption {
	return func(h *LogHandler) {
		h.minLevel = level
	}
}

func NewLogHandler(opts ...LogHandlerOption) *LogHandler {
	h := &LogHandler{
		state:    &logState{w: os.Stdout},
		minLevel: slog.LevelDebug,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

//nolint:gocritic
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		parts = append(parts, format(a, ""))
	}
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, format(a, prefix))
		return true
	})

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	line := fmt.Sprintf("[%d] %s: %s", h.state.index, r.Level, r.Message)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}
	h.state.index++
	_, err := fmt.Fprintln(h.state.w, line)
	return err
}

func format(a slog.Attr, prefix string) string {
	if a.Value.Kind() == slog.KindGroup {
		parts := make([]string, 0, len(a.Value.Group()))
		for _, ga := range a.Value.Group() {
			parts = append(parts, format(ga, prefix+a.Key+"."))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	next := *h
	next.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], make([]slog.Attr, 0, len(attrs))...)
	for _, a := range attrs {
		a.Key = prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &next
}
