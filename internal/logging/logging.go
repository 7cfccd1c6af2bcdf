// Package logging builds the process-wide slog logger. Console output is
// rendered by zerolog's ConsoleWriter; json output uses slog's JSON handler.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02 15:04:05.000"

// ParseLevel maps a level name onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a logger writing to w at the given level. format is "console"
// or "json".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	case "", "console":
		return slog.New(NewConsoleHandler(w, lvl)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ConsoleHandler is a slog.Handler that renders records with zerolog's
// human-readable ConsoleWriter.
type ConsoleHandler struct {
	zl     zerolog.Logger
	level  slog.Leveler
	attrs  []prefixedAttr
	groups []string
}

type prefixedAttr struct {
	prefix string
	attr   slog.Attr
}

// NewConsoleHandler creates a ConsoleHandler writing to w.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: consoleTimeFormat,
		NoColor:    true,
	}
	return &ConsoleHandler{
		zl:    zerolog.New(cw),
		level: level,
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	e := h.zl.WithLevel(zerologLevel(r.Level))
	if e == nil {
		return nil
	}
	if !r.Time.IsZero() {
		e = e.Time(zerolog.TimestampFieldName, r.Time)
	}

	for _, pa := range h.attrs {
		addAttr(e, pa.prefix, pa.attr)
	}
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		addAttr(e, prefix, a)
		return true
	})

	e.Msg(r.Message)
	return nil
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]prefixedAttr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	prefix := h.prefix()
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, prefixedAttr{prefix: prefix, attr: a})
	}
	return &clone
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *ConsoleHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func addAttr(e *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key

	switch a.Value.Kind() {
	case slog.KindString:
		e.Str(key, a.Value.String())
	case slog.KindInt64:
		e.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		e.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		e.Float64(key, a.Value.Float64())
	case slog.KindBool:
		e.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		e.Str(key, a.Value.Duration().String())
	case slog.KindTime:
		e.Time(key, a.Value.Time())
	case slog.KindGroup:
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(e, groupPrefix, ga)
		}
	default:
		if err, ok := a.Value.Any().(error); ok {
			e.AnErr(key, err)
			return
		}
		e.Interface(key, a.Value.Any())
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
