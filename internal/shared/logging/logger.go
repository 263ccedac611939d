package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	With(args ...any) Logger
}

type SlogLogger struct {
	log *slog.Logger
}

// Options select where and how records are written.
type Options struct {
	Level  slog.Level
	Format string // "json" or "text"
	Output io.Writer
	// File, when set, receives a JSON copy of every record.
	File string
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.TimeValue(a.Value.Time().UTC())
			}
			return a
		},
	}
}

func NewSlogLogger(level slog.Level) Logger {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions(level)))
	return &SlogLogger{log: sl}
}

// New builds a logger from opts. The returned closer releases the log file
// and is never nil.
func New(opts Options) (Logger, io.Closer, error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := handlerOptions(opts.Level)

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, hopts)
	} else {
		handler = slog.NewJSONHandler(out, hopts)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, hopts))
		closer = f
	}

	return &SlogLogger{log: slog.New(handler)}, closer, nil
}

// ParseLevel maps a configured level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Nop discards every record.
func Nop() Logger {
	return &SlogLogger{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (sl *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{log: sl.log.With(args...)}
}

func (sl *SlogLogger) Debug(msg string, args ...any) {
	sl.log.Debug(msg, args...)
}

func (sl *SlogLogger) Info(msg string, args ...any) {
	sl.log.Info(msg, args...)
}

func (sl *SlogLogger) Warn(msg string, args ...any) {
	sl.log.Warn(msg, args...)
}

func (sl *SlogLogger) Error(msg string, args ...any) {
	sl.log.Error(msg, args...)
}

func (sl *SlogLogger) Fatal(msg string, args ...any) {
	sl.log.Error(msg, args...)
	os.Exit(1)
}
