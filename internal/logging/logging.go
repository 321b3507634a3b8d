// Package logging builds the slog loggers shared by the trainers and the CLI.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

const ErrorLogFile = "errors.log"

type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is text, json or auto. auto picks text on a terminal.
	Format string
	// ErrorLogDir, when set, receives warn and error records as JSON lines.
	ErrorLogDir string
	Output      io.Writer
}

// Logger wraps the configured slog.Logger with the error-log file it owns.
type Logger struct {
	*slog.Logger
	errorLog *os.File
}

func (l *Logger) Close() error {
	if l == nil || l.errorLog == nil {
		return nil
	}
	err := l.errorLog.Close()
	l.errorLog = nil
	return err
}

func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var console slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "auto":
		if isTerminal(out) {
			console = slog.NewTextHandler(out, handlerOpts)
		} else {
			console = slog.NewJSONHandler(out, handlerOpts)
		}
	case "text":
		console = slog.NewTextHandler(out, handlerOpts)
	case "json":
		console = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.ErrorLogDir == "" {
		return &Logger{Logger: slog.New(console)}, nil
	}

	if err := os.MkdirAll(opts.ErrorLogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create error log dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(opts.ErrorLogDir, ErrorLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	errorSink := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelWarn})
	return &Logger{
		Logger:   slog.New(fanout{console, errorSink}),
		errorLog: file,
	}, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns logger, or Discard when logger is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
