package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/skypro1111/echo-service/internal/config"
)

// New creates the structured logger described by cfg. Verbose forces the
// debug level so per-event byte counts are emitted. The returned closer
// releases a log file, if one was opened.
func New(cfg config.LoggingConfig, verbose bool) (*slog.Logger, io.Closer, error) {
	return newLogger(cfg, verbose, os.Stdout, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, verbose bool, stdout, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Level == "debug",
	}

	var closer io.Closer = nopCloser{}
	var handler slog.Handler
	switch cfg.Output {
	case "stdout":
		handler = newHandler(cfg.Format, stdout, opts)
	case "stderr":
		handler = newHandler(cfg.Format, stderr, opts)
	case "split", "":
		handler = &splitHandler{
			low:  newHandler(cfg.Format, stdout, opts),
			high: newHandler(cfg.Format, stderr, opts),
		}
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		closer = file
		handler = newHandler(cfg.Format, file, opts)
	}

	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// splitHandler sends warnings and errors to high and everything else to low
type splitHandler struct {
	low  slog.Handler
	high slog.Handler
}

func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.low.Enabled(ctx, level) || h.high.Enabled(ctx, level)
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.high.Handle(ctx, r)
	}
	return h.low.Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{low: h.low.WithAttrs(attrs), high: h.high.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{low: h.low.WithGroup(name), high: h.high.WithGroup(name)}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
