package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// ParseLevel maps a level name to a slog level. Unknown names map to debug.
func ParseLevel(name string) log.Level {
	if lvl, ok := logLevelMap[name]; ok {
		return lvl
	}
	return log.LevelDebug
}

// Setup installs the default logger: colored output on the console and
// the same records without colors appended to path. The returned closer
// releases the log file.
func Setup(console io.Writer, path string, level string) (io.Closer, error) {
	lvl := ParseLevel(level)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	log.SetDefault(log.New(Fanout(
		tint.NewHandler(console, &tint.Options{Level: lvl}),
		tint.NewHandler(f, &tint.Options{Level: lvl, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}),
	)))

	return f, nil
}

type fanout []log.Handler

// Fanout returns a handler that passes every record to all handlers.
func Fanout(handlers ...log.Handler) log.Handler {
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, lvl log.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r log.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []log.Attr) log.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) log.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
