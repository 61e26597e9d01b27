package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/jsondb/internal/server"
)

// newLogger returns the console logger, also writing to extra when set.
// Zero-valued attributes are dropped, as is the time when journald adds its
// own.
func newLogger(w *os.File, level slog.Leveler, underSystemd bool, extra ...slog.Handler) *slog.Logger {
	var h slog.Handler = tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:       level,
		TimeFormat:  "15:04:05.000",
		NoColor:     !isatty.IsTerminal(w.Fd()),
		ReplaceAttr: replaceAttr(underSystemd),
	})
	if len(extra) != 0 {
		h = fanout(append([]slog.Handler{h}, extra...))
	}
	return slog.New(h)
}

// openLogFiles opens the JSON log files in dir: app.log gets every record,
// error.log the errors and api.log the access log. The returned function
// closes them.
func openLogFiles(dir string, level slog.Leveler) (slog.Handler, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: log directory is world-readable
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	var files []*os.File
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	open := func(name string, lvl slog.Leveler) (slog.Handler, error) {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // G302: logs are not secret
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		files = append(files, f)
		return slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl, ReplaceAttr: replaceAttr(false)}), nil
	}
	app, err := open("app.log", level)
	if err != nil {
		return nil, nil, errors.Join(err, closeAll())
	}
	errLog, err := open("error.log", slog.LevelError)
	if err != nil {
		return nil, nil, errors.Join(err, closeAll())
	}
	api, err := open("api.log", level)
	if err != nil {
		return nil, nil, errors.Join(err, closeAll())
	}
	isAccess := func(r slog.Record) bool { return r.Message == server.AccessLogMessage }
	return fanout{app, errLog, &filter{Handler: api, keep: isAccess}}, closeAll, nil
}

// fanout sends each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
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

// filter drops the records keep rejects.
type filter struct {
	slog.Handler
	keep func(slog.Record) bool
}

func (f *filter) Handle(ctx context.Context, r slog.Record) error {
	if !f.keep(r) {
		return nil
	}
	return f.Handler.Handle(ctx, r)
}

func (f *filter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filter{Handler: f.Handler.WithAttrs(attrs), keep: f.keep}
}

func (f *filter) WithGroup(name string) slog.Handler {
	return &filter{Handler: f.Handler.WithGroup(name), keep: f.keep}
}

func replaceAttr(underSystemd bool) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
			return slog.Attr{}
		}
		if a.Key == "ip" {
			if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
				return slog.Attr{}
			}
		}
		if isZero(a.Value.Any()) {
			return slog.Attr{}
		}
		return a
	}
}

func isZero(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case int64:
		return t == 0
	case uint64:
		return t == 0
	case float64:
		return t == 0
	case time.Time:
		return t.IsZero()
	case time.Duration:
		return t == 0
	case nil:
		return true
	}
	return false
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %q", s)
}
