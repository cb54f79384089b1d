// Package logging provides the process-wide log sink.
//
// Records are slog text lines carrying a timestamp, the source location of
// the call and, when an error is attached under the "err" key, the
// human-readable OS error text. Every record is tagged with the process id
// and a short run id, since the launcher and its monitor child append to the
// same file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Config configures a Logger.
type Config struct {
	// Path is the log file, opened in append mode. Empty means stderr.
	Path string

	// Debug enables debug records.
	Debug bool
}

// Logger is an slog.Logger bound to an optional file it owns.
type Logger struct {
	*slog.Logger
	file *os.File
}

// Open creates a Logger for cfg. The caller must Close it.
func Open(cfg Config) (*Logger, error) {
	if cfg.Path == "" {
		return New(os.Stderr, cfg), nil
	}

	f, err := os.OpenFile(cfg.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	l := New(f, cfg)
	l.file = f
	return l, nil
}

// New creates a Logger writing to w. Close does not close w.
func New(w io.Writer, cfg Config) *Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: shortSource,
	})

	return &Logger{
		Logger: slog.New(h).With("pid", os.Getpid(), "run", runID()),
	}
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// shortSource renders the source attribute as file:function:line.
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok || src == nil {
		return a
	}
	fn := src.Function
	if i := strings.LastIndexByte(fn, '.'); i >= 0 {
		fn = fn[i+1:]
	}
	return slog.String(slog.SourceKey, filepath.Base(src.File)+":"+fn+"():"+strconv.Itoa(src.Line))
}

func runID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
