package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rexliu/ordo/pkg/config"
)

// New returns a text logger on stdout tagged with component.
func New(component string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil)).With("component", component)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Configure builds a logger from config. When a file path is set, output is
// teed to stdout and a size-rotated file. The returned closer releases the file.
func Configure(component string, cfg config.LoggingConfig, profileDir string) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.FilePath != "" {
		path := config.ResolvePath(profileDir, cfg.FilePath)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.FileMaxSize,
			MaxBackups: cfg.FileBackups,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler).With("component", component), closer, nil
}

// ParseLevel maps a config level name to a slog level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
