package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var level = new(slog.LevelVar)

func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", levelStr)
	}
}

func New(w io.Writer, levelStr string) (*slog.Logger, error) {
	l, err := ParseLevel(levelStr)
	level.Set(l)

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler), err
}

// Init makes a logger writing to filename the default logger. Stdout carries
// the protocol, so the server never logs there. The returned file must be
// closed by the caller.
func Init(levelStr string, filename string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	logfile, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	logger, err := New(logfile, levelStr)
	slog.SetDefault(logger)
	if err != nil {
		slog.Warn("Falling back to info level", "err", err)
	}
	return logfile, nil
}

// DefaultFile is perld.log in the user's cache directory, or in the temp
// directory when there is none.
func DefaultFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "perld", "perld.log")
}
