package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger creates logger configured by command flags.
// The returned closer must be closed once the logger is no longer used.
func newLogger(cmd *cobra.Command) (*slog.Logger, io.Closer, error) {
	levelName, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, nil, err
	}

	level, err := parseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	filename, err := cmd.Flags().GetString("log-file")
	if err != nil {
		return nil, nil, err
	}

	var w io.WriteCloser = nopCloser{cmd.ErrOrStderr()}
	if filename != "" {
		w = &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			LocalTime:  true,
		}
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})

	return slog.New(h), w, nil
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, fmt.Errorf("unknown log level: %q", name)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
