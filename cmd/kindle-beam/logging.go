package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-kindlebeam/internal/config"
)

// parseLevel maps a log_level value to a slog level. "warning" is accepted
// as an alias of "warn".
func parseLevel(s string) (slog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return slog.LevelInfo, nil
	}
	if s == "warning" {
		s = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log_level %q", config.ErrInvalidValue, s)
	}
	return level, nil
}

// bootstrapLogger logs to stderr before the config is loaded. The level
// comes from --verbose or KINDLE_BEAM_LOG_LEVEL.
func bootstrapLogger(env *Environment, verbose bool) *slog.Logger {
	level, _ := parseLevel(env.Getenv("KINDLE_BEAM_LOG_LEVEL"))
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(env.Stderr, &slog.HandlerOptions{Level: level}))
}

// newLogger builds the run logger from the loaded config. Logs always go to
// stderr (stdout carries the protocol) and are also appended to log_file
// when set. The returned func closes the file.
func newLogger(env *Environment, cfg *config.Config, verbose bool) (*slog.Logger, func(), error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = env.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o750); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- log path is user-provided
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = io.MultiWriter(env.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}
