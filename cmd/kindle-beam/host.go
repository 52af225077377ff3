package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	flag "github.com/spf13/pflag"

	kindlebeam "github.com/alnah/go-kindlebeam"
	"github.com/alnah/go-kindlebeam/internal/framing"
)

// hostFlags holds flags for the host command.
type hostFlags struct {
	common commonFlags
}

// isBrowserArg reports whether arg was passed by a browser launching the
// host: a Chrome origin, a Firefox manifest path or extension ID, or the
// Windows parent window handle.
func isBrowserArg(arg string) bool {
	switch {
	case strings.Contains(arg, "://"):
		return true
	case strings.HasPrefix(arg, "--parent-window="):
		return true
	case strings.HasSuffix(arg, ".json"):
		return true
	case strings.HasPrefix(arg, "{") || strings.Contains(arg, "@"):
		return true
	}
	return false
}

// runHostCmd parses host flags and serves one request.
// Browser-supplied arguments are ignored.
func runHostCmd(ctx context.Context, args []string, env *Environment) int {
	var flags hostFlags
	fs := flag.NewFlagSet("host", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addCommonFlags(fs, &flags.common)

	var cleaned []string
	for _, a := range args {
		if !isBrowserArg(a) {
			cleaned = append(cleaned, a)
		}
	}
	if err := fs.Parse(cleaned); err != nil {
		bootstrapLogger(env, false).Warn("ignoring host arguments", "error", err)
	}
	return runHost(ctx, &flags, env)
}

// runHost reads one framed request from stdin, runs the pipeline and writes
// exactly one framed Response to stdout. When the input cannot be framed,
// nothing is written and the exit code is ExitProtocol.
func runHost(ctx context.Context, flags *hostFlags, env *Environment) int {
	logger := bootstrapLogger(env, flags.common.verbose)
	warnUnknownEnvVars(env.Stderr, env.Environ())

	var req kindlebeam.Request
	if err := framing.ReadMessage(env.Stdin, &req); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return respond(env, logger, kindlebeam.ErrNoMessage)
		case errors.Is(err, framing.ErrProtocol):
			logger.Error("unreadable message, no response sent", "error", err)
			return ExitProtocol
		}
		return respond(env, logger, err)
	}

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return respond(env, logger, err)
	}

	cfg, path, err := loadConfig(flags.common.config, env, true)
	if err != nil {
		logger.Error("config", "path", path, "error", err, "hint", hintText(err, nil, path))
		return respond(env, logger, err)
	}

	runLogger, closeLog, err := newLogger(env, cfg, flags.common.verbose)
	if err != nil {
		return respond(env, logger, err)
	}
	defer closeLog()
	runLogger.Debug("config loaded", "path", path, "config", cfg.Redacted())

	beamer, err := kindlebeam.NewBeamer(
		kindlebeam.SettingsFromConfig(cfg),
		env.deliverer(cfg, runLogger),
		env.beamerOptions(runLogger)...,
	)
	if err != nil {
		return respond(env, runLogger, err)
	}

	runLogger.Info("request received", "title", req.Title, "url", req.URL)
	err = beamer.Run(ctx, req)
	if h := hintText(err, cfg, path); h != "" {
		runLogger.Info("hint", "text", h)
	}
	return respond(env, runLogger, err)
}

// respond writes the Response for err and returns the exit code.
func respond(env *Environment, logger *slog.Logger, err error) int {
	resp := kindlebeam.ResponseFor(err)
	if werr := framing.WriteMessage(env.Stdout, resp); werr != nil {
		logger.Error("writing response", "error", werr)
		if err == nil {
			return ExitIO
		}
	}
	return exitCodeFor(err)
}
