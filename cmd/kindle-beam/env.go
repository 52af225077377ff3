package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	kindlebeam "github.com/alnah/go-kindlebeam"
	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/mailer"
)

// Environment holds injectable dependencies for testability.
// Includes I/O, time, process environment, and the external collaborators.
type Environment struct {
	Now     func() time.Time
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Getenv  func(string) string
	Environ func() []string

	// Optional overrides. Nil or empty values select the production ones.
	Runner        kindlebeam.CommandRunner
	HTTPClient    *http.Client
	TempDir       string
	MailerOptions []mailer.Option
	NewDeliverer  func(cfg *config.Config, logger *slog.Logger) kindlebeam.Deliverer
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:     time.Now,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Getenv:  os.Getenv,
		Environ: os.Environ,
	}
}

// runner returns the converter runner.
func (e *Environment) runner() kindlebeam.CommandRunner {
	if e.Runner != nil {
		return e.Runner
	}
	return &kindlebeam.ExecRunner{}
}

// deliverer builds the SMTP deliverer for cfg unless a factory is set.
func (e *Environment) deliverer(cfg *config.Config, logger *slog.Logger) kindlebeam.Deliverer {
	if e.NewDeliverer != nil {
		return e.NewDeliverer(cfg, logger)
	}
	return kindlebeam.NewSMTPDelivererFromConfig(cfg, logger, e.MailerOptions...)
}

// beamerOptions wires the environment into a Beamer.
func (e *Environment) beamerOptions(logger *slog.Logger) []kindlebeam.Option {
	opts := []kindlebeam.Option{
		kindlebeam.WithLogger(logger),
		kindlebeam.WithRunner(e.runner()),
		kindlebeam.WithTempDir(e.TempDir),
		kindlebeam.WithClock(e.Now),
	}
	if e.HTTPClient != nil {
		opts = append(opts, kindlebeam.WithHTTPClient(e.HTTPClient))
	}
	return opts
}
