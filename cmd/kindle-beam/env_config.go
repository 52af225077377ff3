package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-kindlebeam/internal/config"
)

// envPrefix starts every environment variable the CLI reads.
const envPrefix = "KINDLE_BEAM_"

// envConfig holds configuration from environment variables.
// Lets the host run from a browser profile or CI without a config file.
type envConfig struct {
	ConfigPath  string // KINDLE_BEAM_CONFIG: config file path
	SMTPUser    string // KINDLE_BEAM_SMTP_USER
	SMTPPass    string // KINDLE_BEAM_SMTP_PASS
	KindleEmail string // KINDLE_BEAM_KINDLE_EMAIL
	Pandoc      string // KINDLE_BEAM_PANDOC: converter executable
	Timeout     string // KINDLE_BEAM_TIMEOUT: converter timeout
	Workers     int    // KINDLE_BEAM_WORKERS: image download workers
	LogLevel    string // KINDLE_BEAM_LOG_LEVEL
}

// knownEnvVars lists valid KINDLE_BEAM_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"KINDLE_BEAM_CONFIG":       true,
	"KINDLE_BEAM_SMTP_USER":    true,
	"KINDLE_BEAM_SMTP_PASS":    true,
	"KINDLE_BEAM_KINDLE_EMAIL": true,
	"KINDLE_BEAM_PANDOC":       true,
	"KINDLE_BEAM_TIMEOUT":      true,
	"KINDLE_BEAM_WORKERS":      true,
	"KINDLE_BEAM_LOG_LEVEL":    true,
}

// loadEnvConfig reads configuration from environment variables.
// Invalid timeout and worker values are ignored, not errors.
func loadEnvConfig(getenv func(string) string) *envConfig {
	cfg := &envConfig{
		ConfigPath:  getenv("KINDLE_BEAM_CONFIG"),
		SMTPUser:    getenv("KINDLE_BEAM_SMTP_USER"),
		SMTPPass:    getenv("KINDLE_BEAM_SMTP_PASS"),
		KindleEmail: getenv("KINDLE_BEAM_KINDLE_EMAIL"),
		Pandoc:      getenv("KINDLE_BEAM_PANDOC"),
		LogLevel:    getenv("KINDLE_BEAM_LOG_LEVEL"),
	}

	if timeout := getenv("KINDLE_BEAM_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = timeout
		}
	}

	if workers := getenv("KINDLE_BEAM_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// hasCredentials reports whether the environment alone can deliver.
func (e *envConfig) hasCredentials() bool {
	return strings.TrimSpace(e.SMTPUser) != "" &&
		strings.TrimSpace(e.SMTPPass) != "" &&
		strings.TrimSpace(e.KindleEmail) != ""
}

// warnUnknownEnvVars prints warnings for unrecognized KINDLE_BEAM_* variables.
// Helps catch typos like KINDLE_BEAM_SMTP_PASSWORD.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	for _, kv := range environ {
		if !strings.HasPrefix(kv, envPrefix) {
			continue
		}
		name, _, _ := strings.Cut(kv, "=")
		if !knownEnvVars[name] {
			fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
		}
	}
}

// applyEnvConfig applies environment variable values to config.
// Only sets values if the env var is set AND the config value is empty/zero,
// so a key written in the file always wins over the environment.
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	if env.SMTPUser != "" && cfg.SMTPUser == "" {
		cfg.SMTPUser = env.SMTPUser
	}
	if env.SMTPPass != "" && cfg.SMTPPass == "" {
		cfg.SMTPPass = env.SMTPPass
	}
	if env.KindleEmail != "" && cfg.KindleEmail == "" {
		cfg.KindleEmail = env.KindleEmail
	}
	if env.Pandoc != "" && cfg.Pandoc == "" {
		cfg.Pandoc = env.Pandoc
	}
	if env.Timeout != "" && cfg.ConvertTimeout == "" {
		cfg.ConvertTimeout = env.Timeout
	}
	if env.Workers > 0 && cfg.Workers == 0 {
		cfg.Workers = env.Workers
	}
	if env.LogLevel != "" && cfg.LogLevel == "" {
		cfg.LogLevel = env.LogLevel
	}
}

// loadConfig resolves, reads and completes the configuration.
// A missing file is accepted when the environment supplies all credentials,
// or when strict is false (dry runs need no credentials). Strict loads are
// validated. The resolved path is returned for error messages.
func loadConfig(flagPath string, env *Environment, strict bool) (*config.Config, string, error) {
	ec := loadEnvConfig(env.Getenv)
	path := config.ResolvePath(flagPath, env.Getenv)

	cfg, err := config.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, config.ErrConfigNotFound) && (!strict || ec.hasCredentials()):
		cfg = &config.Config{}
	default:
		return nil, path, err
	}

	applyEnvConfig(ec, cfg)
	cfg.ApplyDefaults()
	if strict {
		if err := cfg.Validate(); err != nil {
			return nil, path, err
		}
	}
	return cfg, path, nil
}
