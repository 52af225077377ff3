// Package config loads the delivery and conversion settings of kindle-beam.
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-kindlebeam/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrMissingKeys    = errors.New("missing config keys")
	ErrInvalidValue   = errors.New("invalid config value")
)

// Defaults applied to optional keys.
const (
	DefaultSMTPHost       = "smtp.gmail.com"
	DefaultSMTPPort       = 465
	DefaultPandoc         = "pandoc"
	DefaultStyle          = "kindle"
	DefaultFetchTimeout   = "10s"
	DefaultConvertTimeout = "60s"
	DefaultLogLevel       = "info"
)

// AppName names the per-user config directory.
const AppName = "kindle-beam"

// FileNames lists the config file names tried in each directory, in order.
var FileNames = []string{"config.json", "config.yaml", "config.yml"}

// RequiredKeys are the keys without which nothing can be delivered.
var RequiredKeys = []string{"smtp_user", "smtp_pass", "kindle_email"}

// Config holds the settings of one host invocation.
type Config struct {
	SMTPUser     string `yaml:"smtp_user" json:"smtp_user"`
	SMTPPass     string `yaml:"smtp_pass" json:"smtp_pass"`
	KindleEmail  string `yaml:"kindle_email" json:"kindle_email"`
	SMTPHost     string `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port" json:"smtp_port"`
	SMTPStartTLS bool   `yaml:"smtp_starttls" json:"smtp_starttls"` // false = implicit TLS
	From         string `yaml:"from" json:"from"`                   // empty = smtp_user

	Pandoc         string `yaml:"pandoc" json:"pandoc"`
	Style          string `yaml:"style" json:"style"` // style name, CSS path, or "none"
	AssetsPath     string `yaml:"assets_path" json:"assets_path"`
	Language       string `yaml:"language" json:"language"`
	FetchTimeout   string `yaml:"fetch_timeout" json:"fetch_timeout"`
	ConvertTimeout string `yaml:"convert_timeout" json:"convert_timeout"`
	Workers        int    `yaml:"workers" json:"workers"` // 0 = auto

	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// NotFoundError reports the config path that was expected.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrConfigNotFound, e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrConfigNotFound }

// MissingKeysError lists required keys that are absent or empty.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingKeys, strings.Join(e.Keys, ", "))
}

func (e *MissingKeysError) Unwrap() error { return ErrMissingKeys }

// DefaultConfig returns a configuration with every optional key defaulted
// and no credentials.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills optional keys left empty.
func (c *Config) ApplyDefaults() {
	if c.SMTPHost == "" {
		c.SMTPHost = DefaultSMTPHost
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = DefaultSMTPPort
	}
	if c.Pandoc == "" {
		c.Pandoc = DefaultPandoc
	}
	if c.Style == "" {
		c.Style = DefaultStyle
	}
	if c.FetchTimeout == "" {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.ConvertTimeout == "" {
		c.ConvertTimeout = DefaultConvertTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Missing returns the required keys that are absent or blank, in
// RequiredKeys order.
func (c *Config) Missing() []string {
	values := map[string]string{
		"smtp_user":    c.SMTPUser,
		"smtp_pass":    c.SMTPPass,
		"kindle_email": c.KindleEmail,
	}
	var missing []string
	for _, k := range RequiredKeys {
		if strings.TrimSpace(values[k]) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// Validate checks required keys first, then the optional values.
// Called by LoadConfig, but available for configs built from flags or env.
func (c *Config) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return &MissingKeysError{Keys: missing}
	}

	if _, err := mail.ParseAddress(c.KindleEmail); err != nil {
		return fmt.Errorf("%w: kindle_email %q: %v", ErrInvalidValue, c.KindleEmail, err)
	}
	if c.From != "" {
		if _, err := mail.ParseAddress(c.From); err != nil {
			return fmt.Errorf("%w: from %q: %v", ErrInvalidValue, c.From, err)
		}
	}
	if c.SMTPPort < 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("%w: smtp_port must be between 1 and 65535, got %d", ErrInvalidValue, c.SMTPPort)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidValue, c.Workers)
	}
	if _, err := parsePositiveDuration("fetch_timeout", c.FetchTimeout); err != nil {
		return err
	}
	if _, err := parsePositiveDuration("convert_timeout", c.ConvertTimeout); err != nil {
		return err
	}
	if c.LogLevel != "" {
		switch strings.ToLower(c.LogLevel) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("%w: log_level %q (must be debug, info, warn, or error)", ErrInvalidValue, c.LogLevel)
		}
	}
	return nil
}

// FetchTimeoutDuration returns fetch_timeout, falling back to the default.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return durationOr(c.FetchTimeout, DefaultFetchTimeout)
}

// ConvertTimeoutDuration returns convert_timeout, falling back to the default.
func (c *Config) ConvertTimeoutDuration() time.Duration {
	return durationOr(c.ConvertTimeout, DefaultConvertTimeout)
}

// Sender returns the From address, defaulting to the SMTP user.
func (c *Config) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.SMTPUser
}

// Addr returns the SMTP server address as host:port.
func (c *Config) Addr() string {
	port := c.SMTPPort
	if port == 0 {
		port = DefaultSMTPPort
	}
	return c.SMTPHost + ":" + strconv.Itoa(port)
}

// Redacted returns a copy safe to print, with the password masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.SMTPPass != "" {
		out.SMTPPass = "********"
	}
	return out
}

// ReadFile decodes the file at path without defaults or validation.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yamlutil.DecodeFile(path, data, &cfg, false); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	return &cfg, nil
}

// LoadConfig reads the file at path, applies defaults and validates.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnknownKeys reports whether the file at path contains keys Config does
// not know. It returns the decoder error describing the first one, or nil.
func UnknownKeys(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-provided
	if err != nil {
		return err
	}
	var cfg Config
	return yamlutil.DecodeFile(path, data, &cfg, true)
}

// ResolvePath picks the config file to load.
// Priority: explicit path > $KINDLE_BEAM_CONFIG > first existing file in the
// user config directory. When nothing exists, it returns the preferred
// default path so the caller can report where the file is expected.
func ResolvePath(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if p := getenv("KINDLE_BEAM_CONFIG"); p != "" {
		return p
	}

	dirs := configDirs(getenv)
	for _, dir := range dirs {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if fileExists(p) {
				return p
			}
		}
	}
	if len(dirs) == 0 {
		return FileNames[0]
	}
	return filepath.Join(dirs[0], FileNames[0])
}

// configDirs returns the candidate directories, XDG first.
func configDirs(getenv func(string) string) []string {
	var dirs []string
	if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, AppName))
	}
	if home := getenv("HOME"); home != "" {
		fallback := filepath.Join(home, ".config", AppName)
		if len(dirs) == 0 || dirs[0] != fallback {
			dirs = append(dirs, fallback)
		}
	}
	if len(dirs) == 0 {
		if d, err := os.UserConfigDir(); err == nil {
			dirs = append(dirs, filepath.Join(d, AppName))
		}
	}
	return dirs
}

func parsePositiveDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalidValue, key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidValue, key, value)
	}
	return d, nil
}

func durationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
