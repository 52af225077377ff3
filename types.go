package kindlebeam

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/fetch"
)

// DefaultTitle replaces an empty request title.
const DefaultTitle = "Untitled"

// Request is one article sent by the browser extension.
type Request struct {
	Title   string `json:"title"`
	Content string `json:"content"` // article body HTML
	URL     string `json:"url"`     // page URL, base for relative images
}

// Normalize returns a copy with surrounding whitespace trimmed and an empty
// title replaced by DefaultTitle.
func (r Request) Normalize() Request {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		r.Title = DefaultTitle
	}
	r.URL = strings.TrimSpace(r.URL)
	return r
}

// Validate checks that the request carries content. Whitespace-only
// content counts as empty.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// Settings configures document assembly and image fetching.
type Settings struct {
	Pandoc         string        // converter executable name or path
	Style          string        // style name, CSS path, or "none"
	AssetsPath     string        // directory overriding embedded assets
	Language       string        // EPUB lang metadata, empty = unset
	FetchTimeout   time.Duration // per image
	ConvertTimeout time.Duration // whole converter run
	Workers        int           // concurrent image downloads, 0 = auto
}

// DefaultSettings returns settings matching an empty config file.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.DefaultConfig())
}

// SettingsFromConfig extracts the pipeline settings from a loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Pandoc:         cfg.Pandoc,
		Style:          cfg.Style,
		AssetsPath:     cfg.AssetsPath,
		Language:       cfg.Language,
		FetchTimeout:   cfg.FetchTimeoutDuration(),
		ConvertTimeout: cfg.ConvertTimeoutDuration(),
		Workers:        cfg.Workers,
	}
}

// withDefaults fills zero values.
func (s Settings) withDefaults() Settings {
	if s.Pandoc == "" {
		s.Pandoc = config.DefaultPandoc
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = fetch.DefaultTimeout
	}
	if s.ConvertTimeout <= 0 {
		s.ConvertTimeout = DefaultConvertTimeout
	}
	return s
}

// Option configures a Beamer.
type Option func(*Beamer)

// WithLogger sets the logger for stage transitions and diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Beamer) {
		b.logger = l
	}
}

// WithRunner sets the command runner used to invoke the converter.
func WithRunner(r CommandRunner) Option {
	return func(b *Beamer) {
		b.runner = r
	}
}

// WithHTTPClient sets the HTTP client used to fetch images.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Beamer) {
		b.httpClient = c
	}
}

// WithTempDir sets the parent directory of workspaces and artifacts.
// Empty means the system temp directory.
func WithTempDir(dir string) Option {
	return func(b *Beamer) {
		b.tempDir = dir
	}
}

// WithClock sets the time source used for the EPUB date metadata.
func WithClock(now func() time.Time) Option {
	return func(b *Beamer) {
		b.now = now
	}
}
