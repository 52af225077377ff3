// Package fetch downloads article images into a local workspace.
//
// Every URL yields an explicit Result. Failures are carried as *FetchError
// values, never returned as errors from FetchAll: a missing image degrades the
// document, it does not fail it. Failures to write into the workspace wrap
// ErrLocalWrite so callers can tell them apart from remote failures.
package fetch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Defaults for image fetching.
const (
	// DefaultTimeout bounds a single image request.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent identifies the fetcher to image hosts.
	DefaultUserAgent = "Mozilla/5.0 (compatible; KindleBeam/1.0)"

	// MaxImageSize bounds a single image body (25 MiB).
	MaxImageSize int64 = 25 << 20

	// DefaultExtension is used when the URL path has no recognized image extension.
	DefaultExtension = ".jpg"

	// hashHexLength is the number of hex characters of the URL hash kept in names.
	hashHexLength = 12

	// filePermissions for fetched images: owner read+write only.
	filePermissions = 0o600
)

// Worker pool sizing.
const (
	// MinWorkers ensures at least one download runs.
	MinWorkers = 1

	// MaxWorkers caps automatic sizing to stay polite with image hosts.
	MaxWorkers = 8
)

// Sentinel errors wrapped by FetchError.
var (
	ErrStatus   = errors.New("unexpected HTTP status")
	ErrTooLarge = errors.New("image exceeds maximum size")

	// ErrLocalWrite marks a failure to create, write or close the image file.
	ErrLocalWrite = errors.New("writing image to workspace")
)

// recognizedExtensions lists the image extensions kept from URL paths.
var recognizedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

// FetchError describes why a single image could not be downloaded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is the outcome for one URL: a local file on success, a *FetchError otherwise.
type Result struct {
	URL       string
	LocalName string // set only on success
	Size      int64
	Err       error
}

// OK reports whether the image was written to the workspace.
func (r Result) OK() bool { return r.Err == nil }

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTimeout sets the per-request timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("fetch: WithTimeout duration must be positive")
	}
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithWorkers sets the number of concurrent downloads (0 = auto).
func WithWorkers(n int) Option {
	return func(f *Fetcher) {
		f.workers = ResolveWorkers(n)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxSize sets the maximum accepted body size.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		f.maxSize = n
	}
}

// WithLogger sets the logger for per-image diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// Fetcher downloads images concurrently with a bounded number of workers.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	workers   int
	userAgent string
	maxSize   int64
	logger    *slog.Logger
}

// New creates a Fetcher with default settings.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
		workers:   ResolveWorkers(0),
		userAgent: DefaultUserAgent,
		maxSize:   MaxImageSize,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ResolveWorkers determines the download concurrency.
// Priority: explicit value > GOMAXPROCS-based calculation.
func ResolveWorkers(n int) int {
	if n > 0 {
		return n
	}

	// GOMAXPROCS is adjusted by automaxprocs for containers.
	available := runtime.GOMAXPROCS(0)
	if available < MinWorkers {
		return MinWorkers
	}
	if available > MaxWorkers {
		return MaxWorkers
	}
	return available
}

// FetchAll downloads every unique URL into dir and returns one Result per
// unique URL, in input order. The aggregate never depends on completion order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, dir string) []Result {
	unique := dedupe(urls)
	results := make([]Result, len(unique))

	var g errgroup.Group
	g.SetLimit(f.workers)
	for i, u := range unique {
		// Each task writes only results[i] and its own file; no locking needed.
		g.Go(func() error {
			results[i] = f.fetchOne(ctx, u, dir)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors

	return results
}

// fetchOne downloads a single URL. It never panics on I/O failures; every
// failure is reported through Result.Err.
func (f *Fetcher) fetchOne(ctx context.Context, rawURL, dir string) Result {
	name := LocalName(rawURL)
	res := Result{URL: rawURL}

	size, err := f.download(ctx, rawURL, filepath.Join(dir, name))
	if err != nil {
		res.Err = &FetchError{URL: rawURL, Err: err}
		f.logger.Debug("image skipped", "url", rawURL, "error", err)
		return res
	}

	res.LocalName = name
	res.Size = size
	f.logger.Debug("image fetched", "url", rawURL, "file", name, "size", humanize.Bytes(uint64(size))) // #nosec G115 -- size is non-negative
	return res
}

// download streams the body of rawURL into dest, removing dest on failure.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	file, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePermissions) // #nosec G304 -- dest is workspace + hashed name
	if err != nil {
		return 0, fmt.Errorf("%w: creating image file: %v", ErrLocalWrite, err)
	}

	// Read one byte past the limit to detect oversized bodies.
	n, copyErr := io.Copy(localWriter{file}, io.LimitReader(resp.Body, f.maxSize+1))
	closeErr := file.Close()

	switch {
	case errors.Is(copyErr, ErrLocalWrite):
		err = copyErr
	case copyErr != nil:
		err = fmt.Errorf("reading body: %w", copyErr)
	case n > f.maxSize:
		err = fmt.Errorf("%w: more than %s", ErrTooLarge, humanize.Bytes(uint64(f.maxSize))) // #nosec G115 -- maxSize is positive
	case closeErr != nil:
		err = fmt.Errorf("%w: closing image file: %v", ErrLocalWrite, closeErr)
	}
	if err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	return n, nil
}

// localWriter tags write errors with ErrLocalWrite so io.Copy failures on
// the file side are not reported as body read errors.
type localWriter struct {
	w io.Writer
}

func (lw localWriter) Write(p []byte) (int, error) {
	n, err := lw.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrLocalWrite, err)
	}
	return n, nil
}

// LocalName derives the workspace filename for an image URL:
// "img_" + 12 hex chars of the URL's BLAKE3 hash + extension.
// The name depends only on the URL, so it is stable across runs.
func LocalName(rawURL string) string {
	sum := blake3.Sum256([]byte(rawURL))
	return "img_" + hex.EncodeToString(sum[:])[:hashHexLength] + Extension(rawURL)
}

// Extension returns the lowercase image extension of the URL path when it
// is recognized, DefaultExtension otherwise.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if recognizedExtensions[ext] {
		return ext
	}
	return DefaultExtension
}

// Successful maps original URLs to local filenames for successful results only.
func Successful(results []Result) map[string]string {
	fetched := make(map[string]string, len(results))
	for _, r := range results {
		if r.OK() {
			fetched[r.URL] = r.LocalName
		}
	}
	return fetched
}

// Failed returns the failed results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// LocalFailure returns the first result error caused by the workspace
// rather than the remote host, or nil.
func LocalFailure(results []Result) error {
	for _, r := range results {
		if errors.Is(r.Err, ErrLocalWrite) {
			return r.Err
		}
	}
	return nil
}

// dedupe removes repeated URLs, keeping first occurrences in order.
func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
