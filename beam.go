package kindlebeam

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alnah/go-kindlebeam/internal/assets"
	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/fetch"
	"github.com/alnah/go-kindlebeam/internal/fileutil"
	"github.com/alnah/go-kindlebeam/internal/hints"
	"github.com/alnah/go-kindlebeam/internal/pipeline"
)

// Stage is a step of one pipeline run.
type Stage int

// Pipeline stages in execution order. StageFailed is reachable from any
// other stage.
const (
	StageReceived Stage = iota
	StageValidated
	StageImagesProcessed
	StageDocumentBuilt
	StageDelivered
	StageCompleted
	StageFailed
)

var stageNames = [...]string{
	StageReceived:        "received",
	StageValidated:       "validated",
	StageImagesProcessed: "images_processed",
	StageDocumentBuilt:   "document_built",
	StageDelivered:       "delivered",
	StageCompleted:       "completed",
	StageFailed:          "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Beamer runs the article pipeline: validate, fetch images, rewrite
// sources, assemble the EPUB and deliver it.
type Beamer struct {
	settings   Settings
	deliverer  Deliverer
	assembler  *Assembler
	fetcher    *fetch.Fetcher
	runner     CommandRunner
	httpClient *http.Client
	tempDir    string
	now        func() time.Time
	logger     *slog.Logger
}

// NewBeamer creates a Beamer. Style and template problems are reported here
// rather than on the first request.
func NewBeamer(settings Settings, deliverer Deliverer, opts ...Option) (*Beamer, error) {
	if deliverer == nil {
		return nil, errors.New("kindlebeam: nil deliverer")
	}

	b := &Beamer{
		settings:   settings.withDefaults(),
		deliverer:  deliverer,
		runner:     &ExecRunner{},
		httpClient: http.DefaultClient,
		now:        time.Now,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}

	resolver, err := assets.NewAssetResolver(b.settings.AssetsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: assets_path: %v", config.ErrInvalidValue, err)
	}
	css, err := resolver.ResolveStyle(b.settings.Style)
	if err != nil {
		return nil, fmt.Errorf("%w: style: %v%s", config.ErrInvalidValue, err, hints.ForStyleNotFound(assets.Styles()))
	}
	shellSrc, err := resolver.LoadTemplate(assets.ArticleTemplateName)
	if err != nil {
		return nil, fmt.Errorf("%w: article template: %v", config.ErrInvalidValue, err)
	}
	shell, err := template.New(assets.ArticleTemplateName).Parse(shellSrc)
	if err != nil {
		return nil, fmt.Errorf("%w: article template: %v", config.ErrInvalidValue, err)
	}

	b.assembler = &Assembler{
		runner:   b.runner,
		pandoc:   b.settings.Pandoc,
		timeout:  b.settings.ConvertTimeout,
		shell:    shell,
		css:      css,
		language: b.settings.Language,
		now:      b.now,
		logger:   b.logger,
	}
	b.fetcher = fetch.New(
		fetch.WithHTTPClient(b.httpClient),
		fetch.WithTimeout(b.settings.FetchTimeout),
		fetch.WithWorkers(b.settings.Workers),
		fetch.WithLogger(b.logger),
	)

	return b, nil
}

// Process runs the pipeline and maps the outcome to a Response.
func (b *Beamer) Process(ctx context.Context, req Request) Response {
	return ResponseFor(b.Run(ctx, req))
}

// run holds the per-request state.
type run struct {
	stage     Stage
	workspace string
	artifact  string
	logger    *slog.Logger
}

func (r *run) advance(s Stage, attrs ...any) {
	r.stage = s
	r.logger.Debug("stage", append([]any{"stage", s.String()}, attrs...)...)
}

// Run executes one request. The workspace and the artifact are removed on
// every exit path, including panics.
func (b *Beamer) Run(ctx context.Context, req Request) (err error) {
	r := &run{stage: StageReceived, logger: b.logger}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("panic in pipeline", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrInternal, p)
		}
		b.cleanup(r)
		if err != nil {
			b.logger.Warn("beam failed", "stage", r.stage.String(), "kind", KindOf(err).String(), "error", err)
			r.stage = StageFailed
			return
		}
		b.logger.Info("beam completed", "title", req.Title, "elapsed", time.Since(start).Round(time.Millisecond))
	}()

	r.advance(StageReceived, "url", req.URL, "content_size", humanize.Bytes(uint64(len(req.Content))))

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	r.advance(StageValidated, "title", req.Title)

	r.workspace, err = fileutil.MakeWorkspace(b.tempDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	body, err := b.processImages(ctx, r, req)
	if err != nil {
		return err
	}

	r.artifact, err = fileutil.ReserveTempFile(b.tempDir, "epub")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	doc := Document{Title: req.Title, Body: body, SourceURL: req.URL}
	if err := b.assembler.Assemble(ctx, r.workspace, doc, r.artifact); err != nil {
		return err
	}
	r.advance(StageDocumentBuilt, "artifact", r.artifact)

	if err := b.deliverer.Deliver(ctx, r.artifact, req.Title); err != nil {
		return classifyDelivery(err)
	}
	r.advance(StageDelivered)
	r.advance(StageCompleted)
	return nil
}

// processImages fetches every referenced image into the workspace and
// returns the body with fetched sources rewritten. Remote image failures
// only degrade the document; a failure to write into the workspace is ErrIO.
func (b *Beamer) processImages(ctx context.Context, r *run, req Request) (string, error) {
	refs := pipeline.ExtractImages(req.Content, req.URL)
	if len(refs) == 0 {
		r.advance(StageImagesProcessed, "images", 0)
		return req.Content, nil
	}

	urls := make([]string, len(refs))
	for i, ref := range refs {
		urls[i] = ref.URL
	}

	results := b.fetcher.FetchAll(ctx, urls, r.workspace)
	if err := fetch.LocalFailure(results); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	fetched := fetch.Successful(results)
	body := pipeline.RewriteImageSources(req.Content, pipeline.SourceMap(refs, fetched))

	var total int64
	for _, res := range results {
		total += res.Size
	}
	r.advance(StageImagesProcessed,
		"images", len(refs),
		"fetched", len(fetched),
		"failed", len(fetch.Failed(results)),
		"size", humanize.Bytes(uint64(total)), // #nosec G115 -- sizes are non-negative
	)
	return body, nil
}

// cleanup removes the workspace and the artifact. Missing paths are fine.
func (b *Beamer) cleanup(r *run) {
	if err := fileutil.Remove(r.workspace); err != nil {
		b.logger.Warn("workspace cleanup failed", "path", r.workspace, "error", err)
	}
	if err := fileutil.Remove(r.artifact); err != nil {
		b.logger.Warn("artifact cleanup failed", "path", r.artifact, "error", err)
	}
}
