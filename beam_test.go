package kindlebeam

// Notes:
// - The converter is replaced by fakeRunner, which writes a minimal valid
//   EPUB where pandoc would. Real pandoc runs are not exercised here.
// - Images are served by httptest; no external network access.
// - Cleanup is checked by asserting the temp parent is empty after Run.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/epub"
	"github.com/alnah/go-kindlebeam/internal/epub/epubtest"
	"github.com/alnah/go-kindlebeam/internal/framing"
	"github.com/alnah/go-kindlebeam/internal/mailer"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// fakeRunner stands in for the converter. It records the invocation and the
// workspace as seen at conversion time.
type fakeRunner struct {
	mu sync.Mutex

	calls   int
	name    string
	args    []string
	article string   // article.html content when the converter ran
	files   []string // workspace entries when the converter ran

	block      bool   // wait for ctx to end
	err        error  // returned instead of writing output
	stderr     string // returned with err
	skipOutput bool   // succeed without writing an EPUB
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.name = name
	f.args = append([]string(nil), args...)
	if len(args) > 0 {
		if data, err := os.ReadFile(args[0]); err == nil {
			f.article = string(data)
		}
		if entries, err := os.ReadDir(filepath.Dir(args[0])); err == nil {
			for _, e := range entries {
				f.files = append(f.files, e.Name())
			}
		}
	}

	if f.block {
		<-ctx.Done()
		return "", "", ctx.Err()
	}
	if f.err != nil {
		return "", f.stderr, f.err
	}
	if f.skipOutput {
		return "", "", nil
	}
	if err := epubtest.WriteMinimal(argValue(args, "-o"), "test"); err != nil {
		return "", err.Error(), err
	}
	return "", "", nil
}

// argValue returns the argument following flag.
func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// recordingDeliverer records what it was handed and checks the artifact is
// a valid EPUB at delivery time.
type recordingDeliverer struct {
	calls     int
	title     string
	artifact  string
	verifyErr error
	err       error
}

func (d *recordingDeliverer) Deliver(_ context.Context, artifact, title string) error {
	d.calls++
	d.title = title
	d.artifact = artifact
	_, d.verifyErr = epub.Verify(artifact)
	return d.err
}

// newTestBeamer builds a Beamer rooted in a fresh temp directory.
func newTestBeamer(t *testing.T, runner CommandRunner, d Deliverer, settings Settings) (*Beamer, string) {
	t.Helper()

	tmp := t.TempDir()
	b, err := NewBeamer(settings, d,
		WithRunner(runner),
		WithTempDir(tmp),
		WithClock(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("NewBeamer() error = %v", err)
	}
	return b, tmp
}

// assertEmptyDir fails when dir still holds anything.
func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("temp dir not cleaned up, still holds %v", names)
	}
}

// newImageServer serves PNG bytes for /a.png and /b.png, 404 otherwise.
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.png", "/b.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG" + r.URL.Path))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

var localImagePattern = regexp.MustCompile(`src="(img_[0-9a-f]{12}\.png)"`)

// ---------------------------------------------------------------------------
// TestRun - End-to-end pipeline with fakes
// ---------------------------------------------------------------------------

func TestRun_Success(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)
	runner := &fakeRunner{}
	deliverer := &recordingDeliverer{}
	b, tmp := newTestBeamer(t, runner, deliverer, DefaultSettings())

	req := Request{
		Title:   "  Field Notes  ",
		Content: `<p>Intro</p><img src="/a.png"><img src="` + srv.URL + `/b.png"><img src="/missing.png">`,
		URL:     srv.URL + "/posts/article",
	}
	if err := b.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if deliverer.calls != 1 {
		t.Fatalf("deliverer called %d times, want 1", deliverer.calls)
	}
	if deliverer.title != "Field Notes" {
		t.Errorf("delivered title = %q, want trimmed %q", deliverer.title, "Field Notes")
	}
	if deliverer.verifyErr != nil {
		t.Errorf("artifact was not a valid EPUB at delivery: %v", deliverer.verifyErr)
	}

	// Two of three images rewritten to local names, the failed one kept.
	matches := localImagePattern.FindAllStringSubmatch(runner.article, -1)
	if len(matches) != 2 {
		t.Fatalf("got %d local image sources, want 2 in:\n%s", len(matches), runner.article)
	}
	if !strings.Contains(runner.article, `src="/missing.png"`) {
		t.Error("failed image source should be left unchanged")
	}
	for _, m := range matches {
		found := false
		for _, f := range runner.files {
			if f == m[1] {
				found = true
			}
		}
		if !found {
			t.Errorf("rewritten source %s has no file in workspace %v", m[1], runner.files)
		}
	}

	if !strings.Contains(runner.article, "<title>Field Notes</title>") {
		t.Error("article shell missing title")
	}
	if !strings.Contains(runner.article, `href="style.css"`) {
		t.Error("article shell missing stylesheet link")
	}

	assertEmptyDir(t, tmp)
}

func TestRun_WorkspaceWriteFailureIsIOError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	deliverer := &recordingDeliverer{}
	b, tmp := newTestBeamer(t, runner, deliverer, DefaultSettings())

	// The workspace disappears while the image is in flight, so the file
	// cannot be created.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, _ := os.ReadDir(tmp)
		for _, e := range entries {
			_ = os.RemoveAll(filepath.Join(tmp, e.Name()))
		}
		_, _ = w.Write([]byte("\x89PNG"))
	}))
	t.Cleanup(srv.Close)

	err := b.Run(context.Background(), Request{Title: "T", Content: `<img src="` + srv.URL + `/a.png">`})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("error = %v, want ErrIO", err)
	}
	if got := ResponseFor(err).Error; !strings.HasPrefix(got, "I/O error") {
		t.Errorf("response = %q, want an I/O error", got)
	}
	if runner.calls != 0 || deliverer.calls != 0 {
		t.Errorf("converter/deliverer ran after a workspace failure: %d/%d", runner.calls, deliverer.calls)
	}
	assertEmptyDir(t, tmp)
}

func TestRun_DefaultTitle(t *testing.T) {
	t.Parallel()

	deliverer := &recordingDeliverer{}
	b, _ := newTestBeamer(t, &fakeRunner{}, deliverer, DefaultSettings())

	if err := b.Run(context.Background(), Request{Title: "   ", Content: "<p>x</p>"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if deliverer.title != DefaultTitle {
		t.Errorf("title = %q, want %q", deliverer.title, DefaultTitle)
	}
}

func TestRun_EmptyContentStopsBeforeWorkspace(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"", "   \n\t "} {
		runner := &fakeRunner{}
		deliverer := &recordingDeliverer{}
		b, tmp := newTestBeamer(t, runner, deliverer, DefaultSettings())

		err := b.Run(context.Background(), Request{Title: "T", Content: content})
		if !errors.Is(err, ErrEmptyContent) {
			t.Fatalf("Run(%q) error = %v, want ErrEmptyContent", content, err)
		}
		if resp := ResponseFor(err); resp.Success || !strings.Contains(resp.Error, "content") {
			t.Errorf("ResponseFor() = %+v, want failure mentioning content", resp)
		}
		if runner.calls != 0 || deliverer.calls != 0 {
			t.Errorf("converter/deliverer ran on empty content: %d/%d", runner.calls, deliverer.calls)
		}
		assertEmptyDir(t, tmp)
	}
}

func TestRun_NoBaseURLDropsRelativeImages(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	b, _ := newTestBeamer(t, runner, &recordingDeliverer{}, DefaultSettings())

	if err := b.Run(context.Background(), Request{Content: `<img src="/a.png">`}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(runner.article, `<img src="/a.png">`) {
		t.Errorf("relative image without base should stay as-is:\n%s", runner.article)
	}
}

func TestRun_ConverterTimeout(t *testing.T) {
	t.Parallel()

	settings := DefaultSettings()
	settings.ConvertTimeout = 50 * time.Millisecond
	deliverer := &recordingDeliverer{}
	b, tmp := newTestBeamer(t, &fakeRunner{block: true}, deliverer, settings)

	err := b.Run(context.Background(), Request{Title: "T", Content: "<p>long</p>"})
	if !errors.Is(err, ErrConversionTimeout) {
		t.Fatalf("error = %v, want ErrConversionTimeout", err)
	}
	if got := ResponseFor(err).Error; !strings.Contains(got, "timed out") {
		t.Errorf("response = %q, want it to mention timed out", got)
	}
	if deliverer.calls != 0 {
		t.Error("deliverer must not run after a failed conversion")
	}
	assertEmptyDir(t, tmp)
}

func TestRun_ConverterFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		runner   *fakeRunner
		wantIs   error
		wantResp string
	}{
		{
			name:     "non-zero exit uses stderr",
			runner:   &fakeRunner{err: errors.New("exit status 64"), stderr: "  Unknown option --bad\n"},
			wantIs:   ErrConversionFailed,
			wantResp: "pandoc failed: Unknown option --bad",
		},
		{
			name:     "non-zero exit without stderr",
			runner:   &fakeRunner{err: errors.New("exit status 1")},
			wantIs:   ErrConversionFailed,
			wantResp: "pandoc failed: exit status 1",
		},
		{
			name:   "executable missing",
			runner: &fakeRunner{err: &exec.Error{Name: "pandoc", Err: exec.ErrNotFound}},
			wantIs: ErrConverterNotFound,
		},
		{
			name:   "no valid output",
			runner: &fakeRunner{skipOutput: true},
			wantIs: ErrConversionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, tmp := newTestBeamer(t, tt.runner, &recordingDeliverer{}, DefaultSettings())
			err := b.Run(context.Background(), Request{Title: "T", Content: "<p>x</p>"})

			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("error = %v, want %v", err, tt.wantIs)
			}
			if KindOf(err) != KindConversionFailed {
				t.Errorf("KindOf() = %v, want %v", KindOf(err), KindConversionFailed)
			}
			resp := ResponseFor(err)
			if !strings.HasPrefix(resp.Error, "pandoc failed: ") {
				t.Errorf("response = %q, want pandoc failed prefix", resp.Error)
			}
			if tt.wantResp != "" && resp.Error != tt.wantResp {
				t.Errorf("response = %q, want %q", resp.Error, tt.wantResp)
			}
			assertEmptyDir(t, tmp)
		})
	}
}

func TestRun_DeliveryFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantResp string
	}{
		{
			name:     "authentication rejected",
			err:      fmt.Errorf("%w: 535 5.7.8 bad credentials", mailer.ErrAuth),
			wantKind: KindDeliveryAuth,
			wantResp: "SMTP authentication failed - check your App Password",
		},
		{
			name:     "transport failure",
			err:      errors.New("dial tcp: connection refused"),
			wantKind: KindDeliveryTransport,
			wantResp: "Email failed: dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, tmp := newTestBeamer(t, &fakeRunner{}, &recordingDeliverer{err: tt.err}, DefaultSettings())
			err := b.Run(context.Background(), Request{Title: "T", Content: "<p>x</p>"})

			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(%v) = %v, want %v", err, got, tt.wantKind)
			}
			if got := ResponseFor(err).Error; got != tt.wantResp {
				t.Errorf("response = %q, want %q", got, tt.wantResp)
			}
			assertEmptyDir(t, tmp)
		})
	}
}

func TestRun_PanicBecomesInternalError(t *testing.T) {
	t.Parallel()

	d := DelivererFunc(func(context.Context, string, string) error {
		panic("boom")
	})
	b, tmp := newTestBeamer(t, &fakeRunner{}, d, DefaultSettings())

	err := b.Run(context.Background(), Request{Title: "T", Content: "<p>x</p>"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("error = %v, want ErrInternal", err)
	}
	if got := ResponseFor(err).Error; !strings.HasPrefix(got, "Unexpected error: ") {
		t.Errorf("response = %q", got)
	}
	assertEmptyDir(t, tmp)
}

func TestProcess_ResponseSurvivesFraming(t *testing.T) {
	t.Parallel()

	b, _ := newTestBeamer(t, &fakeRunner{}, &recordingDeliverer{}, DefaultSettings())

	for _, req := range []Request{
		{Title: "ok", Content: "<p>x</p>"},
		{Title: "empty"},
	} {
		resp := b.Process(context.Background(), req)

		var buf bytes.Buffer
		if err := framing.WriteMessage(&buf, resp); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
		var got Response
		if err := framing.ReadMessage(&buf, &got); err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if diff := cmp.Diff(resp, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

// ---------------------------------------------------------------------------
// TestNewBeamer - Construction
// ---------------------------------------------------------------------------

func TestNewBeamer_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewBeamer(DefaultSettings(), nil); err == nil {
		t.Error("nil deliverer should be rejected")
	}

	settings := DefaultSettings()
	settings.Style = "does-not-exist"
	_, err := NewBeamer(settings, &recordingDeliverer{})
	if !errors.Is(err, config.ErrInvalidValue) {
		t.Errorf("unknown style error = %v, want ErrInvalidValue", err)
	}
	if err != nil && !strings.Contains(err.Error(), "available:") {
		t.Errorf("unknown style error should list available styles: %v", err)
	}
}

func TestNewBeamer_StyleNone(t *testing.T) {
	t.Parallel()

	settings := DefaultSettings()
	settings.Style = "none"
	runner := &fakeRunner{}
	b, _ := newTestBeamer(t, runner, &recordingDeliverer{}, settings)

	if err := b.Run(context.Background(), Request{Content: "<p>x</p>"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Contains(runner.article, "stylesheet") {
		t.Error("style none should not link a stylesheet")
	}
	for _, a := range runner.args {
		if strings.HasPrefix(a, "--css=") {
			t.Errorf("style none should not pass %s", a)
		}
	}
}

// ---------------------------------------------------------------------------
// TestStage - Names
// ---------------------------------------------------------------------------

func TestStage_String(t *testing.T) {
	t.Parallel()

	tests := map[Stage]string{
		StageReceived:        "received",
		StageValidated:       "validated",
		StageImagesProcessed: "images_processed",
		StageDocumentBuilt:   "document_built",
		StageDelivered:       "delivered",
		StageCompleted:       "completed",
		StageFailed:          "failed",
		Stage(42):            "stage(42)",
	}
	for stage, want := range tests {
		if got := stage.String(); got != want {
			t.Errorf("Stage(%d).String() = %q, want %q", int(stage), got, want)
		}
	}
}
