package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	kindlebeam "github.com/alnah/go-kindlebeam"
	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/epub"
	"github.com/alnah/go-kindlebeam/internal/epub/epubtest"
)

// ---------------------------------------------------------------------------
// Test Infrastructure - Environment and collaborators
// ---------------------------------------------------------------------------

// fakePandoc answers --version and writes a minimal EPUB for conversions.
type fakePandoc struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePandoc) Run(_ context.Context, _ string, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return "", "", f.err
	}
	if len(args) == 1 && args[0] == "--version" {
		return "pandoc 3.1.9\nFeatures: +server +lua\n", "", nil
	}
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-o" {
			if err := epubtest.WriteMinimal(args[i+1], "test"); err != nil {
				return "", err.Error(), err
			}
		}
	}
	return "", "", nil
}

// deliveryLog records deliveries made through the test environment.
type deliveryLog struct {
	mu     sync.Mutex
	titles []string
	to     []string
	err    error
}

func (d *deliveryLog) factory(cfg *config.Config, _ *slog.Logger) kindlebeam.Deliverer {
	return kindlebeam.DelivererFunc(func(_ context.Context, artifact, title string) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, err := epub.Verify(artifact); err != nil {
			return err
		}
		d.titles = append(d.titles, title)
		d.to = append(d.to, cfg.KindleEmail)
		return d.err
	})
}

// testEnv bundles an Environment with its captured output.
type testEnv struct {
	*Environment
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	vars   map[string]string
	home   string
	pandoc *fakePandoc
	sent   *deliveryLog
}

// newTestEnv returns an isolated environment: HOME points to a temp dir,
// no KINDLE_BEAM_* variables are set, and collaborators are fakes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	te := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		vars:   map[string]string{},
		home:   t.TempDir(),
		pandoc: &fakePandoc{},
		sent:   &deliveryLog{},
	}
	te.vars["HOME"] = te.home

	te.Environment = &Environment{
		Now:    func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
		Stdin:  strings.NewReader(""),
		Stdout: te.stdout,
		Stderr: te.stderr,
		Getenv: func(k string) string { return te.vars[k] },
		Environ: func() []string {
			out := make([]string, 0, len(te.vars))
			for k, v := range te.vars {
				out = append(out, k+"="+v)
			}
			sort.Strings(out)
			return out
		},
		Runner:       te.pandoc,
		TempDir:      t.TempDir(),
		NewDeliverer: te.sent.factory,
	}
	return te
}

// writeConfig writes content to the default config location under HOME
// and returns its path.
func (te *testEnv) writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	dir := filepath.Join(te.home, ".config", config.AppName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// defaultConfigPath is where the config is expected when none exists.
func (te *testEnv) defaultConfigPath() string {
	return filepath.Join(te.home, ".config", config.AppName, "config.json")
}

const validConfigJSON = `{
  // comments are allowed
  "smtp_user": "me@gmail.com",
  "smtp_pass": "abcd efgh ijkl mnop",
  "kindle_email": "me_kindle@kindle.com",
}`
