package kindlebeam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alnah/go-kindlebeam/internal/epub"
	"github.com/alnah/go-kindlebeam/internal/process"
)

// Converter defaults.
const (
	// DefaultConvertTimeout bounds a single converter run.
	DefaultConvertTimeout = 60 * time.Second

	// killWaitDelay bounds how long Wait blocks on output pipes after the
	// process group was killed.
	killWaitDelay = 5 * time.Second

	// maxStderrLen bounds the converter diagnostics kept in errors.
	maxStderrLen = 2000
)

// Workspace file names.
const (
	articleFile = "article.html"
	styleFile   = "style.css"
)

// CommandRunner abstracts command execution to enable testing without real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec. The command runs in its
// own process group, and the whole group is killed when ctx ends.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- converter path comes from config
	process.Configure(cmd)
	cmd.Cancel = func() error {
		process.KillProcessGroup(cmd.Process.Pid)
		return nil
	}
	cmd.WaitDelay = killWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Document is the content handed to the assembler.
type Document struct {
	Title     string
	Body      string // HTML fragment, image sources already local
	SourceURL string
}

// shellData feeds the article template.
type shellData struct {
	Title      string
	Body       template.HTML
	SourceURL  string
	Stylesheet string
	Language   string
}

// Assembler renders the HTML shell into a workspace and runs the converter
// to produce an EPUB file.
type Assembler struct {
	runner   CommandRunner
	pandoc   string
	timeout  time.Duration
	shell    *template.Template
	css      string
	language string
	now      func() time.Time
	logger   *slog.Logger
}

// Assemble writes the shell and stylesheet into workspace, converts them to
// an EPUB at output and verifies the result. It never removes output.
func (a *Assembler) Assemble(ctx context.Context, workspace string, doc Document, output string) error {
	htmlPath, cssPath, err := a.writeSources(workspace, doc)
	if err != nil {
		return err
	}

	args := []string{
		htmlPath,
		"-o", output,
		"--standalone",
		"-f", "html",
		"-t", "epub",
		"--metadata=title:" + doc.Title,
		"--resource-path=" + workspace,
	}
	if cssPath != "" {
		args = append(args, "--css="+cssPath)
	}
	if a.language != "" {
		args = append(args, "--metadata=lang:"+a.language)
	}
	args = append(args, "--metadata=date:"+a.now().Format(time.DateOnly))

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	_, stderr, err := a.runner.Run(runCtx, a.pandoc, args...)
	if err != nil {
		return a.classify(ctx, runCtx, err, stderr)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		a.logger.Debug("converter warnings", "stderr", truncate(s, maxStderrLen))
	}

	info, err := epub.Verify(output)
	if err != nil {
		return &ConversionError{Err: ErrConversionFailed, Detail: "output is not a valid EPUB: " + err.Error()}
	}
	a.logger.Debug("converter finished", "entries", info.Entries, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// writeSources renders the shell and the stylesheet into workspace.
// cssPath is empty when no stylesheet is used.
func (a *Assembler) writeSources(workspace string, doc Document) (htmlPath, cssPath string, err error) {
	data := shellData{
		Title:     doc.Title,
		Body:      template.HTML(doc.Body), // #nosec G203 -- article markup is the payload
		SourceURL: doc.SourceURL,
		Language:  a.language,
	}
	if a.css != "" {
		data.Stylesheet = styleFile
		cssPath = filepath.Join(workspace, styleFile)
		if err := os.WriteFile(cssPath, []byte(a.css), 0o600); err != nil {
			return "", "", fmt.Errorf("%w: writing stylesheet: %v", ErrIO, err)
		}
	}

	var buf bytes.Buffer
	if err := a.shell.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("rendering article shell: %w", err)
	}

	htmlPath = filepath.Join(workspace, articleFile)
	if err := os.WriteFile(htmlPath, buf.Bytes(), 0o600); err != nil {
		return "", "", fmt.Errorf("%w: writing article: %v", ErrIO, err)
	}
	return htmlPath, cssPath, nil
}

// classify maps a runner failure to the converter error taxonomy.
func (a *Assembler) classify(parent, runCtx context.Context, err error, stderr string) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("conversion canceled: %w", parent.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrConversionTimeout, a.timeout)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return &ConversionError{Err: ErrConverterNotFound, Detail: err.Error()}
	}

	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = err.Error()
	}
	return &ConversionError{Err: ErrConversionFailed, Detail: truncate(detail, maxStderrLen)}
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
