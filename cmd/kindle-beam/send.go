package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	kindlebeam "github.com/alnah/go-kindlebeam"
	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/fileutil"
	"github.com/alnah/go-kindlebeam/internal/pipeline"
)

// sendFlags holds flags for the send command.
type sendFlags struct {
	common commonFlags
	title  string
	url    string
	style  string
	output string
	dryRun bool
}

// markdownExtensions are converted to HTML before the pipeline runs.
var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

// parseSendFlags parses send flags and returns the single input path.
func parseSendFlags(args []string) (*sendFlags, string, error) {
	var f sendFlags
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addCommonFlags(fs, &f.common)
	fs.StringVarP(&f.title, "title", "t", "", "article title (default: file name)")
	fs.StringVarP(&f.url, "url", "u", "", "source URL, base for relative images")
	fs.StringVar(&f.style, "style", "", "style name, CSS path, or none")
	fs.StringVarP(&f.output, "output", "o", "", "EPUB path for --dry-run")
	fs.BoolVar(&f.dryRun, "dry-run", false, "write the EPUB instead of sending it")

	if err := fs.Parse(args); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return nil, "", fmt.Errorf("%w: send takes exactly one input file", ErrUsage)
	}
	if f.output != "" && !f.dryRun {
		return nil, "", fmt.Errorf("%w: --output requires --dry-run", ErrUsage)
	}
	return &f, fs.Arg(0), nil
}

// runSendCmd runs the pipeline on a local HTML or Markdown file.
func runSendCmd(ctx context.Context, args []string, env *Environment) int {
	flags, input, err := parseSendFlags(args)
	if err != nil {
		fmt.Fprintln(env.Stderr, "error:", err)
		printSendUsage(env.Stderr)
		return ExitUsage
	}

	cfg, err := runSend(ctx, flags, input, env)
	if err != nil {
		path := config.ResolvePath(flags.common.config, env.Getenv)
		fmt.Fprintf(env.Stderr, "error: %s%s\n", kindlebeam.ResponseFor(err).Error, hintFor(err, cfg, path))
		return exitCodeFor(err)
	}
	return ExitSuccess
}

// runSend does the work of runSendCmd. The config is returned, when it
// loaded, for error hints.
func runSend(ctx context.Context, flags *sendFlags, input string, env *Environment) (*config.Config, error) {
	warnUnknownEnvVars(env.Stderr, env.Environ())

	req, err := readArticle(ctx, input, flags)
	if err != nil {
		return nil, err
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg, _, err := loadConfig(flags.common.config, env, !flags.dryRun)
	if err != nil {
		return nil, err
	}
	if flags.style != "" {
		cfg.Style = flags.style
	}

	logger, closeLog, err := newLogger(env, cfg, flags.common.verbose)
	if err != nil {
		return cfg, err
	}
	defer closeLog()

	var deliverer kindlebeam.Deliverer
	output := ""
	if flags.dryRun {
		output = flags.output
		if output == "" {
			output = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".epub"
		}
		deliverer = &kindlebeam.FileDeliverer{Path: output}
	} else {
		deliverer = env.deliverer(cfg, logger)
	}

	beamer, err := kindlebeam.NewBeamer(kindlebeam.SettingsFromConfig(cfg), deliverer, env.beamerOptions(logger)...)
	if err != nil {
		return cfg, err
	}
	if err := beamer.Run(ctx, req); err != nil {
		return cfg, err
	}

	if flags.common.quiet {
		return cfg, nil
	}
	if flags.dryRun {
		size := ""
		if info, err := os.Stat(output); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")" // #nosec G115 -- file sizes are non-negative
		}
		fmt.Fprintf(env.Stdout, "Wrote %s%s\n", output, size)
		return cfg, nil
	}
	fmt.Fprintf(env.Stdout, "Sent %q to %s\n", req.Title, cfg.KindleEmail)
	return cfg, nil
}

// readArticle loads input as a Request. Markdown is rendered to HTML,
// relative images next to the file become file:// URLs, and the title
// defaults to the file name without extension.
func readArticle(ctx context.Context, input string, flags *sendFlags) (kindlebeam.Request, error) {
	data, err := os.ReadFile(input) // #nosec G304 -- input path is user-provided
	if err != nil {
		return kindlebeam.Request{}, fmt.Errorf("%w: reading input: %v", kindlebeam.ErrIO, err)
	}

	content := string(data)
	if markdownExtensions[strings.ToLower(filepath.Ext(input))] {
		content, err = pipeline.NewGoldmarkConverter().ToHTML(ctx, content)
		if err != nil {
			return kindlebeam.Request{}, err
		}
	}
	local := pipeline.LocalImageSources(content, filepath.Dir(input), fileutil.FileExists)
	content = pipeline.RewriteImageSources(content, local)

	title := flags.title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	}
	return kindlebeam.Request{Title: title, Content: content, URL: flags.url}, nil
}
