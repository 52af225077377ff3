package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
)

// HostName is the native messaging host name registered with browsers.
const HostName = "com.kindlebeam.host"

// hostDescription appears in the browser's host manifest.
const hostDescription = "Kindle Beam - send web articles to Kindle"

// manifest is the native messaging host manifest. Chrome lists allowed
// origins, Firefox lists extension IDs.
type manifest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Path              string   `json:"path"`
	Type              string   `json:"type"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}

// manifestFlags holds flags for the manifest command.
type manifestFlags struct {
	extensionID string
	browser     string
	path        string
}

// buildManifest returns the manifest for browser ("chrome" or "firefox").
func buildManifest(f *manifestFlags) (*manifest, error) {
	if strings.TrimSpace(f.extensionID) == "" {
		return nil, fmt.Errorf("%w: --extension-id is required", ErrUsage)
	}
	if !filepath.IsAbs(f.path) {
		return nil, fmt.Errorf("%w: host path must be absolute, got %q", ErrUsage, f.path)
	}

	m := &manifest{
		Name:        HostName,
		Description: hostDescription,
		Path:        f.path,
		Type:        "stdio",
	}
	switch strings.ToLower(f.browser) {
	case "", "chrome", "chromium", "edge", "brave":
		id := strings.TrimSuffix(strings.TrimPrefix(f.extensionID, "chrome-extension://"), "/")
		m.AllowedOrigins = []string{"chrome-extension://" + id + "/"}
	case "firefox":
		m.AllowedExtensions = []string{f.extensionID}
	default:
		return nil, fmt.Errorf("%w: unsupported browser %q (chrome, firefox)", ErrUsage, f.browser)
	}
	return m, nil
}

// runManifestCmd prints the host manifest JSON.
func runManifestCmd(args []string, env *Environment) int {
	var f manifestFlags
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.extensionID, "extension-id", "", "browser extension ID")
	fs.StringVar(&f.browser, "browser", "chrome", "chrome or firefox")
	fs.StringVar(&f.path, "path", "", "absolute path of the kindle-beam binary (default: this executable)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(env.Stderr, "error:", err)
		printManifestUsage(env.Stderr)
		return ExitUsage
	}

	if f.path == "" {
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintln(env.Stderr, "error: locating executable:", err)
			return ExitIO
		}
		f.path = exe
	}

	m, err := buildManifest(&f)
	if err != nil {
		fmt.Fprintln(env.Stderr, "error:", err)
		return exitCodeFor(err)
	}

	enc := json.NewEncoder(env.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		fmt.Fprintln(env.Stderr, "error:", err)
		return ExitIO
	}
	return ExitSuccess
}
