// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"runtime"
	"strings"
)

// LookupEnv is the environment accessor, replaceable in tests.
var LookupEnv = os.Getenv

// ForConverterNotFound returns hints when the pandoc executable is missing.
func ForConverterNotFound() string {
	install := "install pandoc from https://pandoc.org/installing.html"
	switch runtime.GOOS {
	case "darwin":
		install = "install pandoc with: brew install pandoc"
	case "linux":
		install = "install pandoc with your package manager (apt install pandoc)"
	}
	hints := []string{install}
	if LookupEnv("KINDLE_BEAM_PANDOC") == "" {
		hints = append(hints, "or set KINDLE_BEAM_PANDOC / the pandoc config key to its full path")
	}
	return formatHints(hints)
}

// ForAuth returns a hint about SMTP authentication with app passwords.
func ForAuth(host string) string {
	if strings.Contains(strings.ToLower(host), "gmail") {
		return format("Gmail requires an App Password: https://myaccount.google.com/apppasswords")
	}
	return format("check smtp_user and smtp_pass; providers with 2FA require an app password")
}

// ForTimeout returns a hint about increasing the conversion timeout.
func ForTimeout() string {
	return format("for large articles, raise convert_timeout or set KINDLE_BEAM_TIMEOUT")
}

// ForConfigNotFound returns hints for config file not found errors.
func ForConfigNotFound(path string) string {
	hint := "use --config /path/to/config.json or set KINDLE_BEAM_CONFIG"
	if path != "" {
		hint += "; expected at " + path
	}
	return format(hint)
}

// ForMissingKeys returns a hint naming the environment variables that can
// supply missing credentials.
func ForMissingKeys(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	vars := make([]string, len(keys))
	for i, k := range keys {
		vars[i] = "KINDLE_BEAM_" + strings.ToUpper(k)
	}
	return format("add them to the config file or set " + strings.Join(vars, ", "))
}

// ForStyleNotFound returns hints for style not found errors.
func ForStyleNotFound(available []string) string {
	if len(available) == 0 {
		return ""
	}
	return format("available: " + strings.Join(available, ", ") + ", none")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
