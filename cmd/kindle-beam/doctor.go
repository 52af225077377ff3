package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	kindlebeam "github.com/alnah/go-kindlebeam"
	"github.com/alnah/go-kindlebeam/internal/config"
	"github.com/alnah/go-kindlebeam/internal/fileutil"
	"github.com/alnah/go-kindlebeam/internal/mailer"
)

// doctorProbeTimeout bounds the pandoc version probe and the SMTP login.
const doctorProbeTimeout = 20 * time.Second

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status    string        `json:"status"` // "ready", "warnings", "errors"
	Converter converterInfo `json:"converter"`
	Config    configInfo    `json:"config"`
	SMTP      *smtpInfo     `json:"smtp,omitempty"`
	System    systemInfo    `json:"system"`
	Warnings  []string      `json:"warnings,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
}

// converterInfo holds pandoc detection results.
type converterInfo struct {
	Found   bool   `json:"found"`
	Command string `json:"command"`
	Version string `json:"version,omitempty"`
}

// configInfo holds config loading results.
type configInfo struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Valid    bool   `json:"valid"`
	Modified string `json:"modified,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Kindle   string `json:"kindle_email,omitempty"`
	Server   string `json:"server,omitempty"`
}

// smtpInfo holds the SMTP login check result.
type smtpInfo struct {
	LoggedIn bool   `json:"logged_in"`
	Security string `json:"security"`
}

// systemInfo holds system check results.
type systemInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	TempDir      string `json:"temp_dir"`
	TempWritable bool   `json:"temp_writable"`
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	common commonFlags
	json   bool
	smtp   bool
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(ctx context.Context, args []string, env *Environment) int {
	var flags doctorFlags
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addCommonFlags(fs, &flags.common)
	fs.BoolVar(&flags.json, "json", false, "machine-readable output")
	fs.BoolVar(&flags.smtp, "smtp", false, "also log in to the SMTP server")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(env.Stderr, "error:", err)
		return ExitUsage
	}

	result := runDoctor(ctx, &flags, env)

	if flags.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(ctx context.Context, flags *doctorFlags, env *Environment) *doctorResult {
	result := &doctorResult{
		Status: "ready",
		System: systemInfo{OS: runtime.GOOS, Arch: runtime.GOARCH},
	}

	cfg := checkConfig(result, flags.common.config, env)
	checkConverter(ctx, result, cfg, env)
	checkSystem(result, env)
	if flags.smtp {
		checkSMTP(ctx, result, cfg, env)
	}

	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}
	return result
}

// checkConfig loads and validates the config. It returns a usable config
// even when loading failed, so later checks can run on defaults.
func checkConfig(result *doctorResult, flagPath string, env *Environment) *config.Config {
	cfg, path, err := loadConfig(flagPath, env, true)
	result.Config.Path = path

	if info, statErr := os.Stat(path); statErr == nil {
		result.Config.Exists = true
		result.Config.Modified = humanize.RelTime(info.ModTime(), env.Now(), "ago", "from now")
		if unknown := config.UnknownKeys(path); unknown != nil {
			result.Warnings = append(result.Warnings, "Unknown config key: "+firstLine(unknown.Error()))
		}
	}

	if err != nil {
		result.Errors = append(result.Errors, kindlebeam.ResponseFor(err).Error+hintFor(err, nil, path))
		lenient, _, lerr := loadConfig(flagPath, env, false)
		if lerr != nil {
			return config.DefaultConfig()
		}
		return lenient
	}

	result.Config.Valid = true
	result.Config.Sender = cfg.Sender()
	result.Config.Kindle = cfg.KindleEmail
	result.Config.Server = cfg.Addr()
	return cfg
}

// checkConverter runs "pandoc --version" and keeps the first line.
func checkConverter(ctx context.Context, result *doctorResult, cfg *config.Config, env *Environment) {
	result.Converter.Command = cfg.Pandoc

	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	stdout, _, err := env.runner().Run(ctx, cfg.Pandoc, "--version")
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("pandoc not usable (%s): %v%s", cfg.Pandoc, err, hintFor(kindlebeam.ErrConverterNotFound, cfg, "")))
		return
	}
	result.Converter.Found = true
	result.Converter.Version = firstLine(stdout)
}

// checkSystem verifies the temp directory accepts workspaces.
func checkSystem(result *doctorResult, env *Environment) {
	result.System.TempDir = env.TempDir
	if result.System.TempDir == "" {
		result.System.TempDir = os.TempDir()
	}

	path, err := fileutil.ReserveTempFile(env.TempDir, "txt")
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Temp directory not writable: %s", result.System.TempDir))
		return
	}
	_ = fileutil.Remove(path)
	result.System.TempWritable = true
}

// checkSMTP logs in without sending anything.
func checkSMTP(ctx context.Context, result *doctorResult, cfg *config.Config, env *Environment) {
	mcfg := kindlebeam.MailerConfig(cfg)
	mcfg.Timeout = doctorProbeTimeout
	result.SMTP = &smtpInfo{Security: mcfg.Security.String()}

	if !result.Config.Valid {
		result.Warnings = append(result.Warnings, "SMTP check skipped: config is not valid")
		return
	}

	err := mailer.New(mcfg, env.MailerOptions...).Verify(ctx)
	switch {
	case err == nil:
		result.SMTP.LoggedIn = true
	case errors.Is(err, mailer.ErrAuth):
		result.Errors = append(result.Errors,
			"SMTP login failed: "+err.Error()+hintFor(kindlebeam.ErrDeliveryAuth, cfg, ""))
	default:
		result.Errors = append(result.Errors, "SMTP connection failed: "+err.Error())
	}
}

// firstLine returns the first non-empty line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "kindle-beam doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Converter")
	if r.Converter.Found {
		fmt.Fprintf(w, "  [OK] %s\n", r.Converter.Version)
	} else {
		fmt.Fprintf(w, "  [ERROR] %s not found\n", r.Converter.Command)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Config")
	switch {
	case r.Config.Valid:
		fmt.Fprintf(w, "  [OK] %s", r.Config.Path)
		if r.Config.Modified != "" {
			fmt.Fprintf(w, " (modified %s)", r.Config.Modified)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  [OK] %s -> %s via %s\n", r.Config.Sender, r.Config.Kindle, r.Config.Server)
	case r.Config.Exists:
		fmt.Fprintf(w, "  [ERROR] %s is invalid\n", r.Config.Path)
	default:
		fmt.Fprintf(w, "  [ERROR] %s not found\n", r.Config.Path)
	}
	fmt.Fprintln(w)

	if r.SMTP != nil {
		fmt.Fprintln(w, "SMTP")
		if r.SMTP.LoggedIn {
			fmt.Fprintf(w, "  [OK] Login succeeded (%s)\n", r.SMTP.Security)
		} else {
			fmt.Fprintf(w, "  [ERROR] Login failed (%s)\n", r.SMTP.Security)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "System")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.System.OS, r.System.Arch)
	if r.System.TempWritable {
		fmt.Fprintf(w, "  [OK] Temp directory: %s writable\n", r.System.TempDir)
	} else {
		fmt.Fprintf(w, "  [ERROR] Temp directory: %s not writable\n", r.System.TempDir)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case "ready":
		fmt.Fprintln(w, "Status: Ready to beam")
	case "warnings":
		fmt.Fprintln(w, "Status: Ready with warnings")
	case "errors":
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
