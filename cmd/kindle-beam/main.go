package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply. Its logger stays silent so
	// stderr only carries the host log.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	ctx, stop := notifyContext(context.Background())
	code := runMain(ctx, os.Args, DefaultEnv())
	stop()
	os.Exit(code)
}

// runMain dispatches to a command and returns the exit code.
// Anything that is not a command, including the arguments browsers pass
// when launching a native host, selects host mode.
func runMain(ctx context.Context, args []string, env *Environment) int {
	if len(args) < 2 {
		return runHostCmd(ctx, nil, env)
	}

	cmd, rest := args[1], args[2:]
	switch cmd {
	case "host":
		return runHostCmd(ctx, rest, env)
	case "send":
		return runSendCmd(ctx, rest, env)
	case "doctor":
		return runDoctorCmd(ctx, rest, env)
	case "manifest":
		return runManifestCmd(rest, env)
	case "version", "--version":
		fmt.Fprintf(env.Stdout, "kindle-beam %s\n", Version)
		return ExitSuccess
	case "help", "--help", "-h":
		return runHelp(rest, env)
	}

	if isBrowserArg(cmd) || strings.HasPrefix(cmd, "-") {
		return runHostCmd(ctx, args[1:], env)
	}
	fmt.Fprintf(env.Stderr, "Unknown command: %s\n", cmd)
	printUsage(env.Stderr)
	return ExitUsage
}
