package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: kindle-beam [command] [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without a command, kindle-beam runs as a browser native messaging host.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  host       Serve one request from the browser on stdin/stdout")
	fmt.Fprintln(w, "  send       Send a local HTML or Markdown file to Kindle")
	fmt.Fprintln(w, "  doctor     Check pandoc, config, and SMTP")
	fmt.Fprintln(w, "  manifest   Print the native messaging host manifest")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'kindle-beam help <command>' for details on a specific command.")
}

// printSendUsage prints usage for the send command.
func printSendUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: kindle-beam send <file.html|file.md> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Convert a local article to EPUB and email it to Kindle.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -t, --title <s>       Article title (default: file name)")
	fmt.Fprintln(w, "  -u, --url <url>       Source URL, base for relative images")
	fmt.Fprintln(w, "      --style <s>       Style name, CSS path, or none")
	fmt.Fprintln(w, "  -c, --config <path>   Config file path")
	fmt.Fprintln(w, "      --dry-run         Write the EPUB instead of sending it")
	fmt.Fprintln(w, "  -o, --output <path>   EPUB path for --dry-run (default: <file>.epub)")
	fmt.Fprintln(w, "  -q, --quiet           Only show errors")
	fmt.Fprintln(w, "  -v, --verbose         Debug logging")
}

// printManifestUsage prints usage for the manifest command.
func printManifestUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: kindle-beam manifest --extension-id <id> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the native messaging host manifest JSON.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "      --extension-id <id>   Browser extension ID (required)")
	fmt.Fprintln(w, "      --browser <s>         chrome or firefox (default: chrome)")
	fmt.Fprintln(w, "      --path <path>         Host binary path (default: this executable)")
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}

	switch args[0] {
	case "send":
		printSendUsage(env.Stdout)
	case "manifest":
		printManifestUsage(env.Stdout)
	case "host":
		fmt.Fprintln(env.Stdout, "Usage: kindle-beam host [-c config] [-v]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Read one length-prefixed JSON request from stdin and write one response to stdout.")
	case "doctor":
		fmt.Fprintln(env.Stdout, "Usage: kindle-beam doctor [--json] [--smtp] [-c config]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Check pandoc, the config file, and the temp directory.")
		fmt.Fprintln(env.Stdout, "With --smtp, also log in to the SMTP server.")
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: kindle-beam version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: kindle-beam help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
	return ExitSuccess
}
