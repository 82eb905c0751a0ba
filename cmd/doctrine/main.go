package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// stdin is a variable so tests can feed payloads.
var stdin io.Reader = os.Stdin

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "scan":
		return runScanCmd(args[2:], stdout, stderr)
	case "validate-id":
		return runValidateIDCmd(args[2:], stdout, stderr)
	case "format":
		return runFormatCmd(args[2:], stdout, stderr)
	case "ddl":
		return runDDLCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	_, _ = fmt.Fprintln(w, "  doctrine <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "COMPLIANCE")
	printCommand(w, "scan", "Scan the configured catalog and print the report (--json, --fail-on-violations)")

	printSection(w, "PAYLOADS")
	printCommand(w, "format", "Wrap a payload in an envelope and render it for a dialect")
	printCommand(w, "ddl", "Print the storage statement for a dialect (--dialect, --name)")
	printCommand(w, "validate-id", "Check hierarchical identifiers")

	printSection(w, "UTILITIES")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-12s%s %s\n", colorGreen, name, colorReset, desc)
}
