package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes. Scripts driving `episodes assemble --wait` distinguish a
// stopped daemon from a failed request.
const (
	exitFailure     = 1
	exitNoDaemon    = 3
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	code := exitCode(err)
	if code != exitInterrupted {
		fmt.Fprintf(stderr, "splicer: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, errDaemonUnreachable):
		return exitNoDaemon
	}
	return exitFailure
}
