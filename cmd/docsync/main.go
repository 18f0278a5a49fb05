package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/docsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// Commands report ExitErrors themselves; anything else (flag and
	// argument errors from cobra) still needs printing.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
