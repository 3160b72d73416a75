// Command tracecheck runs trace continuity checks against subject programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tracecheck/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
