// Command govkit is the DAO governance simulator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/govkit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
