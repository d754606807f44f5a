// Command instkey computes instance keys for composed scene locations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/instkey/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
