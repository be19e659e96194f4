package main

import (
	"fmt"
	"os"

	"github.com/local-scope/localscope/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(cli.DefaultShell)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
