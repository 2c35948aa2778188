// Command txledger applies transaction CSVs to client accounts.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/txledger/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
