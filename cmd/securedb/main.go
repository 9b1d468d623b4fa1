package main

import (
	"os"

	"github.com/a2f0/tearleads-securedb/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(os.Stdout, cli.DefaultBuildInfo())
	if err := cmd.Execute(); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
