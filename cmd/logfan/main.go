// Command logfan is the operator tool for the logging pipeline:
// server health, stored files, replay, live tails and end-to-end
// delivery checks.
package main

import (
	"os"

	"github.com/DeBrosOfficial/logfan/pkg/cli"
)

// version metadata populated via -ldflags at build time
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
