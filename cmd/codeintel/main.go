// cmd/codeintel/main.go
package main

import (
	"github.com/mwiater/codeintel/internal/cli"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main runs the codeintel command tree. 'codeintel worker' is the analysis
// worker the other commands spawn.
func main() {
	cli.SetVersionInfo(version, commit, date)
	cli.Execute()
}
