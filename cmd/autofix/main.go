// Command autofix is the CLI entrypoint, generalizing the teacher's
// cli.go command tree (analyze, fix, validate, status, config, test)
// from a GitHub/Dagger-bound agent onto the local analysis engine: no
// repo-owner/repo-name/github-token flags, no pull-request step, no
// workflow-run-id argument — operations take a log file path instead.
package main

import (
	"os"

	"github.com/wardenci/warden/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
