// Package runner defines the Runner trait (§6.6): the boundary to
// whatever executes a workflow and produces log bytes. It is
// deliberately a one-operation interface — the wire protocol of the
// actual runner is out of scope; only the shape of "invoke it, get an
// exit code, its logs, and metadata back" is specified. Grounded on the
// teacher's GitHubClient interface (mcp_client.go), generalized from a
// GitHub-Actions-specific surface to the spec's single operation.
package runner

import "context"

// Metadata carries optional step boundaries the runner reported, if it
// reported any — the local-runner adapter's own invented log markers are
// one possible source, but a different Runner implementation may supply
// real structured metadata instead.
type Metadata struct {
	StepBoundaries []string // step names in execution order, if known
}

// Result is what one Run invocation produces.
type Result struct {
	ExitCode int
	LogBytes []byte
	Metadata Metadata
}

// Runner is the out-of-scope execution boundary. Implementations must
// not block past ctx cancellation.
type Runner interface {
	Run(ctx context.Context, selector string) (Result, error)
}
