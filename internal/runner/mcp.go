package runner

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/mcptransport"
)

// MCPAdapter is the one concrete Runner implementation: it shells out to
// an MCP server fronting the actual workflow-execution process, the way
// the teacher's MCPGitHubClient fronts GitHub Actions. Grounded on
// mcp_client.go's GetWorkflowRun/GetWorkflowLogs tool-call shape,
// collapsed into the trait's single Run operation.
type MCPAdapter struct {
	client *mcptransport.Client
}

// NewMCPAdapter builds a Runner backed by an MCP server. Connect must be
// called before Run.
func NewMCPAdapter(config mcptransport.Config, logger *logrus.Logger) *MCPAdapter {
	return &MCPAdapter{client: mcptransport.New(config, logger, "warden-runner", "v1")}
}

// Connect opens the MCP session.
func (a *MCPAdapter) Connect(ctx context.Context) error {
	return a.client.Connect(ctx)
}

// Close releases the MCP session.
func (a *MCPAdapter) Close() error {
	return a.client.Close()
}

type mcpRunToolResult struct {
	ExitCode       int      `json:"exit_code"`
	LogText        string   `json:"log_text"`
	StepBoundaries []string `json:"step_boundaries"`
}

// Run asks the MCP server to execute the workflow named by selector and
// returns its exit code, raw log bytes, and any step-boundary metadata it
// reported.
func (a *MCPAdapter) Run(ctx context.Context, selector string) (Result, error) {
	var out mcpRunToolResult
	if err := a.client.CallToolInto(ctx, "run_workflow", map[string]interface{}{
		"selector": selector,
	}, &out); err != nil {
		return Result{}, errs.Wrap(errs.KindExternal, "runner invocation failed for "+selector, err)
	}
	return Result{
		ExitCode: out.ExitCode,
		LogBytes: []byte(out.LogText),
		Metadata: Metadata{StepBoundaries: out.StepBoundaries},
	}, nil
}
