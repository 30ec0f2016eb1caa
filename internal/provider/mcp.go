package provider

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/wardenci/warden/internal/mcptransport"
)

// streamChunkBuffer bounds the producer-consumer channel StreamAnalyze
// hands back, per Design Notes §9's "generator-based streaming" fix:
// a bounded buffer, closed on cancellation, clean end for the consumer.
const streamChunkBuffer = 16

// MCPAdapter is the one concrete Provider implementation: an MCP server
// stands in for the opaque LLM transport, since MCP's tool-call model
// covers both analyze and stream_analyze: each is one tool call, and the
// streaming variant's call returns the whole chunk list at once.
type MCPAdapter struct {
	client *mcptransport.Client
	logger *logrus.Logger
}

// NewMCPAdapter builds a Provider backed by an MCP server. Connect must
// be called before Analyze/StreamAnalyze.
func NewMCPAdapter(config mcptransport.Config, logger *logrus.Logger) *MCPAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &MCPAdapter{client: mcptransport.New(config, logger, "warden-provider", "v1"), logger: logger}
}

// Connect opens the MCP session.
func (a *MCPAdapter) Connect(ctx context.Context) error {
	return a.client.Connect(ctx)
}

// Close releases the MCP session, the "guaranteed release on all exit
// paths" requirement from Design Notes §9.
func (a *MCPAdapter) Close() error {
	return a.client.Close()
}

type mcpAnalyzeResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

func (a *MCPAdapter) Analyze(ctx context.Context, prompt string, promptContext map[string]string) (AnalysisResult, error) {
	contextJSON, _ := json.Marshal(promptContext)
	var out mcpAnalyzeResult
	if err := a.client.CallToolInto(ctx, "analyze", map[string]interface{}{
		"prompt":  prompt,
		"context": string(contextJSON),
	}, &out); err != nil {
		return AnalysisResult{}, toProviderError(err)
	}
	return AnalysisResult{Text: out.Text, TokensUsed: out.TokensUsed}, nil
}

type mcpStreamResult struct {
	Chunks []string `json:"chunks"`
}

// StreamAnalyze asks the MCP server for the full chunk sequence in one
// call (the MCP adapter has no native server-push support here) and
// replays it onto a bounded channel, closing the channel when the
// sequence ends or ctx is cancelled — the producer-consumer contract
// from Design Notes §9 without assuming a streaming transport exists.
func (a *MCPAdapter) StreamAnalyze(ctx context.Context, prompt string, promptContext map[string]string) (<-chan string, error) {
	contextJSON, _ := json.Marshal(promptContext)
	var out mcpStreamResult
	if err := a.client.CallToolInto(ctx, "stream_analyze", map[string]interface{}{
		"prompt":  prompt,
		"context": string(contextJSON),
	}, &out); err != nil {
		return nil, toProviderError(err)
	}

	ch := make(chan string, streamChunkBuffer)
	go func() {
		defer close(ch)
		for _, chunk := range out.Chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}

func toProviderError(err error) error {
	return &Error{Kind: KindNetwork, Message: "mcp provider call failed", Cause: err}
}
