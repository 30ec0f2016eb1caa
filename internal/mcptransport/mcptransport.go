// Package mcptransport is the shared MCP client wrapper backing the
// Provider and Runner trait adapters (internal/provider, internal/runner).
// Grounded directly on the teacher's mcp_client.go MCPClient, generalized
// from a GitHub-specific wrapper into a bare tool-call transport: both
// traits are, at the wire level, "call a named tool with arguments, get
// structured content back."
package mcptransport

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/wardenci/warden/internal/errs"
)

// Config describes how to launch and reach an MCP server subprocess.
type Config struct {
	ServerCommand []string
	ServerArgs    []string
	ServerEnv     map[string]string
}

// Client wraps an MCP session: connect once, call tools, close once.
type Client struct {
	client  *mcp.Client
	session *mcp.ClientSession
	logger  *logrus.Logger
	config  Config
}

// New builds a disconnected Client. Call Connect before CallTool.
func New(config Config, logger *logrus.Logger, clientName, clientVersion string) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		client: mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil),
		logger: logger,
		config: config,
	}
}

// Connect launches the configured server subprocess and opens a session.
func (c *Client) Connect(ctx context.Context) error {
	if len(c.config.ServerCommand) == 0 {
		return errs.New(errs.KindConfig, "mcp server command is required")
	}

	cmd := exec.Command(c.config.ServerCommand[0], c.config.ServerCommand[1:]...)
	if len(c.config.ServerArgs) > 0 {
		cmd.Args = append(cmd.Args, c.config.ServerArgs...)
	}
	for k, v := range c.config.ServerEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	session, err := c.client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return errs.Wrap(errs.KindExternal, "connect to mcp server", err)
	}
	c.session = session
	c.logger.Info("connected to mcp server")
	return nil
}

// CallTool invokes a named tool and returns its raw result.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if c.session == nil {
		return nil, errs.New(errs.KindExternal, "mcp client not connected")
	}

	c.logger.WithFields(logrus.Fields{"tool": toolName}).Debug("calling mcp tool")
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: arguments})
	if err != nil {
		return nil, errs.Wrap(errs.KindExternal, "mcp tool call failed: "+toolName, err)
	}
	return result, nil
}

// CallToolInto calls a tool and unmarshals its result content into target.
func (c *Client) CallToolInto(ctx context.Context, toolName string, arguments map[string]interface{}, target interface{}) error {
	result, err := c.CallTool(ctx, toolName, arguments)
	if err != nil {
		return err
	}
	return decodeResult(result, target)
}

// Close closes the underlying session, if any.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func decodeResult(result *mcp.CallToolResult, target interface{}) error {
	if result == nil {
		return errs.New(errs.KindExternal, "nil mcp result")
	}

	var data interface{} = ""
	if len(result.Content) > 0 {
		switch content := result.Content[0].(type) {
		case *mcp.TextContent:
			if err := json.Unmarshal([]byte(content.Text), &data); err != nil {
				data = content.Text
			}
		default:
			jsonBytes, err := content.MarshalJSON()
			if err != nil {
				return errs.Wrap(errs.KindParse, "marshal mcp content", err)
			}
			if err := json.Unmarshal(jsonBytes, &data); err != nil {
				return errs.Wrap(errs.KindParse, "unmarshal mcp content", err)
			}
		}
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return errs.Wrap(errs.KindParse, "re-marshal mcp data", err)
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return errs.Wrap(errs.KindParse, "unmarshal mcp data into target", err)
	}
	return nil
}
