package scaffolding

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func buildCmd(s MCPServerConfig) *exec.Cmd {
	return exec.Command(s.Command, s.Args...)
}

// MCPServerConfig names one MCP server to discover tools from
// (agent.mcp_servers in config), following the command+args shape the
// go-sdk's CommandTransport expects.
type MCPServerConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// DiscoverMCPTools connects to each configured MCP server over stdio,
// lists its tools, and returns them merged into a single Tool slice. A
// server that fails to connect is logged and skipped rather than failing
// the whole scaffolding build, since the tool catalog is advisory.
func DiscoverMCPTools(ctx context.Context, servers []MCPServerConfig) []Tool {
	var out []Tool
	for _, s := range servers {
		tools, err := discoverOne(ctx, s)
		if err != nil {
			slog.Warn("mcp tool discovery failed", "server", s.Name, "error", err)
			continue
		}
		out = append(out, tools...)
	}
	return out
}

func discoverOne(ctx context.Context, s MCPServerConfig) ([]Tool, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "realtime-broker",
		Version: "0.1.0",
	}, nil)

	transport := &mcpsdk.CommandTransport{Command: buildCmd(s)}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", s.Name, err)
	}
	defer session.Close()

	result, err := session.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", s.Name, err)
	}

	out := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tool := Tool{Type: "function", Name: t.Name, Description: t.Description}
		if schema, ok := any(t.InputSchema).(map[string]any); ok {
			tool.Parameters = schema
		}
		out = append(out, tool)
	}
	return out, nil
}
