package mcp

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "recall"

// NewServer builds an MCP server exposing every tool of h.
func NewServer(h *Handler, version string, logger *log.Logger) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, tool := range h.Tools() {
		s.AddTool(tool, h.toolFunc(tool.Name, logger))
	}
	return s
}

// toolFunc adapts CallTool to mcp-go. Failures become tool errors so the
// client sees the message instead of a protocol error.
func (h *Handler) toolFunc(name string, logger *log.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		result, err := h.CallTool(ctx, name, args)
		if err != nil {
			if logger != nil {
				logger.Warn("tool call failed", "tool", name, "err", err)
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}

// Serve runs the MCP server on stdin/stdout until the input closes.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
