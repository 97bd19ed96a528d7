// Package mcpserver exposes the tool registry to MCP clients over stdio.
//
// Every registered tool becomes one MCP tool with the same name,
// description and JSON Schema. Calls run through [tools.Registry.Execute]
// exactly as the agent loop runs them, on behalf of a single configured
// user and with the current instant as the temporal reference.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nugget/assistente/internal/buildinfo"
	"github.com/nugget/assistente/internal/llm"
	"github.com/nugget/assistente/internal/tools"
)

// Server adapts a tool registry to an MCP server.
type Server struct {
	registry  *tools.Registry
	userID    string
	loc       *time.Location
	logger    *slog.Logger
	mcpServer *server.MCPServer

	now func() time.Time
}

// New builds an MCP server exposing every tool in registry. Calls act
// on behalf of userID and read times in loc.
func New(registry *tools.Registry, userID string, loc *time.Location, logger *slog.Logger) (*Server, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: registry,
		userID:   userID,
		loc:      loc,
		logger:   logger.With("component", "mcp"),
		now:      time.Now,
	}

	s.mcpServer = server.NewMCPServer(
		"assistente",
		buildinfo.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, t := range registry.All() {
		schema, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", t.Name, err)
		}
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, schema), s.handler(t.Name))
	}
	s.logger.Debug("MCP tools registered", "count", len(registry.Names()), "user", userID)
	return s, nil
}

// handler dispatches one MCP tool call through the registry. Tool
// errors come back as error results carrying the same text the model
// would have seen; they are never protocol errors.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = tools.WithRequest(ctx, tools.Request{
			UserID:    s.userID,
			Reference: s.now().In(s.loc),
			Location:  s.loc,
		})

		begin := time.Now()
		result, err := s.registry.Execute(ctx, llm.NewToolCall("", name, request.GetArguments()))
		if err != nil {
			s.logger.Warn("MCP tool call failed", "tool", name, "error", err, "elapsed", time.Since(begin))
			return mcp.NewToolResultError(tools.Observe(result, err)), nil
		}
		s.logger.Info("MCP tool executed", "tool", name, "elapsed", time.Since(begin))
		return mcp.NewToolResultText(result), nil
	}
}

// Serve speaks MCP over stdin/stdout until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying server for other transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
