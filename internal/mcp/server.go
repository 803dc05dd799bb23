// Package mcp exposes a supervisor's operations as MCP tools over stdio.
package mcp

import (
	"context"
	"io"
	"log"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/watchfire-io/agentwatch/internal/agent"
	"github.com/watchfire-io/agentwatch/internal/models"
)

// ServerName is reported to MCP clients.
const ServerName = "agentwatch"

// Supervisor is the set of operations served as tools.
type Supervisor interface {
	Spawn(ctx context.Context, agentName, description string, mode models.Mode) (*models.AgentTask, error)
	GetStatus(ctx context.Context, taskID string, opts agent.StatusOptions) (*agent.StatusResult, error)
	List() []*models.AgentTask
	Kill(ctx context.Context, taskID string) (*models.AgentTask, error)
	ReadActivity(taskID string, opts agent.ActivityOptions) (*agent.Activity, error)
	SearchActivity(taskID, pattern string, limit int) (*agent.Activity, error)
	Roles() ([]string, error)
}

// Server wraps an MCP server bound to a supervisor.
type Server struct {
	sup       Supervisor
	mcpServer *mcpserver.MCPServer
}

// NewServer creates an MCP server with every supervisor tool registered.
func NewServer(sup Supervisor, version string) *Server {
	s := &Server{
		sup: sup,
		mcpServer: mcpserver.NewMCPServer(ServerName, version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Serve speaks MCP over in/out until ctx is done or in is closed. Logs
// go to stderr; out carries only protocol messages.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))
	return stdio.Listen(ctx, in, out)
}
