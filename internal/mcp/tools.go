package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/watchfire-io/agentwatch/internal/agent"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.spawnAgentTool(),
		s.getAgentStatusTool(),
		s.listAgentsTool(),
		s.killAgentTool(),
		s.readAgentActivityTool(),
		s.searchAgentActivityTool(),
		s.listAgentRolesTool(),
	)
}

func (s *Server) spawnAgentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("spawn_agent",
		mcplib.WithDescription("Spawn a background agent for a task. Returns immediately with the task record; poll get_agent_status for completion."),
		mcplib.WithString("agent",
			mcplib.Required(),
			mcplib.Description("Agent role name (a role definition file in the roles directory)"),
		),
		mcplib.WithString("task",
			mcplib.Required(),
			mcplib.Description("What the agent should do"),
		),
		mcplib.WithString("mode",
			mcplib.Description("investigate (read-only tools) or implement (may edit files and run commands)"),
			mcplib.Enum(string(models.ModeInvestigate), string(models.ModeImplement)),
			mcplib.DefaultString(string(models.ModeInvestigate)),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSpawnAgent}
}

func (s *Server) getAgentStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_agent_status",
		mcplib.WithDescription("Get the status of a spawned agent. With block=true, waits until it finishes or the timeout elapses; timed_out=true means still running, not failed."),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("Task id returned by spawn_agent"),
		),
		mcplib.WithBoolean("block",
			mcplib.Description("Wait for the task to finish"),
		),
		mcplib.WithNumber("timeout_ms",
			mcplib.Description("Blocking wait limit in milliseconds (default 300000)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetAgentStatus}
}

func (s *Server) listAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agents",
		mcplib.WithDescription("List agents spawned by this session"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListAgents}
}

func (s *Server) killAgentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("kill_agent",
		mcplib.WithDescription("Terminate a running agent"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("Task id of the agent to terminate"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleKillAgent}
}

func (s *Server) readAgentActivityTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("read_agent_activity",
		mcplib.WithDescription("Read the parsed transcript of an agent"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("Task id of the agent"),
		),
		mcplib.WithString("filter",
			mcplib.Description("Only return events of this kind"),
			mcplib.Enum(string(transcript.KindText), string(transcript.KindToolCall),
				string(transcript.KindToolResult), string(transcript.KindResult), string(transcript.KindError)),
		),
		mcplib.WithNumber("offset",
			mcplib.Description("Index of the first event to return"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of events to return (default all)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReadAgentActivity}
}

func (s *Server) searchAgentActivityTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("search_agent_activity",
		mcplib.WithDescription("Search an agent's transcript with a regular expression"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("Task id of the agent"),
		),
		mcplib.WithString("pattern",
			mcplib.Required(),
			mcplib.Description("Regular expression (RE2 syntax)"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of matches (default 50)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSearchAgentActivity}
}

func (s *Server) listAgentRolesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agent_roles",
		mcplib.WithDescription("List the agent roles available to spawn_agent"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListAgentRoles}
}

func (s *Server) handleSpawnAgent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	name, err := req.RequireString("agent")
	if err != nil || name == "" {
		return mcplib.NewToolResultError("agent is required"), nil
	}
	task, err := req.RequireString("task")
	if err != nil || task == "" {
		return mcplib.NewToolResultError("task is required"), nil
	}
	mode := models.Mode(req.GetString("mode", string(models.ModeInvestigate)))

	rec, err := s.sup.Spawn(ctx, name, task, mode)
	if err != nil {
		if errors.Is(err, agent.ErrSpawnFailure) && rec != nil {
			return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("task %s failed to start", rec.ID), err), nil
		}
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return toolResultJSON(rec)
}

func (s *Server) handleGetAgentStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	taskID, err := req.RequireString("task_id")
	if err != nil || taskID == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	opts := agent.StatusOptions{
		Block:   req.GetBool("block", false),
		Timeout: time.Duration(req.GetFloat("timeout_ms", 0)) * time.Millisecond,
	}
	res, err := s.sup.GetStatus(ctx, taskID, opts)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return toolResultJSON(res)
}

func (s *Server) handleListAgents(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return toolResultJSON(s.sup.List())
}

func (s *Server) handleKillAgent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	taskID, err := req.RequireString("task_id")
	if err != nil || taskID == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	task, err := s.sup.Kill(ctx, taskID)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return toolResultJSON(task)
}

func (s *Server) handleReadAgentActivity(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	taskID, err := req.RequireString("task_id")
	if err != nil || taskID == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	opts := agent.ActivityOptions{
		Offset: req.GetInt("offset", 0),
		Limit:  req.GetInt("limit", 0),
	}
	if f := req.GetString("filter", ""); f != "" {
		kind, err := transcript.ParseKind(f)
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		opts.Filter = kind
	}

	act, err := s.sup.ReadActivity(taskID, opts)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if act.NoOutput {
		return mcplib.NewToolResultText(agent.NoOutputMarker), nil
	}
	return toolResultJSON(act)
}

func (s *Server) handleSearchAgentActivity(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	taskID, err := req.RequireString("task_id")
	if err != nil || taskID == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	pattern, err := req.RequireString("pattern")
	if err != nil || pattern == "" {
		return mcplib.NewToolResultError("pattern is required"), nil
	}

	act, err := s.sup.SearchActivity(taskID, pattern, req.GetInt("limit", 0))
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if act.NoOutput {
		return mcplib.NewToolResultText(agent.NoOutputMarker), nil
	}
	return toolResultJSON(act)
}

func (s *Server) handleListAgentRoles(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	roles, err := s.sup.Roles()
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list roles", err), nil
	}
	if roles == nil {
		roles = []string{}
	}
	return toolResultJSON(roles)
}

func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
