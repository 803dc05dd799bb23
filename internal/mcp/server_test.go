package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/watchfire-io/agentwatch/internal/agent"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

type fakeSupervisor struct {
	tasks      map[string]*models.AgentTask
	roles      []string
	spawnErr   error
	lastStatus agent.StatusOptions
	lastRead   agent.ActivityOptions
	activity   *agent.Activity
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		tasks: map[string]*models.AgentTask{},
		roles: []string{"database", "reviewer"},
	}
}

func (f *fakeSupervisor) Spawn(_ context.Context, name, desc string, mode models.Mode) (*models.AgentTask, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", agent.ErrInvalidMode, mode)
	}
	task := models.NewAgentTask("t-1", "proj", "s-1", name, desc, mode, "/tmp/t-1.log")
	if f.spawnErr != nil {
		task.Finish(models.TaskStatusFailed, nil)
		return task, f.spawnErr
	}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeSupervisor) GetStatus(_ context.Context, id string, opts agent.StatusOptions) (*agent.StatusResult, error) {
	f.lastStatus = opts
	task, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrTaskNotFound, id)
	}
	return &agent.StatusResult{Task: task, TimedOut: opts.Block}, nil
}

func (f *fakeSupervisor) List() []*models.AgentTask {
	out := make([]*models.AgentTask, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

func (f *fakeSupervisor) Kill(_ context.Context, id string) (*models.AgentTask, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrTaskNotFound, id)
	}
	if !task.Finish(models.TaskStatusFailed, models.IntPtr(models.KilledExitCode)) {
		return nil, fmt.Errorf("%w: %s", agent.ErrNotRunning, id)
	}
	return task, nil
}

func (f *fakeSupervisor) ReadActivity(id string, opts agent.ActivityOptions) (*agent.Activity, error) {
	f.lastRead = opts
	if _, ok := f.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrTaskNotFound, id)
	}
	return f.activity, nil
}

func (f *fakeSupervisor) SearchActivity(id, pattern string, _ int) (*agent.Activity, error) {
	if _, ok := f.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrTaskNotFound, id)
	}
	if pattern == "(" {
		return nil, fmt.Errorf("%w: %s", agent.ErrInvalidPattern, pattern)
	}
	return f.activity, nil
}

func (f *fakeSupervisor) Roles() ([]string, error) {
	return f.roles, nil
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("%s returned error: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty result content")
	}
	tc, ok := r.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, want TextContent", r.Content[0])
	}
	return tc.Text
}

func TestToolsRegistered(t *testing.T) {
	s := NewServer(newFakeSupervisor(), "test")
	tools := s.MCPServer().ListTools()
	for _, name := range []string{
		"spawn_agent", "get_agent_status", "list_agents", "kill_agent",
		"read_agent_activity", "search_agent_activity", "list_agent_roles",
	} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestSpawnAgent(t *testing.T) {
	sup := newFakeSupervisor()
	s := NewServer(sup, "test")

	r := callTool(t, s, "spawn_agent", map[string]any{"agent": "database", "task": "list tables"})
	if r.IsError {
		t.Fatalf("spawn_agent error: %s", resultText(t, r))
	}
	var task models.AgentTask
	if err := json.Unmarshal([]byte(resultText(t, r)), &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Status != models.TaskStatusRunning {
		t.Errorf("status = %q, want %q", task.Status, models.TaskStatusRunning)
	}
	if task.Mode != models.ModeInvestigate {
		t.Errorf("mode = %q, want default %q", task.Mode, models.ModeInvestigate)
	}
}

func TestSpawnAgentErrors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		err  error
		want string
	}{
		{"missing agent", map[string]any{"task": "x"}, nil, "agent is required"},
		{"missing task", map[string]any{"agent": "database"}, nil, "task is required"},
		{"bad mode", map[string]any{"agent": "database", "task": "x", "mode": "destroy"}, nil, "invalid mode"},
		{"spawn failure", map[string]any{"agent": "database", "task": "x"}, agent.ErrSpawnFailure, "failed to start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := newFakeSupervisor()
			sup.spawnErr = tt.err
			r := callTool(t, NewServer(sup, "test"), "spawn_agent", tt.args)
			if !r.IsError {
				t.Fatal("expected error result")
			}
			if got := resultText(t, r); !strings.Contains(got, tt.want) {
				t.Errorf("error = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestGetAgentStatus(t *testing.T) {
	sup := newFakeSupervisor()
	s := NewServer(sup, "test")
	callTool(t, s, "spawn_agent", map[string]any{"agent": "database", "task": "x"})

	r := callTool(t, s, "get_agent_status", map[string]any{"task_id": "t-1", "block": true, "timeout_ms": float64(1500)})
	if r.IsError {
		t.Fatalf("get_agent_status error: %s", resultText(t, r))
	}
	if !sup.lastStatus.Block || sup.lastStatus.Timeout != 1500*time.Millisecond {
		t.Errorf("status options = %+v, want block with 1.5s timeout", sup.lastStatus)
	}
	var res agent.StatusResult
	if err := json.Unmarshal([]byte(resultText(t, r)), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.TimedOut {
		t.Error("timed_out = false, want true")
	}

	r = callTool(t, s, "get_agent_status", map[string]any{"task_id": "nope"})
	if !r.IsError || !strings.Contains(resultText(t, r), "not found") {
		t.Errorf("unknown task result = %q, want not found error", resultText(t, r))
	}
}

func TestKillAgent(t *testing.T) {
	sup := newFakeSupervisor()
	s := NewServer(sup, "test")
	callTool(t, s, "spawn_agent", map[string]any{"agent": "database", "task": "x"})

	r := callTool(t, s, "kill_agent", map[string]any{"task_id": "t-1"})
	if r.IsError {
		t.Fatalf("kill_agent error: %s", resultText(t, r))
	}
	r = callTool(t, s, "kill_agent", map[string]any{"task_id": "t-1"})
	if !r.IsError || !strings.Contains(resultText(t, r), "not running") {
		t.Errorf("second kill = %q, want not running error", resultText(t, r))
	}
}

func TestReadAgentActivity(t *testing.T) {
	sup := newFakeSupervisor()
	s := NewServer(sup, "test")
	callTool(t, s, "spawn_agent", map[string]any{"agent": "database", "task": "x"})

	sup.activity = &agent.Activity{TaskID: "t-1", NoOutput: true}
	r := callTool(t, s, "read_agent_activity", map[string]any{"task_id": "t-1"})
	if got := resultText(t, r); got != agent.NoOutputMarker {
		t.Errorf("no output text = %q, want %q", got, agent.NoOutputMarker)
	}

	sup.activity = &agent.Activity{
		TaskID: "t-1",
		Events: []transcript.Event{{Kind: transcript.KindToolCall, Tool: "Bash", ToolInput: "ls"}},
		Total:  1,
	}
	r = callTool(t, s, "read_agent_activity", map[string]any{
		"task_id": "t-1", "filter": "tool_call", "offset": float64(2), "limit": float64(5),
	})
	if r.IsError {
		t.Fatalf("read_agent_activity error: %s", resultText(t, r))
	}
	want := agent.ActivityOptions{Filter: transcript.KindToolCall, Offset: 2, Limit: 5}
	if sup.lastRead != want {
		t.Errorf("activity options = %+v, want %+v", sup.lastRead, want)
	}
	if !strings.Contains(resultText(t, r), `"tool": "Bash"`) {
		t.Errorf("result %q missing tool call", resultText(t, r))
	}

	r = callTool(t, s, "read_agent_activity", map[string]any{"task_id": "t-1", "filter": "bogus"})
	if !r.IsError {
		t.Error("bogus filter: expected error result")
	}
}

func TestSearchAgentActivity(t *testing.T) {
	sup := newFakeSupervisor()
	s := NewServer(sup, "test")
	callTool(t, s, "spawn_agent", map[string]any{"agent": "database", "task": "x"})
	sup.activity = &agent.Activity{TaskID: "t-1", Total: 0, Events: []transcript.Event{}}

	tests := []struct {
		args    map[string]any
		wantErr bool
	}{
		{map[string]any{"task_id": "t-1", "pattern": "users"}, false},
		{map[string]any{"task_id": "t-1", "pattern": "("}, true},
		{map[string]any{"task_id": "t-1"}, true},
		{map[string]any{"task_id": "missing", "pattern": "x"}, true},
	}
	for _, tt := range tests {
		r := callTool(t, s, "search_agent_activity", tt.args)
		if r.IsError != tt.wantErr {
			t.Errorf("search_agent_activity(%v) IsError = %v, want %v", tt.args, r.IsError, tt.wantErr)
		}
	}
}

func TestListAgentRoles(t *testing.T) {
	sup := newFakeSupervisor()
	r := callTool(t, NewServer(sup, "test"), "list_agent_roles", nil)
	var roles []string
	if err := json.Unmarshal([]byte(resultText(t, r)), &roles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(roles) != 2 || roles[0] != "database" {
		t.Errorf("roles = %v, want [database reviewer]", roles)
	}

	sup.roles = nil
	r = callTool(t, NewServer(sup, "test"), "list_agent_roles", nil)
	if got := resultText(t, r); got != "[]" {
		t.Errorf("empty roles = %q, want []", got)
	}
}
