package models

// FrameType identifies a dashboard stream frame.
type FrameType string

const (
	FrameAgents    FrameType = "agents"
	FrameSnapshot  FrameType = "snapshot"
	FrameDelta     FrameType = "delta"
	FrameKeepalive FrameType = "keepalive"
	FrameError     FrameType = "error"
)

// StreamFrame is one server-pushed websocket message. Agents frames carry
// Tasks; snapshot and delta frames carry a byte range of a task log.
type StreamFrame struct {
	Type    FrameType    `json:"type"`
	Tasks   []*AgentTask `json:"tasks,omitempty"`
	TaskID  string       `json:"task_id,omitempty"`
	Offset  int64        `json:"offset"`
	Content string       `json:"content,omitempty"`
	Size    int64        `json:"size"`
	Error   string       `json:"error,omitempty"`
}
