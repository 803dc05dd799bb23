// Package transcript turns raw agent logs into typed events.
//
// A log is a header block followed by newline-delimited stream-json records
// written by the agent, possibly interleaved with plain diagnostic text,
// and closed by a footer block. Parsing is pure and restartable: the same
// input always yields the same events.
package transcript

import "fmt"

// EventKind classifies a transcript event.
type EventKind string

const (
	KindText       EventKind = "text"
	KindToolCall   EventKind = "tool_call"
	KindToolResult EventKind = "tool_result"
	KindResult     EventKind = "result"
	KindError      EventKind = "error"
)

// ParseKind validates an event kind string.
func ParseKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case KindText, KindToolCall, KindToolResult, KindResult, KindError:
		return EventKind(s), nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// ResultStats are the execution statistics of a terminal result.
type ResultStats struct {
	DurationMS   int64   `json:"duration_ms"`
	CostUSD      float64 `json:"cost_usd"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	NumTurns     int     `json:"num_turns"`
}

// Event is one parsed unit of a transcript.
type Event struct {
	Kind      EventKind    `json:"kind"`
	Content   string       `json:"content,omitempty"`
	Tool      string       `json:"tool,omitempty"`
	ToolInput string       `json:"tool_input,omitempty"`
	Stats     *ResultStats `json:"stats,omitempty"`
}

// Filter returns the events of the given kind. An empty kind returns all.
func Filter(events []Event, kind EventKind) []Event {
	if kind == "" {
		return events
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Matcher reports whether a string matches a search pattern.
type Matcher interface {
	MatchString(s string) bool
}

// Search returns up to limit events with a non-empty content, tool name or
// tool input field that matches m. A limit <= 0 means no limit.
func Search(events []Event, m Matcher, limit int) []Event {
	var out []Event
	for _, e := range events {
		if matchField(m, e.Content) || matchField(m, e.Tool) || matchField(m, e.ToolInput) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// matchField skips empty fields so anchored patterns like ^$ do not match
// every event.
func matchField(m Matcher, s string) bool {
	return s != "" && m.MatchString(s)
}
