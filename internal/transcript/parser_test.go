package transcript

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

const sampleLog = `---
agent: database
task_id: t-1
mode: investigate
---
{"type":"system","subtype":"init","session_id":"s"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Looking at the schema."}]}}
warning: some diagnostic text
{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"description":"list","command":"sqlite3 db .tables"}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","content":[{"type":"text","text":"users"},{"type":"text","text":"orders"}]}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"Found 3 tables"}]}}
{"type":"result","subtype":"success","is_error":false,"duration_ms":1200,"num_turns":3,"result":"Found 3 tables","total_cost_usd":0.05,"usage":{"input_tokens":100,"output_tokens":20}}

---
status: completed
exit_code: 0
---
`

func TestParse(t *testing.T) {
	events := Parse(sampleLog)

	want := []Event{
		{Kind: KindText, Content: "Looking at the schema."},
		{Kind: KindToolCall, Tool: "Bash", ToolInput: "sqlite3 db .tables"},
		{Kind: KindToolResult, Content: "users\norders"},
		{Kind: KindResult, Content: "Found 3 tables", Stats: &ResultStats{
			DurationMS: 1200, CostUSD: 0.05, InputTokens: 100, OutputTokens: 20, NumTurns: 3,
		}},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("Parse() =\n%+v\nwant\n%+v", events, want)
	}
}

func TestParseIdempotent(t *testing.T) {
	a := Parse(sampleLog)
	b := Parse(sampleLog)
	if !reflect.DeepEqual(a, b) {
		t.Error("Parse() is not idempotent")
	}
}

func TestParseDeduplicatesFinalText(t *testing.T) {
	events := Parse(sampleLog)
	n := 0
	for _, e := range events {
		if e.Content == "Found 3 tables" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("events with final text = %d, want 1", n)
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"blank lines", "\n\n  \n", 0},
		{"plain text", "hello\nworld", 0},
		{"truncated json", `{"type":"assistant","message":{"content":[`, 0},
		{"json array", `[1,2,3]`, 0},
		{"unknown type", `{"type":"telemetry","x":1}`, 0},
		{"system init", `{"type":"system","subtype":"init"}`, 0},
		{"header only", "---\nagent: x\n---\n", 0},
		{"json inside header", "---\n{\"type\":\"result\",\"result\":\"x\"}\n---\n", 0},
		{"one good line among bad", "junk\n{\"type\":\"assistant\",\"message\":{\"content\":[{\"type\":\"text\",\"text\":\"hi\"}]}}\n{oops", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.raw); len(got) != tt.want {
				t.Errorf("Parse(%q) = %d events, want %d", tt.raw, len(got), tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	raw := `{"type":"error","error":{"type":"overloaded","message":"API overloaded"}}
{"type":"result","subtype":"error_max_turns","is_error":true,"duration_ms":5,"num_turns":50}`
	events := Parse(raw)
	if len(events) != 2 {
		t.Fatalf("Parse() = %d events, want 2", len(events))
	}
	if events[0].Kind != KindError || events[0].Content != "API overloaded" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Kind != KindError || events[1].Content != "error_max_turns" || events[1].Stats.NumTurns != 50 {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestParseContentBlockStart(t *testing.T) {
	raw := `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","name":"Read","input":{"file_path":"/a/b.go"}}}`
	events := Parse(raw)
	if len(events) != 1 || events[0].Kind != KindToolCall || events[0].ToolInput != "/a/b.go" {
		t.Errorf("Parse() = %+v", events)
	}
}

func TestParseStringToolResult(t *testing.T) {
	raw := `{"type":"user","message":{"content":[{"type":"tool_result","content":"plain output"}]}}`
	events := Parse(raw)
	if len(events) != 1 || events[0].Content != "plain output" {
		t.Errorf("Parse() = %+v", events)
	}
}

func TestRenderToolInput(t *testing.T) {
	long := strings.Repeat("x", 150)
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"command wins over description", `{"description":"d","command":"ls -la"}`, "ls -la"},
		{"file_path", `{"file_path":"/tmp/a.go","limit":10}`, "/tmp/a.go"},
		{"pattern before prompt", `{"prompt":"p","pattern":"TODO"}`, "TODO"},
		{"first string value in order", `{"zeta":"first","alpha":"second"}`, "first"},
		{"no strings uses compact json", `{"a": 1, "b": [true]}`, `{"a":1,"b":[true]}`},
		{"null", `null`, ""},
		{"empty", ``, ""},
		{"truncated", `{"command":"` + long + `"}`, strings.Repeat("x", 100) + "..."},
		{"multibyte counted by rune", `{"command":"` + strings.Repeat("é", 101) + `"}`, strings.Repeat("é", 100) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderToolInput(json.RawMessage(tt.input)); got != tt.want {
				t.Errorf("RenderToolInput(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFilterAndSearch(t *testing.T) {
	events := Parse(sampleLog)

	if got := Filter(events, KindResult); len(got) != 1 || got[0].Content != "Found 3 tables" {
		t.Errorf("Filter(result) = %+v", got)
	}
	if got := Filter(events, ""); len(got) != len(events) {
		t.Errorf("Filter(\"\") = %d events, want %d", len(got), len(events))
	}

	if got := Search(events, substr("sqlite3"), 0); len(got) != 1 || got[0].Kind != KindToolCall {
		t.Errorf("Search(sqlite3) = %+v", got)
	}
	if got := Search(events, substr("s"), 2); len(got) != 2 {
		t.Errorf("Search(limit 2) = %d events", len(got))
	}
}

func TestSearchSkipsEmptyFields(t *testing.T) {
	events := []Event{
		{Kind: KindText, Content: "hello"},
		{Kind: KindToolCall, Tool: "Bash", ToolInput: "ls"},
		{Kind: KindResult, Content: "done"},
	}
	if got := Search(events, regexp.MustCompile(`^$`), 0); len(got) != 0 {
		t.Errorf("Search(^$) = %+v, want none", got)
	}
	if got := Search(events, regexp.MustCompile(`^Bash$`), 0); len(got) != 1 || got[0].Kind != KindToolCall {
		t.Errorf("Search(^Bash$) = %+v, want the tool call", got)
	}
}

type substr string

func (s substr) MatchString(v string) bool { return strings.Contains(v, string(s)) }

func TestParseKind(t *testing.T) {
	if _, err := ParseKind("tool_call"); err != nil {
		t.Errorf("ParseKind(tool_call) error = %v", err)
	}
	if _, err := ParseKind("bogus"); err == nil {
		t.Error("ParseKind(bogus) error = nil")
	}
}
