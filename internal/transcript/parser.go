package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	headerDelimiter = "---"

	// MaxToolInputRunes caps the rendered tool input.
	MaxToolInputRunes = 100
)

// toolInputKeys are tried in order when rendering a tool input.
var toolInputKeys = []string{
	"command", "file_path", "path", "pattern", "url", "query", "description", "prompt",
}

// Parse converts a raw task log into an ordered event sequence.
func Parse(raw string) []Event {
	lines := strings.Split(raw, "\n")
	final, hasFinal := finalResultText(lines)

	var events []Event
	inHeader := false
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == headerDelimiter {
			inHeader = !inHeader
			continue
		}
		if inHeader || strings.TrimSpace(line) == "" {
			continue
		}
		rec, ok := decodeRecord(line)
		if !ok {
			continue
		}
		events = appendRecord(events, rec, final, hasFinal)
	}
	return events
}

// finalResultText finds the terminal result text, if any. The last result
// record wins.
func finalResultText(lines []string) (string, bool) {
	var text string
	found := false
	for _, line := range lines {
		if !strings.Contains(line, `"result"`) {
			continue
		}
		rec, ok := decodeRecord(line)
		if !ok {
			continue
		}
		if r, ok := rec.(resultRecord); ok && r.Result != "" {
			text, found = r.Result, true
		}
	}
	return text, found
}

func appendRecord(events []Event, rec record, final string, hasFinal bool) []Event {
	switch r := rec.(type) {
	case assistantRecord:
		for _, b := range r.Blocks {
			events = appendBlock(events, b, final, hasFinal)
		}
	case userRecord:
		for _, b := range r.Blocks {
			if b.Type != "tool_result" {
				continue
			}
			events = append(events, Event{Kind: KindToolResult, Content: toolResultText(b.Content)})
		}
	case contentBlockStartRecord:
		events = appendBlock(events, r.Block, final, hasFinal)
	case resultRecord:
		stats := &ResultStats{
			DurationMS: r.DurationMS,
			CostUSD:    r.CostUSD,
			NumTurns:   r.NumTurns,
		}
		if r.Usage != nil {
			stats.InputTokens = r.Usage.InputTokens
			stats.OutputTokens = r.Usage.OutputTokens
		}
		kind := KindResult
		content := r.Result
		if r.IsError {
			kind = KindError
			if content == "" {
				content = r.Subtype
			}
		}
		events = append(events, Event{Kind: kind, Content: content, Stats: stats})
	case errorRecord:
		events = append(events, Event{Kind: KindError, Content: r.Message})
	case systemRecord, unknownRecord:
		// no event
	}
	return events
}

func appendBlock(events []Event, b contentBlock, final string, hasFinal bool) []Event {
	switch b.Type {
	case "text":
		if b.Text == "" || (hasFinal && b.Text == final) {
			return events
		}
		return append(events, Event{Kind: KindText, Content: b.Text})
	case "tool_use":
		return append(events, Event{Kind: KindToolCall, Tool: b.Name, ToolInput: RenderToolInput(b.Input)})
	}
	return events
}

// toolResultText concatenates the text parts of a tool result payload.
func toolResultText(raw json.RawMessage) string {
	blocks := decodeBlocks(raw)
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// RenderToolInput renders a tool input object as a short, human-readable
// string. Well-known keys win over the first string value, which wins over
// compact JSON.
func RenderToolInput(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	pairs, ok := objectPairs(raw)
	if ok {
		byKey := make(map[string]string, len(pairs))
		firstString := ""
		for _, p := range pairs {
			var s string
			if json.Unmarshal(p.value, &s) != nil {
				continue
			}
			if _, seen := byKey[p.key]; !seen {
				byKey[p.key] = s
			}
			if firstString == "" && s != "" {
				firstString = s
			}
		}
		for _, k := range toolInputKeys {
			if v := byKey[k]; v != "" {
				return truncate(v, MaxToolInputRunes)
			}
		}
		if firstString != "" {
			return truncate(firstString, MaxToolInputRunes)
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return truncate(string(raw), MaxToolInputRunes)
	}
	return truncate(buf.String(), MaxToolInputRunes)
}

type pair struct {
	key   string
	value json.RawMessage
}

// objectPairs decodes a JSON object's members in document order.
func objectPairs(raw json.RawMessage) ([]pair, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, false
	}

	var pairs []pair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		pairs = append(pairs, pair{key: key, value: v})
	}
	return pairs, true
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
