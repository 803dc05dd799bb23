package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
)

// record is one decoded stream-json line. The set of variants is closed;
// anything unrecognized decodes to unknownRecord.
type record interface {
	isRecord()
}

type systemRecord struct {
	Subtype string
}

type assistantRecord struct {
	Blocks []contentBlock
	Usage  *usage
}

type userRecord struct {
	Blocks []contentBlock
}

type resultRecord struct {
	Subtype    string
	IsError    bool
	Result     string
	DurationMS int64
	CostUSD    float64
	NumTurns   int
	Usage      *usage
}

type contentBlockStartRecord struct {
	Block contentBlock
}

type errorRecord struct {
	Message string
}

type unknownRecord struct {
	Type string
}

func (systemRecord) isRecord()            {}
func (assistantRecord) isRecord()         {}
func (userRecord) isRecord()              {}
func (resultRecord) isRecord()            {}
func (contentBlockStartRecord) isRecord() {}
func (errorRecord) isRecord()             {}
func (unknownRecord) isRecord()           {}

type usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"is_error"`
}

type message struct {
	Content json.RawMessage `json:"content"`
	Usage   *usage          `json:"usage"`
}

type rawRecord struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	Message      *message        `json:"message"`
	ContentBlock *contentBlock   `json:"content_block"`
	Result       string          `json:"result"`
	IsError      bool            `json:"is_error"`
	DurationMS   int64           `json:"duration_ms"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	CostUSD      *float64        `json:"cost_usd"`
	NumTurns     int             `json:"num_turns"`
	Usage        *usage          `json:"usage"`
	Error        json.RawMessage `json:"error"`
}

// decodeRecord decodes one line. ok is false when the line is not a
// single JSON object.
func decodeRecord(line string) (record, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, false
	}
	var raw rawRecord
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, false
	}

	switch raw.Type {
	case "system":
		return systemRecord{Subtype: raw.Subtype}, true
	case "assistant":
		rec := assistantRecord{}
		if raw.Message != nil {
			rec.Blocks = decodeBlocks(raw.Message.Content)
			rec.Usage = raw.Message.Usage
		}
		return rec, true
	case "user":
		rec := userRecord{}
		if raw.Message != nil {
			rec.Blocks = decodeBlocks(raw.Message.Content)
		}
		return rec, true
	case "result":
		rec := resultRecord{
			Subtype:    raw.Subtype,
			IsError:    raw.IsError,
			Result:     raw.Result,
			DurationMS: raw.DurationMS,
			NumTurns:   raw.NumTurns,
			Usage:      raw.Usage,
		}
		switch {
		case raw.TotalCostUSD != nil:
			rec.CostUSD = *raw.TotalCostUSD
		case raw.CostUSD != nil:
			rec.CostUSD = *raw.CostUSD
		}
		return rec, true
	case "content_block_start":
		if raw.ContentBlock == nil {
			return unknownRecord{Type: raw.Type}, true
		}
		return contentBlockStartRecord{Block: *raw.ContentBlock}, true
	case "error":
		return errorRecord{Message: errorMessage(raw.Error)}, true
	}
	return unknownRecord{Type: raw.Type}, true
}

// decodeBlocks accepts either a content block array or a bare string.
func decodeBlocks(raw json.RawMessage) []contentBlock {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return []contentBlock{{Type: "text", Text: s}}
		}
		return nil
	}
	var blocks []contentBlock
	if json.Unmarshal(raw, &blocks) != nil {
		return nil
	}
	return blocks
}

func errorMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "unknown error"
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
