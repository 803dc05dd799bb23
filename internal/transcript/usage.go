package transcript

import "strings"

// Usage is the cumulative token usage of a task.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ExtractUsage finds token usage in a raw log. The terminal result
// record's usage wins; without one, assistant message usage is summed.
// found is false when no record carried usage at all, which is distinct
// from a reported usage of zero. Malformed lines are skipped.
func ExtractUsage(raw string) (Usage, bool) {
	var summed, final Usage
	sawAssistant, sawFinal := false, false

	for _, line := range strings.Split(raw, "\n") {
		if !strings.Contains(line, "usage") {
			continue
		}
		rec, ok := decodeRecord(line)
		if !ok {
			continue
		}
		switch r := rec.(type) {
		case resultRecord:
			if r.Usage != nil {
				final = Usage{InputTokens: r.Usage.InputTokens, OutputTokens: r.Usage.OutputTokens}
				sawFinal = true
			}
		case assistantRecord:
			if r.Usage != nil {
				summed.InputTokens += r.Usage.InputTokens
				summed.OutputTokens += r.Usage.OutputTokens
				sawAssistant = true
			}
		}
	}

	switch {
	case sawFinal:
		return clampUsage(final), true
	case sawAssistant:
		return clampUsage(summed), true
	}
	return Usage{}, false
}

func clampUsage(u Usage) Usage {
	if u.InputTokens < 0 {
		u.InputTokens = 0
	}
	if u.OutputTokens < 0 {
		u.OutputTokens = 0
	}
	return u
}
