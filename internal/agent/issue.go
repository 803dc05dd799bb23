package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/watchfire-io/agentwatch/internal/transcript"
)

// AgentIssueType identifies a condition that stops an agent from working.
type AgentIssueType string

const (
	AgentIssueAuth      AgentIssueType = "auth_required"
	AgentIssueRateLimit AgentIssueType = "rate_limited"
)

// AgentIssue is an auth or rate-limit problem reported in a transcript.
type AgentIssue struct {
	Type    AgentIssueType `json:"type"`
	Message string         `json:"message"`
	ResetAt *time.Time     `json:"reset_at,omitempty"`
}

var authPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)API Error:\s*401.*authentication_error`),
	regexp.MustCompile(`(?i)OAuth token has expired`),
	regexp.MustCompile(`(?i)Please run /login`),
	regexp.MustCompile(`(?i)invalid api key`),
	regexp.MustCompile(`(?i)token.*expired`),
}

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)You've hit your limit`),
	regexp.MustCompile(`(?i)usage limit reached`),
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)API Error:\s*429`),
}

// rateLimitResetPattern extracts the reset time from a rate limit message.
var rateLimitResetPattern = regexp.MustCompile(`(?i)resets?\s+(?:at\s+)?(\d+(?::\d+)?(?:\s*(?:am|pm))?)\s*(?:\(([^)]+)\))?`)

// DetectIssue checks one message for a known issue.
func DetectIssue(msg string) *AgentIssue {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}
	for _, p := range authPatterns {
		if p.MatchString(msg) {
			return &AgentIssue{Type: AgentIssueAuth, Message: msg}
		}
	}
	for _, p := range rateLimitPatterns {
		if p.MatchString(msg) {
			issue := &AgentIssue{Type: AgentIssueRateLimit, Message: msg}
			if m := rateLimitResetPattern.FindStringSubmatch(msg); len(m) >= 2 {
				issue.ResetAt = ParseResetTime(m[1], m[2], time.Now())
			}
			return issue
		}
	}
	return nil
}

// ScanIssue returns the last issue reported by error or result events.
func ScanIssue(events []transcript.Event) *AgentIssue {
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Kind != transcript.KindError && e.Kind != transcript.KindResult {
			continue
		}
		if issue := DetectIssue(e.Content); issue != nil {
			return issue
		}
	}
	return nil
}

var tzAliases = map[string]string{
	"Lisbon": "Europe/Lisbon",
	"PT":     "America/Los_Angeles",
	"PST":    "America/Los_Angeles",
	"PDT":    "America/Los_Angeles",
	"EST":    "America/New_York",
	"EDT":    "America/New_York",
	"GMT":    "UTC",
}

// ParseResetTime parses a reset time like "4am" or "4:00 PM" with an
// optional zone, as the next such time after now. Returns nil if parsing
// fails.
func ParseResetTime(timeStr, tzStr string, now time.Time) *time.Time {
	timeStr = strings.ToLower(strings.TrimSpace(timeStr))
	tzStr = strings.TrimSpace(tzStr)
	if timeStr == "" {
		return nil
	}

	loc := time.Local
	if tzStr != "" {
		if alias, ok := tzAliases[tzStr]; ok {
			tzStr = alias
		}
		if l, err := time.LoadLocation(tzStr); err == nil {
			loc = l
		}
	}
	now = now.In(loc)

	next := func(hour, min int) *time.Time {
		t := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, loc)
		if t.Before(now) {
			t = t.Add(24 * time.Hour)
		}
		return &t
	}

	for _, layout := range []string{"3pm", "3:04pm", "3 pm", "3:04 pm", "15:04"} {
		if t, err := time.ParseInLocation(layout, timeStr, loc); err == nil {
			return next(t.Hour(), t.Minute())
		}
	}
	if h, err := strconv.Atoi(timeStr); err == nil && h >= 0 && h <= 23 {
		return next(h, 0)
	}
	return nil
}
