package models

// LogHeader is the metadata block written at the top of a task log.
type LogHeader struct {
	Agent       string `json:"agent"`
	TaskID      string `json:"task_id"`
	Mode        string `json:"mode"`
	Project     string `json:"project"`
	Description string `json:"description"`
	StartedAt   string `json:"started_at"`
}
