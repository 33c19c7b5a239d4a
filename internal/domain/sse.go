package domain

import "encoding/json"

// ChatStreamEvent represents an SSE event on the chat stream.
type ChatStreamEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DeltaEventData is the data for a delta stream event.
type DeltaEventData struct {
	Text  string `json:"text"`
	RunID string `json:"run_id"`
}

// DoneEventData is the data for a done stream event.
type DoneEventData struct {
	SessionID string      `json:"session_id"`
	RunID     string      `json:"run_id"`
	Degraded  bool        `json:"degraded,omitempty"`
	Sources   []SourceRef `json:"sources,omitempty"`
	Usage     *UsageData  `json:"usage,omitempty"`
}

// UsageData represents token usage information.
type UsageData struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
	DurationMs       int `json:"duration_ms,omitempty"`
}

// ErrorEventData is the data for an error stream event.
type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
