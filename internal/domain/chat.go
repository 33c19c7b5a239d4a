package domain

import "time"

// ChatRequest represents an incoming chat request.
type ChatRequest struct {
	Message string `json:"message"`
	// ConversationHistory is optional client-supplied history, oldest first.
	// Turns already persisted for the session take precedence over it.
	ConversationHistory []HistoryMessage `json:"conversation_history,omitempty"`
	SessionID           string           `json:"session_id,omitempty"`
}

// HistoryMessage is one prior utterance supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents a buffered chat response.
type ChatResponse struct {
	Response  string      `json:"response"`
	SessionID string      `json:"session_id"`
	RunID     string      `json:"run_id"`
	Degraded  bool        `json:"degraded,omitempty"`
	Sources   []SourceRef `json:"sources,omitempty"`
	Usage     *UsageData  `json:"usage,omitempty"`
}

// SourceRef identifies a retrieved document that informed a response.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

// Session groups conversation turns under one identifier.
type Session struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ConversationTurn is one utterance in a session. Turns are append-only:
// corrections are new turns, never edits.
type ConversationTurn struct {
	TurnID    string    `json:"turn_id"`
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Run records one pass of a chat turn through the pipeline. Only COMPLETED
// runs append conversation turns; FAILED and CANCELLED runs leave the
// session history untouched.
type Run struct {
	RunID     string     `json:"run_id"`
	SessionID string     `json:"session_id"`
	Mode      RunMode    `json:"mode"`
	Status    RunStatus  `json:"status"`
	Degraded  bool       `json:"degraded"`
	Error     string     `json:"error,omitempty"`
	Usage     *UsageData `json:"usage,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
