package domain

import "time"

// EmbeddingVector is a fixed-dimension embedding of a piece of text.
type EmbeddingVector []float32

// Query is one retrieval request. Created per chat turn, discarded after
// the turn completes.
type Query struct {
	Text      string    `json:"text"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is a stored document. Documents are written by an external
// ingestion process and read-only here.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredCandidate is a document plus a retrieval score. Candidates never
// outlive the query that produced them.
type ScoredCandidate struct {
	Document   Document   `json:"document"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
}

// RetrievalResult is the ranked output of one hybrid retrieval pass.
// Degraded is set when a branch query failed and its results were treated
// as empty.
type RetrievalResult struct {
	Candidates    []ScoredCandidate `json:"candidates"`
	Degraded      bool              `json:"degraded"`
	SemanticCount int               `json:"semantic_count"`
	KeywordCount  int               `json:"keyword_count"`
}
