// Package store defines the storage interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/raglinehq/ragline/internal/domain"
)

// SessionStore persists sessions, conversation turns and run records.
type SessionStore interface {
	// Session operations
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// Conversation turn operations. Turns are append-only.
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error
	GetRecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)
	GetTurns(ctx context.Context, sessionID string, limit int, before string) ([]domain.ConversationTurn, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, degraded bool, errMsg string, usage *domain.UsageData) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// DocumentStore executes search queries against the document store.
// Documents are written by an external ingestion process; every operation
// here is read-only.
type DocumentStore interface {
	// SearchByVector returns the top-K documents by cosine similarity.
	SearchByVector(ctx context.Context, embedding domain.EmbeddingVector, k int) ([]domain.ScoredCandidate, error)
	// SearchByKeyword returns the top-K documents by full-text rank.
	SearchByKeyword(ctx context.Context, query string, k int) ([]domain.ScoredCandidate, error)

	// Listing and diagnostics
	RecentDocuments(ctx context.Context, limit int, source string) ([]domain.Document, error)
	SearchByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	CountDocuments(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close()
}
