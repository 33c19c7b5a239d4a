package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/raglinehq/ragline/internal/domain"
	store "github.com/raglinehq/ragline/internal/repository"
)

// NewTestSessionStore creates an in-memory SQLite session store that is
// closed when the test finishes.
func NewTestSessionStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// MemoryDocumentStore is an in-memory DocumentStore for tests. Search
// results and failures are injected through its fields.
type MemoryDocumentStore struct {
	VectorResults  []domain.ScoredCandidate
	KeywordResults []domain.ScoredCandidate
	VectorErr      error
	KeywordErr     error

	Documents []domain.Document
	CountErr  error
	PingErr   error
}

var _ store.DocumentStore = (*MemoryDocumentStore)(nil)

// NewMemoryDocumentStore creates an empty in-memory document store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{}
}

// SearchByVector returns the injected vector results, capped at k.
func (m *MemoryDocumentStore) SearchByVector(ctx context.Context, embedding domain.EmbeddingVector, k int) ([]domain.ScoredCandidate, error) {
	if m.VectorErr != nil {
		return nil, m.VectorErr
	}
	return capCandidates(m.VectorResults, k), nil
}

// SearchByKeyword returns the injected keyword results, capped at k.
func (m *MemoryDocumentStore) SearchByKeyword(ctx context.Context, query string, k int) ([]domain.ScoredCandidate, error) {
	if m.KeywordErr != nil {
		return nil, m.KeywordErr
	}
	return capCandidates(m.KeywordResults, k), nil
}

// RecentDocuments returns the stored documents, optionally filtered by
// source, capped at limit.
func (m *MemoryDocumentStore) RecentDocuments(ctx context.Context, limit int, source string) ([]domain.Document, error) {
	var out []domain.Document
	for _, d := range m.Documents {
		if source != "" && d.Source != source {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SearchByDateRange returns stored documents created in [from, to).
func (m *MemoryDocumentStore) SearchByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error) {
	var out []domain.Document
	for _, d := range m.Documents {
		if d.CreatedAt.Before(from) || !d.CreatedAt.Before(to) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetDocument returns the stored document with the given ID, or nil.
func (m *MemoryDocumentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	for i := range m.Documents {
		if m.Documents[i].ID == id {
			doc := m.Documents[i]
			return &doc, nil
		}
	}
	return nil, nil
}

// CountDocuments returns the number of stored documents.
func (m *MemoryDocumentStore) CountDocuments(ctx context.Context) (int, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return len(m.Documents), nil
}

// Ping reports the injected ping error.
func (m *MemoryDocumentStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Close is a no-op.
func (m *MemoryDocumentStore) Close() {}

func capCandidates(candidates []domain.ScoredCandidate, k int) []domain.ScoredCandidate {
	if k > 0 && len(candidates) > k {
		return candidates[:k]
	}
	return candidates
}
