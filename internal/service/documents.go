package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raglinehq/ragline/internal/domain"
)

// SearchDiagnostics exposes the per-branch retrieval details that the chat
// flow folds away.
type SearchDiagnostics struct {
	Query         string                   `json:"query"`
	Degraded      bool                     `json:"degraded"`
	SemanticCount int                      `json:"semantic_count"`
	KeywordCount  int                      `json:"keyword_count"`
	Ranked        []domain.ScoredCandidate `json:"ranked"`
}

// DiagnoseSearch runs one retrieval pass for the given query text.
func (s *Service) DiagnoseSearch(ctx context.Context, queryText string) (*SearchDiagnostics, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, domain.ErrEmptyMessage
	}

	result, err := s.Retrieve(ctx, &domain.Query{Text: queryText, Timestamp: time.Now()})
	if err != nil {
		return nil, err
	}

	return &SearchDiagnostics{
		Query:         queryText,
		Degraded:      result.Degraded,
		SemanticCount: result.SemanticCount,
		KeywordCount:  result.KeywordCount,
		Ranked:        result.Candidates,
	}, nil
}

// DatabaseDiagnostics reports document store reachability and size.
type DatabaseDiagnostics struct {
	Reachable     bool     `json:"reachable"`
	DocumentCount int      `json:"document_count"`
	SampleTitles  []string `json:"sample_titles,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// DiagnoseDatabase checks the document store, counts its documents and
// samples a few recent titles.
func (s *Service) DiagnoseDatabase(ctx context.Context) *DatabaseDiagnostics {
	count, err := s.documents.CountDocuments(ctx)
	if err != nil {
		return &DatabaseDiagnostics{Error: err.Error()}
	}

	diag := &DatabaseDiagnostics{Reachable: true, DocumentCount: count}
	if docs, err := s.documents.RecentDocuments(ctx, 3, ""); err == nil {
		for _, d := range docs {
			diag.SampleTitles = append(diag.SampleTitles, truncateChars(d.Title, 50))
		}
	}
	return diag
}

// RecentDocuments lists the newest documents, optionally filtered by source.
func (s *Service) RecentDocuments(ctx context.Context, limit int, source string) ([]domain.Document, error) {
	docs, err := s.documents.RecentDocuments(ctx, limit, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// DocumentsByDateRange lists documents created between from and to.
func (s *Service) DocumentsByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error) {
	docs, err := s.documents.SearchByDateRange(ctx, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents by date: %w", err)
	}
	return docs, nil
}

// GetDocument returns one document, or nil if it does not exist.
func (s *Service) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.documents.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}
