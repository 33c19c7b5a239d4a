package service

import (
	"context"
	"fmt"
	"log"

	"github.com/raglinehq/ragline/internal/domain"
)

// Retrieve embeds the query, runs the vector and keyword searches
// concurrently, and merges both branches into one ranked list. A failed
// branch is treated as empty and flags the result as degraded - it does
// not fail the turn. An embedding failure does fail the turn; without the
// vector there is nothing meaningful to rank.
func (s *Service) Retrieve(ctx context.Context, query *domain.Query) (*domain.RetrievalResult, error) {
	vector, err := s.embedder.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	type branchResult struct {
		branch     string
		candidates []domain.ScoredCandidate
		err        error
	}

	results := make(chan branchResult, 2)
	topK := s.config.Retrieval.TopK

	go func() {
		candidates, err := s.documents.SearchByVector(ctx, vector, topK)
		results <- branchResult{branch: "vector", candidates: candidates, err: err}
	}()
	go func() {
		candidates, err := s.documents.SearchByKeyword(ctx, query.Text, topK)
		results <- branchResult{branch: "keyword", candidates: candidates, err: err}
	}()

	var semantic, keyword []domain.ScoredCandidate
	degraded := false
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			log.Printf("WARN: %s search branch failed: %v", res.branch, res.err)
			degraded = true
			continue
		}
		if res.branch == "vector" {
			semantic = res.candidates
		} else {
			keyword = res.candidates
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &domain.RetrievalResult{
		Candidates:    s.ranker.Rank(semantic, keyword),
		Degraded:      degraded,
		SemanticCount: len(semantic),
		KeywordCount:  len(keyword),
	}, nil
}
