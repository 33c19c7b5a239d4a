package service

import (
	"sort"

	"github.com/raglinehq/ragline/internal/domain"
)

// Ranker merges semantic and keyword candidate sets into one ranked list.
// Each branch's scores are min-max normalized over that branch's own result
// set before weighting, so the two scoring scales stay comparable.
type Ranker struct {
	semanticWeight float64
	keywordWeight  float64
	topN           int
}

func NewRanker(semanticWeight, keywordWeight float64, topN int) *Ranker {
	return &Ranker{
		semanticWeight: semanticWeight,
		keywordWeight:  keywordWeight,
		topN:           topN,
	}
}

// Rank combines the two branches and returns at most topN candidates in
// descending score order. A document found by both branches gets the
// weighted sum of its normalized scores; a document found by one branch
// gets that branch's normalized score scaled by its weight only. Ties are
// broken by newer document timestamp, then by ID. The output is fully
// determined by the inputs.
func (r *Ranker) Rank(semantic, keyword []domain.ScoredCandidate) []domain.ScoredCandidate {
	if len(semantic) == 0 && len(keyword) == 0 {
		return []domain.ScoredCandidate{}
	}

	semNorm := normalizeScores(semantic)
	kwNorm := normalizeScores(keyword)

	type entry struct {
		doc        domain.Document
		semantic   float64
		keyword    float64
		inSemantic bool
		inKeyword  bool
	}

	merged := make(map[string]*entry, len(semantic)+len(keyword))
	for i, c := range semantic {
		merged[c.Document.ID] = &entry{doc: c.Document, semantic: semNorm[i], inSemantic: true}
	}
	for i, c := range keyword {
		if e, ok := merged[c.Document.ID]; ok {
			e.keyword = kwNorm[i]
			e.inKeyword = true
			continue
		}
		merged[c.Document.ID] = &entry{doc: c.Document, keyword: kwNorm[i], inKeyword: true}
	}

	out := make([]domain.ScoredCandidate, 0, len(merged))
	for _, e := range merged {
		provenance := domain.ProvenanceHybrid
		switch {
		case e.inSemantic && !e.inKeyword:
			provenance = domain.ProvenanceSemantic
		case e.inKeyword && !e.inSemantic:
			provenance = domain.ProvenanceKeyword
		}
		out = append(out, domain.ScoredCandidate{
			Document:   e.doc,
			Score:      r.semanticWeight*e.semantic + r.keywordWeight*e.keyword,
			Provenance: provenance,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Document.CreatedAt.Equal(out[j].Document.CreatedAt) {
			return out[i].Document.CreatedAt.After(out[j].Document.CreatedAt)
		}
		return out[i].Document.ID < out[j].Document.ID
	})

	if r.topN > 0 && len(out) > r.topN {
		out = out[:r.topN]
	}
	return out
}

// normalizeScores maps a branch's scores into [0,1] using min-max over the
// branch's returned set. When every score in the branch is equal the whole
// branch normalizes to 1.0.
func normalizeScores(candidates []domain.ScoredCandidate) []float64 {
	if len(candidates) == 0 {
		return nil
	}

	lo, hi := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}

	norm := make([]float64, len(candidates))
	if hi == lo {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}
	for i, c := range candidates {
		norm[i] = (c.Score - lo) / (hi - lo)
	}
	return norm
}
