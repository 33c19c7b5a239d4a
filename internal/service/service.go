// Package service implements the RAG pipeline: hybrid retrieval, context
// assembly and completion orchestration.
package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/raglinehq/ragline/internal/adapter/completion"
	"github.com/raglinehq/ragline/internal/adapter/embedding"
	"github.com/raglinehq/ragline/internal/config"
	"github.com/raglinehq/ragline/internal/domain"
	store "github.com/raglinehq/ragline/internal/repository"
)

type Service struct {
	sessions  store.SessionStore
	documents store.DocumentStore
	embedder  embedding.EmbeddingClient
	llmClient completion.CompletionClient
	ranker    *Ranker
	assembler *Assembler
	config    *config.Config

	// inFlight tracks sessions with a run in progress. At most one run per
	// session; a second concurrent request is rejected with ErrSessionBusy.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(sessions store.SessionStore, documents store.DocumentStore, embedder embedding.EmbeddingClient, llmClient completion.CompletionClient, cfg *config.Config) *Service {
	return &Service{
		sessions:  sessions,
		documents: documents,
		embedder:  embedder,
		llmClient: llmClient,
		ranker:    NewRanker(cfg.Retrieval.SemanticWeight, cfg.Retrieval.KeywordWeight, cfg.Retrieval.TopN),
		assembler: NewAssembler(cfg.Retrieval.ContextBudgetChars, cfg.Retrieval.HistoryWindow, cfg.Retrieval.TopN),
		config:    cfg,
		inFlight:  make(map[string]struct{}),
	}
}

// beginTurn claims the session for one run.
func (s *Service) beginTurn(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sessionID]; busy {
		return domain.ErrSessionBusy
	}
	s.inFlight[sessionID] = struct{}{}
	return nil
}

func (s *Service) endTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sessionID)
}

func newSessionID() string { return "sess_" + uuid.New().String()[:8] }
func newRunID() string     { return "run_" + uuid.New().String()[:8] }
func newTurnID() string    { return "turn_" + uuid.New().String()[:8] }
