package service

import (
	"context"
	"fmt"

	"github.com/raglinehq/ragline/internal/domain"
)

// GetSessionTurns returns a session's conversation turns, oldest first.
// before, when set, restricts the page to turns created before the turn
// with that ID.
func (s *Service) GetSessionTurns(ctx context.Context, sessionID string, limit int, before string) ([]domain.ConversationTurn, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	turns, err := s.sessions.GetTurns(ctx, sessionID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	return turns, nil
}

// GetRun returns one run record, or nil if it does not exist.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.sessions.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}
