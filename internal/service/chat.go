package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raglinehq/ragline/internal/adapter/completion"
	"github.com/raglinehq/ragline/internal/domain"
)

// errConsumerGone marks a stream callback failure caused by the consumer
// disappearing, as opposed to an upstream completion failure.
var errConsumerGone = errors.New("stream consumer disconnected")

// preparedTurn carries everything built for one chat turn before the
// completion call goes out.
type preparedTurn struct {
	sessionID string
	runID     string
	userText  string
	messages  []completion.ChatMessage
	retrieval *domain.RetrievalResult
	assembled *domain.AssembledContext
	sources   []domain.SourceRef
}

// Chat runs one buffered turn: retrieve, assemble, complete, append the
// exchanged turns to the session. Transient completion failures are retried
// with backoff; rejections are not.
func (s *Service) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	pt, err := s.prepareTurn(ctx, req, domain.RunModeBuffered)
	if err != nil {
		return nil, err
	}
	defer s.endTurn(pt.sessionID)

	s.markStatus(ctx, pt.runID, domain.RunStatusInFlight)
	start := time.Now()

	maxTokens := s.config.CompletionMaxTokens
	completionReq := &completion.ChatCompletionRequest{
		Model:     s.config.CompletionModel,
		Messages:  pt.messages,
		MaxTokens: &maxTokens,
	}

	var resp *completion.ChatCompletionResponse
	operation := func() error {
		var opErr error
		resp, opErr = s.llmClient.CreateChatCompletion(ctx, completionReq)
		if opErr != nil {
			if errors.Is(opErr, domain.ErrCompletionRejected) {
				return backoff.Permanent(opErr)
			}
			return opErr
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
			return backoff.Permanent(fmt.Errorf("completion returned no choices: %w", domain.ErrCompletionRejected))
		}
		return nil
	}
	notify := func(opErr error, wait time.Duration) {
		log.Printf("WARN: completion attempt for run %s failed, retrying in %s: %v", pt.runID, wait, opErr)
	}
	if err := backoff.RetryNotify(operation, s.retryBackOff(ctx), notify); err != nil {
		s.failRun(pt, err)
		return nil, err
	}

	responseText := resp.Choices[0].Message.Content
	usage := usageData(resp.Usage, time.Since(start))
	s.completeRun(pt, responseText, usage)

	return &domain.ChatResponse{
		Response:  responseText,
		SessionID: pt.sessionID,
		RunID:     pt.runID,
		Degraded:  pt.retrieval.Degraded,
		Sources:   pt.sources,
		Usage:     usage,
	}, nil
}

// ChatStream runs one streaming turn, delivering events through emit. The
// turn is never retried once streaming starts; an upstream failure surfaces
// as a terminal error event instead of a silent reconnect. A consumer
// disconnect cancels the run without touching session history and stops
// upstream reads within the configured grace period.
func (s *Service) ChatStream(ctx context.Context, req *domain.ChatRequest, emit func(domain.ChatStreamEvent) error) error {
	pt, err := s.prepareTurn(ctx, req, domain.RunModeStreaming)
	if err != nil {
		return err
	}
	defer s.endTurn(pt.sessionID)

	s.markStatus(ctx, pt.runID, domain.RunStatusInFlight)
	start := time.Now()

	maxTokens := s.config.CompletionMaxTokens
	completionReq := &completion.ChatCompletionRequest{
		Model:     s.config.CompletionModel,
		Messages:  pt.messages,
		MaxTokens: &maxTokens,
		Stream:    true,
	}

	var full strings.Builder
	usage, err := s.llmClient.CreateChatCompletionStream(ctx, completionReq, func(chunk *completion.StreamChunk) error {
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			return nil
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			return nil
		}
		full.WriteString(text)
		if err := emit(streamEvent(domain.EventTypeDelta, domain.DeltaEventData{Text: text, RunID: pt.runID})); err != nil {
			return fmt.Errorf("%w: %v", errConsumerGone, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errConsumerGone) || ctx.Err() != nil {
			log.Printf("INFO: run %s cancelled, consumer disconnected", pt.runID)
			s.cancelRun(pt)
			return nil
		}
		s.failRun(pt, err)
		if emitErr := emit(streamEvent(domain.EventTypeError, domain.ErrorEventData{Code: errorCode(err), Message: err.Error()})); emitErr != nil {
			log.Printf("WARN: failed to deliver error event for run %s: %v", pt.runID, emitErr)
		}
		return err
	}

	responseText := full.String()
	usageOut := usageData(usage, time.Since(start))
	s.completeRun(pt, responseText, usageOut)

	if err := emit(streamEvent(domain.EventTypeDone, domain.DoneEventData{
		SessionID: pt.sessionID,
		RunID:     pt.runID,
		Degraded:  pt.retrieval.Degraded,
		Sources:   pt.sources,
		Usage:     usageOut,
	})); err != nil {
		log.Printf("WARN: failed to deliver done event for run %s: %v", pt.runID, err)
	}
	return nil
}

// prepareTurn validates the request, claims the session, records the run
// and walks it through retrieval and context assembly. On success the
// caller owns the session claim and must release it with endTurn.
func (s *Service) prepareTurn(ctx context.Context, req *domain.ChatRequest, mode domain.RunMode) (pt *preparedTurn, err error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, domain.ErrEmptyMessage
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	if err := s.beginTurn(sessionID); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.endTurn(sessionID)
		}
	}()

	if _, err := s.sessions.GetOrCreateSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get/create session: %w", err)
	}

	now := time.Now()
	pt = &preparedTurn{
		sessionID: sessionID,
		runID:     newRunID(),
		userText:  req.Message,
	}
	run := &domain.Run{
		RunID:     pt.runID,
		SessionID: sessionID,
		Mode:      mode,
		Status:    domain.RunStatusPending,
		StartedAt: now,
	}
	if err := s.sessions.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	retrieval, err := s.Retrieve(ctx, &domain.Query{Text: req.Message, SessionID: sessionID, Timestamp: now})
	if err != nil {
		s.failRun(pt, err)
		return nil, err
	}
	pt.retrieval = retrieval

	history, err := s.sessions.GetRecentTurns(ctx, sessionID, s.config.Retrieval.HistoryWindow)
	if err != nil {
		log.Printf("WARN: failed to load history for session %s: %v", sessionID, err)
		history = nil
	}
	if len(history) == 0 && len(req.ConversationHistory) > 0 {
		history = turnsFromRequest(req.ConversationHistory)
	}

	assembled, err := s.assembler.Assemble(s.systemPrompt(), history, retrieval.Candidates)
	if err != nil {
		s.failRun(pt, err)
		return nil, err
	}
	pt.assembled = assembled
	pt.messages = buildMessages(assembled, req.Message)
	pt.sources = sourceRefs(assembled, retrieval.Candidates)

	s.markStatus(ctx, pt.runID, domain.RunStatusContextBuilt)
	return pt, nil
}

// retryBackOff builds the buffered-mode retry policy: up to MaxRetries
// retries with exponential backoff starting at RetryBackoff, stopping early
// when ctx is cancelled.
func (s *Service) retryBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.config.RetryBackoff
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.config.MaxRetries)), ctx)
}

// completeRun appends the user and assistant turns and marks the run
// completed. Only completed runs mutate session history.
func (s *Service) completeRun(pt *preparedTurn, responseText string, usage *domain.UsageData) {
	ctx, cancel := s.cleanupContext()
	defer cancel()

	userTurn := &domain.ConversationTurn{
		TurnID:    newTurnID(),
		SessionID: pt.sessionID,
		RunID:     pt.runID,
		Role:      domain.RoleUser,
		Content:   pt.userText,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.AppendTurn(ctx, userTurn); err != nil {
		log.Printf("ERROR: failed to append user turn: %v", err)
	}

	assistantTurn := &domain.ConversationTurn{
		TurnID:    newTurnID(),
		SessionID: pt.sessionID,
		RunID:     pt.runID,
		Role:      domain.RoleAssistant,
		Content:   responseText,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.AppendTurn(ctx, assistantTurn); err != nil {
		log.Printf("ERROR: failed to append assistant turn: %v", err)
	}

	if err := s.sessions.UpdateRunCompleted(ctx, pt.runID, domain.RunStatusCompleted, pt.retrieval.Degraded, "", usage); err != nil {
		log.Printf("ERROR: failed to mark run %s completed: %v", pt.runID, err)
	}
}

// failRun marks the run failed. Failed runs leave session history untouched.
func (s *Service) failRun(pt *preparedTurn, cause error) {
	ctx, cancel := s.cleanupContext()
	defer cancel()
	degraded := pt.retrieval != nil && pt.retrieval.Degraded
	if err := s.sessions.UpdateRunCompleted(ctx, pt.runID, domain.RunStatusFailed, degraded, cause.Error(), nil); err != nil {
		log.Printf("ERROR: failed to mark run %s failed: %v", pt.runID, err)
	}
}

// cancelRun marks the run cancelled after a consumer disconnect. Cancelled
// runs leave session history untouched.
func (s *Service) cancelRun(pt *preparedTurn) {
	ctx, cancel := s.cleanupContext()
	defer cancel()
	degraded := pt.retrieval != nil && pt.retrieval.Degraded
	if err := s.sessions.UpdateRunCompleted(ctx, pt.runID, domain.RunStatusCancelled, degraded, "consumer disconnected", nil); err != nil {
		log.Printf("ERROR: failed to mark run %s cancelled: %v", pt.runID, err)
	}
}

func (s *Service) markStatus(ctx context.Context, runID string, status domain.RunStatus) {
	if err := s.sessions.UpdateRunStatus(ctx, runID, status); err != nil {
		log.Printf("ERROR: failed to update run status: %v", err)
	}
}

// cleanupContext detaches terminal bookkeeping from the request context so
// status updates still land when the caller is already gone.
func (s *Service) cleanupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.StreamGrace)
}

// turnsFromRequest adapts client-supplied history for assembly. Used only
// when the session has no stored turns yet.
func turnsFromRequest(history []domain.HistoryMessage) []domain.ConversationTurn {
	turns := make([]domain.ConversationTurn, 0, len(history))
	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		turns = append(turns, domain.ConversationTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// sourceRefs lists the documents that made it into the assembled context,
// in context order.
func sourceRefs(ac *domain.AssembledContext, ranked []domain.ScoredCandidate) []domain.SourceRef {
	byID := make(map[string]domain.ScoredCandidate, len(ranked))
	for _, c := range ranked {
		byID[c.Document.ID] = c
	}
	var refs []domain.SourceRef
	for _, f := range ac.DocumentFragments() {
		if c, ok := byID[f.Ref]; ok {
			refs = append(refs, domain.SourceRef{
				DocumentID: c.Document.ID,
				Title:      c.Document.Title,
				Score:      c.Score,
			})
		}
	}
	return refs
}

func streamEvent(eventType domain.EventType, payload interface{}) domain.ChatStreamEvent {
	data, _ := json.Marshal(payload)
	return domain.ChatStreamEvent{Type: eventType, Data: data}
}

// usageData converts adapter usage into the domain shape.
func usageData(u *completion.Usage, elapsed time.Duration) *domain.UsageData {
	out := &domain.UsageData{DurationMs: int(elapsed.Milliseconds())}
	if u != nil {
		out.PromptTokens = u.PromptTokens
		out.CompletionTokens = u.CompletionTokens
		out.TotalTokens = u.TotalTokens
	}
	return out
}

// errorCode maps an error to the wire code carried on stream error events.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrCompletionRejected):
		return "completion_rejected"
	case errors.Is(err, domain.ErrCompletionTransient):
		return "completion_unavailable"
	case errors.Is(err, domain.ErrEmbeddingRejected):
		return "embedding_rejected"
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}
