package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raglinehq/ragline/internal/adapter/completion"
	"github.com/raglinehq/ragline/internal/adapter/embedding"
	"github.com/raglinehq/ragline/internal/config"
	"github.com/raglinehq/ragline/internal/domain"
	store "github.com/raglinehq/ragline/internal/repository"
	"github.com/raglinehq/ragline/tests/helpers"
)

// fakeCompletionClient is a scripted CompletionClient. The first failures
// calls to CreateChatCompletion return failErr; streaming emits chunks and
// then streamErr if set.
type fakeCompletionClient struct {
	mu      sync.Mutex
	calls   int
	sent    int
	lastReq *completion.ChatCompletionRequest

	failures int
	failErr  error
	response string

	chunks    []string
	streamErr error

	// started receives a signal when a buffered call begins; block, when
	// set, holds the call open until closed.
	started chan struct{}
	block   chan struct{}
}

var _ completion.CompletionClient = (*fakeCompletionClient)(nil)

func (f *fakeCompletionClient) CreateChatCompletion(ctx context.Context, req *completion.ChatCompletionRequest) (*completion.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.lastReq = req
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}

	if n <= f.failures {
		return nil, f.failErr
	}
	return &completion.ChatCompletionResponse{
		ID:    "cmpl_fake",
		Model: req.Model,
		Choices: []completion.Choice{{
			Message:      &completion.ChatMessage{Role: "assistant", Content: f.response},
			FinishReason: "stop",
		}},
		Usage: &completion.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}, nil
}

func (f *fakeCompletionClient) CreateChatCompletionStream(ctx context.Context, req *completion.ChatCompletionRequest, callback completion.StreamCallback) (*completion.Usage, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	for i, text := range f.chunks {
		chunk := &completion.StreamChunk{
			Choices: []completion.Choice{{Delta: &completion.ChatMessage{Content: text}}},
		}
		if i == len(f.chunks)-1 {
			chunk.Choices[0].FinishReason = "stop"
		}
		f.mu.Lock()
		f.sent++
		f.mu.Unlock()
		if err := callback(chunk); err != nil {
			return nil, err
		}
	}
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &completion.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}, nil
}

func (f *fakeCompletionClient) ListModels(ctx context.Context) ([]completion.Model, error) {
	return []completion.Model{{ID: "fake-model"}}, nil
}

func (f *fakeCompletionClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCompletionClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *fakeCompletionClient) lastRequest() *completion.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// failingEmbedder always fails.
type failingEmbedder struct{ err error }

func (f *failingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	return nil, f.err
}

func newTestConfig() *config.Config {
	return &config.Config{
		CompletionModel:     "fake-model",
		CompletionMaxTokens: 256,
		MaxRetries:          2,
		RetryBackoff:        time.Millisecond,
		StreamGrace:         2 * time.Second,
		Retrieval: config.Retrieval{
			TopK:               10,
			TopN:               5,
			SemanticWeight:     0.7,
			KeywordWeight:      0.3,
			ContextBudgetChars: 8000,
			HistoryWindow:      5,
		},
	}
}

func newTestService(t *testing.T, docs store.DocumentStore, llm completion.CompletionClient) (*Service, *store.SQLiteStore) {
	t.Helper()
	db := helpers.NewTestSessionStore(t)
	svc := New(db, docs, embedding.NewMockClient(8, 2000), llm, newTestConfig())
	return svc, db
}

func seededDocumentStore() *helpers.MemoryDocumentStore {
	now := time.Now()
	docs := helpers.NewMemoryDocumentStore()
	docs.VectorResults = []domain.ScoredCandidate{
		{Document: domain.Document{ID: "d1", Title: "Roadmap", Content: "Q3 plan", CreatedAt: now}, Score: 0.9},
		{Document: domain.Document{ID: "d2", Title: "Notes", Content: "standup notes", CreatedAt: now}, Score: 0.4},
	}
	docs.KeywordResults = []domain.ScoredCandidate{
		{Document: domain.Document{ID: "d1", Title: "Roadmap", Content: "Q3 plan", CreatedAt: now}, Score: 8.0},
		{Document: domain.Document{ID: "d3", Title: "API Reference", Content: "endpoint list", CreatedAt: now}, Score: 2.0},
	}
	return docs
}

func TestChatCompletesTurn(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{response: "The Q3 roadmap ships in March."}
	svc, db := newTestService(t, seededDocumentStore(), fake)

	resp, err := svc.Chat(ctx, &domain.ChatRequest{Message: "What ships in Q3?"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Response != "The Q3 roadmap ships in March." {
		t.Fatalf("unexpected response: %q", resp.Response)
	}
	if !strings.HasPrefix(resp.SessionID, "sess_") || !strings.HasPrefix(resp.RunID, "run_") {
		t.Fatalf("unexpected IDs: %s / %s", resp.SessionID, resp.RunID)
	}
	if resp.Degraded {
		t.Fatal("unexpected degraded flag")
	}
	if len(resp.Sources) == 0 || resp.Sources[0].DocumentID != "d1" {
		t.Fatalf("unexpected sources: %+v", resp.Sources)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 8 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}

	turns, err := db.GetTurns(ctx, resp.SessionID, 0, "")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != domain.RoleUser || turns[0].Content != "What ships in Q3?" {
		t.Fatalf("unexpected user turn: %+v", turns[0])
	}
	if turns[1].Role != domain.RoleAssistant || turns[1].Content != resp.Response {
		t.Fatalf("unexpected assistant turn: %+v", turns[1])
	}

	run, err := db.GetRun(ctx, resp.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || run.Status != domain.RunStatusCompleted {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.EndedAt == nil || run.Usage == nil {
		t.Fatalf("run missing terminal fields: %+v", run)
	}
}

func TestChatEmptyMessageRejected(t *testing.T) {
	fake := &fakeCompletionClient{response: "ok"}
	svc, _ := newTestService(t, helpers.NewMemoryDocumentStore(), fake)

	_, err := svc.Chat(context.Background(), &domain.ChatRequest{Message: "   "})
	if !errors.Is(err, domain.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if fake.callCount() != 0 {
		t.Fatalf("completion should not be called, got %d calls", fake.callCount())
	}
}

func TestChatNoDocumentsStillAnswers(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{response: "I could not find anything relevant."}
	svc, _ := newTestService(t, helpers.NewMemoryDocumentStore(), fake)

	resp, err := svc.Chat(ctx, &domain.ChatRequest{Message: "Anything on the ACME launch?"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Response == "" || resp.Degraded || len(resp.Sources) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChatRetriesTransientFailures(t *testing.T) {
	fake := &fakeCompletionClient{
		failures: 2,
		failErr:  fmt.Errorf("completion API error [503]: upstream restarting: %w", domain.ErrCompletionTransient),
		response: "recovered",
	}
	svc, _ := newTestService(t, seededDocumentStore(), fake)

	resp, err := svc.Chat(context.Background(), &domain.ChatRequest{Message: "retry me"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Response != "recovered" {
		t.Fatalf("unexpected response: %q", resp.Response)
	}
	if fake.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.callCount())
	}
}

func TestChatRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{
		failures: 10,
		failErr:  fmt.Errorf("completion API error [503]: still down: %w", domain.ErrCompletionTransient),
	}
	svc, db := newTestService(t, seededDocumentStore(), fake)

	resp, err := svc.Chat(ctx, &domain.ChatRequest{Message: "hopeless", SessionID: "s-exhausted"})
	if !errors.Is(err, domain.ErrCompletionTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
	// Initial attempt plus MaxRetries retries.
	if fake.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.callCount())
	}

	turns, err := db.GetTurns(ctx, "s-exhausted", 0, "")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("failed run must not append turns, got %d", len(turns))
	}
}

func TestChatDoesNotRetryRejection(t *testing.T) {
	fake := &fakeCompletionClient{
		failures: 10,
		failErr:  fmt.Errorf("completion API error [401]: invalid key: %w", domain.ErrCompletionRejected),
	}
	svc, _ := newTestService(t, seededDocumentStore(), fake)

	_, err := svc.Chat(context.Background(), &domain.ChatRequest{Message: "reject me"})
	if !errors.Is(err, domain.ErrCompletionRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if fake.callCount() != 1 {
		t.Fatalf("rejection must not be retried, got %d attempts", fake.callCount())
	}
}

func TestChatSessionBusyRejectsConcurrentTurn(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{
		response: "first answer",
		started:  make(chan struct{}, 1),
		block:    make(chan struct{}),
	}
	svc, db := newTestService(t, seededDocumentStore(), fake)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Chat(ctx, &domain.ChatRequest{Message: "first", SessionID: "s-busy"})
		done <- err
	}()

	<-fake.started
	_, err := svc.Chat(ctx, &domain.ChatRequest{Message: "second", SessionID: "s-busy"})
	if !errors.Is(err, domain.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	close(fake.block)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	// The claim is released once the first turn completes.
	if _, err := svc.Chat(ctx, &domain.ChatRequest{Message: "third", SessionID: "s-busy"}); err != nil {
		t.Fatalf("third turn failed: %v", err)
	}

	turns, err := db.GetTurns(ctx, "s-busy", 0, "")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns from 2 completed runs, got %d", len(turns))
	}
}

func TestChatDistinctSessionsRunConcurrently(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{
		response: "answer",
		started:  make(chan struct{}, 2),
		block:    make(chan struct{}),
	}
	svc, _ := newTestService(t, seededDocumentStore(), fake)

	done := make(chan error, 2)
	go func() {
		_, err := svc.Chat(ctx, &domain.ChatRequest{Message: "first", SessionID: "s-one"})
		done <- err
	}()
	<-fake.started

	// With s-one still in flight, a turn on another session must reach the
	// completion call instead of being rejected.
	go func() {
		_, err := svc.Chat(ctx, &domain.ChatRequest{Message: "second", SessionID: "s-two"})
		done <- err
	}()
	<-fake.started

	close(fake.block)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("turn failed: %v", err)
		}
	}
}

func TestChatSecondTurnSeesFirstTurn(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{response: "March 3."}
	svc, _ := newTestService(t, seededDocumentStore(), fake)

	if _, err := svc.Chat(ctx, &domain.ChatRequest{Message: "What is the deadline?", SessionID: "s-hist"}); err != nil {
		t.Fatalf("first Chat failed: %v", err)
	}
	if _, err := svc.Chat(ctx, &domain.ChatRequest{Message: "What did I ask?", SessionID: "s-hist"}); err != nil {
		t.Fatalf("second Chat failed: %v", err)
	}

	msgs := fake.lastRequest().Messages
	var sawQuestion, sawAnswer bool
	for _, m := range msgs {
		if m.Role == domain.RoleUser && m.Content == "What is the deadline?" {
			sawQuestion = true
		}
		if m.Role == domain.RoleAssistant && m.Content == "March 3." {
			sawAnswer = true
		}
	}
	if !sawQuestion || !sawAnswer {
		t.Fatalf("second turn missing first exchange in prompt: %+v", msgs)
	}
	if last := msgs[len(msgs)-1]; last.Role != domain.RoleUser || last.Content != "What did I ask?" {
		t.Fatalf("unexpected final message: %+v", last)
	}
}

func TestChatClientHistorySeedsEmptySession(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{response: "ok"}
	svc, _ := newTestService(t, seededDocumentStore(), fake)

	req := &domain.ChatRequest{
		Message:   "And the second one?",
		SessionID: "s-seeded",
		ConversationHistory: []domain.HistoryMessage{
			{Role: "user", Content: "List the milestones."},
			{Role: "assistant", Content: "M1 and M2."},
			{Role: "tool", Content: "ignored"},
		},
	}
	if _, err := svc.Chat(ctx, req); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	var sawSeed bool
	for _, m := range fake.lastRequest().Messages {
		if m.Role == domain.RoleAssistant && m.Content == "M1 and M2." {
			sawSeed = true
		}
		if m.Content == "ignored" {
			t.Fatal("non-conversation role must be filtered out")
		}
	}
	if !sawSeed {
		t.Fatal("client-supplied history missing from prompt")
	}
}

func TestChatKeywordBranchDegraded(t *testing.T) {
	ctx := context.Background()
	docs := seededDocumentStore()
	docs.KeywordResults = nil
	docs.KeywordErr = errors.New("fts index offline")
	fake := &fakeCompletionClient{response: "vector only"}
	svc, db := newTestService(t, docs, fake)

	resp, err := svc.Chat(ctx, &domain.ChatRequest{Message: "degrade me"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !resp.Degraded {
		t.Fatal("expected degraded response")
	}
	if len(resp.Sources) == 0 {
		t.Fatal("vector branch results should still be used")
	}

	run, err := db.GetRun(ctx, resp.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || !run.Degraded {
		t.Fatalf("run should record degraded flag: %+v", run)
	}
}

func TestChatEmbeddingFailureFailsTurn(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{response: "never"}
	db := helpers.NewTestSessionStore(t)
	embedErr := fmt.Errorf("embedding API error [500]: boom: %w", domain.ErrEmbeddingUnavailable)
	svc := New(db, seededDocumentStore(), &failingEmbedder{err: embedErr}, fake, newTestConfig())

	_, err := svc.Chat(ctx, &domain.ChatRequest{Message: "embed me", SessionID: "s-embed"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if fake.callCount() != 0 {
		t.Fatalf("completion must not run after embedding failure, got %d calls", fake.callCount())
	}

	turns, err := db.GetTurns(ctx, "s-embed", 0, "")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("failed run must not append turns, got %d", len(turns))
	}
}

func TestRetrieveBothBranchesFail(t *testing.T) {
	docs := helpers.NewMemoryDocumentStore()
	docs.VectorErr = errors.New("pool exhausted")
	docs.KeywordErr = errors.New("fts offline")
	svc, _ := newTestService(t, docs, &fakeCompletionClient{})

	result, err := svc.Retrieve(context.Background(), &domain.Query{Text: "q", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if len(result.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(result.Candidates))
	}
}

func TestChatStreamDeliversDeltasAndDone(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{chunks: []string{"The ", "answer ", "is ", "42."}}
	svc, db := newTestService(t, seededDocumentStore(), fake)

	var events []domain.ChatStreamEvent
	err := svc.ChatStream(ctx, &domain.ChatRequest{Message: "What is the answer?"}, func(ev domain.ChatStreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 4 deltas and a done event, got %d events", len(events))
	}

	var full strings.Builder
	for _, ev := range events[:4] {
		if ev.Type != domain.EventTypeDelta {
			t.Fatalf("unexpected event type: %s", ev.Type)
		}
		var d domain.DeltaEventData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			t.Fatalf("decode delta: %v", err)
		}
		full.WriteString(d.Text)
	}
	if full.String() != "The answer is 42." {
		t.Fatalf("unexpected concatenation: %q", full.String())
	}

	last := events[len(events)-1]
	if last.Type != domain.EventTypeDone {
		t.Fatalf("expected done event, got %s", last.Type)
	}
	var doneData domain.DoneEventData
	if err := json.Unmarshal(last.Data, &doneData); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	if doneData.SessionID == "" || doneData.RunID == "" {
		t.Fatalf("done event missing IDs: %+v", doneData)
	}

	turns, err := db.GetTurns(ctx, doneData.SessionID, 0, "")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 2 || turns[1].Content != "The answer is 42." {
		t.Fatalf("unexpected turns: %+v", turns)
	}

	run, err := db.GetRun(ctx, doneData.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || run.Status != domain.RunStatusCompleted {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestChatStreamConsumerDisconnectCancelsRun(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{chunks: []string{"one ", "two ", "three ", "four"}}
	svc, db := newTestService(t, seededDocumentStore(), fake)

	var events []domain.ChatStreamEvent
	err := svc.ChatStream(ctx, &domain.ChatRequest{Message: "stream", SessionID: "s-gone"}, func(ev domain.ChatStreamEvent) error {
		events = append(events, ev)
		if len(events) == 2 {
			return errors.New("write tcp: broken pipe")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("consumer disconnect should not surface an error, got %v", err)
	}
	// Upstream reads stop at the chunk whose delivery failed.
	if fake.sentCount() != 2 {
		t.Fatalf("expected upstream to stop after 2 chunks, got %d", fake.sentCount())
	}

	turns, err := db.GetTurns(ctx, "s-gone", 0, "")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("cancelled run must not append turns, got %d", len(turns))
	}

	var first domain.DeltaEventData
	if err := json.Unmarshal(events[0].Data, &first); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	run, err := db.GetRun(ctx, first.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || run.Status != domain.RunStatusCancelled {
		t.Fatalf("expected cancelled run, got %+v", run)
	}
}

func TestChatStreamUpstreamFailureEmitsErrorEvent(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCompletionClient{
		chunks:    []string{"partial "},
		streamErr: fmt.Errorf("failed to read stream: %w: connection reset", domain.ErrCompletionTransient),
	}
	svc, db := newTestService(t, seededDocumentStore(), fake)

	var events []domain.ChatStreamEvent
	err := svc.ChatStream(ctx, &domain.ChatRequest{Message: "stream", SessionID: "s-cut"}, func(ev domain.ChatStreamEvent) error {
		events = append(events, ev)
		return nil
	})
	if !errors.Is(err, domain.ErrCompletionTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected delta and error events, got %d", len(events))
	}
	if events[1].Type != domain.EventTypeError {
		t.Fatalf("expected error event, got %s", events[1].Type)
	}
	var errData domain.ErrorEventData
	if err := json.Unmarshal(events[1].Data, &errData); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if errData.Code != "completion_unavailable" {
		t.Fatalf("unexpected error code: %s", errData.Code)
	}

	turns, err := db.GetTurns(ctx, "s-cut", 0, "")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("failed run must not append turns, got %d", len(turns))
	}

	var first domain.DeltaEventData
	if err := json.Unmarshal(events[0].Data, &first); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	run, err := db.GetRun(ctx, first.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed run, got %+v", run)
	}
}
