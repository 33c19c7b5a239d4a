package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/raglinehq/ragline/internal/domain"
	store "github.com/raglinehq/ragline/internal/repository"
)

func seedSessionWithTurns(t *testing.T, db *store.SQLiteStore, sessionID string, n int) {
	t.Helper()
	ctx := context.Background()
	if _, err := db.GetOrCreateSession(ctx, sessionID); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		turn := &domain.ConversationTurn{
			TurnID:    "t" + string(rune('1'+i)),
			SessionID: sessionID,
			Role:      role,
			Content:   "turn content",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := db.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}
}

func TestGetSessionTurnsDefaults(t *testing.T) {
	e := echo.New()
	h, _, db := newTestHandler(t)
	seedSessionWithTurns(t, db, "s1", 2)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/turns", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("s1")

	if err := h.GetSessionTurns(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Turns   []domain.ConversationTurn `json:"turns"`
		HasMore bool                      `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Turns) != 2 || resp.HasMore {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Turns[0].TurnID != "t1" {
		t.Fatalf("turns should come back oldest first: %+v", resp.Turns)
	}
}

func TestGetSessionTurnsLimit(t *testing.T) {
	e := echo.New()
	h, _, db := newTestHandler(t)
	seedSessionWithTurns(t, db, "s1", 2)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/turns?limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("s1")

	if err := h.GetSessionTurns(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Turns   []domain.ConversationTurn `json:"turns"`
		HasMore bool                      `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Turns) != 1 || !resp.HasMore {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetSessionTurnsNotFound(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing/turns", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("missing")

	if err := h.GetSessionTurns(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	e := echo.New()
	h, _, db := newTestHandler(t)
	ctx := context.Background()

	if _, err := db.GetOrCreateSession(ctx, "s1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	run := &domain.Run{
		RunID:     "r1",
		SessionID: "s1",
		Mode:      domain.RunModeBuffered,
		Status:    domain.RunStatusCompleted,
		StartedAt: time.Now(),
	}
	if err := db.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/r1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("r1")

	if err := h.GetRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got domain.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.RunID != "r1" || got.Status != domain.RunStatusCompleted {
		t.Fatalf("unexpected run: %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("missing")

	if err := h.GetRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
