package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raglinehq/ragline/internal/domain"
)

func TestClientEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var req EmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Input != "hello" || req.Model != "test-embed" {
			t.Fatalf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"test-embed","usage":{"prompt_tokens":1,"total_tokens":1}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "test-embed", 3, 100, time.Second)
	vec, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector: %+v", vec)
	}
}

func TestClientEmbedTruncatesInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Input != "abcde" {
			t.Fatalf("input not truncated: %q", req.Input)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1,0]}],"model":"m"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "m", 2, 5, time.Second)
	if _, err := client.Embed(context.Background(), "abcdefghij"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
}

func TestClientEmbedRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":{"message":"input too strange","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "m", 2, 100, time.Second)
	_, err := client.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestClientEmbedUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			fmt.Fprint(w, "upstream error")
		}))

		client := NewClient(server.URL, "", "m", 2, 100, time.Second)
		_, err := client.Embed(context.Background(), "hello")
		server.Close()
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			t.Fatalf("status %d: expected unavailable, got %v", status, err)
		}
	}
}

func TestClientEmbedDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}],"model":"m"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "m", 3, 100, time.Second)
	_, err := client.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestClientEmbedEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[],"model":"m"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "m", 3, 100, time.Second)
	_, err := client.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Truncate("hello", 3); got != "hel" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Truncate("日本語テキスト", 2); got != "日本" {
		t.Fatalf("multi-byte text split badly: %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Fatalf("zero max should disable truncation: %q", got)
	}
}
