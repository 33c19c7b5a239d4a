package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raglinehq/ragline/internal/domain"
)

// Client is an HTTP client for OpenAI-compatible embedding APIs.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dim        int
	maxChars   int
	httpClient *http.Client
}

// NewClient creates a new embedding client. baseURL should include the API
// version prefix (e.g. "https://api.openai.com/v1").
func NewClient(baseURL, apiKey, model string, dim, maxChars int, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		dim:      dim,
		maxChars: maxChars,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// EmbeddingRequest is the request payload for the embeddings endpoint.
type EmbeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

// EmbeddingResponse is the response from the embeddings endpoint.
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  *EmbeddingUsage `json:"usage,omitempty"`
}

// EmbeddingData holds a single embedding result.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// EmbeddingUsage reports token usage for an embedding request.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Embed converts the given text into an embedding vector. A single attempt
// is made per call.
func (c *Client) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	reqBody := &EmbeddingRequest{
		Input: Truncate(text, c.maxChars),
		Model: c.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to send request: %w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, respBody)
	}

	var result EmbeddingResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding response contains no data: %w", domain.ErrEmbeddingUnavailable)
	}

	vec := result.Data[0].Embedding
	if len(vec) != c.dim {
		return nil, fmt.Errorf("unexpected embedding dimension: got %d, want %d: %w", len(vec), c.dim, domain.ErrEmbeddingUnavailable)
	}

	return domain.EmbeddingVector(vec), nil
}

// apiError maps a non-200 response to the embedding error taxonomy:
// 5xx, 408 and 429 are unavailability, everything else is a rejection.
func apiError(status int, body []byte) error {
	sentinel := domain.ErrEmbeddingRejected
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		sentinel = domain.ErrEmbeddingUnavailable
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("embedding API error [%d]: %s (type: %s): %w", status, errResp.Error.Message, errResp.Error.Type, sentinel)
	}
	return fmt.Errorf("embedding API error [%d]: %s: %w", status, strings.TrimSpace(string(body)), sentinel)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Truncate deterministically cuts text to at most maxChars characters,
// counting runes so multi-byte characters are never split.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
