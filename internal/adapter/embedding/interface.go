// Package embedding provides a client for OpenAI-compatible embedding APIs.
package embedding

import (
	"context"

	"github.com/raglinehq/ragline/internal/domain"
)

// EmbeddingClient converts query text into fixed-dimension vectors.
type EmbeddingClient interface {
	// Embed converts text into an embedding vector. The text is truncated
	// to the configured character limit before it is sent. Failures are
	// never retried here; the caller decides how to degrade.
	Embed(ctx context.Context, text string) (domain.EmbeddingVector, error)
}

// Ensure Client implements EmbeddingClient interface.
var _ EmbeddingClient = (*Client)(nil)
