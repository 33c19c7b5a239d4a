package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/raglinehq/ragline/internal/domain"
)

// MockClient is a mock implementation of EmbeddingClient for testing and
// offline development. It derives vectors from a hash of the input text,
// so equal queries always embed to equal vectors.
type MockClient struct {
	dim      int
	maxChars int
}

// NewMockClient creates a new mock embedding client.
func NewMockClient(dim, maxChars int) *MockClient {
	return &MockClient{dim: dim, maxChars: maxChars}
}

// Ensure MockClient implements EmbeddingClient interface.
var _ EmbeddingClient = (*MockClient)(nil)

// Embed returns a deterministic unit-length vector derived from the text.
func (m *MockClient) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(Truncate(text, m.maxChars)))
	state := h.Sum64()

	vec := make(domain.EmbeddingVector, m.dim)
	var norm float64
	for i := range vec {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float32(int64(state%2000)-1000) / 1000.0
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}
