package embedding

import (
	"log"
	"os"
	"time"
)

const (
	// EnvMode is the environment variable that selects mock mode.
	EnvMode = "RAGLINE_MODE"
	// ModeMock enables the mock embedding client.
	ModeMock = "MOCK"
)

// NewEmbeddingClient creates an EmbeddingClient based on the environment.
// If RAGLINE_MODE=MOCK is set, a deterministic mock client is returned
// instead of the real HTTP client.
func NewEmbeddingClient(baseURL, apiKey, model string, dim, maxChars int, timeout time.Duration) EmbeddingClient {
	if os.Getenv(EnvMode) == ModeMock {
		log.Println("RAGLINE_MODE=MOCK detected, using mock embedding client")
		return NewMockClient(dim, maxChars)
	}
	return NewClient(baseURL, apiKey, model, dim, maxChars, timeout)
}
