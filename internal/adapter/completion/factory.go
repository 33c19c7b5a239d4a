package completion

import (
	"log"
	"os"
	"time"
)

const (
	// EnvMode is the environment variable that selects mock mode.
	EnvMode = "RAGLINE_MODE"
	// ModeMock enables the mock completion client.
	ModeMock = "MOCK"
)

// NewCompletionClient creates a CompletionClient based on the environment.
// If RAGLINE_MODE=MOCK is set, a mock client is returned instead of the
// real HTTP client.
func NewCompletionClient(baseURL, apiKey string, timeout time.Duration) CompletionClient {
	if os.Getenv(EnvMode) == ModeMock {
		log.Println("RAGLINE_MODE=MOCK detected, using mock completion client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
