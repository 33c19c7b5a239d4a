package service

import (
	"context"
	"sync"
)

// ComponentHealth reports one dependency's reachability.
type ComponentHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthReport covers each external dependency independently, so partial
// degradation is distinguishable from total outage.
type HealthReport struct {
	SessionStore  ComponentHealth `json:"session_store"`
	DocumentStore ComponentHealth `json:"document_store"`
	Completion    ComponentHealth `json:"completion"`
}

// Status grades the report: healthy when every dependency is reachable,
// unhealthy when none is, degraded in between.
func (h HealthReport) Status() string {
	ok := 0
	for _, c := range []ComponentHealth{h.SessionStore, h.DocumentStore, h.Completion} {
		if c.OK {
			ok++
		}
	}
	switch ok {
	case 3:
		return "healthy"
	case 0:
		return "unhealthy"
	default:
		return "degraded"
	}
}

// Health probes the session store, the document store and the completion
// service concurrently.
func (s *Service) Health(ctx context.Context) HealthReport {
	var report HealthReport
	var wg sync.WaitGroup

	probe := func(target *ComponentHealth, check func() error) {
		defer wg.Done()
		if err := check(); err != nil {
			*target = ComponentHealth{Error: err.Error()}
			return
		}
		*target = ComponentHealth{OK: true}
	}

	wg.Add(3)
	go probe(&report.SessionStore, func() error { return s.sessions.Ping(ctx) })
	go probe(&report.DocumentStore, func() error { return s.documents.Ping(ctx) })
	go probe(&report.Completion, func() error {
		_, err := s.llmClient.ListModels(ctx)
		return err
	})
	wg.Wait()

	return report
}
