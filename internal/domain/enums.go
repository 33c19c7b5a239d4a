// Package domain defines the core domain models for the RAG pipeline.
package domain

// RunStatus represents the status of a chat run through the pipeline.
type RunStatus string

const (
	RunStatusPending      RunStatus = "PENDING"
	RunStatusContextBuilt RunStatus = "CONTEXT_BUILT"
	RunStatusInFlight     RunStatus = "IN_FLIGHT"
	RunStatusCompleted    RunStatus = "COMPLETED"
	RunStatusFailed       RunStatus = "FAILED"
	// RunStatusCancelled is reachable only from streaming runs, on consumer
	// disconnect.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// RunMode represents the delivery mode of a chat run.
type RunMode string

const (
	RunModeBuffered  RunMode = "BUFFERED"
	RunModeStreaming RunMode = "STREAMING"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provenance tags which retrieval branch produced a candidate.
type Provenance string

const (
	ProvenanceSemantic Provenance = "semantic"
	ProvenanceKeyword  Provenance = "keyword"
	ProvenanceHybrid   Provenance = "hybrid"
)

// FragmentKind represents the kind of an assembled context fragment.
type FragmentKind string

const (
	FragmentKindSystem   FragmentKind = "system"
	FragmentKindHistory  FragmentKind = "history"
	FragmentKindDocument FragmentKind = "document"
)

// EventType represents the type of a chat stream event.
type EventType string

const (
	EventTypeDelta EventType = "delta"
	EventTypeDone  EventType = "done"
	EventTypeError EventType = "error"
)
