// Package ports defines the interfaces the application layer depends on.
// Implementations live in infrastructure (HTTP client, websocket hub,
// prometheus collector); tests substitute fakes.
package ports

import (
	"context"
	"time"

	"conceptdeck-engine/internal/domain/concept"
)

// PersistenceAPI is the consumed contract of the external persistence
// service. The engine only ever talks to it through this interface; request
// and response shapes on the wire are an infrastructure concern.
type PersistenceAPI interface {
	// FetchConceptsByCategory returns the flat conceptsByCategory mapping the
	// hierarchy is rebuilt from.
	FetchConceptsByCategory(ctx context.Context) (map[string][]*concept.Concept, error)

	// RenameCategory renames the last segment of categoryPath. The service
	// re-paths every concept in the subtree; from the engine's perspective the
	// rename is atomic.
	RenameCategory(ctx context.Context, categoryPath []string, newName string) error

	// MoveCategory relocates the categoryPath subtree under newParentPath.
	// A nil newParentPath moves the subtree to the root.
	MoveCategory(ctx context.Context, categoryPath []string, newParentPath []string) error

	// CreateConcept files a new concept (possibly a placeholder) and returns
	// it with its server-assigned identity.
	CreateConcept(ctx context.Context, c *concept.Concept) (*concept.Concept, error)

	// UpdateConceptCategory re-files one concept under a different path.
	UpdateConceptCategory(ctx context.Context, conceptID, newCategory string) error
}

// Event is one lifecycle notification pushed to the UI. Toast rendering and
// any visual reaction remain the consumer's concern.
type Event struct {
	Type    string    `json:"type"`
	Kind    string    `json:"kind,omitempty"`
	Path    string    `json:"path,omitempty"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Event types published by the coordinator.
const (
	EventOperationStarted  = "operation.started"
	EventOperationFinished = "operation.finished"
	EventHierarchyRefresh  = "hierarchy.refreshed"
)

// EventPublisher delivers engine events to whoever is listening. Publish
// must never block the operation lifecycle.
type EventPublisher interface {
	Publish(event Event)
}

// OperationMetrics records operation outcomes. Implemented by the
// observability collector; a no-op implementation is used when metrics are
// disabled.
type OperationMetrics interface {
	OperationStarted(kind string)
	OperationFinished(kind, status string, duration time.Duration)
	HierarchyRebuilt(rootCount, conceptCount int)
	APICall(endpoint, outcome string, duration time.Duration)
}
