// Package api defines the contracts for API requests and responses.
// It decouples the API structure from the internal domain models.
package api

import "time"

// CreateCategoryRequest is the expected body for a POST /categories request.
type CreateCategoryRequest struct {
	ParentPath string   `json:"parentPath"`
	Name       string   `json:"name"`
	Mode       string   `json:"mode"`
	ConceptIDs []string `json:"conceptIds,omitempty"`
}

// RenameCategoryRequest is the expected body for a POST /categories/rename request.
type RenameCategoryRequest struct {
	Path    string `json:"path"`
	NewName string `json:"newName"`
}

// MoveCategoryRequest is the expected body for a POST /categories/move request.
type MoveCategoryRequest struct {
	Path          string `json:"path"`
	NewParentPath string `json:"newParentPath"`
}

// TransferConceptsRequest is the expected body for a POST /concepts/transfer request.
type TransferConceptsRequest struct {
	ConceptIDs      []string `json:"conceptIds"`
	DestinationPath string   `json:"destinationPath"`
}

// OperationResponse is the API representation of a finished or in-flight operation.
type OperationResponse struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	TargetPath string     `json:"targetPath,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// EngineStatusResponse reports the mutation flags the UI keys its
// spinners and disabled states off.
type EngineStatusResponse struct {
	Busy          bool               `json:"busy"`
	Creating      bool               `json:"creating"`
	Renaming      bool               `json:"renaming"`
	Moving        bool               `json:"moving"`
	Transferring  bool               `json:"transferring"`
	LastOperation *OperationResponse `json:"lastOperation,omitempty"`
	Events        *EventStreamStats  `json:"events,omitempty"`
}

// EventStreamStats reports the WebSocket fan-out counters.
type EventStreamStats struct {
	Subscribers   int   `json:"subscribers"`
	EventsSent    int64 `json:"eventsSent"`
	EventsDropped int64 `json:"eventsDropped"`
}

// ConceptView is the API representation of a single concept.
type ConceptView struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	Summary       string `json:"summary,omitempty"`
	NeedsReview   bool   `json:"needsReview"`
	IsPlaceholder bool   `json:"isPlaceholder"`
}

// CategoryView is the API representation of one node of the category tree.
type CategoryView struct {
	Name          string         `json:"name"`
	FullPath      string         `json:"fullPath"`
	ConceptCount  int            `json:"conceptCount"`
	Concepts      []ConceptView  `json:"concepts,omitempty"`
	Subcategories []CategoryView `json:"subcategories,omitempty"`
}

// HierarchyResponse is the full category tree plus selection state.
type HierarchyResponse struct {
	Roots         []CategoryView `json:"roots"`
	SelectedPath  string         `json:"selectedPath,omitempty"`
	TotalConcepts int            `json:"totalConcepts"`
}

// ErrorResponse is a standardized error message for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
