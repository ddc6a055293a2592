// Package concept defines the Concept entity: one unit of captured knowledge
// filed under exactly one category path.
package concept

import (
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "conceptdeck-engine/internal/errors"
)

// PlaceholderTitle is the title given to synthetic concepts that keep an
// otherwise-empty category visible until real content is filed under it.
const PlaceholderTitle = "(empty category)"

// Concept represents a single concept card.
//
// A concept belongs to exactly one category path at any time. Placeholder
// concepts are synthetic: they exist solely to make an empty category
// addressable and are expected to be superseded once a real concept arrives.
type Concept struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Summary       string    `json:"summary,omitempty"`
	NeedsReview   bool      `json:"needsReview,omitempty"`
	IsPlaceholder bool      `json:"isPlaceholder,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// New creates a concept with validation.
func New(title, categoryPath, summary string) (*Concept, error) {
	if strings.TrimSpace(title) == "" {
		return nil, appErrors.InvalidName(title)
	}

	now := time.Now()
	return &Concept{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Category:  categoryPath,
		Summary:   summary,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewPlaceholder creates the synthetic concept that keeps an empty category
// visible in the hierarchy.
func NewPlaceholder(categoryPath string) *Concept {
	now := time.Now()
	return &Concept{
		ID:            uuid.NewString(),
		Title:         PlaceholderTitle,
		Category:      categoryPath,
		IsPlaceholder: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Recategorize moves the concept to a different category path.
func (c *Concept) Recategorize(newPath string) {
	if c.Category == newPath {
		return
	}
	c.Category = newPath
	c.UpdatedAt = time.Now()
}
