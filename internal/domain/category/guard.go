package category

import (
	"strings"

	appErrors "conceptdeck-engine/internal/errors"
)

// ConflictGuard runs the synchronous pre-flight validations for structural
// mutations. Every check completes before any lock is taken or network call
// issued; a rejected intent never reaches the coordinator's running state.
type ConflictGuard struct {
	// existing is the set of category paths currently in the hierarchy,
	// including implicit ancestors.
	existing map[string]bool
}

// NewGuard builds a guard from the set of existing category paths.
func NewGuard(existing map[string]bool) *ConflictGuard {
	if existing == nil {
		existing = map[string]bool{}
	}
	return &ConflictGuard{existing: existing}
}

// CheckName rejects empty or whitespace-only segment names.
func (g *ConflictGuard) CheckName(name string) error {
	if !ValidSegment(name) {
		return appErrors.InvalidName(name)
	}
	return nil
}

// CheckCreate validates creating a subcategory called name under parent
// (empty parent means a new root category).
func (g *ConflictGuard) CheckCreate(parent, name string) error {
	if err := g.CheckName(name); err != nil {
		return err
	}
	target := ChildPath(parent, name)
	if g.existing[target] {
		return appErrors.DuplicatePath(target)
	}
	return nil
}

// CheckRename validates renaming the last segment of path to newName. An
// unchanged name is rejected as invalid rather than silently accepted, so the
// caller can keep its dialog open.
func (g *ConflictGuard) CheckRename(path, newName string) error {
	if err := g.CheckName(newName); err != nil {
		return err
	}
	if LastSegment(path) == strings.TrimSpace(newName) {
		return appErrors.InvalidName(newName)
	}
	renamed := WithRenamedLastSegment(path, newName)
	if g.existing[renamed] {
		return appErrors.DuplicatePath(renamed)
	}
	return nil
}

// CheckMove validates relocating the dragged subtree under newParent (empty
// for root). Dropping a category onto itself or into its own descendant is a
// cyclic move and must be rejected before any network call.
func (g *ConflictGuard) CheckMove(dragged, newParent string) error {
	if strings.TrimSpace(dragged) == "" {
		return appErrors.InvalidName(dragged)
	}
	if newParent != "" && IsDescendantOrSelf(newParent, dragged) {
		return appErrors.CyclicMove(dragged, newParent)
	}
	target := ChildPath(newParent, LastSegment(dragged))
	if target == dragged {
		return appErrors.CyclicMove(dragged, newParent)
	}
	if g.existing[target] {
		return appErrors.DuplicatePath(target)
	}
	return nil
}

// CheckTransfer validates moving a set of concepts to destination.
func (g *ConflictGuard) CheckTransfer(destination string) error {
	if len(Split(destination)) == 0 {
		return appErrors.InvalidName(destination)
	}
	return nil
}
