// Package commands defines the intent messages consumed by the coordinator.
// UI gestures (dialog submissions, drag-and-drop) arrive as one of these
// discrete commands rather than as a web of callbacks.
package commands

// CreateMode selects the sub-flow when a subcategory is created under a
// parent that already has concepts of its own.
type CreateMode string

const (
	// CreateModeEmpty creates the category with a placeholder concept so the
	// empty path stays visible.
	CreateModeEmpty CreateMode = "empty"
	// CreateModeTransfer creates the category by moving selected existing
	// concepts into it.
	CreateModeTransfer CreateMode = "transfer"
)

// CreateCategoryCommand creates a subcategory under ParentPath, or a new root
// category when ParentPath is empty.
type CreateCategoryCommand struct {
	ParentPath string     `json:"parentPath" validate:"max=512"`
	Name       string     `json:"name" validate:"required,max=120"`
	Mode       CreateMode `json:"mode,omitempty" validate:"omitempty,oneof=empty transfer"`
	// ConceptIDs are the concepts to move when Mode is transfer.
	ConceptIDs []string `json:"conceptIds,omitempty" validate:"max=500,dive,required"`
}

// RenameCategoryCommand replaces the final segment of Path with NewName.
type RenameCategoryCommand struct {
	Path    string `json:"path" validate:"required,max=512"`
	NewName string `json:"newName" validate:"required,max=120"`
}

// MoveCategoryCommand relocates the Path subtree under NewParentPath, or to
// the root when NewParentPath is empty.
type MoveCategoryCommand struct {
	Path          string `json:"path" validate:"required,max=512"`
	NewParentPath string `json:"newParentPath" validate:"max=512"`
}

// TransferConceptsCommand re-files a specific set of concepts under
// DestinationPath. The destination may be an existing category or a new one.
type TransferConceptsCommand struct {
	ConceptIDs      []string `json:"conceptIds" validate:"required,min=1,max=500,dive,required"`
	DestinationPath string   `json:"destinationPath" validate:"required,max=512"`
}
