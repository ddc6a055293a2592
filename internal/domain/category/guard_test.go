package category

import (
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "conceptdeck-engine/internal/errors"
)

func guardOver(paths ...string) *ConflictGuard {
	existing := map[string]bool{}
	for _, p := range paths {
		existing[p] = true
	}
	return NewGuard(existing)
}

func TestConflictGuard_CheckCreate(t *testing.T) {
	guard := guardOver("Backend", "Backend > DB")

	tests := []struct {
		name     string
		parent   string
		newName  string
		wantCode appErrors.ErrorCode
	}{
		{"valid subcategory", "Backend", "Caching", ""},
		{"valid root", "", "Frontend", ""},
		{"empty name", "Backend", "", appErrors.CodeInvalidName},
		{"whitespace name", "Backend", "   ", appErrors.CodeInvalidName},
		{"name containing delimiter", "Backend", "A > B", appErrors.CodeInvalidName},
		{"duplicate path", "Backend", "DB", appErrors.CodeDuplicatePath},
		{"duplicate root", "", "Backend", appErrors.CodeDuplicatePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.CheckCreate(tt.parent, tt.newName)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, appErrors.CodeOf(err))
		})
	}
}

func TestConflictGuard_CheckRename(t *testing.T) {
	guard := guardOver("Backend", "Backend > DB", "Backend > Cache")

	tests := []struct {
		name     string
		path     string
		newName  string
		wantCode appErrors.ErrorCode
	}{
		{"valid rename", "Backend > DB", "Storage", ""},
		{"unchanged name rejected", "Backend > DB", "DB", appErrors.CodeInvalidName},
		{"empty name", "Backend > DB", "  ", appErrors.CodeInvalidName},
		{"collides with sibling", "Backend > DB", "Cache", appErrors.CodeDuplicatePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.CheckRename(tt.path, tt.newName)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, appErrors.CodeOf(err))
		})
	}
}

func TestConflictGuard_CheckMove(t *testing.T) {
	guard := guardOver("A", "A > B", "A > B > C", "X", "X > B")

	tests := []struct {
		name      string
		dragged   string
		newParent string
		wantCode  appErrors.ErrorCode
	}{
		{"valid move", "A > B", "", ""},
		{"move under unrelated parent", "A > B > C", "A", ""},
		{"move into own descendant", "A > B", "A > B > C", appErrors.CodeCyclicMove},
		{"move onto itself", "A > B", "A > B", appErrors.CodeCyclicMove},
		{"no-op move to current parent", "A > B > C", "A > B", appErrors.CodeCyclicMove},
		{"target already exists", "A > B", "X", appErrors.CodeDuplicatePath},
		{"empty dragged path", "", "A", appErrors.CodeInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.CheckMove(tt.dragged, tt.newParent)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, appErrors.CodeOf(err))
		})
	}
}

func TestConflictGuard_CheckTransfer(t *testing.T) {
	guard := guardOver("A")

	assert.NoError(t, guard.CheckTransfer("A"))
	assert.NoError(t, guard.CheckTransfer("Brand > New"))
	assert.Equal(t, appErrors.CodeInvalidName, appErrors.CodeOf(guard.CheckTransfer("   ")))
}
