// Package category implements the category hierarchy: path arithmetic on
// delimiter-joined segment strings, the derived CategoryNode tree, and the
// pre-flight conflict checks that guard structural mutations.
package category

import "strings"

// Delimiter is the literal three-character sequence joining path segments.
// It is the only wire format for hierarchical category identity, so it must
// match what the persistence API and the UI agree on.
const Delimiter = " > "

// Split breaks a path string into its trimmed segments. Empty or
// whitespace-only segments are dropped, so "A >  > B" yields ["A", "B"].
func Split(path string) []string {
	parts := strings.Split(path, Delimiter)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return segments
}

// Join assembles segments into a path string.
func Join(segments []string) string {
	return strings.Join(segments, Delimiter)
}

// ValidSegment reports whether name is usable as a single path segment.
// Comparisons elsewhere are exact-match on trimmed segments; no case
// normalization is performed anywhere in the engine.
func ValidSegment(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && !strings.Contains(trimmed, Delimiter)
}

// IsDescendantOrSelf reports whether candidate equals ancestor or sits
// somewhere inside ancestor's subtree.
func IsDescendantOrSelf(candidate, ancestor string) bool {
	return candidate == ancestor || strings.HasPrefix(candidate, ancestor+Delimiter)
}

// ParentOf returns all segments but the last, joined. A single-segment path
// has no parent and yields the empty string.
func ParentOf(path string) string {
	segments := Split(path)
	if len(segments) <= 1 {
		return ""
	}
	return Join(segments[:len(segments)-1])
}

// LastSegment returns the final segment of the path, or "" for an empty path.
func LastSegment(path string) string {
	segments := Split(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// WithRenamedLastSegment replaces only the final segment, preserving the
// ancestry. Renaming "A > B" to "C" yields "A > C"; renaming the root path
// "A" yields "C".
func WithRenamedLastSegment(path, newName string) string {
	segments := Split(path)
	if len(segments) == 0 {
		return strings.TrimSpace(newName)
	}
	renamed := make([]string, len(segments))
	copy(renamed, segments)
	renamed[len(renamed)-1] = strings.TrimSpace(newName)
	return Join(renamed)
}

// Rebase maps a path from the oldRoot subtree into the newRoot subtree.
// Rebase("A > B > C", "A > B", "X") yields "X > C"; a path outside the
// subtree is returned unchanged.
func Rebase(path, oldRoot, newRoot string) string {
	if path == oldRoot {
		return newRoot
	}
	if strings.HasPrefix(path, oldRoot+Delimiter) {
		return newRoot + Delimiter + path[len(oldRoot)+len(Delimiter):]
	}
	return path
}

// ChildPath joins a parent path and a child segment name. An empty parent
// makes the child a root category.
func ChildPath(parent, name string) string {
	trimmed := strings.TrimSpace(name)
	if strings.TrimSpace(parent) == "" {
		return trimmed
	}
	return parent + Delimiter + trimmed
}
