package category

import "conceptdeck-engine/internal/domain/concept"

// BuildHierarchy turns the flat path-to-concepts mapping into a tree, keyed
// by top-level segment name. It is a pure function: deterministic for
// identical input, no side effects, no I/O.
//
// For each path the segment chain is walked from an implicit root, creating
// nodes as needed; the concept list attaches at the terminal segment as that
// node's direct concepts. Counts are then recomputed bottom-up.
//
// Category paths are free text, so a short top-level name colliding with a
// reused deeper segment name is common ("Backend" as a root vs "API > Backend").
// A top-level node that carries no direct concepts and no subtree of its own,
// and whose name also appears as a nested segment elsewhere, is treated as a
// duplicate fragment of the real nested category and suppressed from the
// result. Suppression never applies to a node with content, which keeps the
// total concept count of the output equal to the input's.
func BuildHierarchy(conceptsByCategory map[string][]*concept.Concept) map[string]*Node {
	roots := map[string]*Node{}
	if len(conceptsByCategory) == 0 {
		return roots
	}

	// Names that occur as a non-root segment anywhere in the input.
	nestedNames := map[string]bool{}

	for path, concepts := range conceptsByCategory {
		segments := Split(path)
		if len(segments) == 0 {
			continue
		}

		root, ok := roots[segments[0]]
		if !ok {
			root = newNode(segments[0], segments[0])
			roots[segments[0]] = root
		}

		node := root
		for _, segment := range segments[1:] {
			nestedNames[segment] = true
			node = node.child(segment)
		}
		node.Concepts = append(node.Concepts, concepts...)
	}

	for name, root := range roots {
		root.recount()
		if root.ConceptCount == 0 && len(root.Subcategories) == 0 && nestedNames[name] {
			delete(roots, name)
		}
	}

	return roots
}

// Paths returns every category path present in the mapping, including
// intermediate ancestors that only exist implicitly. Used by the conflict
// guard for duplicate detection.
func Paths(conceptsByCategory map[string][]*concept.Concept) map[string]bool {
	paths := map[string]bool{}
	for path := range conceptsByCategory {
		segments := Split(path)
		for i := range segments {
			paths[Join(segments[:i+1])] = true
		}
	}
	return paths
}

// TotalConcepts counts the concepts in the mapping, a convenience for the
// conservation checks the builder guarantees.
func TotalConcepts(conceptsByCategory map[string][]*concept.Concept) int {
	total := 0
	for _, concepts := range conceptsByCategory {
		total += len(concepts)
	}
	return total
}
