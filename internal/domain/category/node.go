package category

import (
	"sort"

	"conceptdeck-engine/internal/domain/concept"
)

// Node is one derived node of the category tree. Nodes are rebuilt from
// scratch on every refresh of the flat conceptsByCategory mapping and are
// never mutated in place; no node identity persists across rebuilds.
type Node struct {
	// Name is the last segment of the path.
	Name string `json:"name"`
	// FullPath is the complete delimiter-joined path.
	FullPath string `json:"fullPath"`
	// Concepts holds the direct members of this category only.
	Concepts []*concept.Concept `json:"concepts"`
	// Subcategories maps child segment name to child node.
	Subcategories map[string]*Node `json:"subcategories"`
	// ConceptCount aggregates direct concepts plus all descendants.
	ConceptCount int `json:"conceptCount"`
}

func newNode(name, fullPath string) *Node {
	return &Node{
		Name:          name,
		FullPath:      fullPath,
		Concepts:      []*concept.Concept{},
		Subcategories: map[string]*Node{},
	}
}

// child returns the subcategory with the given segment name, creating it if
// it does not exist yet.
func (n *Node) child(name string) *Node {
	if existing, ok := n.Subcategories[name]; ok {
		return existing
	}
	created := newNode(name, ChildPath(n.FullPath, name))
	n.Subcategories[name] = created
	return created
}

// recount recomputes ConceptCount bottom-up: direct concepts plus the counts
// of every descendant.
func (n *Node) recount() int {
	total := len(n.Concepts)
	for _, sub := range n.Subcategories {
		total += sub.recount()
	}
	n.ConceptCount = total
	return total
}

// SortedSubcategories returns the children ordered by name, for deterministic
// iteration in rendering and tests.
func (n *Node) SortedSubcategories() []*Node {
	names := make([]string, 0, len(n.Subcategories))
	for name := range n.Subcategories {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]*Node, len(names))
	for i, name := range names {
		nodes[i] = n.Subcategories[name]
	}
	return nodes
}
