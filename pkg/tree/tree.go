// Package tree defines the causal-factor tree used by diagrams.
//
// The canonical in-memory and storage form is a flat list of [Node] values
// linked by parent key, not a nested structure. The nested form exists only
// for export ([Nested]). All structural operations (validation, depth
// assignment, descendant sets) build a temporary adjacency [Index] once and
// work over it, so they stay O(n) even for repeated recursive traversal.
//
// # Invariants
//
// A valid node list has:
//   - exactly one root (a node with Parent == 0)
//   - parent references that resolve to an existing key
//   - unique keys
//   - no parent cycles
//
// [Validate] checks all four and returns a DATA_INTEGRITY_* error for the
// first violation found.
package tree

import (
	"encoding/json"
	"slices"

	"github.com/safetydesk/causemap/pkg/errors"
)

// Node is a single causal-factor entry in a diagram.
//
// Key is unique within one diagram and stable across edits; Parent refers
// to another node's Key, with 0 meaning "this is the root". Category,
// Color and Description are free-form metadata not used by layout.
// Depth is derived, not stored: it is populated by [AssignDepths] and
// omitted from serialization when zero.
type Node struct {
	Key         int    `json:"key" bson:"key"`
	Name        string `json:"name" bson:"name"`
	Parent      int    `json:"parent,omitempty" bson:"parent,omitempty"`
	Category    string `json:"category,omitempty" bson:"category,omitempty"`
	Color       string `json:"color,omitempty" bson:"color,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Depth       int    `json:"depth,omitempty" bson:"depth,omitempty"`
}

// IsRoot reports whether the node has no parent reference.
func (n Node) IsRoot() bool { return n.Parent == 0 }

// NestedNode is the children-embedded export form of a node.
type NestedNode struct {
	Key         int          `json:"key"`
	Name        string       `json:"name"`
	Category    string       `json:"category,omitempty"`
	Color       string       `json:"color,omitempty"`
	Description string       `json:"description,omitempty"`
	Children    []NestedNode `json:"children,omitempty"`
}

// Marshal serializes a flat node list to its canonical JSON form.
func Marshal(nodes []Node) ([]byte, error) {
	return json.Marshal(nodes)
}

// Unmarshal parses the canonical JSON form back into a flat node list.
// The result is validated; structurally broken data is rejected rather
// than silently repaired.
func Unmarshal(data []byte) ([]Node, error) {
	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse diagram JSON")
	}
	if err := Validate(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Index is a per-operation adjacency view over a flat node list.
// Build it once with NewIndex, then traverse; never re-scan the list
// inside a recursion.
type Index struct {
	byKey    map[int]*Node
	children map[int][]int // parent key → child keys, in list order
	root     int           // key of the unique root, 0 if absent
	roots    int           // number of parentless nodes seen
}

// NewIndex builds the key and parent→children lookups for nodes.
// The index holds pointers into the given slice; it is invalidated by any
// mutation of the slice.
func NewIndex(nodes []Node) *Index {
	idx := &Index{
		byKey:    make(map[int]*Node, len(nodes)),
		children: make(map[int][]int, len(nodes)),
	}
	for i := range nodes {
		n := &nodes[i]
		if _, dup := idx.byKey[n.Key]; !dup {
			idx.byKey[n.Key] = n
		}
		if n.IsRoot() {
			idx.roots++
			if idx.root == 0 {
				idx.root = n.Key
			}
			continue
		}
		idx.children[n.Parent] = append(idx.children[n.Parent], n.Key)
	}
	return idx
}

// Node returns the node with the given key, or nil.
func (idx *Index) Node(key int) *Node { return idx.byKey[key] }

// Children returns the keys of the direct children of key, in list order.
func (idx *Index) Children(key int) []int { return idx.children[key] }

// Root returns the key of the unique root node, or 0 when the list has no
// parentless node.
func (idx *Index) Root() int { return idx.root }

// Validate checks the structural invariants of a flat node list.
// An empty list is valid (an absent diagram). Violations are reported as
// DATA_INTEGRITY_* errors; node names are not validated here, that is the
// editor's concern.
func Validate(nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	seen := make(map[int]bool, len(nodes))
	roots := 0
	for _, n := range nodes {
		if seen[n.Key] {
			return errors.New(errors.ErrCodeDuplicateKey, "duplicate node key %d", n.Key)
		}
		seen[n.Key] = true
		if n.IsRoot() {
			roots++
		}
	}
	switch {
	case roots == 0:
		return errors.New(errors.ErrCodeNoRoot, "no root node in %d-node diagram", len(nodes))
	case roots > 1:
		return errors.New(errors.ErrCodeMultipleRoots, "%d parentless nodes, want exactly 1", roots)
	}

	for _, n := range nodes {
		if !n.IsRoot() && !seen[n.Parent] {
			return errors.New(errors.ErrCodeDanglingParent, "node %d references missing parent %d", n.Key, n.Parent)
		}
	}

	// Parent links are in-bounds and there is a single root; the only
	// remaining failure mode is a parent cycle disconnected from it.
	idx := NewIndex(nodes)
	reached := reachable(idx)
	if len(reached) != len(nodes) {
		for _, n := range nodes {
			if !reached[n.Key] {
				return errors.New(errors.ErrCodeCycle, "node %d is part of a parent cycle", n.Key)
			}
		}
	}
	return nil
}

// reachable returns the set of keys reachable from the index root.
func reachable(idx *Index) map[int]bool {
	out := make(map[int]bool, len(idx.byKey))
	if idx.root == 0 {
		return out
	}
	var visit func(key int)
	visit = func(key int) {
		out[key] = true
		for _, c := range idx.children[key] {
			visit(c)
		}
	}
	visit(idx.root)
	return out
}

// Descendants returns the keys of key's full subtree, excluding key itself.
// A node is a descendant if its parent chain passes through key.
func Descendants(nodes []Node, key int) []int {
	idx := NewIndex(nodes)
	var out []int
	var visit func(k int)
	visit = func(k int) {
		for _, c := range idx.children[k] {
			out = append(out, c)
			visit(c)
		}
	}
	visit(key)
	return out
}

// Nested converts a flat node list to the children-embedded export form.
// The list must be valid; Depth values are ignored. Children appear in
// list order.
func Nested(nodes []Node) (NestedNode, error) {
	if err := Validate(nodes); err != nil {
		return NestedNode{}, err
	}
	if len(nodes) == 0 {
		return NestedNode{}, errors.New(errors.ErrCodeNoRoot, "cannot nest an empty diagram")
	}
	idx := NewIndex(nodes)
	var build func(key int) NestedNode
	build = func(key int) NestedNode {
		n := idx.Node(key)
		out := NestedNode{
			Key:         n.Key,
			Name:        n.Name,
			Category:    n.Category,
			Color:       n.Color,
			Description: n.Description,
		}
		for _, c := range idx.Children(key) {
			out.Children = append(out.Children, build(c))
		}
		return out
	}
	return build(idx.Root()), nil
}

// MaxKey returns the largest key in nodes, or 0 for an empty list.
func MaxKey(nodes []Node) int {
	max := 0
	for _, n := range nodes {
		if n.Key > max {
			max = n.Key
		}
	}
	return max
}

// Clone returns a deep copy of the node list.
func Clone(nodes []Node) []Node {
	return slices.Clone(nodes)
}
