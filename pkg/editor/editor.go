// Package editor provides a stateful editing session over a diagram's
// flat node list.
//
// An [Editor] owns the working copy of the nodes, tracks the single node
// currently in inline-edit mode, and remembers the analysis level the
// diagram was generated with (so callers can detect "level changed, offer
// regenerate"). All mutations validate first and leave state untouched on
// failure; edits apply in the order they are issued.
package editor

import (
	"strings"

	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/generate"
	"github.com/safetydesk/causemap/pkg/tree"
)

// placeholderName is the display label for freshly added nodes.
const placeholderName = "New cause"

// Editor is a single-diagram editing session. It is not safe for
// concurrent use; a session belongs to one caller at a time.
type Editor struct {
	nodes   []tree.Node
	editKey int // key of the node in edit mode, 0 = none
	level   int // analysis level of the last generation
}

// New creates an editing session over an existing node list.
// The list is copied; the caller's slice is never mutated.
func New(nodes []tree.Node, level int) (*Editor, error) {
	if err := tree.Validate(nodes); err != nil {
		return nil, err
	}
	return &Editor{
		nodes: tree.Clone(nodes),
		level: generate.ClampLevel(level),
	}, nil
}

// NewFromDescription generates a fresh diagram and opens a session on it.
func NewFromDescription(desc string, level int) (*Editor, error) {
	if err := errors.ValidateDescription(desc); err != nil {
		return nil, err
	}
	level = generate.ClampLevel(level)
	return &Editor{
		nodes: generate.Generate(desc, level),
		level: level,
	}, nil
}

// Nodes returns a copy of the current node list.
func (e *Editor) Nodes() []tree.Node { return tree.Clone(e.nodes) }

// Level returns the analysis level of the last generation.
func (e *Editor) Level() int { return e.level }

// EditKey returns the key of the node in edit mode, or 0.
func (e *Editor) EditKey() int { return e.editKey }

// StartEdit puts the node with the given key into edit mode.
// At most one node is editable at a time; starting an edit replaces any
// previous one.
func (e *Editor) StartEdit(key int) error {
	if tree.NewIndex(e.nodes).Node(key) == nil {
		return errors.New(errors.ErrCodeNodeNotFound, "no node with key %d", key)
	}
	e.editKey = key
	return nil
}

// StopEdit leaves edit mode without changing any node.
func (e *Editor) StopEdit() { e.editKey = 0 }

// Rename replaces the display name of the node with the given key and
// exits edit mode. A name that is blank after trimming is rejected and
// nothing changes.
func (e *Editor) Rename(key int, newName string) error {
	if err := errors.ValidateNodeName(newName); err != nil {
		return err
	}
	for i := range e.nodes {
		if e.nodes[i].Key == key {
			e.nodes[i].Name = strings.TrimSpace(newName)
			if e.editKey == key {
				e.editKey = 0
			}
			return nil
		}
	}
	return errors.New(errors.ErrCodeNodeNotFound, "no node with key %d", key)
}

// Add appends a new node with a placeholder name and puts it into edit
// mode. The new key is max(existing)+1, or 1 for an empty diagram.
//
// New nodes are never parentless: the parent is the node currently in
// edit mode when one is set, otherwise the root. This keeps the
// single-root invariant intact by construction.
func (e *Editor) Add() tree.Node {
	key := tree.MaxKey(e.nodes) + 1

	parent := e.editKey
	if parent == 0 {
		parent = tree.NewIndex(e.nodes).Root()
	}

	n := tree.Node{Key: key, Name: placeholderName, Parent: parent}
	e.nodes = append(e.nodes, n)
	e.editKey = key
	return n
}

// Remove deletes the node with the given key and its entire subtree in
// one atomic update. Removing the root clears the whole diagram. If the
// removed subtree contained the node in edit mode, edit mode is cleared.
func (e *Editor) Remove(key int) error {
	idx := tree.NewIndex(e.nodes)
	if idx.Node(key) == nil {
		return errors.New(errors.ErrCodeNodeNotFound, "no node with key %d", key)
	}

	doomed := map[int]bool{key: true}
	for _, k := range tree.Descendants(e.nodes, key) {
		doomed[k] = true
	}

	kept := make([]tree.Node, 0, len(e.nodes)-len(doomed))
	for _, n := range e.nodes {
		if !doomed[n.Key] {
			kept = append(kept, n)
		}
	}
	e.nodes = kept

	if doomed[e.editKey] {
		e.editKey = 0
	}
	return nil
}

// Regenerate replaces the whole node list with a fresh generation and
// clears edit mode. The description must pass the minimum-length check and
// the level must be in range; on failure the current diagram is kept.
func (e *Editor) Regenerate(desc string, level int) error {
	if err := errors.ValidateDescription(desc); err != nil {
		return err
	}
	if err := errors.ValidateLevel(level); err != nil {
		return err
	}
	e.nodes = generate.Generate(desc, level)
	e.level = level
	e.editKey = 0
	return nil
}

// Len returns the current node count.
func (e *Editor) Len() int { return len(e.nodes) }

// RootCount returns the number of parentless nodes. For any diagram this
// editor produced it is 1, but the count is derived, not assumed.
func (e *Editor) RootCount() int {
	count := 0
	for _, n := range e.nodes {
		if n.IsRoot() {
			count++
		}
	}
	return count
}

// ByDepth returns the current nodes bucketed by display depth.
// Depths are recomputed on every call.
func (e *Editor) ByDepth() (map[int][]tree.Node, error) {
	return tree.GroupByDepth(e.nodes)
}
