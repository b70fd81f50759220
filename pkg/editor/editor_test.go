package editor

import (
	"testing"

	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/tree"
)

const desc = "Worker slipped on wet floor near loading dock"

func newSession(t *testing.T) *Editor {
	t.Helper()
	e, err := NewFromDescription(desc, 3)
	if err != nil {
		t.Fatalf("NewFromDescription() error = %v", err)
	}
	return e
}

func TestNewRejectsBrokenList(t *testing.T) {
	broken := []tree.Node{{Key: 1, Name: "a"}, {Key: 1, Name: "b", Parent: 1}}
	if _, err := New(broken, 3); !errors.IsDataIntegrity(err) {
		t.Errorf("New(broken) = %v, want data-integrity error", err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	nodes := []tree.Node{{Key: 1, Name: "root"}, {Key: 2, Name: "cause", Parent: 1}}
	e, err := New(nodes, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Rename(2, "changed"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if nodes[1].Name != "cause" {
		t.Error("editor mutated the caller's slice")
	}
}

func TestRename(t *testing.T) {
	e := newSession(t)
	if err := e.StartEdit(2); err != nil {
		t.Fatalf("StartEdit() error = %v", err)
	}

	if err := e.Rename(2, "Operator fatigue"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if e.EditKey() != 0 {
		t.Error("Rename() did not exit edit mode")
	}

	for _, n := range e.Nodes() {
		if n.Key == 2 && n.Name != "Operator fatigue" {
			t.Errorf("node 2 name = %q, want %q", n.Name, "Operator fatigue")
		}
	}
}

func TestRenameBlankFailsWithoutMutation(t *testing.T) {
	e := newSession(t)
	before := e.Nodes()

	err := e.Rename(2, "   ")
	if !errors.Is(err, errors.ErrCodeInvalidName) {
		t.Fatalf("Rename(blank) = %v, want INVALID_NAME", err)
	}

	after := e.Nodes()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("node %d changed after failed rename", before[i].Key)
		}
	}
}

func TestRenameMissingKey(t *testing.T) {
	e := newSession(t)
	if err := e.Rename(999, "anything"); !errors.Is(err, errors.ErrCodeNodeNotFound) {
		t.Errorf("Rename(missing) = %v, want NODE_NOT_FOUND", err)
	}
}

func TestAddDefaultsToRootChild(t *testing.T) {
	e := newSession(t)
	before := e.Len()

	n := e.Add()
	if n.Key != before+1 {
		t.Errorf("Add() key = %d, want max+1 = %d", n.Key, before+1)
	}
	if n.Parent != 1 {
		t.Errorf("Add() parent = %d, want root key 1", n.Parent)
	}
	if e.EditKey() != n.Key {
		t.Error("Add() did not enter edit mode on the new node")
	}
	if e.RootCount() != 1 {
		t.Errorf("RootCount() = %d after Add, want 1", e.RootCount())
	}
}

func TestAddUnderEditedNode(t *testing.T) {
	e := newSession(t)
	if err := e.StartEdit(3); err != nil {
		t.Fatalf("StartEdit() error = %v", err)
	}

	n := e.Add()
	if n.Parent != 3 {
		t.Errorf("Add() parent = %d, want edited node 3", n.Parent)
	}
}

func TestRemoveCascades(t *testing.T) {
	e := newSession(t)
	total := e.Len()

	// Key 2 is the first category; count its subtree first.
	subtree := len(tree.Descendants(e.Nodes(), 2)) + 1

	if err := e.Remove(2); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if e.Len() != total-subtree {
		t.Errorf("Len() = %d after cascade, want %d", e.Len(), total-subtree)
	}

	for _, n := range e.Nodes() {
		if n.Key == 2 || n.Parent == 2 {
			t.Errorf("node %d survived cascade delete", n.Key)
		}
	}

	if err := tree.Validate(e.Nodes()); err != nil {
		t.Errorf("tree invalid after cascade: %v", err)
	}
}

func TestRemoveClearsEditMode(t *testing.T) {
	e := newSession(t)

	// Pick a second-layer node parented under key 2 and edit it.
	var child int
	for _, n := range e.Nodes() {
		if n.Parent == 2 {
			child = n.Key
			break
		}
	}
	if child == 0 {
		t.Fatal("no child of node 2 in generated tree")
	}
	if err := e.StartEdit(child); err != nil {
		t.Fatalf("StartEdit() error = %v", err)
	}

	if err := e.Remove(2); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if e.EditKey() != 0 {
		t.Error("edit mode not cleared when edited node was removed")
	}
}

func TestRemoveMissingKey(t *testing.T) {
	e := newSession(t)
	if err := e.Remove(12345); !errors.Is(err, errors.ErrCodeNodeNotFound) {
		t.Errorf("Remove(missing) = %v, want NODE_NOT_FOUND", err)
	}
}

func TestRegenerate(t *testing.T) {
	e := newSession(t)
	if err := e.StartEdit(2); err != nil {
		t.Fatalf("StartEdit() error = %v", err)
	}

	if err := e.Regenerate("Forklift reversed into racking without spotter", 1); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if e.Level() != 1 {
		t.Errorf("Level() = %d after regenerate, want 1", e.Level())
	}
	if e.EditKey() != 0 {
		t.Error("edit mode survived regenerate")
	}
	if e.Len() != 4 { // level 1: root + 3 categories
		t.Errorf("Len() = %d after level-1 regenerate, want 4", e.Len())
	}
}

func TestRegenerateValidation(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		level int
	}{
		{"short description", "too short", 3},
		{"blank description", "          ", 3},
		{"zero level", desc, 0},
		{"level out of range", desc, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newSession(t)
			before := e.Len()

			if err := e.Regenerate(tt.desc, tt.level); err == nil {
				t.Fatal("Regenerate() = nil error, want validation failure")
			}
			if e.Len() != before {
				t.Error("failed Regenerate() mutated the diagram")
			}
		})
	}
}

func TestByDepth(t *testing.T) {
	e := newSession(t)
	groups, err := e.ByDepth()
	if err != nil {
		t.Fatalf("ByDepth() error = %v", err)
	}
	if len(groups[0]) != 1 {
		t.Errorf("depth-0 bucket = %d nodes, want 1", len(groups[0]))
	}
	if len(groups[1]) != 5 {
		t.Errorf("depth-1 bucket = %d nodes, want 5", len(groups[1]))
	}
	if len(groups[2]) != 6 {
		t.Errorf("depth-2 bucket = %d nodes, want 6", len(groups[2]))
	}
}
