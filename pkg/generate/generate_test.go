package generate

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/safetydesk/causemap/pkg/tree"
)

func TestGenerateDeterminism(t *testing.T) {
	a := Generate("Worker slipped on wet floor", 3)
	b := Generate("Worker slipped on wet floor", 3)
	if !reflect.DeepEqual(a, b) {
		t.Error("Generate() is not deterministic for identical input")
	}
}

func TestGenerateBasicScenario(t *testing.T) {
	// Level 3: 1 root + min(5, 3+2)=5 categories + min(5*2, 6)=6 sub-causes.
	nodes := Generate("Worker slipped on wet floor", 3)

	if len(nodes) != 12 {
		t.Fatalf("Generate() produced %d nodes, want 12", len(nodes))
	}

	root := nodes[0]
	if root.Key != 1 || root.Parent != 0 {
		t.Errorf("root = key %d parent %d, want key 1 parent 0", root.Key, root.Parent)
	}
	if root.Name != "Worker slipped on wet floor" {
		t.Errorf("root name = %q, want the untruncated description", root.Name)
	}

	firstLayer := 0
	for _, n := range nodes[1:] {
		if n.Parent == 1 {
			firstLayer++
		}
	}
	if firstLayer != 5 {
		t.Errorf("first-layer count = %d, want 5", firstLayer)
	}

	if err := tree.Validate(nodes); err != nil {
		t.Errorf("generated tree invalid: %v", err)
	}
}

func TestGenerateLayerCounts(t *testing.T) {
	tests := []struct {
		level       int
		firstLayer  int
		secondLayer int
	}{
		{1, 3, 0}, // level 1: no second layer
		{2, 4, 6},
		{3, 5, 6},
		{4, 5, 6},
		{5, 5, 6},
	}

	for _, tt := range tests {
		nodes := Generate("Chemical spill in storage area", tt.level)

		want := 1 + tt.firstLayer + tt.secondLayer
		if len(nodes) != want {
			t.Errorf("level %d: %d nodes, want %d", tt.level, len(nodes), want)
		}

		roots := 0
		for _, n := range nodes {
			if n.IsRoot() {
				roots++
			}
		}
		if roots != 1 {
			t.Errorf("level %d: %d roots, want exactly 1", tt.level, roots)
		}
	}
}

func TestGenerateKeysAreSequential(t *testing.T) {
	nodes := Generate("Scaffold collapse on east wing", 5)
	for i, n := range nodes {
		if n.Key != i+1 {
			t.Fatalf("node[%d].Key = %d, want %d", i, n.Key, i+1)
		}
	}
}

func TestGenerateSecondLayerRoundRobin(t *testing.T) {
	nodes := Generate("Conveyor belt jam injured operator", 2)

	// Level 2: 4 first-layer nodes (keys 2..5), 6 second-layer nodes
	// distributed round-robin: parents 2,3,4,5,2,3.
	wantParents := []int{2, 3, 4, 5, 2, 3}
	second := nodes[5:]
	if len(second) != len(wantParents) {
		t.Fatalf("second layer = %d nodes, want %d", len(second), len(wantParents))
	}
	for i, n := range second {
		if n.Parent != wantParents[i] {
			t.Errorf("second[%d].Parent = %d, want %d", i, n.Parent, wantParents[i])
		}
	}
}

func TestGenerateEmptyText(t *testing.T) {
	nodes := Generate("", 1)
	if len(nodes) != 4 {
		t.Fatalf("Generate(empty, 1) = %d nodes, want 4", len(nodes))
	}
	if err := tree.Validate(nodes); err != nil {
		t.Errorf("tree from empty text invalid: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short unchanged", "wet floor", "wet floor"},
		{"29 chars unchanged", strings.Repeat("x", 29), strings.Repeat("x", 29)},
		{"30 chars unchanged", strings.Repeat("x", 30), strings.Repeat("x", 30)},
		{"31 chars truncated", strings.Repeat("x", 31), strings.Repeat("x", 27) + "..."},
		{"long truncated to 30", strings.Repeat("y", 100), strings.Repeat("y", 27) + "..."},
		{"multibyte within limit unchanged", strings.Repeat("é", 30), strings.Repeat("é", 30)},
		{"multibyte truncated on rune boundary", strings.Repeat("é", 40), strings.Repeat("é", 27) + "..."},
		{"cjk truncated on rune boundary", strings.Repeat("事", 31), strings.Repeat("事", 27) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input)
			if got != tt.want {
				t.Errorf("Truncate() = %q, want %q", got, tt.want)
			}
			if n := utf8.RuneCountInString(got); n > MaxRootNameLen {
				t.Errorf("Truncate() length = %d runes, want <= %d", n, MaxRootNameLen)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Truncate() = %q is not valid UTF-8", got)
			}
		})
	}
}

func TestGenerateMultibyteRootRoundTrips(t *testing.T) {
	nodes := Generate(strings.Repeat("é", 20), 3)

	if !utf8.ValidString(nodes[0].Name) {
		t.Fatalf("root name %q is not valid UTF-8", nodes[0].Name)
	}

	data, err := tree.Marshal(nodes)
	if err != nil {
		t.Fatal(err)
	}
	back, err := tree.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(nodes, back) {
		t.Errorf("round trip changed nodes: got %+v, want %+v", back, nodes)
	}
}

func TestClampLevel(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 1}, {0, 1}, {1, 1}, {3, 3}, {5, 5}, {7, 5}, {100, 5},
	}
	for _, tt := range tests {
		if got := ClampLevel(tt.in); got != tt.want {
			t.Errorf("ClampLevel(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLevelLabelRoundTrip(t *testing.T) {
	for level := MinLevel; level <= MaxLevel; level++ {
		label := FormatLevelLabel(level)
		if got := ParseLevelLabel(label); got != level {
			t.Errorf("ParseLevelLabel(FormatLevelLabel(%d)) = %d", level, got)
		}
	}
}

func TestParseLevelLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  int
	}{
		{"canonical", "Level 4 - Detailed analysis", 4},
		{"lowercase", "level 2 basic", 2},
		{"no spacing", "LEVEL5", 5},
		{"out of range clamped", "Level 9 - bogus", 5},
		{"zero clamped", "Level 0", 1},
		{"no match falls back", "severe", DefaultLevel},
		{"empty falls back", "", DefaultLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevelLabel(tt.label); got != tt.want {
				t.Errorf("ParseLevelLabel(%q) = %d, want %d", tt.label, got, tt.want)
			}
		})
	}
}
