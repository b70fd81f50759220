// Package render turns depth-annotated causal trees into layered diagrams.
//
// Layout and drawing are delegated to Graphviz via goccy/go-graphviz: this
// package's responsibility is the data binding: mapping each node's depth
// to a fill color, emitting DOT, normalizing the resulting SVG viewBox so
// the diagram fits its frame, and wrapping exports (SVG, PDF, PNG, print
// HTML with a color legend).
package render

import "fmt"

// RootColor is the fixed fill for the depth-0 root node.
const RootColor = "#2c3e50"

// palette is the cyclic fill palette for depth >= 1, indexed
// (depth-1) mod len(palette).
var palette = []string{
	"#e74c3c", // depth 1
	"#e67e22", // depth 2
	"#f1c40f", // depth 3
	"#27ae60", // depth 4
	"#2980b9", // depth 5
	"#8e44ad", // depth 6
}

// ColorFor returns the fill color for a display depth.
func ColorFor(depth int) string {
	if depth <= 0 {
		return RootColor
	}
	return palette[(depth-1)%len(palette)]
}

// LegendEntry pairs a depth level with its palette color.
type LegendEntry struct {
	Depth int
	Label string
	Color string
}

// Legend returns one entry per depth level from 0 to maxDepth, generated
// from the same palette function the renderer uses.
func Legend(maxDepth int) []LegendEntry {
	entries := make([]LegendEntry, 0, maxDepth+1)
	for d := 0; d <= maxDepth; d++ {
		label := fmt.Sprintf("Depth %d", d)
		if d == 0 {
			label = "Incident (root)"
		}
		entries = append(entries, LegendEntry{Depth: d, Label: label, Color: ColorFor(d)})
	}
	return entries
}
