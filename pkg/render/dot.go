package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-graphviz"

	"github.com/safetydesk/causemap/pkg/tree"
)

// Options configures diagram rendering.
type Options struct {
	// Detailed includes the node key and category in labels.
	// When false, only the display name is shown.
	Detailed bool
}

// ToDOT converts a causal tree to Graphviz DOT for layered top-down
// rendering. Depths are recomputed from the parent links before binding,
// so stale Depth values on the input are irrelevant; structurally broken
// lists are rejected.
//
// The resulting DOT string can be rendered with [SVG], [PDF], or [PNG].
func ToDOT(nodes []tree.Node, opts Options) (string, error) {
	annotated, err := tree.AssignDepths(nodes)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("digraph causes {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fontcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.35;\n")
	buf.WriteString("\n")

	for _, n := range annotated {
		fmt.Fprintf(&buf, "  n%d [label=%q, fillcolor=%q];\n", n.Key, fmtLabel(n, opts.Detailed), ColorFor(n.Depth))
	}

	buf.WriteString("\n")
	for _, n := range annotated {
		if !n.IsRoot() {
			fmt.Fprintf(&buf, "  n%d -> n%d;\n", n.Parent, n.Key)
		}
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}

func fmtLabel(n tree.Node, detailed bool) string {
	if !detailed {
		return n.Name
	}
	label := fmt.Sprintf("%s\n[%d]", n.Name, n.Key)
	if n.Category != "" {
		label += " " + n.Category
	}
	return label
}

// SVG renders a DOT graph to SVG using Graphviz.
// The viewBox is normalized so consumers get a fit-to-view frame without
// Graphviz's point-unit scaling quirks.
func SVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}

// PDF renders a DOT graph as PDF via SVG conversion.
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func PDF(ctx context.Context, dot string) ([]byte, error) {
	svg, err := SVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return ToPDF(svg)
}

// PNG renders a DOT graph as PNG via SVG conversion.
// A scale of 2.0 produces a 2x resolution image suitable for high-DPI displays.
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func PNG(ctx context.Context, dot string, scale float64) ([]byte, error) {
	svg, err := SVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return ToPNG(svg, scale)
}
