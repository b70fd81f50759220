package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/safetydesk/causemap/pkg/tree"
)

// PrintMeta carries the metadata block inlined into a print document.
type PrintMeta struct {
	Incident    string
	Level       int
	GeneratedAt time.Time
}

// printTemplate is the print-ready wrapper: the rendered SVG inline, a
// metadata header, and one legend swatch per depth level present.
var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Cause analysis - {{.Meta.Incident}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
  h1 { font-size: 1.3rem; }
  .meta { color: #555; font-size: 0.85rem; margin-bottom: 1.5rem; }
  .diagram { border: 1px solid #ddd; padding: 1rem; }
  .legend { margin-top: 1.5rem; font-size: 0.85rem; }
  .legend li { list-style: none; margin: 0.2rem 0; }
  .swatch { display: inline-block; width: 0.9rem; height: 0.9rem; border-radius: 3px; margin-right: 0.5rem; vertical-align: middle; }
  @media print { .diagram { border: none; } }
</style>
</head>
<body>
<h1>Cause analysis</h1>
<div class="meta">
  Incident: {{.Meta.Incident}}<br>
  Analysis level: {{.Meta.Level}}<br>
  Generated: {{.Meta.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
</div>
<div class="diagram">{{.SVG}}</div>
<ul class="legend">
{{- range .Legend}}
  <li><span class="swatch" style="background:{{.Color}}"></span>{{.Label}}</li>
{{- end}}
</ul>
</body>
</html>
`))

// PrintDocument renders the tree as SVG and wraps it in a standalone HTML
// document with metadata and a per-depth color legend, suitable for the
// platform print dialog or PDF printing.
func PrintDocument(ctx context.Context, nodes []tree.Node, meta PrintMeta) ([]byte, error) {
	annotated, err := tree.AssignDepths(nodes)
	if err != nil {
		return nil, err
	}

	dot, err := ToDOT(nodes, Options{})
	if err != nil {
		return nil, err
	}
	svg, err := SVG(ctx, dot)
	if err != nil {
		return nil, err
	}

	data := struct {
		Meta   PrintMeta
		SVG    template.HTML
		Legend []LegendEntry
	}{
		Meta:   meta,
		SVG:    template.HTML(svg),
		Legend: Legend(tree.MaxDepth(annotated)),
	}

	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute print template: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFilename builds a timestamped download filename for an export
// artifact, e.g. "causemap-20260824-153001.svg".
func ExportFilename(format string, now time.Time) string {
	return fmt.Sprintf("causemap-%s.%s", now.Format("20060102-150405"), format)
}
