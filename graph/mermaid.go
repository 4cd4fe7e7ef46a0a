package graph

import (
	"fmt"
	"strings"
)

// Style describes the visual style of a rendered node.
type Style struct {
	Fill        string
	Stroke      string
	StrokeWidth string
	Color       string
}

func (s Style) toCSS() string {
	var parts []string
	if s.Fill != "" {
		parts = append(parts, "fill:"+s.Fill)
	}
	if s.Stroke != "" {
		parts = append(parts, "stroke:"+s.Stroke)
	}
	if s.StrokeWidth != "" {
		parts = append(parts, "stroke-width:"+s.StrokeWidth)
	}
	if s.Color != "" {
		parts = append(parts, "color:"+s.Color)
	}
	return strings.Join(parts, ",")
}

// State styles: ready green, failed red, timed-out orange, in-flight blue.
var stateStyles = map[string]Style{
	"ready":     {Fill: "#e8f5e9", Stroke: "#388e3c", StrokeWidth: "2px", Color: "#222222"},
	"failed":    {Fill: "#fce1e1", Stroke: "#a60202", StrokeWidth: "2px", Color: "#222222"},
	"timed-out": {Fill: "#fff3e0", Stroke: "#f57c00", StrokeWidth: "2px", Color: "#222222"},
	"probing":   {Fill: "#e0f7fa", Stroke: "#00838f", StrokeWidth: "2px", Color: "#222222"},
	"pending":   {Fill: "#f0f0f0", Stroke: "#888888", StrokeWidth: "1px", Color: "#222222"},
}

// RenderTD renders the graph in Mermaid TD (top-down) format. Edges point
// from prerequisite to dependent, so the diagram reads in startup order.
// The optional states map annotates and color-codes each node.
func (g *Graph) RenderTD(states map[string]string) string {
	ids := make(map[string]int, len(g.order))
	for i, id := range g.order {
		ids[id] = i
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	for i, id := range g.order {
		label := id
		if state := states[id]; state != "" {
			label = fmt.Sprintf("%s<br/><span style='font-size:11px'>%s</span>", id, state)
		}
		fmt.Fprintf(&b, "    n%d[\"%s\"]\n", i, label)
	}
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			from, ok := ids[dep]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "    n%d --> n%d\n", from, ids[id])
		}
	}
	for i, id := range g.order {
		style, ok := stateStyles[states[id]]
		if !ok {
			style = stateStyles["pending"]
		}
		fmt.Fprintf(&b, "    style n%d %s\n", i, style.toCSS())
	}
	return b.String()
}
