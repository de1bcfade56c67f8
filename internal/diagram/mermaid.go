package diagram

import (
	"fmt"
	"strings"
)

var (
	mermaidIDReplacer    = strings.NewReplacer(".", "_", "-", "_", " ", "_")
	mermaidLabelReplacer = strings.NewReplacer(`"`, "#quot;", "<", "#lt;", ">", "#gt;")
)

// RenderMermaid renders the model as a top-down Mermaid flowchart. Nodes with
// a status are assigned the class of that status.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, n := range model.Nodes {
		id, label := mermaidSafeID(n.ID), mermaidEscapeLabel(n.Caption())
		if n.Kind == NodeKindCommand {
			fmt.Fprintf(&b, "    %s[%q]\n", id, label)
		} else {
			fmt.Fprintf(&b, "    %s((%q))\n", id, label)
		}
	}
	writeMermaidEdges(&b, model.Edges, mermaidSafeID)

	b.WriteString("\n")
	for _, status := range statusOrder {
		p := statusPalette[status]
		def := fmt.Sprintf("fill:%s,stroke:%s,color:%s", p.Fill, p.Stroke, p.Font)
		if p.Dashed {
			def += ",stroke-dasharray:5 5"
		}
		fmt.Fprintf(&b, "    classDef %s %s\n", status, def)
	}
	for _, n := range model.Nodes {
		if _, ok := n.palette(); ok {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(n.ID), n.Status.Status)
		}
	}
	return b.String()
}

func writeMermaidEdges(b *strings.Builder, edges []Edge, id func(string) string) {
	for _, e := range edges {
		arrow := "-->"
		if e.Label != "" {
			arrow += "|" + e.Label + "|"
		}
		fmt.Fprintf(b, "    %s %s %s\n", id(e.From), arrow, id(e.To))
	}
}

func mermaidSafeID(id string) string {
	return mermaidIDReplacer.Replace(id)
}

// mermaidEscapeLabel swaps characters Mermaid treats as markup in a quoted
// label for entity codes.
func mermaidEscapeLabel(s string) string {
	return mermaidLabelReplacer.Replace(s)
}
