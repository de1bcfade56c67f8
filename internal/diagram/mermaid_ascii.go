package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// mermaidASCIIBin is an optional renderer looked up on PATH.
const mermaidASCIIBin = "mermaid-ascii"

// RenderASCIIAuto prefers the mermaid-ascii CLI and falls back to
// RenderASCII when it is missing or fails.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel) string {
	bin, err := exec.LookPath(mermaidASCIIBin)
	if err != nil {
		return RenderASCII(model)
	}
	out, err := RenderASCIIViaCLI(ctx, model, bin)
	if err != nil {
		return RenderASCII(model)
	}
	return out
}

// RenderASCIIViaCLI feeds RenderMermaidForCLI output to bin on stdin.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, bin string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI emits only edges, the subset mermaid-ascii parses.
// Node IDs carry position, status and duration, e.g. cmd-2-FAIL-300ms.
func RenderMermaidForCLI(model *DiagramModel) string {
	ids := make(map[string]string, len(model.Nodes))
	for _, n := range model.Nodes {
		ids[n.ID] = cliNodeID(n)
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	writeMermaidEdges(&b, model.Edges, func(id string) string {
		if display, ok := ids[id]; ok {
			return display
		}
		return mermaidSafeID(id)
	})
	return b.String()
}

func cliNodeID(n *Node) string {
	parts := []string{n.Caption()}
	if n.Kind == NodeKindCommand {
		parts[0] = strings.Replace(n.ID, "cmd_", "cmd-", 1)
	}
	if p, ok := n.palette(); ok {
		parts = append(parts, p.Tag)
		if n.Status.DurationMs > 0 {
			parts = append(parts, fmt.Sprintf("%dms", n.Status.DurationMs))
		}
	}
	return strings.ReplaceAll(strings.Join(parts, "-"), " ", "-")
}
