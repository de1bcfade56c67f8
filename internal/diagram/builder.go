package diagram

import (
	"fmt"

	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"

	maxLabel = 48
)

// Build constructs a DiagramModel from a workflow and, optionally, one of its
// recorded runs. A sequential workflow is a chain; a parallel one fans out
// from start and joins at end. With a run, labels show the resolved commands
// and every node carries its outcome.
func Build(wf *schema.Workflow, run *store.Run) (*DiagramModel, error) {
	if wf == nil {
		return nil, fmt.Errorf("diagram: workflow is nil")
	}
	if len(wf.Commands) == 0 {
		return nil, fmt.Errorf("diagram: workflow %q has no commands", wf.Name)
	}
	if run != nil && run.Workflow != wf.Name {
		return nil, fmt.Errorf("diagram: run %s belongs to workflow %q, not %q", run.ID, run.Workflow, wf.Name)
	}

	outcomes := make(map[int]schema.CommandOutcome)
	if run != nil {
		for _, o := range run.Outcomes {
			outcomes[o.Index] = o
		}
	}

	nodes := make([]*Node, 0, len(wf.Commands)+2)
	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})

	ids := make([]string, len(wf.Commands))
	for i, cmd := range wf.Commands {
		ids[i] = commandID(i)
		node := &Node{ID: ids[i], Label: commandLabel(i, cmd), Kind: NodeKindCommand}
		if run != nil {
			overlayStatus(node, i, outcomes)
		}
		nodes = append(nodes, node)
	}
	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})

	model := &DiagramModel{Title: title(wf, run), Nodes: nodes}
	if wf.Parallel {
		model.Edges, model.Levels = fanOut(ids)
	} else {
		model.Edges, model.Levels = chain(ids, wf.ContinueOnError)
	}
	return model, nil
}

func commandID(i int) string {
	return fmt.Sprintf("cmd_%d", i+1)
}

func commandLabel(i int, cmd string) string {
	return truncateRunes(fmt.Sprintf("%d. %s", i+1, firstLine(cmd)), maxLabel)
}

// overlayStatus applies the outcome of command i. Commands without an
// outcome were never dispatched.
func overlayStatus(node *Node, i int, outcomes map[int]schema.CommandOutcome) {
	o, ok := outcomes[i]
	if !ok {
		node.Status = &StatusOverlay{Status: StatusSkipped}
		return
	}
	node.Label = commandLabel(i, o.ResolvedCommand)
	node.Status = &StatusOverlay{
		Status:     string(o.Status),
		DurationMs: o.DurationMs,
		ExitCode:   o.ExitCode,
		Error:      o.ErrorDetail,
	}
}

func chain(ids []string, continueOnError bool) ([]Edge, [][]string) {
	label := "ok"
	if continueOnError {
		label = ""
	}

	edges := []Edge{{From: startID, To: ids[0]}}
	levels := [][]string{{startID}}
	for i, id := range ids {
		levels = append(levels, []string{id})
		if i > 0 {
			edges = append(edges, Edge{From: ids[i-1], To: id, Label: label})
		}
	}
	edges = append(edges, Edge{From: ids[len(ids)-1], To: endID})
	levels = append(levels, []string{endID})
	return edges, levels
}

func fanOut(ids []string) ([]Edge, [][]string) {
	edges := make([]Edge, 0, 2*len(ids))
	for _, id := range ids {
		edges = append(edges, Edge{From: startID, To: id})
	}
	for _, id := range ids {
		edges = append(edges, Edge{From: id, To: endID})
	}
	level := append([]string(nil), ids...)
	return edges, [][]string{{startID}, level, {endID}}
}

func title(wf *schema.Workflow, run *store.Run) string {
	if run == nil {
		return wf.Name
	}
	return fmt.Sprintf("%s (%s, %s)", wf.Name, run.Status, run.StartedAt.UTC().Format("2006-01-02 15:04"))
}
