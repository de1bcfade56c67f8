package diagram

import (
	"slices"
	"strings"
)

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindCommand NodeKind = "command"
	NodeKindStart   NodeKind = "start"
	NodeKindEnd     NodeKind = "end"
)

// Node statuses. Success and failed mirror schema.OutcomeStatus; skipped marks
// commands a halted run never dispatched.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one command of the workflow, or a virtual start/end node.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the outcome of a command in a recorded run.
type StatusOverlay struct {
	Status     string
	DurationMs int64
	ExitCode   int
	Error      string
}

// Edge is an ordering between two nodes. Label is "ok" when the next command
// only runs after a success.
type Edge struct {
	From  string
	To    string
	Label string
}

// palette is how each renderer presents a node status.
type palette struct {
	Tag    string
	Fill   string
	Stroke string
	Font   string
	Dashed bool
}

var statusPalette = map[string]palette{
	StatusSuccess: {Tag: "OK", Fill: "#2d6a2d", Stroke: "#1a4a1a", Font: "#ffffff"},
	StatusFailed:  {Tag: "FAIL", Fill: "#8b1a1a", Stroke: "#5c0e0e", Font: "#ffffff"},
	StatusSkipped: {Tag: "SKIP", Fill: "#e8e8e8", Stroke: "#888888", Font: "#888888", Dashed: true},
}

// statusOrder fixes the order of status-keyed output such as classDefs.
var statusOrder = []string{StatusSuccess, StatusFailed, StatusSkipped}

// palette returns the presentation of the node's status, if it has one.
func (n *Node) palette() (palette, bool) {
	if n.Status == nil {
		return palette{}, false
	}
	p, ok := statusPalette[n.Status.Status]
	return p, ok
}

// Caption is the first line of the label.
func (n *Node) Caption() string {
	return firstLine(n.Label)
}

func (m *DiagramModel) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// labelLeaving returns the label of an edge that starts in level.
func (m *DiagramModel) labelLeaving(level []string) string {
	for _, e := range m.Edges {
		if e.Label != "" && slices.Contains(level, e.From) {
			return e.Label
		}
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
