package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	columnGap = "  "
	arrowPad  = "       "
)

// RenderASCII draws the model as rows of boxes, one row per level, so the
// commands of a parallel workflow share a row.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder
	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for i, level := range model.Levels {
		row := make([]asciiBox, 0, len(level))
		for _, id := range level {
			if n := model.node(id); n != nil {
				row = append(row, makeBox(n))
			}
		}
		if len(row) == 0 {
			continue
		}
		writeRow(&b, row)
		if i < len(model.Levels)-1 {
			writeArrow(&b, model.labelLeaving(level))
		}
	}
	return b.String()
}

type asciiBox struct {
	lines []string
	width int
}

// boxText is what a node box shows: the caption, then the status tag with
// duration, then the first error line of a failed command.
func boxText(n *Node) []string {
	text := []string{n.Caption()}
	p, ok := n.palette()
	if !ok {
		return text
	}
	tag := "[" + p.Tag + "]"
	if n.Status.DurationMs > 0 {
		tag += fmt.Sprintf(" %dms", n.Status.DurationMs)
	}
	text = append(text, tag)
	if n.Status.Status == StatusFailed && n.Status.Error != "" {
		text = append(text, truncateRunes(firstLine(n.Status.Error), maxLabel))
	}
	return text
}

func makeBox(n *Node) asciiBox {
	text := boxText(n)
	inner := 0
	for _, t := range text {
		inner = max(inner, utf8.RuneCountInString(t))
	}

	rule := strings.Repeat("─", inner+2)
	lines := make([]string, 0, len(text)+2)
	lines = append(lines, "┌"+rule+"┐")
	for _, t := range text {
		lines = append(lines, "│ "+t+strings.Repeat(" ", inner-utf8.RuneCountInString(t))+" │")
	}
	lines = append(lines, "└"+rule+"┘")
	return asciiBox{lines: lines, width: inner + 4}
}

func writeRow(b *strings.Builder, row []asciiBox) {
	height := 0
	for _, box := range row {
		height = max(height, len(box.lines))
	}
	for line := range height {
		for i, box := range row {
			if i > 0 {
				b.WriteString(columnGap)
			}
			if line < len(box.lines) {
				b.WriteString(box.lines[line])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// writeArrow joins two rows; label marks a success-only step.
func writeArrow(b *strings.Builder, label string) {
	b.WriteString(arrowPad + "│")
	if label != "" {
		b.WriteString(" " + label)
	}
	b.WriteString("\n" + arrowPad + "▼\n")
}
