package guard

import (
	"sort"
	"strings"
	"unicode/utf8"

	"go.starlark.net/syntax"
)

// edit replaces the source text between two positions.
type edit struct {
	start, end syntax.Position
	text       string
}

// editor applies position-based edits to one source text.
// Positions are 1-based lines and rune columns as reported by the parser.
type editor struct {
	src        string
	lineStarts []int
	edits      []edit
}

func newEditor(src string) *editor {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &editor{src: src, lineStarts: starts}
}

// offset converts a position into a byte offset in src.
func (e *editor) offset(p syntax.Position) int {
	line := int(p.Line) - 1
	if line < 0 {
		return 0
	}
	if line >= len(e.lineStarts) {
		return len(e.src)
	}
	off := e.lineStarts[line]
	for col := int32(1); col < p.Col && off < len(e.src) && e.src[off] != '\n'; col++ {
		_, size := utf8.DecodeRuneInString(e.src[off:])
		off += size
	}
	return off
}

// replace schedules n's text to be replaced by text.
func (e *editor) replace(n syntax.Node, text string) {
	start, end := n.Span()
	e.edits = append(e.edits, edit{start: start, end: end, text: text})
}

// blank schedules statement n to become `pass` without moving any line.
func (e *editor) blank(n syntax.Node) {
	start, end := n.Span()
	lines := int(end.Line - start.Line)
	if lines <= 0 {
		e.edits = append(e.edits, edit{start: start, end: end, text: "pass"})
		return
	}

	lineStart := e.lineStarts[start.Line-1]
	prefix := e.src[lineStart:e.offset(start)]
	if strings.TrimLeft(prefix, " \t") == "" {
		// keep the statement's indentation on its last line
		text := strings.Repeat("\n", lines) + prefix + "pass"
		e.edits = append(e.edits, edit{start: start, end: end, text: text})
		return
	}
	e.edits = append(e.edits, edit{start: start, end: end, text: "pass" + strings.Repeat("\n", lines)})
}

// apply returns src with all edits applied. Edits must not overlap.
func (e *editor) apply() string {
	if len(e.edits) == 0 {
		return e.src
	}
	edits := append([]edit(nil), e.edits...)
	sort.SliceStable(edits, func(i, j int) bool {
		return e.offset(edits[i].start) < e.offset(edits[j].start)
	})

	var b strings.Builder
	last := 0
	for _, ed := range edits {
		from, to := e.offset(ed.start), e.offset(ed.end)
		if from < last {
			continue
		}
		b.WriteString(e.src[last:from])
		b.WriteString(ed.text)
		last = to
	}
	b.WriteString(e.src[last:])
	return b.String()
}
