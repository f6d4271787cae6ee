package mdmap

import (
	"fmt"
	"strings"
)

// Line is one line of a transcript. Index is 1-based.
type Line struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Document is the read-only, fixed-length transcript being annotated.
type Document struct {
	lines []string
}

// NewDocument splits raw transcript text on newlines.
func NewDocument(text string) *Document {
	raw := strings.Split(text, "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return &Document{lines: lines}
}

// Len returns the number of lines.
func (d *Document) Len() int {
	return len(d.lines)
}

// Line returns line i (1-based).
func (d *Document) Line(i int) (Line, error) {
	if i < 1 || i > len(d.lines) {
		return Line{}, fmt.Errorf("document line %d of %d: %w", i, len(d.lines), ErrOutOfRange)
	}
	return Line{Index: i, Text: d.lines[i-1]}, nil
}

// Lines returns every line of the document in order.
func (d *Document) Lines() []Line {
	out := make([]Line, len(d.lines))
	for i, t := range d.lines {
		out[i] = Line{Index: i + 1, Text: t}
	}
	return out
}

// Join renders a span: the text of the referenced lines joined with newlines.
// An empty span renders as the empty string.
func (d *Document) Join(span []int) (string, error) {
	if len(span) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(span))
	for _, i := range span {
		l, err := d.Line(i)
		if err != nil {
			return "", err
		}
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n"), nil
}
