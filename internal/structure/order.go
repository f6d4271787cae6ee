package structure

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pavelanni/examforge/internal/mdmap"
)

// Namer produces the display name of the section at the given 1-based position.
type Namer func(order int) string

// DefaultNamer names sections "Section 1", "Section 2", ...
func DefaultNamer(order int) string {
	return fmt.Sprintf("Section %d", order)
}

func byFirstLine[T any](span func(T) []int) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(minLine(span(a)), minLine(span(b)))
	}
}

// SortAndRename orders every level of the tree by ascending first line and
// assigns order numbers and positional names. Sections are named by namer
// (DefaultNamer when nil); questions "s.q", details "s.q.d", and leaf spans
// "<owner>_content", "<owner>_explanation", "<owner>_answer",
// "<owner>_material" and "<owner>_row<k>".
//
// Order is purely positional, so this must run after every reconstruction.
func SortAndRename(sections []*Section, namer Namer) {
	if namer == nil {
		namer = DefaultNamer
	}
	slices.SortStableFunc(sections, byFirstLine(func(s *Section) []int { return s.SpanLines }))
	for i, s := range sections {
		s.Order = i + 1
		s.Name = namer(s.Order)

		slices.SortStableFunc(s.Questions, byFirstLine(func(q *Question) []int { return q.SpanLines }))
		for j, q := range s.Questions {
			q.Order = j + 1
			q.Name = fmt.Sprintf("%d.%d", s.Order, q.Order)
			if q.Material != nil {
				q.Material.Name = q.Name + "_material"
			}
			if q.Simple() {
				renameBody(&q.Body, q.Name)
				continue
			}

			slices.SortStableFunc(q.Details, byFirstLine(func(d *QuestionDetail) []int { return d.SpanLines }))
			for k, d := range q.Details {
				d.Order = k + 1
				d.Name = fmt.Sprintf("%s.%d", q.Name, d.Order)
				renameBody(&d.Body, d.Name)
			}
		}
	}
}

func renameBody(b *Body, prefix string) {
	if b.Content != nil {
		b.Content.Name = prefix + "_content"
	}
	if b.Explanation != nil {
		b.Explanation.Name = prefix + "_explanation"
	}
	if b.Answer != nil {
		b.Answer.Name = prefix + "_answer"
	}
	slices.SortStableFunc(b.Rows, byFirstLine(func(r *Row) []int { return r.SpanLines }))
	for i, r := range b.Rows {
		r.Name = fmt.Sprintf("%s_row%d", prefix, i+1)
	}
}

// Materialize fills the Value of every span and row with the joined text of
// its lines.
func Materialize(sections []*Section, doc *mdmap.Document) error {
	fill := func(ts *TextSpan) error {
		if ts == nil {
			return nil
		}
		v, err := doc.Join(ts.SpanLines)
		if err != nil {
			return fmt.Errorf("materialize %s: %w", ts.Name, err)
		}
		ts.Value = v
		return nil
	}
	fillBody := func(b *Body) error {
		for _, ts := range []*TextSpan{b.Content, b.Explanation, b.Answer} {
			if err := fill(ts); err != nil {
				return err
			}
		}
		for _, r := range b.Rows {
			v, err := doc.Join(r.SpanLines)
			if err != nil {
				return fmt.Errorf("materialize %s: %w", r.Name, err)
			}
			r.Value = v
		}
		return nil
	}

	for _, s := range sections {
		for _, q := range s.Questions {
			if err := fill(q.Material); err != nil {
				return err
			}
			if err := fillBody(&q.Body); err != nil {
				return err
			}
			for _, d := range q.Details {
				if err := fillBody(&d.Body); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Build reconstructs, orders, names and materializes the tree for doc.
func Build(m *mdmap.MdMap, doc *mdmap.Document, namer Namer) (*Result, error) {
	if m.Len() != doc.Len() {
		return nil, fmt.Errorf("map covers %d lines, document has %d: %w", m.Len(), doc.Len(), mdmap.ErrOutOfRange)
	}
	res := Reconstruct(m)
	SortAndRename(res.Sections, namer)
	if err := Materialize(res.Sections, doc); err != nil {
		return nil, err
	}
	return res, nil
}
