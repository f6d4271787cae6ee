package structure

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pavelanni/examforge/internal/mdmap"
)

func newMap(t *testing.T, n int) *mdmap.MdMap {
	t.Helper()
	m, err := mdmap.New(n)
	if err != nil {
		t.Fatalf("mdmap.New: %v", err)
	}
	return m
}

func tag(t *testing.T, m *mdmap.MdMap, uuid string, typ mdmap.Type, lines ...int) {
	t.Helper()
	if err := m.SetLines(lines, mdmap.Annotation{UUID: uuid, Type: typ}); err != nil {
		t.Fatalf("SetLines(%s): %v", uuid, err)
	}
}

func span(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestSingleQuestionScenario(t *testing.T) {
	doc := mdmap.NewDocument("Q1 text\nA. opt1\nB. opt2\nAnswer: B")
	m := newMap(t, doc.Len())
	tag(t, m, "s1", mdmap.TypeSection, 1, 2, 3, 4)
	tag(t, m, "q1", mdmap.TypeQuestion, 1, 2, 3, 4)
	tag(t, m, "d1", mdmap.TypeQuestionDetail, 1, 2, 3, 4)
	tag(t, m, "c1", mdmap.TypeQuestionDetailContent, 1)
	tag(t, m, "r1", mdmap.TypeQuestionDetailRow, 2)
	tag(t, m, "r2", mdmap.TypeQuestionDetailRow, 3)
	tag(t, m, "a1", mdmap.TypeQuestionDetailAnswer, 4)

	res, err := Build(m, doc, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(res.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(res.Sections))
	}
	s := res.Sections[0]
	if s.Name != "Section 1" || s.Order != 1 {
		t.Errorf("section = %q order %d", s.Name, s.Order)
	}
	if len(s.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(s.Questions))
	}
	q := s.Questions[0]
	if q.Simple() || q.Name != "1.1" {
		t.Errorf("question = %+v", q)
	}
	if len(q.Details) != 1 {
		t.Fatalf("expected 1 detail, got %d", len(q.Details))
	}
	d := q.Details[0]
	if d.Content == nil || d.Content.Value != "Q1 text" {
		t.Errorf("content = %+v, want Q1 text", d.Content)
	}
	if d.Content.Name != "1.1.1_content" {
		t.Errorf("content name = %q", d.Content.Name)
	}
	if len(d.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(d.Rows))
	}
	if d.Rows[0].Value != "A. opt1" || d.Rows[1].Value != "B. opt2" {
		t.Errorf("rows = %q, %q", d.Rows[0].Value, d.Rows[1].Value)
	}
	if d.Rows[1].Name != "1.1.1_row2" {
		t.Errorf("row name = %q", d.Rows[1].Name)
	}
	if d.Answer == nil || d.Answer.Value != "Answer: B" {
		t.Errorf("answer = %+v, want Answer: B", d.Answer)
	}
}

func TestOwnershipTieBreak(t *testing.T) {
	m := newMap(t, 20)
	tag(t, m, "s1", mdmap.TypeSection, span(1, 20)...)
	tag(t, m, "sq", mdmap.TypeSimpleQuestion, span(1, 5)...)
	tag(t, m, "q1", mdmap.TypeQuestion, span(10, 20)...)
	tag(t, m, "d1", mdmap.TypeQuestionDetail, span(10, 15)...)
	tag(t, m, "r1", mdmap.TypeQuestionDetailRow, 20)

	res := Reconstruct(m)
	qs := res.Sections[0].Questions
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	simple, complexQ := qs[0], qs[1]
	if len(simple.Rows) != 0 {
		t.Errorf("simple question should own no rows, got %d", len(simple.Rows))
	}
	if rows := complexQ.Details[0].Rows; len(rows) != 1 || rows[0].UUID != "r1" {
		t.Errorf("detail rows = %v, want [r1]", rows)
	}
}

func TestSimpleQuestionAfterDetailOwnsLeaves(t *testing.T) {
	doc := mdmap.NewDocument("Section A\nRead the passage\n1. first\n2. second\nchoose\nx\ny\nans: x")
	m := newMap(t, doc.Len())
	tag(t, m, "s1", mdmap.TypeSection, span(1, 8)...)
	tag(t, m, "q1", mdmap.TypeQuestion, span(2, 4)...)
	tag(t, m, "m1", mdmap.TypeQuestionMaterial, 2)
	tag(t, m, "d1", mdmap.TypeQuestionDetail, 3)
	tag(t, m, "d2", mdmap.TypeQuestionDetail, 4)
	tag(t, m, "c1", mdmap.TypeQuestionDetailContent, 3)
	tag(t, m, "c2", mdmap.TypeQuestionDetailContent, 4)
	tag(t, m, "sq", mdmap.TypeSimpleQuestion, span(5, 8)...)
	tag(t, m, "c3", mdmap.TypeQuestionDetailContent, 5)
	tag(t, m, "r1", mdmap.TypeQuestionDetailRow, 6)
	tag(t, m, "r2", mdmap.TypeQuestionDetailRow, 7)
	tag(t, m, "a1", mdmap.TypeQuestionDetailAnswer, 8)

	res, err := Build(m, doc, func(n int) string { return "Part " + string(rune('A'+n-1)) })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := res.Sections[0]
	if s.Name != "Part A" {
		t.Errorf("section name = %q, want Part A", s.Name)
	}
	q, sq := s.Questions[0], s.Questions[1]
	if q.Material == nil || q.Material.Value != "Read the passage" || q.Material.Name != "1.1_material" {
		t.Errorf("material = %+v", q.Material)
	}
	if len(q.Details) != 2 || q.Details[1].Content.Value != "2. second" {
		t.Errorf("details = %+v", q.Details)
	}
	if q.Details[1].Order != 2 || q.Details[1].Name != "1.1.2" {
		t.Errorf("second detail order %d name %q", q.Details[1].Order, q.Details[1].Name)
	}
	if !sq.Simple() || sq.Content == nil || sq.Content.Value != "choose" {
		t.Errorf("simple question = %+v", sq)
	}
	if len(sq.Rows) != 2 || sq.Answer == nil || sq.Answer.Name != "1.2_answer" {
		t.Errorf("simple question rows %d answer %+v", len(sq.Rows), sq.Answer)
	}
}

func TestOrphansAreReportedNotAttached(t *testing.T) {
	m := newMap(t, 6)
	tag(t, m, "d0", mdmap.TypeQuestionDetail, 1)
	tag(t, m, "c0", mdmap.TypeQuestionDetailContent, 1)
	tag(t, m, "q0", mdmap.TypeQuestion, 2)
	tag(t, m, "s1", mdmap.TypeSection, span(3, 6)...)
	tag(t, m, "q1", mdmap.TypeSimpleQuestion, span(3, 6)...)
	tag(t, m, "c1", mdmap.TypeQuestionDetailContent, 3)

	res := Reconstruct(m)
	if len(res.Sections) != 1 || len(res.Sections[0].Questions) != 1 {
		t.Fatalf("unexpected tree: %+v", res.Sections)
	}
	want := []Orphan{
		{UUID: "d0", Type: mdmap.TypeQuestionDetail, Line: 1},
		{UUID: "c0", Type: mdmap.TypeQuestionDetailContent, Line: 1},
		{UUID: "q0", Type: mdmap.TypeQuestion, Line: 2},
	}
	if !reflect.DeepEqual(res.Orphans, want) {
		t.Errorf("orphans = %+v, want %+v", res.Orphans, want)
	}
	if err := res.Validate(); !errors.Is(err, ErrOrphaned) {
		t.Errorf("Validate() = %v, want ErrOrphaned", err)
	}
}

func TestReconstructIsIdempotent(t *testing.T) {
	m := newMap(t, 10)
	tag(t, m, "s1", mdmap.TypeSection, span(1, 4)...)
	tag(t, m, "q1", mdmap.TypeSimpleQuestion, span(1, 4)...)
	tag(t, m, "c1", mdmap.TypeQuestionDetailContent, 1, 2)
	tag(t, m, "s2", mdmap.TypeSection, span(6, 10)...)
	tag(t, m, "q2", mdmap.TypeQuestion, span(6, 10)...)
	tag(t, m, "d1", mdmap.TypeQuestionDetail, span(7, 8)...)
	tag(t, m, "r1", mdmap.TypeQuestionDetailRow, 8)

	a := Reconstruct(m)
	b := Reconstruct(m)
	SortAndRename(a.Sections, nil)
	SortAndRename(b.Sections, nil)
	if !reflect.DeepEqual(a, b) {
		t.Error("two reconstructions of the same map differ")
	}
}

func TestSortAndRenameOrdersByFirstLine(t *testing.T) {
	sections := []*Section{
		{UUID: "late", SpanLines: []int{30, 31}},
		{UUID: "early", SpanLines: []int{2, 9}},
		{UUID: "mid", SpanLines: []int{12}},
	}
	sections[1].Questions = []*Question{
		{UUID: "qb", Type: mdmap.TypeQuestion, SpanLines: []int{7}},
		{UUID: "qa", Type: mdmap.TypeQuestion, SpanLines: []int{3}},
	}
	SortAndRename(sections, nil)

	for i := 1; i < len(sections); i++ {
		prev, cur := sections[i-1], sections[i]
		if prev.Order >= cur.Order || minLine(prev.SpanLines) >= minLine(cur.SpanLines) {
			t.Errorf("sections %s and %s out of order", prev.UUID, cur.UUID)
		}
	}
	if sections[0].UUID != "early" || sections[2].Name != "Section 3" {
		t.Errorf("unexpected order: %s ... %s", sections[0].UUID, sections[2].Name)
	}
	qs := sections[0].Questions
	if qs[0].UUID != "qa" || qs[0].Order != 1 || qs[1].Name != "1.2" {
		t.Errorf("questions = %s(%d) %s", qs[0].UUID, qs[0].Order, qs[1].Name)
	}
}

func TestBuildRejectsLengthMismatch(t *testing.T) {
	m := newMap(t, 3)
	doc := mdmap.NewDocument("one\ntwo")
	if _, err := Build(m, doc, nil); !errors.Is(err, mdmap.ErrOutOfRange) {
		t.Errorf("Build error = %v, want ErrOutOfRange", err)
	}
}

func TestHasOverlap(t *testing.T) {
	sections := []*Section{
		{Order: 1, SpanLines: []int{1, 2, 3, 4, 5}, Questions: []*Question{
			{SpanLines: []int{2, 3}},
			{SpanLines: []int{5}},
		}},
		{Order: 2, SpanLines: []int{10, 14}},
	}
	one := 1

	tests := []struct {
		name      string
		candidate []int
		current   *int
		want      bool
	}{
		{"free lines", []int{7, 8}, nil, false},
		{"inside section", []int{3}, nil, true},
		{"gap of a section still covered", []int{12}, nil, true},
		{"bridges two sections", []int{6, 9, 11}, nil, true},
		{"question in current section free", []int{4}, &one, false},
		{"question in current section taken", []int{3, 4}, &one, true},
		{"current section does not excuse others", []int{4, 10}, &one, true},
		{"empty", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasOverlap(tt.candidate, tt.current, sections); got != tt.want {
				t.Errorf("HasOverlap(%v) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}
