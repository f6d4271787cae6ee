package structure

import (
	"github.com/pavelanni/examforge/internal/mdmap"
)

// builder accumulates entities during one forward pass. The last* fields are
// the most recently created container of each kind.
type builder struct {
	sections []*Section

	section  map[string]*Section
	question map[string]*Question
	detail   map[string]*QuestionDetail
	span     map[string]*TextSpan
	row      map[string]*Row
	orphaned map[string]bool
	orphans  []Orphan

	lastSection  *Section
	lastQuestion *Question
	lastSimple   *Question
	lastDetail   *QuestionDetail
}

// Reconstruct scans lines 1..N of m once and rebuilds the section tree.
//
// Every entity is upserted by uuid. A new question joins the most recently
// created section, a new detail the most recently created complex question.
// A new leaf span goes to whichever of the most recent simple question and
// the most recent question detail has the later maximum line so far, ties
// going to the detail; materials pick between the most recent complex and
// simple question the same way. Sections and questions must therefore be
// annotated in document order to nest correctly.
//
// Annotations with no container when first seen are left out of the tree and
// listed in Result.Orphans.
func Reconstruct(m *mdmap.MdMap) *Result {
	b := &builder{
		section:  make(map[string]*Section),
		question: make(map[string]*Question),
		detail:   make(map[string]*QuestionDetail),
		span:     make(map[string]*TextSpan),
		row:      make(map[string]*Row),
		orphaned: make(map[string]bool),
	}
	for line := 1; line <= m.Len(); line++ {
		slot, _ := m.Get(line)
		for _, a := range slot {
			if a != nil {
				b.add(line, a)
			}
		}
	}
	return &Result{Sections: b.sections, Orphans: b.orphans}
}

func (b *builder) add(line int, a *mdmap.Annotation) {
	if b.orphaned[a.UUID] {
		return
	}
	switch a.Type {
	case mdmap.TypeSection:
		b.addSection(line, a)
	case mdmap.TypeQuestion, mdmap.TypeSimpleQuestion:
		b.addQuestion(line, a)
	case mdmap.TypeQuestionDetail:
		b.addDetail(line, a)
	case mdmap.TypeQuestionMaterial:
		b.addMaterial(line, a)
	case mdmap.TypeQuestionDetailRow:
		b.addRow(line, a)
	default:
		b.addLeafSpan(line, a)
	}
}

func (b *builder) orphan(line int, a *mdmap.Annotation) {
	b.orphaned[a.UUID] = true
	b.orphans = append(b.orphans, Orphan{UUID: a.UUID, Type: a.Type, Line: line})
}

func (b *builder) addSection(line int, a *mdmap.Annotation) {
	if s, ok := b.section[a.UUID]; ok {
		s.SpanLines = append(s.SpanLines, line)
		return
	}
	s := &Section{UUID: a.UUID, SpanLines: []int{line}}
	b.section[a.UUID] = s
	b.sections = append(b.sections, s)
	b.lastSection = s
}

func (b *builder) addQuestion(line int, a *mdmap.Annotation) {
	if q, ok := b.question[a.UUID]; ok {
		q.SpanLines = append(q.SpanLines, line)
		return
	}
	if b.lastSection == nil {
		b.orphan(line, a)
		return
	}
	q := &Question{UUID: a.UUID, Type: a.Type, UIType: a.UIType, SpanLines: []int{line}}
	b.question[a.UUID] = q
	b.lastSection.Questions = append(b.lastSection.Questions, q)
	if q.Simple() {
		b.lastSimple = q
	} else {
		b.lastQuestion = q
	}
}

func (b *builder) addDetail(line int, a *mdmap.Annotation) {
	if d, ok := b.detail[a.UUID]; ok {
		d.SpanLines = append(d.SpanLines, line)
		return
	}
	if b.lastQuestion == nil {
		b.orphan(line, a)
		return
	}
	d := &QuestionDetail{UUID: a.UUID, UIType: a.UIType, SpanLines: []int{line}}
	b.detail[a.UUID] = d
	b.lastQuestion.Details = append(b.lastQuestion.Details, d)
	b.lastDetail = d
}

func (b *builder) addMaterial(line int, a *mdmap.Annotation) {
	if ts, ok := b.span[a.UUID]; ok {
		ts.SpanLines = append(ts.SpanLines, line)
		return
	}
	owner := b.lastQuestion
	if b.lastSimple != nil && (owner == nil || maxLine(b.lastSimple.SpanLines) > maxLine(owner.SpanLines)) {
		owner = b.lastSimple
	}
	if owner == nil {
		b.orphan(line, a)
		return
	}
	if owner.Material == nil {
		owner.Material = &TextSpan{UUID: a.UUID}
	}
	owner.Material.SpanLines = append(owner.Material.SpanLines, line)
	b.span[a.UUID] = owner.Material
}

// leafOwner resolves the body a new leaf span belongs to.
func (b *builder) leafOwner() *Body {
	switch {
	case b.lastSimple == nil && b.lastDetail == nil:
		return nil
	case b.lastSimple == nil:
		return &b.lastDetail.Body
	case b.lastDetail == nil:
		return &b.lastSimple.Body
	case maxLine(b.lastSimple.SpanLines) > maxLine(b.lastDetail.SpanLines):
		return &b.lastSimple.Body
	default:
		return &b.lastDetail.Body
	}
}

func (b *builder) addLeafSpan(line int, a *mdmap.Annotation) {
	if ts, ok := b.span[a.UUID]; ok {
		ts.SpanLines = append(ts.SpanLines, line)
		return
	}
	body := b.leafOwner()
	if body == nil {
		b.orphan(line, a)
		return
	}
	var field **TextSpan
	switch a.Type {
	case mdmap.TypeQuestionDetailContent:
		field = &body.Content
	case mdmap.TypeQuestionDetailExplanation:
		field = &body.Explanation
	case mdmap.TypeQuestionDetailAnswer:
		field = &body.Answer
	default:
		return
	}
	// A second span of the same kind in one body merges into the first.
	if *field == nil {
		*field = &TextSpan{UUID: a.UUID}
	}
	(*field).SpanLines = append((*field).SpanLines, line)
	b.span[a.UUID] = *field
}

func (b *builder) addRow(line int, a *mdmap.Annotation) {
	if r, ok := b.row[a.UUID]; ok {
		r.SpanLines = append(r.SpanLines, line)
		return
	}
	body := b.leafOwner()
	if body == nil {
		b.orphan(line, a)
		return
	}
	r := &Row{UUID: a.UUID, IsAns: a.IsAns, SpanLines: []int{line}}
	b.row[a.UUID] = r
	body.Rows = append(body.Rows, r)
}
