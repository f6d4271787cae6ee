// Package structure rebuilds the exam hierarchy from a line annotation map.
//
// Reconstruction is a pure function of the map: the tree is recomputed after
// every mutation and never patched in place.
package structure

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pavelanni/examforge/internal/mdmap"
)

var (
	// ErrOverlapRejected is returned when a candidate span intersects an
	// existing section or question span.
	ErrOverlapRejected = errors.New("annotation overlaps an existing span")
	// ErrOrphaned is returned when annotations have no enclosing container.
	ErrOrphaned = errors.New("orphaned annotations")
)

// TextSpan is a named line range. Value holds the joined line text once the
// tree has been materialized.
type TextSpan struct {
	UUID      string `json:"uuid"`
	SpanLines []int  `json:"spanLines"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

// Row is one option line (or group of lines) of a question.
type Row struct {
	UUID      string `json:"uuid"`
	SpanLines []int  `json:"spanLines"`
	IsAns     bool   `json:"isAns"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

// Body holds the leaf spans shared by simple questions and question details.
type Body struct {
	Content     *TextSpan `json:"questionContent,omitempty"`
	Explanation *TextSpan `json:"explanation,omitempty"`
	Answer      *TextSpan `json:"answer,omitempty"`
	Rows        []*Row    `json:"rows,omitempty"`
}

// QuestionDetail is the leaf scoring unit of a complex question.
type QuestionDetail struct {
	UUID      string       `json:"uuid"`
	SpanLines []int        `json:"spanLines"`
	Order     int          `json:"order_in_question"`
	UIType    mdmap.UIType `json:"uiType,omitempty"`
	Name      string       `json:"name"`
	Body
}

// Question is either a complex question (Type == mdmap.TypeQuestion) owning
// Details, or a simple question (Type == mdmap.TypeSimpleQuestion) whose
// content, answer and rows live directly in its Body.
type Question struct {
	UUID      string            `json:"uuid"`
	Type      mdmap.Type        `json:"type"`
	SpanLines []int             `json:"spanLines"`
	Order     int               `json:"order_in_section"`
	UIType    mdmap.UIType      `json:"uiType,omitempty"`
	Name      string            `json:"name"`
	Material  *TextSpan         `json:"material,omitempty"`
	Details   []*QuestionDetail `json:"questionDetails,omitempty"`
	Body
}

// Simple reports whether q is a simple question.
func (q *Question) Simple() bool {
	return q.Type == mdmap.TypeSimpleQuestion
}

// Section is a top-level group of questions.
type Section struct {
	UUID      string      `json:"uuid"`
	SpanLines []int       `json:"spanLines"`
	Order     int         `json:"order_in_exam"`
	Name      string      `json:"name"`
	Questions []*Question `json:"questions"`
}

// Orphan is an annotation that had no enclosing container when first seen.
type Orphan struct {
	UUID string     `json:"uuid"`
	Type mdmap.Type `json:"type"`
	Line int        `json:"line"`
}

// Result is the output of a reconstruction.
type Result struct {
	Sections []*Section `json:"sections"`
	Orphans  []Orphan   `json:"orphans,omitempty"`
}

// Validate returns an error wrapping ErrOrphaned when any annotation was
// dropped for lack of a container.
func (r *Result) Validate() error {
	if len(r.Orphans) == 0 {
		return nil
	}
	o := r.Orphans[0]
	return fmt.Errorf("%w: %d dropped, first is %s %s at line %d",
		ErrOrphaned, len(r.Orphans), o.Type, o.UUID, o.Line)
}

func minLine(span []int) int {
	if len(span) == 0 {
		return 0
	}
	return slices.Min(span)
}

func maxLine(span []int) int {
	if len(span) == 0 {
		return 0
	}
	return slices.Max(span)
}
