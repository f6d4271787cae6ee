package mdmap

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for a line number outside [1, Len()].
	ErrOutOfRange = errors.New("line out of range")
	// ErrLocked is returned when a mutation starts while another one is still running.
	ErrLocked = errors.New("annotation map is locked")
	// ErrInvalidLength is returned when a map is created with a negative line count.
	ErrInvalidLength = errors.New("invalid line count")
	// ErrUnknownType is returned for annotation types and layers the map does not know.
	ErrUnknownType = errors.New("unknown annotation type")
)

// Type is the kind of exam entity an annotation marks.
type Type string

const (
	TypeSection                   Type = "section"
	TypeQuestion                  Type = "question"
	TypeSimpleQuestion            Type = "simpleQuestion"
	TypeQuestionDetail            Type = "questionDetail"
	TypeQuestionMaterial          Type = "questionMaterial"
	TypeQuestionDetailContent     Type = "questionDetailContent"
	TypeQuestionDetailExplanation Type = "questionDetailExplanation"
	TypeQuestionDetailAnswer      Type = "questionDetailAnswer"
	TypeQuestionDetailRow         Type = "questionDetailRow"
)

var typeLayers = map[Type]Layer{
	TypeSection:                   LayerSection,
	TypeQuestion:                  LayerQuestion,
	TypeSimpleQuestion:            LayerQuestion,
	TypeQuestionDetail:            LayerDetail,
	TypeQuestionMaterial:          LayerLeaf,
	TypeQuestionDetailContent:     LayerLeaf,
	TypeQuestionDetailExplanation: LayerLeaf,
	TypeQuestionDetailAnswer:      LayerLeaf,
	TypeQuestionDetailRow:         LayerLeaf,
}

// Valid reports whether t is a known annotation type.
func (t Type) Valid() bool {
	_, ok := typeLayers[t]
	return ok
}

// Layer returns the layer an annotation of this type occupies.
// Unknown types map to LayerLeaf; callers validate with Valid first.
func (t Type) Layer() Layer {
	if l, ok := typeLayers[t]; ok {
		return l
	}
	return LayerLeaf
}

// ParseType converts a wire string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Layer is one of the independent tagging planes of a line. A line holds at
// most one annotation per layer, so a section, a question, a detail and a
// leaf span can all cover the same line.
type Layer int

const (
	LayerSection Layer = iota
	LayerQuestion
	LayerDetail
	LayerLeaf

	numLayers
)

var layerNames = [numLayers]string{"section", "question", "detail", "leaf"}

func (l Layer) String() string {
	if l < 0 || l >= numLayers {
		return fmt.Sprintf("layer(%d)", int(l))
	}
	return layerNames[l]
}

// ParseLayer converts a wire string into a Layer.
func ParseLayer(s string) (Layer, error) {
	for i, name := range layerNames {
		if name == s {
			return Layer(i), nil
		}
	}
	return 0, fmt.Errorf("%w: layer %q", ErrUnknownType, s)
}

// UIType tells the renderer how a question detail is answered.
type UIType string

const (
	UISingleChoice UIType = "singleChoice"
	UIMultiChoice  UIType = "multiChoice"
	UIJudge        UIType = "judge"
	UIFillBlank    UIType = "fillBlank"
	UIShortAnswer  UIType = "shortAnswer"
)

// Valid reports whether u is a known UI type.
func (u UIType) Valid() bool {
	switch u {
	case UISingleChoice, UIMultiChoice, UIJudge, UIFillBlank, UIShortAnswer:
		return true
	}
	return false
}

// Annotation is the tag attached to every line of a span.
type Annotation struct {
	UUID   string `json:"uuid"`
	Type   Type   `json:"type"`
	UIType UIType `json:"uiType,omitempty"`
	IsAns  bool   `json:"isAns,omitempty"`
}

// Slot holds the annotations of a single line, indexed by layer.
type Slot [numLayers]*Annotation

// At returns the annotation on layer l, or nil.
func (s Slot) At(l Layer) *Annotation {
	if l < 0 || l >= numLayers {
		return nil
	}
	return s[l]
}

// Empty reports whether no layer of the line is tagged.
func (s Slot) Empty() bool {
	for _, a := range s {
		if a != nil {
			return false
		}
	}
	return true
}

// Annotations returns the line's annotations from the outermost layer inwards.
func (s Slot) Annotations() []Annotation {
	var out []Annotation
	for _, a := range s {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// innermost returns the deepest non-nil annotation accepted by match.
func (s Slot) innermost(match func(*Annotation) bool) *Annotation {
	for l := numLayers - 1; l >= 0; l-- {
		if a := s[l]; a != nil && match(a) {
			return a
		}
	}
	return nil
}
