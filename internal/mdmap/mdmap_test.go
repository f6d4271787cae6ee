package mdmap

import (
	"encoding/json"
	"errors"
	"testing"
)

func newTestMap(t *testing.T, n int) *MdMap {
	t.Helper()
	m, err := New(n)
	if err != nil {
		t.Fatalf("New(%d): %v", n, err)
	}
	return m
}

func mustSet(t *testing.T, m *MdMap, lines []int, a Annotation) {
	t.Helper()
	if err := m.SetLines(lines, a); err != nil {
		t.Fatalf("SetLines(%v, %s): %v", lines, a.UUID, err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(-1); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("New(-1) error = %v, want ErrInvalidLength", err)
	}

	m := newTestMap(t, 0)
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}

	m = newTestMap(t, 3)
	for line := 1; line <= 3; line++ {
		s, err := m.Get(line)
		if err != nil {
			t.Fatalf("Get(%d): %v", line, err)
		}
		if !s.Empty() {
			t.Errorf("line %d should start empty", line)
		}
	}
}

func TestGetOutOfRange(t *testing.T) {
	m := newTestMap(t, 3)
	for _, line := range []int{0, -1, 4} {
		if _, err := m.Get(line); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Get(%d) error = %v, want ErrOutOfRange", line, err)
		}
	}
}

func TestSetLinesAndClear(t *testing.T) {
	m := newTestMap(t, 5)
	sec := Annotation{UUID: "s1", Type: TypeSection}
	q := Annotation{UUID: "q1", Type: TypeQuestion}
	mustSet(t, m, []int{1, 2, 3, 4}, sec)
	mustSet(t, m, []int{2, 3}, q)

	s, _ := m.Get(2)
	if a := s.At(LayerSection); a == nil || a.UUID != "s1" {
		t.Errorf("line 2 section layer = %v, want s1", a)
	}
	if a := s.At(LayerQuestion); a == nil || a.UUID != "q1" {
		t.Errorf("line 2 question layer = %v, want q1", a)
	}
	if got := len(s.Annotations()); got != 2 {
		t.Errorf("line 2 has %d annotations, want 2", got)
	}

	if err := m.ClearLines([]int{3}, LayerQuestion); err != nil {
		t.Fatalf("ClearLines: %v", err)
	}
	a, _ := m.At(3, LayerQuestion)
	if a != nil {
		t.Errorf("line 3 question layer should be cleared, got %v", a)
	}
	a, _ = m.At(3, LayerSection)
	if a == nil {
		t.Error("clearing the question layer must not touch the section layer")
	}

	// A bad line anywhere in the request leaves the map untouched.
	err := m.SetLines([]int{5, 6}, Annotation{UUID: "x", Type: TypeQuestionDetailRow})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("SetLines out of range error = %v", err)
	}
	if a, _ := m.At(5, LayerLeaf); a != nil {
		t.Errorf("line 5 was written despite the range error")
	}

	if err := m.SetLines([]int{1}, Annotation{UUID: "x", Type: "bogus"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("SetLines unknown type error = %v", err)
	}
}

func TestRemoveAndLookup(t *testing.T) {
	m := newTestMap(t, 6)
	mustSet(t, m, []int{2, 4, 5}, Annotation{UUID: "r1", Type: TypeQuestionDetailRow})
	mustSet(t, m, []int{1}, Annotation{UUID: "c1", Type: TypeQuestionDetailContent})

	a, lines := m.Lookup("r1")
	if a == nil || a.Type != TypeQuestionDetailRow {
		t.Fatalf("Lookup(r1) = %v", a)
	}
	if len(lines) != 3 || lines[0] != 2 || lines[2] != 5 {
		t.Errorf("Lookup(r1) lines = %v, want [2 4 5]", lines)
	}

	n, err := m.Remove("r1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != 3 {
		t.Errorf("Remove cleared %d slots, want 3", n)
	}
	if a, _ := m.Lookup("r1"); a != nil {
		t.Error("r1 still present after Remove")
	}
	if a, _ := m.Lookup("c1"); a == nil {
		t.Error("Remove touched an unrelated span")
	}
}

func TestReentrantMutationIsLocked(t *testing.T) {
	m := newTestMap(t, 4)
	var inner error
	calls := 0
	m.OnChange = func(c Change) {
		calls++
		if calls == 1 {
			inner = m.SetLines([]int{4}, Annotation{UUID: "evil", Type: TypeSection})
		}
	}

	if err := m.SetLines([]int{1, 2}, Annotation{UUID: "s1", Type: TypeSection}); err != nil {
		t.Fatalf("outer SetLines: %v", err)
	}
	if !errors.Is(inner, ErrLocked) {
		t.Fatalf("inner SetLines error = %v, want ErrLocked", inner)
	}
	if a, _ := m.At(4, LayerSection); a != nil {
		t.Error("reentrant write reached the map")
	}
	if calls != 2 {
		t.Errorf("OnChange called %d times, want 2", calls)
	}

	// The lock is released once the outer call returns.
	m.OnChange = nil
	if err := m.SetLines([]int{4}, Annotation{UUID: "s2", Type: TypeSection}); err != nil {
		t.Errorf("SetLines after outer call: %v", err)
	}
}

func TestFindNearestEnclosing(t *testing.T) {
	m := newTestMap(t, 8)
	mustSet(t, m, []int{1, 2, 3, 4, 5, 6}, Annotation{UUID: "s1", Type: TypeSection})
	mustSet(t, m, []int{2, 3, 4}, Annotation{UUID: "q1", Type: TypeQuestion})
	mustSet(t, m, []int{3}, Annotation{UUID: "d1", Type: TypeQuestionDetail})

	tests := []struct {
		name     string
		line     int
		types    []Type
		wantUUID string
		wantLine int
	}{
		{"innermost default", 3, nil, "d1", 3},
		{"question above", 2, nil, "q1", 2},
		{"scan backward", 5, nil, "s1", 5},
		{"sections only", 4, []Type{TypeSection}, "s1", 4},
		{"detail scanning back", 6, []Type{TypeQuestionDetail}, "d1", 3},
		{"no simple question", 8, []Type{TypeSimpleQuestion}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, line, err := m.FindNearestEnclosing(tt.line, tt.types...)
			if err != nil {
				t.Fatalf("FindNearestEnclosing: %v", err)
			}
			if tt.wantUUID == "" {
				if a != nil {
					t.Errorf("got %v at %d, want none", a, line)
				}
				return
			}
			if a == nil || a.UUID != tt.wantUUID || line != tt.wantLine {
				t.Errorf("got %v at %d, want %s at %d", a, line, tt.wantUUID, tt.wantLine)
			}
		})
	}
}

func TestFindPreviousAndNextTagged(t *testing.T) {
	m := newTestMap(t, 10)
	mustSet(t, m, []int{2}, Annotation{UUID: "c1", Type: TypeQuestionDetailContent})
	mustSet(t, m, []int{5}, Annotation{UUID: "r1", Type: TypeQuestionDetailRow})
	mustSet(t, m, []int{8}, Annotation{UUID: "a1", Type: TypeQuestionDetailAnswer})

	a, line, _ := m.FindPreviousTagged(5, "")
	if a == nil || a.UUID != "c1" || line != 2 {
		t.Errorf("FindPreviousTagged(5) = %v at %d", a, line)
	}
	a, line, _ = m.FindNextTagged(5, "")
	if a == nil || a.UUID != "a1" || line != 8 {
		t.Errorf("FindNextTagged(5) = %v at %d", a, line)
	}
	a, line, _ = m.FindNextTagged(1, TypeQuestionDetailAnswer)
	if a == nil || a.UUID != "a1" || line != 8 {
		t.Errorf("FindNextTagged(1, answer) = %v at %d", a, line)
	}
	a, _, _ = m.FindPreviousTagged(2, "")
	if a != nil {
		t.Errorf("FindPreviousTagged(2) = %v, want none", a)
	}
	if _, _, err := m.FindNextTagged(11, ""); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("FindNextTagged(11) error = %v", err)
	}
}

func TestOverlaps(t *testing.T) {
	m := newTestMap(t, 12)
	mustSet(t, m, []int{2, 3, 6, 7}, Annotation{UUID: "r1", Type: TypeQuestionDetailRow})
	mustSet(t, m, []int{10}, Annotation{UUID: "r2", Type: TypeQuestionDetailRow})

	tests := []struct {
		name      string
		candidate []int
		layer     Layer
		exclude   string
		want      bool
	}{
		{"tagged line", []int{3}, LayerLeaf, "", true},
		{"tagged line excluded", []int{3}, LayerLeaf, "r1", false},
		{"splits a span", []int{4, 5}, LayerLeaf, "", true},
		{"split excluded", []int{4, 5}, LayerLeaf, "r1", false},
		{"between different spans", []int{8, 9}, LayerLeaf, "", false},
		{"after everything", []int{11, 12}, LayerLeaf, "", false},
		{"other layer", []int{3}, LayerDetail, "", false},
		{"empty candidate", nil, LayerLeaf, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Overlaps(tt.candidate, tt.layer, tt.exclude)
			if err != nil {
				t.Fatalf("Overlaps: %v", err)
			}
			if got != tt.want {
				t.Errorf("Overlaps(%v) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	m := newTestMap(t, 6)
	mustSet(t, m, []int{1, 2, 3, 4, 5}, Annotation{UUID: "s1", Type: TypeSection})
	mustSet(t, m, []int{1, 2, 3, 4, 5}, Annotation{UUID: "q1", Type: TypeSimpleQuestion, UIType: UISingleChoice})
	mustSet(t, m, []int{1}, Annotation{UUID: "c1", Type: TypeQuestionDetailContent})
	mustSet(t, m, []int{3}, Annotation{UUID: "r2", Type: TypeQuestionDetailRow, IsAns: true})

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var sparse map[string][]Annotation
	if err := json.Unmarshal(data, &sparse); err != nil {
		t.Fatalf("Unmarshal sparse: %v", err)
	}
	if _, ok := sparse["6"]; ok {
		t.Error("empty line 6 should not be serialized")
	}

	back, err := FromJSON(data, m.Len())
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	for line := 1; line <= m.Len(); line++ {
		want, _ := m.Get(line)
		got, _ := back.Get(line)
		for l := LayerSection; l < numLayers; l++ {
			w, g := want.At(l), got.At(l)
			if (w == nil) != (g == nil) || (w != nil && *w != *g) {
				t.Errorf("line %d layer %s: got %v, want %v", line, l, g, w)
			}
		}
	}

	// Interned: the same uuid decodes to one tag.
	a1, _ := back.At(1, LayerSection)
	a5, _ := back.At(5, LayerSection)
	if a1 != a5 {
		t.Error("annotations sharing a uuid should be interned")
	}
}

func TestFromJSONSingleObjectAndErrors(t *testing.T) {
	m, err := FromJSON([]byte(`{"2": {"uuid": "c1", "type": "questionDetailContent"}}`), 3)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if a, _ := m.At(2, LayerLeaf); a == nil || a.UUID != "c1" {
		t.Errorf("line 2 leaf = %v, want c1", a)
	}

	if _, err := FromJSON([]byte(`{"9": []}`), 3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("out of range key error = %v", err)
	}
	if _, err := FromJSON([]byte(`{"1": [{"uuid": "x", "type": "nope"}]}`), 3); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type error = %v", err)
	}
	if m, err := FromJSON(nil, 2); err != nil || m.Len() != 2 {
		t.Errorf("FromJSON(nil) = %v, %v", m, err)
	}
}

func TestDocument(t *testing.T) {
	d := NewDocument("Q1 text\r\nA. opt1\nB. opt2")
	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", d.Len())
	}
	l, err := d.Line(1)
	if err != nil || l.Text != "Q1 text" {
		t.Errorf("Line(1) = %+v, %v", l, err)
	}
	if _, err := d.Line(4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Line(4) error = %v", err)
	}

	got, err := d.Join([]int{2, 3})
	if err != nil || got != "A. opt1\nB. opt2" {
		t.Errorf("Join = %q, %v", got, err)
	}
	if got, _ := d.Join(nil); got != "" {
		t.Errorf("Join(nil) = %q, want empty", got)
	}
}
