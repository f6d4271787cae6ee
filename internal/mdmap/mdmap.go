// Package mdmap stores per-line annotations of an exam transcript.
//
// An MdMap maps every 1-based line of a fixed-length document to at most one
// annotation per layer. Spans have no parent pointers: the exam hierarchy is
// derived later from line adjacency by package structure.
//
// The map is owned by a single editor session. Its lock only turns a
// reentrant mutation (a setter invoked from inside OnChange) into ErrLocked;
// it does not make the map safe for concurrent use.
package mdmap

import (
	"fmt"
	"slices"
)

// Change describes one slot write performed by a mutation.
type Change struct {
	Line  int
	Layer Layer
	Old   *Annotation
	New   *Annotation
}

// MdMap is the line annotation store.
type MdMap struct {
	slots  []Slot
	locked bool

	// OnChange, if set, is called synchronously for every slot written.
	OnChange func(Change)
}

// New allocates a map for a document of lineCount lines, all untagged.
func New(lineCount int) (*MdMap, error) {
	if lineCount < 0 {
		return nil, fmt.Errorf("new map with %d lines: %w", lineCount, ErrInvalidLength)
	}
	return &MdMap{slots: make([]Slot, lineCount)}, nil
}

// Len returns the number of lines the map covers.
func (m *MdMap) Len() int {
	return len(m.slots)
}

func (m *MdMap) check(line int) error {
	if line < 1 || line > len(m.slots) {
		return fmt.Errorf("line %d of %d: %w", line, len(m.slots), ErrOutOfRange)
	}
	return nil
}

// Get returns every annotation on a line.
func (m *MdMap) Get(line int) (Slot, error) {
	if err := m.check(line); err != nil {
		return Slot{}, err
	}
	return m.slots[line-1], nil
}

// At returns the annotation on one layer of a line, or nil.
func (m *MdMap) At(line int, layer Layer) (*Annotation, error) {
	s, err := m.Get(line)
	if err != nil {
		return nil, err
	}
	return s.At(layer), nil
}

func (m *MdMap) lock() error {
	if m.locked {
		return ErrLocked
	}
	m.locked = true
	return nil
}

func (m *MdMap) unlock() {
	m.locked = false
}

// SetLines tags every line in lines with a on the layer of a.Type. All line
// numbers are validated before the first write.
func (m *MdMap) SetLines(lines []int, a Annotation) error {
	if !a.Type.Valid() {
		return fmt.Errorf("set lines: %w: %q", ErrUnknownType, a.Type)
	}
	tag := a
	return m.write(lines, a.Type.Layer(), &tag)
}

// ClearLines removes the annotation on layer from every line in lines.
func (m *MdMap) ClearLines(lines []int, layer Layer) error {
	if layer < 0 || layer >= numLayers {
		return fmt.Errorf("clear lines: %w: %s", ErrUnknownType, layer)
	}
	return m.write(lines, layer, nil)
}

func (m *MdMap) write(lines []int, layer Layer, a *Annotation) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()

	for _, line := range lines {
		if err := m.check(line); err != nil {
			return err
		}
	}
	for _, line := range lines {
		old := m.slots[line-1][layer]
		m.slots[line-1][layer] = a
		if m.OnChange != nil {
			m.OnChange(Change{Line: line, Layer: layer, Old: old, New: a})
		}
	}
	return nil
}

// Remove clears every line tagged with uuid and returns how many slots were cleared.
func (m *MdMap) Remove(uuid string) (int, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.unlock()

	n := 0
	for i := range m.slots {
		for l, a := range m.slots[i] {
			if a == nil || a.UUID != uuid {
				continue
			}
			m.slots[i][l] = nil
			n++
			if m.OnChange != nil {
				m.OnChange(Change{Line: i + 1, Layer: Layer(l), Old: a})
			}
		}
	}
	return n, nil
}

// Lookup returns the annotation and the ascending line numbers of the span
// tagged with uuid. The annotation is nil when the uuid is not in the map.
func (m *MdMap) Lookup(uuid string) (*Annotation, []int) {
	var found *Annotation
	var lines []int
	for i, s := range m.slots {
		for _, a := range s {
			if a != nil && a.UUID == uuid {
				found = a
				lines = append(lines, i+1)
			}
		}
	}
	return found, lines
}

var defaultEnclosing = []Type{TypeSection, TypeQuestion, TypeQuestionDetail}

// FindNearestEnclosing scans backward from line (inclusive) to 1 and returns
// the first annotation whose type is in types, together with its line. When
// several layers of a line match, the innermost wins. With no types given,
// sections, questions and question details are searched.
func (m *MdMap) FindNearestEnclosing(line int, types ...Type) (*Annotation, int, error) {
	if err := m.check(line); err != nil {
		return nil, 0, err
	}
	if len(types) == 0 {
		types = defaultEnclosing
	}
	match := func(a *Annotation) bool { return slices.Contains(types, a.Type) }
	for i := line; i >= 1; i-- {
		if a := m.slots[i-1].innermost(match); a != nil {
			return a, i, nil
		}
	}
	return nil, 0, nil
}

// FindPreviousTagged returns the nearest tagged line strictly before line.
// A non-empty t restricts the search to annotations of that type.
func (m *MdMap) FindPreviousTagged(line int, t Type) (*Annotation, int, error) {
	if err := m.check(line); err != nil {
		return nil, 0, err
	}
	match := typeMatcher(t)
	for i := line - 1; i >= 1; i-- {
		if a := m.slots[i-1].innermost(match); a != nil {
			return a, i, nil
		}
	}
	return nil, 0, nil
}

// FindNextTagged returns the nearest tagged line strictly after line.
// A non-empty t restricts the search to annotations of that type.
func (m *MdMap) FindNextTagged(line int, t Type) (*Annotation, int, error) {
	if err := m.check(line); err != nil {
		return nil, 0, err
	}
	match := typeMatcher(t)
	for i := line + 1; i <= len(m.slots); i++ {
		if a := m.slots[i-1].innermost(match); a != nil {
			return a, i, nil
		}
	}
	return nil, 0, nil
}

func typeMatcher(t Type) func(*Annotation) bool {
	if t == "" {
		return func(*Annotation) bool { return true }
	}
	return func(a *Annotation) bool { return a.Type == t }
}

// Overlaps reports whether tagging candidate on layer would collide with an
// existing span other than excludeUUID: either a candidate line is already
// tagged on that layer, or the nearest tagged lines before and after the
// candidate range belong to the same span, which the candidate would split.
func (m *MdMap) Overlaps(candidate []int, layer Layer, excludeUUID string) (bool, error) {
	if len(candidate) == 0 {
		return false, nil
	}
	if layer < 0 || layer >= numLayers {
		return false, fmt.Errorf("overlaps: %w: %s", ErrUnknownType, layer)
	}
	for _, line := range candidate {
		if err := m.check(line); err != nil {
			return false, err
		}
		if a := m.slots[line-1][layer]; a != nil && a.UUID != excludeUUID {
			return true, nil
		}
	}

	lo, hi := slices.Min(candidate), slices.Max(candidate)
	var prev, next *Annotation
	for i := lo - 1; i >= 1 && prev == nil; i-- {
		prev = m.slots[i-1][layer]
	}
	for i := hi + 1; i <= len(m.slots) && next == nil; i++ {
		next = m.slots[i-1][layer]
	}
	if prev != nil && next != nil && prev.UUID == next.UUID && prev.UUID != excludeUUID {
		return true, nil
	}
	return false, nil
}
