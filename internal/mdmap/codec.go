package mdmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MarshalJSON encodes the map sparsely as {"<line>": [annotation, ...]},
// listing only tagged lines, annotations from the outermost layer inwards.
func (m *MdMap) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Annotation)
	for i, s := range m.slots {
		if s.Empty() {
			continue
		}
		out[strconv.Itoa(i+1)] = s.Annotations()
	}
	return json.Marshal(out)
}

// FromJSON rebuilds a map for a document of lineCount lines from its sparse
// encoding. A value may be a list of annotations or a single annotation
// object. Annotations sharing a uuid are interned to one tag.
func FromJSON(data []byte, lineCount int) (*MdMap, error) {
	m, err := New(lineCount)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return m, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode annotation map: %w", err)
	}

	tags := make(map[string]*Annotation)
	for key, val := range raw {
		line, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("decode annotation map: bad line key %q", key)
		}
		if err := m.check(line); err != nil {
			return nil, fmt.Errorf("decode annotation map: %w", err)
		}
		anns, err := decodeSlot(val)
		if err != nil {
			return nil, fmt.Errorf("decode annotation map line %d: %w", line, err)
		}
		for _, a := range anns {
			if !a.Type.Valid() {
				return nil, fmt.Errorf("decode annotation map line %d: %w: %q", line, ErrUnknownType, a.Type)
			}
			tag, ok := tags[a.UUID]
			if !ok {
				tag = &a
				tags[a.UUID] = tag
			}
			m.slots[line-1][tag.Type.Layer()] = tag
		}
	}
	return m, nil
}

func decodeSlot(val json.RawMessage) ([]Annotation, error) {
	val = bytes.TrimSpace(val)
	if len(val) > 0 && val[0] == '{' {
		var a Annotation
		if err := json.Unmarshal(val, &a); err != nil {
			return nil, err
		}
		return []Annotation{a}, nil
	}
	var anns []Annotation
	if err := json.Unmarshal(val, &anns); err != nil {
		return nil, err
	}
	return anns, nil
}
