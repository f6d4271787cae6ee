package correction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/mdmap"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/structure"
)

// Request asks for a set of lines to be tagged as one span.
type Request struct {
	Lines  []int        `json:"lines"`
	Type   mdmap.Type   `json:"type"`
	UIType mdmap.UIType `json:"uiType,omitempty"`
	IsAns  bool         `json:"isAns,omitempty"`
	// UUID re-annotates an existing span: its old lines are released first.
	UUID string `json:"uuid,omitempty"`
	// CurrentSection is the order_in_exam of the section a question is being
	// added to. When nil it is taken from the section tagged on the first line.
	CurrentSection *int `json:"currentSection,omitempty"`
}

// Neighbors holds the nearest tagged lines around a line.
type Neighbors struct {
	Previous     *mdmap.Annotation `json:"previous,omitempty"`
	PreviousLine int               `json:"previousLine,omitempty"`
	Next         *mdmap.Annotation `json:"next,omitempty"`
	NextLine     int               `json:"nextLine,omitempty"`
}

// Session is the editing state of one correction file. Its methods are safe
// for concurrent use; mutations are applied one at a time.
type Session struct {
	mu        sync.Mutex
	file      model.CorrectionFile
	doc       *mdmap.Document
	m         *mdmap.MdMap
	files     FileStore
	suggester Suggester
}

// FileID returns the ID of the file being corrected.
func (s *Session) FileID() int64 {
	return s.file.ID
}

// Lines returns the document lines.
func (s *Session) Lines() []mdmap.Line {
	return s.doc.Lines()
}

// MapJSON returns the sparse serialized annotation map.
func (s *Session) MapJSON() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.m)
}

// Annotate validates req and tags its lines with a new or transferred span.
func (s *Session) Annotate(req Request) (mdmap.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshot()
	if err != nil {
		return mdmap.Annotation{}, err
	}
	a, err := s.annotate(req)
	if err != nil {
		s.restore(snap)
		return a, err
	}
	return a, s.commit(snap)
}

func (s *Session) annotate(req Request) (mdmap.Annotation, error) {
	if !req.Type.Valid() {
		return mdmap.Annotation{}, fmt.Errorf("annotate: %w: %q", mdmap.ErrUnknownType, req.Type)
	}
	lines := slices.Clone(req.Lines)
	slices.Sort(lines)
	lines = slices.Compact(lines)
	if len(lines) == 0 {
		return mdmap.Annotation{}, ErrEmptySelection
	}
	for _, l := range lines {
		if _, err := s.m.Get(l); err != nil {
			return mdmap.Annotation{}, fmt.Errorf("annotate: %w", err)
		}
	}

	switch req.Type.Layer() {
	case mdmap.LayerSection, mdmap.LayerQuestion:
		if err := s.checkOverlap(lines, req); err != nil {
			return mdmap.Annotation{}, err
		}
	}

	a := mdmap.Annotation{
		UUID:   req.UUID,
		Type:   req.Type,
		UIType: req.UIType,
		IsAns:  req.IsAns,
	}
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	} else if _, err := s.m.Remove(a.UUID); err != nil {
		return a, fmt.Errorf("annotate %s: %w", a.UUID, err)
	}
	if err := s.m.SetLines(lines, a); err != nil {
		return a, fmt.Errorf("annotate %s: %w", a.UUID, err)
	}
	slog.Info("annotated lines",
		"file_id", s.file.ID, "uuid", a.UUID, "type", a.Type,
		"from", lines[0], "to", lines[len(lines)-1], "count", len(lines))
	return a, nil
}

// checkOverlap rejects a section or question span that would intersect
// another one. A span being re-annotated is left out of the comparison.
func (s *Session) checkOverlap(lines []int, req Request) error {
	res := structure.Reconstruct(s.m)
	structure.SortAndRename(res.Sections, nil)
	sections := withoutSpan(res.Sections, req.UUID)

	var current *int
	if req.Type.Layer() == mdmap.LayerQuestion {
		current = req.CurrentSection
		if current == nil {
			current = sectionOrderAt(lines[0], sections)
		}
	}
	if structure.HasOverlap(lines, current, sections) {
		return fmt.Errorf("%s over lines %d-%d: %w",
			req.Type, lines[0], lines[len(lines)-1], structure.ErrOverlapRejected)
	}
	return nil
}

// sectionOrderAt returns the order of the section whose [min, max] range
// covers line, gap lines included.
func sectionOrderAt(line int, sections []*structure.Section) *int {
	for _, sec := range sections {
		if len(sec.SpanLines) == 0 {
			continue
		}
		if slices.Min(sec.SpanLines) <= line && line <= slices.Max(sec.SpanLines) {
			order := sec.Order
			return &order
		}
	}
	return nil
}

// withoutSpan returns a shallow copy of the tree with the section or
// question carrying id left out.
func withoutSpan(sections []*structure.Section, id string) []*structure.Section {
	if id == "" {
		return sections
	}
	out := make([]*structure.Section, 0, len(sections))
	for _, sec := range sections {
		if sec.UUID == id {
			continue
		}
		cp := *sec
		cp.Questions = slices.DeleteFunc(slices.Clone(sec.Questions), func(q *structure.Question) bool {
			return q.UUID == id
		})
		out = append(out, &cp)
	}
	return out
}

// Clear removes the annotations on layer from lines.
func (s *Session) Clear(lines []int, layer mdmap.Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	if err := s.m.ClearLines(lines, layer); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return s.commit(snap)
}

// Remove deletes a span entirely and returns the number of slots cleared.
func (s *Session) Remove(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	n, err := s.m.Remove(id)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", id, err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.commit(snap); err != nil {
		return 0, err
	}
	return n, nil
}

// Structure reconstructs, names and materializes the current exam tree.
func (s *Session) Structure(namer structure.Namer) (*structure.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return structure.Build(s.m, s.doc, namer)
}

// Enclosing returns the nearest annotation of one of types at or above line.
func (s *Session) Enclosing(line int, types ...mdmap.Type) (*mdmap.Annotation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.FindNearestEnclosing(line, types...)
}

// Neighbors returns the nearest tagged lines before and after line,
// optionally restricted to type t.
func (s *Session) Neighbors(line int, t mdmap.Type) (Neighbors, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n Neighbors
	var err error
	if n.Previous, n.PreviousLine, err = s.m.FindPreviousTagged(line, t); err != nil {
		return n, err
	}
	if n.Next, n.NextLine, err = s.m.FindNextTagged(line, t); err != nil {
		return n, err
	}
	return n, nil
}

// Overlaps reports whether tagging lines on layer would collide with or
// split an existing span other than excludeUUID.
func (s *Session) Overlaps(lines []int, layer mdmap.Layer, excludeUUID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Overlaps(lines, layer, excludeUUID)
}

// Suggest asks the configured suggester for spans and applies the ones that
// pass validation, outer layers first. It returns the applied annotations and
// the number of rejected suggestions.
func (s *Session) Suggest(ctx context.Context) ([]mdmap.Annotation, int, error) {
	if s.suggester == nil {
		return nil, 0, ErrNoSuggester
	}
	suggestions, err := s.suggester.SuggestAnnotations(ctx, s.doc.Lines())
	if err != nil {
		return nil, 0, fmt.Errorf("suggest annotations: %w", err)
	}
	slices.SortStableFunc(suggestions, func(a, b llm.Suggestion) int {
		if la, lb := a.Type.Layer(), b.Type.Layer(); la != lb {
			return int(la) - int(lb)
		}
		return firstLine(a.Lines) - firstLine(b.Lines)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshot()
	if err != nil {
		return nil, 0, err
	}
	var applied []mdmap.Annotation
	rejected := 0
	for _, sg := range suggestions {
		a, err := s.annotate(Request{Lines: sg.Lines, Type: sg.Type, UIType: sg.UIType, IsAns: sg.IsAns})
		if err != nil {
			rejected++
			slog.Warn("rejected suggested annotation",
				"file_id", s.file.ID, "type", sg.Type, "lines", sg.Lines, "error", err)
			continue
		}
		applied = append(applied, a)
	}
	if len(applied) > 0 {
		if err := s.commit(snap); err != nil {
			return nil, rejected, err
		}
	}
	slog.Info("applied suggested annotations", "file_id", s.file.ID, "applied", len(applied), "rejected", rejected)
	return applied, rejected, nil
}

// Submit materializes the exam and stores it. Orphaned annotations make the
// submission fail with structure.ErrOrphaned.
func (s *Session) Submit(meta Metadata) (model.ExamDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := structure.Build(s.m, s.doc, meta.Namer)
	if err != nil {
		return model.ExamDocument{}, err
	}
	if err := res.Validate(); err != nil {
		return model.ExamDocument{}, err
	}
	if meta.Category == "" {
		meta.Category = s.file.Category
	}
	if meta.Source == "" {
		meta.Source = s.file.Source
	}
	if meta.Name == "" {
		meta.Name = s.file.Name
	}
	doc := ToExamDocument(res.Sections, meta)
	if err := s.files.SaveExam(s.file.ID, doc); err != nil {
		return doc, fmt.Errorf("save exam %s: %w", doc.UUID, err)
	}
	slog.Info("submitted exam", "file_id", s.file.ID, "uuid", doc.UUID, "sections", len(doc.Sections))
	return doc, nil
}

func firstLine(lines []int) int {
	if len(lines) == 0 {
		return 0
	}
	return slices.Min(lines)
}

func (s *Session) snapshot() ([]byte, error) {
	data, err := json.Marshal(s.m)
	if err != nil {
		return nil, fmt.Errorf("encode annotation map: %w", err)
	}
	return data, nil
}

// restore puts the map back to snap.
func (s *Session) restore(snap []byte) {
	m, err := mdmap.FromJSON(snap, s.doc.Len())
	if err != nil {
		slog.Error("failed to restore annotation map", "file_id", s.file.ID, "error", err)
		return
	}
	s.m = m
}

// commit persists the map. When the store refuses the write, the map is
// rolled back to snap so memory and storage agree.
func (s *Session) commit(snap []byte) error {
	if err := s.persist(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Session) persist() error {
	data, err := json.Marshal(s.m)
	if err != nil {
		return fmt.Errorf("encode annotation map: %w", err)
	}
	if err := s.files.UpdateMdMap(s.file.ID, string(data)); err != nil {
		slog.Error("failed to persist annotation map", "file_id", s.file.ID, "error", err)
		return fmt.Errorf("persist annotation map: %w", err)
	}
	return nil
}
