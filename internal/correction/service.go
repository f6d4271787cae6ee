// Package correction runs file-correction editor sessions: one document and
// one annotation map per open correction file.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/mdmap"
	"github.com/pavelanni/examforge/internal/model"
)

var (
	// ErrFileNotFound is returned when the correction file does not exist.
	ErrFileNotFound = errors.New("correction file not found")
	// ErrEmptySelection is returned for an annotation request without lines.
	ErrEmptySelection = errors.New("no lines selected")
	// ErrNoSuggester is returned by Suggest when no LLM is configured.
	ErrNoSuggester = errors.New("annotation suggestions not configured")
)

// FileStore is the persistence a session needs.
type FileStore interface {
	GetFile(id int64) (*model.CorrectionFile, error)
	UpdateMdMap(id int64, mdMap string) error
	SaveExam(fileID int64, doc model.ExamDocument) error
}

// Suggester proposes annotations for a transcript.
type Suggester interface {
	SuggestAnnotations(ctx context.Context, lines []mdmap.Line) ([]llm.Suggestion, error)
}

// Service hands out sessions, loading each file at most once.
type Service struct {
	files     FileStore
	suggester Suggester

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewService creates a Service. suggester may be nil.
func NewService(files FileStore, suggester Suggester) *Service {
	return &Service{
		files:     files,
		suggester: suggester,
		sessions:  make(map[int64]*Session),
	}
}

// CanSuggest reports whether an annotation suggester is configured.
func (svc *Service) CanSuggest() bool {
	return svc.suggester != nil
}

// Open returns the session for a file, loading it from the store on first use.
func (svc *Service) Open(fileID int64) (*Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if s, ok := svc.sessions[fileID]; ok {
		return s, nil
	}
	f, err := svc.files.GetFile(fileID)
	if err != nil {
		return nil, fmt.Errorf("load file %d: %w", fileID, err)
	}
	if f == nil {
		return nil, fmt.Errorf("file %d: %w", fileID, ErrFileNotFound)
	}
	s, err := newSession(f, svc.files, svc.suggester)
	if err != nil {
		return nil, err
	}
	svc.sessions[fileID] = s
	slog.Info("opened correction session", "file_id", fileID, "lines", s.doc.Len())
	return s, nil
}

// Close drops the cached session of a file.
func (svc *Service) Close(fileID int64) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.sessions, fileID)
}

func newSession(f *model.CorrectionFile, files FileStore, suggester Suggester) (*Session, error) {
	doc := mdmap.NewDocument(f.Content)
	m, err := mdmap.FromJSON([]byte(f.MdMap), doc.Len())
	if err != nil {
		return nil, fmt.Errorf("file %d: %w", f.ID, err)
	}
	return &Session{
		file:      *f,
		doc:       doc,
		m:         m,
		files:     files,
		suggester: suggester,
	}, nil
}
