package correction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/examforge/internal/mdmap"
	"github.com/pavelanni/examforge/internal/model"
)

// ErrEmptyFile is returned when a correction file has no name or content.
var ErrEmptyFile = errors.New("correction file needs a name and content")

// NewFile validates a transcript and an optional serialized map and returns
// the file ready to be stored. The map is re-encoded in its sparse form.
func NewFile(name, content string, mdMap []byte, category, source string) (model.CorrectionFile, error) {
	name = strings.TrimSpace(name)
	if name == "" || content == "" {
		return model.CorrectionFile{}, ErrEmptyFile
	}
	doc := mdmap.NewDocument(content)
	m, err := mdmap.FromJSON(mdMap, doc.Len())
	if err != nil {
		return model.CorrectionFile{}, fmt.Errorf("file %s: %w", name, err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return model.CorrectionFile{}, fmt.Errorf("encode annotation map: %w", err)
	}
	return model.CorrectionFile{
		Name:     name,
		Content:  content,
		MdMap:    string(data),
		Category: category,
		Source:   source,
	}, nil
}
