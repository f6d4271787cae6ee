package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examforge/internal/mdmap"
)

// Templates holds the built-in prompt templates.
//
//go:embed templates/*.txt
var Templates embed.FS

const (
	maxLineRunes       = 500
	maxTranscriptLines = 2000
)

var (
	transcriptTagRegex      = regexp.MustCompile(`(?i)</?\s*transcript\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant selects how deep the suggested annotations go.
type PromptVariant string

const (
	// PromptFull asks for every annotation layer down to rows and answers.
	PromptFull PromptVariant = "full"
	// PromptOutline asks for sections and questions only.
	PromptOutline PromptVariant = "outline"
)

var validVariants = map[PromptVariant]bool{
	PromptFull:    true,
	PromptOutline: true,
}

var (
	loadOnce         sync.Once
	loadErr          error
	suggestTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// SuggestData holds template data for annotation prompts.
type SuggestData struct {
	Transcript string
	Truncated  bool
}

// Load loads prompt templates from fsys, which must contain
// templates/suggest_<variant>.txt for every variant.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		suggestTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptFull, PromptOutline} {
			file := "templates/suggest_" + string(v) + ".txt"

			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}

			tmpl, err := template.New("suggest").Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			suggestTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildSuggestPrompt renders the annotation prompt for a numbered transcript.
func BuildSuggestPrompt(variant PromptVariant, lines []mdmap.Line) (string, error) {
	if suggestTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := suggestTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	transcript, truncated := numberLines(lines)
	data := SuggestData{
		Transcript: transcript,
		Truncated:  truncated,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func numberLines(lines []mdmap.Line) (string, bool) {
	truncated := false
	if len(lines) > maxTranscriptLines {
		lines = lines[:maxTranscriptLines]
		truncated = true
	}
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(strconv.Itoa(l.Index))
		sb.WriteString("| ")
		sb.WriteString(sanitizeLine(l.Text))
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n"), truncated
}

func sanitizeLine(text string) string {
	text = transcriptTagRegex.ReplaceAllString(text, "")
	text = systemInstructionsRegex.ReplaceAllString(text, "")
	text = strings.TrimRight(text, " \t")

	if utf8.RuneCountInString(text) > maxLineRunes {
		runes := []rune(text)
		text = string(runes[:maxLineRunes]) + " [...]"
	}

	return text
}
