package correction

import (
	"github.com/google/uuid"

	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/structure"
)

// Metadata is the exam-level information supplied on submission.
type Metadata struct {
	UUID      string          `json:"uuid,omitempty"`
	Name      string          `json:"name,omitempty"`
	Category  string          `json:"category,omitempty"`
	Source    string          `json:"source,omitempty"`
	KN        []string        `json:"kn,omitempty"`
	GradeInfo model.GradeInfo `json:"gradeInfo"`
	// Namer names sections; nil uses structure.DefaultNamer.
	Namer structure.Namer `json:"-"`
}

// ToExamDocument converts a materialized tree into the submission format.
// A missing meta.UUID is generated.
func ToExamDocument(sections []*structure.Section, meta Metadata) model.ExamDocument {
	doc := model.ExamDocument{
		UUID:      meta.UUID,
		Name:      meta.Name,
		Category:  meta.Category,
		Source:    meta.Source,
		KN:        meta.KN,
		GradeInfo: meta.GradeInfo,
		Sections:  make([]model.ExamSection, 0, len(sections)),
	}
	if doc.UUID == "" {
		doc.UUID = uuid.NewString()
	}
	if doc.KN == nil {
		doc.KN = []string{}
	}

	for _, s := range sections {
		es := model.ExamSection{
			UUID:        s.UUID,
			Name:        s.Name,
			OrderInExam: s.Order,
			Questions:   make([]model.ExamQuestion, 0, len(s.Questions)),
		}
		for _, q := range s.Questions {
			eq := model.ExamQuestion{
				UUID:            q.UUID,
				Type:            string(q.Type),
				UIType:          string(q.UIType),
				Name:            q.Name,
				OrderInSection:  q.Order,
				Material:        value(q.Material),
				QuestionContent: value(q.Content),
				Explanation:     value(q.Explanation),
				Answer:          value(q.Answer),
				Rows:            rows(q.Rows),
			}
			for _, d := range q.Details {
				eq.QuestionDetails = append(eq.QuestionDetails, model.ExamQuestionDetail{
					UUID:            d.UUID,
					UIType:          string(d.UIType),
					Name:            d.Name,
					OrderInQuestion: d.Order,
					QuestionContent: value(d.Content),
					Explanation:     value(d.Explanation),
					Answer:          value(d.Answer),
					Rows:            rows(d.Rows),
				})
			}
			es.Questions = append(es.Questions, eq)
		}
		doc.Sections = append(doc.Sections, es)
	}
	return doc
}

func value(t *structure.TextSpan) string {
	if t == nil {
		return ""
	}
	return t.Value
}

func rows(rs []*structure.Row) []model.ExamRow {
	if len(rs) == 0 {
		return nil
	}
	out := make([]model.ExamRow, len(rs))
	for i, r := range rs {
		out[i] = model.ExamRow{UUID: r.UUID, Value: r.Value, IsAns: r.IsAns}
	}
	return out
}
