package model

import "time"

// GradeInfo places an exam in a school grade and term.
type GradeInfo struct {
	Grade    string `json:"grade" yaml:"grade"`
	Semester string `json:"semester,omitempty" yaml:"semester,omitempty"`
	Subject  string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// ExamDocument is the submission format consumed by exam storage. Every text
// field holds materialized text, never line references.
type ExamDocument struct {
	UUID      string        `json:"uuid" yaml:"uuid"`
	Name      string        `json:"name" yaml:"name"`
	Category  string        `json:"category" yaml:"category"`
	Source    string        `json:"source" yaml:"source"`
	KN        []string      `json:"kn" yaml:"kn"`
	GradeInfo GradeInfo     `json:"gradeInfo" yaml:"gradeInfo"`
	Sections  []ExamSection `json:"sections" yaml:"sections"`
}

// ExamSection is a materialized section.
type ExamSection struct {
	UUID        string         `json:"uuid" yaml:"uuid"`
	Name        string         `json:"name" yaml:"name"`
	OrderInExam int            `json:"order_in_exam" yaml:"order_in_exam"`
	Questions   []ExamQuestion `json:"questions" yaml:"questions"`
}

// ExamQuestion is a materialized question. Simple questions carry their
// content, answer and rows directly; complex ones carry QuestionDetails.
type ExamQuestion struct {
	UUID            string               `json:"uuid" yaml:"uuid"`
	Type            string               `json:"type" yaml:"type"`
	UIType          string               `json:"uiType,omitempty" yaml:"uiType,omitempty"`
	Name            string               `json:"name" yaml:"name"`
	OrderInSection  int                  `json:"order_in_section" yaml:"order_in_section"`
	Material        string               `json:"material,omitempty" yaml:"material,omitempty"`
	QuestionContent string               `json:"questionContent,omitempty" yaml:"questionContent,omitempty"`
	Explanation     string               `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Answer          string               `json:"answer,omitempty" yaml:"answer,omitempty"`
	Rows            []ExamRow            `json:"rows,omitempty" yaml:"rows,omitempty"`
	QuestionDetails []ExamQuestionDetail `json:"questionDetails,omitempty" yaml:"questionDetails,omitempty"`
}

// ExamQuestionDetail is a materialized question detail.
type ExamQuestionDetail struct {
	UUID            string    `json:"uuid" yaml:"uuid"`
	UIType          string    `json:"uiType,omitempty" yaml:"uiType,omitempty"`
	Name            string    `json:"name" yaml:"name"`
	OrderInQuestion int       `json:"order_in_question" yaml:"order_in_question"`
	QuestionContent string    `json:"questionContent" yaml:"questionContent"`
	Explanation     string    `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Answer          string    `json:"answer,omitempty" yaml:"answer,omitempty"`
	Rows            []ExamRow `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// ExamRow is one materialized option.
type ExamRow struct {
	UUID  string `json:"uuid" yaml:"uuid"`
	Value string `json:"value" yaml:"value"`
	IsAns bool   `json:"isAns" yaml:"isAns"`
}

// StoredExam is an ExamDocument as kept in the database.
type StoredExam struct {
	FileID    int64        `json:"file_id"`
	CreatedAt time.Time    `json:"created_at"`
	Document  ExamDocument `json:"document"`
}
