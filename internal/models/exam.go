package models

import (
	"github.com/google/uuid"

	"github.com/credexam/certification-api/internal/grading"
)

// Exam structure is authored by the CRUD layer and read-only here. An exam
// owns weighted categories, categories own topics, topics own questions.
type Exam struct {
	Title     string
	ClassCode string
	Model
	Categories   []Category `gorm:"foreignKey:ExamID"`
	PassingScore int
	// Allotted attempt duration; attempts still in progress past it are
	// swept to abandoned
	DurationMins int
}

func (Exam) TableName() string {
	return "exams"
}

func (e Exam) GetID() uuid.UUID {
	return e.ID
}

type Category struct {
	Name string
	Model
	ExamID uuid.UUID
	Topics []Topic `gorm:"foreignKey:CategoryID"`
	// Percentage share of the exam; weights across an exam sum to 100
	Weight float64
}

func (Category) TableName() string {
	return "categories"
}

func (c Category) GetID() uuid.UUID {
	return c.ID
}

type Topic struct {
	Name string
	Model
	CategoryID uuid.UUID
	Questions  []Question `gorm:"foreignKey:TopicID"`
}

func (Topic) TableName() string {
	return "topics"
}

func (t Topic) GetID() uuid.UUID {
	return t.ID
}

// AnswerKey is the canonical correct answer, shaped per question type.
type AnswerKey struct {
	Option     string            `json:"option,omitempty"`
	Set        []string          `json:"set,omitempty"`
	Sequence   []string          `json:"sequence,omitempty"`
	Placements map[string]string `json:"placements,omitempty"`
	Text       string            `json:"text,omitempty"`
}

type Question struct {
	Type        string
	ScoringMode string
	Model
	TopicID       uuid.UUID
	AnswerKey     AnswerKey `gorm:"type:jsonb;serializer:json"`
	Points        float64
	CaseSensitive bool
}

func (Question) TableName() string {
	return "questions"
}

func (q Question) GetID() uuid.UUID {
	return q.ID
}

// GradingItem maps the stored row into the evaluator's closed item schema.
func (q Question) GradingItem() grading.Item {
	return grading.Item{
		ID:                q.ID.String(),
		Type:              grading.ItemType(q.Type),
		Points:            q.Points,
		CorrectOption:     q.AnswerKey.Option,
		CorrectSet:        q.AnswerKey.Set,
		CorrectSequence:   q.AnswerKey.Sequence,
		CorrectPlacements: q.AnswerKey.Placements,
		CorrectText:       q.AnswerKey.Text,
		ScoringMode:       grading.ScoringMode(q.ScoringMode),
		CaseSensitive:     q.CaseSensitive,
	}
}
