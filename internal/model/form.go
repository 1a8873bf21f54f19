package model

import "time"

// Question is a form question as returned by the forms service.
type Question struct {
	ID    string       `json:"id"`
	Label string       `json:"label"`
	Type  QuestionType `json:"type"`
}

// Form is the upstream form record.
type Form struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answer is a single answer inside an evaluation. Rating and Text are both
// optional; which one is meaningful depends on the question type.
type Answer struct {
	QuestionID string   `json:"questionId"`
	Rating     *float64 `json:"rating,omitempty"`
	Text       string   `json:"text,omitempty"`
}

// Evaluation is one submitted response for a form.
type Evaluation struct {
	Answers   []Answer   `json:"answers"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}
