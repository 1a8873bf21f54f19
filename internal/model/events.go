package model

import "time"

// IntelligenceRequestEvent asks the intelligence worker to analyze the text
// answers of one question. Produced once; the worker may deliver its result
// more than once.
type IntelligenceRequestEvent struct {
	JobID        string    `json:"jobId"`
	FormID       string    `json:"formId"`
	SnapshotID   string    `json:"snapshotId"`
	WindowKey    string    `json:"windowKey"`
	QuestionID   string    `json:"questionId"`
	QuestionText string    `json:"questionText"`
	Answers      []string  `json:"answers"`
	AnalysisHash string    `json:"analysisHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IntelligenceResultEvent is the worker's answer, correlated back to the
// snapshot via (snapshotId, questionId, analysisHash).
type IntelligenceResultEvent struct {
	JobID          string          `json:"jobId"`
	FormID         string          `json:"formId"`
	SnapshotID     string          `json:"snapshotId"`
	WindowKey      string          `json:"windowKey"`
	QuestionID     string          `json:"questionId"`
	AnalysisHash   string          `json:"analysisHash"`
	Success        bool            `json:"success"`
	TopIdeas       []TextIdea      `json:"topIdeas,omitempty"`
	Sentiment      *SentimentStats `json:"sentiment,omitempty"`
	AnalysisError  string          `json:"analysisError,omitempty"`
	LastEnrichedAt *time.Time      `json:"lastEnrichedAt,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
}

// TextAnalysisStatusEvent notifies subscribers that a question's analysis
// status changed. Delivered at least once, with no cross-question ordering.
type TextAnalysisStatusEvent struct {
	FormID         string             `json:"formId"`
	QuestionID     string             `json:"questionId"`
	WindowKey      string             `json:"windowKey"`
	Window         *Window            `json:"window,omitempty"`
	AnalysisStatus TextAnalysisStatus `json:"analysisStatus"`
	AnalysisHash   string             `json:"analysisHash,omitempty"`
	AnalysisError  string             `json:"analysisError,omitempty"`
	LastEnrichedAt *time.Time         `json:"lastEnrichedAt,omitempty"`
	TopIdeas       []TextIdea         `json:"topIdeas,omitempty"`
	Sentiment      *SentimentStats    `json:"sentiment,omitempty"`
}
