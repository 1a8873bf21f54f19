package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QuestionType is the kind of answer a form question collects.
type QuestionType string

const (
	QuestionRating QuestionType = "RATING"
	QuestionText   QuestionType = "TEXT"
)

// Window bounds a snapshot to a created-at range. Either side may be open.
type Window struct {
	From *time.Time `json:"from,omitempty" bson:"from,omitempty"`
	To   *time.Time `json:"to,omitempty" bson:"to,omitempty"`
}

// NpsBuckets holds promoter/passive/detractor counts and percentages for one
// rating question.
type NpsBuckets struct {
	PromotersCount  int     `json:"promotersCount" bson:"promotersCount"`
	PassivesCount   int     `json:"passivesCount" bson:"passivesCount"`
	DetractorsCount int     `json:"detractorsCount" bson:"detractorsCount"`
	PromotersPct    float64 `json:"promotersPct" bson:"promotersPct"`
	PassivesPct     float64 `json:"passivesPct" bson:"passivesPct"`
	DetractorsPct   float64 `json:"detractorsPct" bson:"detractorsPct"`
}

// NpsSummary is the form-wide NPS rollup. Score = promotersPct - detractorsPct.
type NpsSummary struct {
	Score           float64 `json:"score" bson:"score"`
	PromotersPct    float64 `json:"promotersPct" bson:"promotersPct"`
	PassivesPct     float64 `json:"passivesPct" bson:"passivesPct"`
	DetractorsPct   float64 `json:"detractorsPct" bson:"detractorsPct"`
	PromotersCount  int     `json:"promotersCount" bson:"promotersCount"`
	PassivesCount   int     `json:"passivesCount" bson:"passivesCount"`
	DetractorsCount int     `json:"detractorsCount" bson:"detractorsCount"`
}

// RatingStats aggregates a RATING question. Distribution keys are "1".."10".
type RatingStats struct {
	Avg          float64        `json:"avg" bson:"avg"`
	Median       float64        `json:"median" bson:"median"`
	Min          float64        `json:"min" bson:"min"`
	Max          float64        `json:"max" bson:"max"`
	Distribution map[string]int `json:"distribution" bson:"distribution"`
	NpsBuckets   NpsBuckets     `json:"npsBuckets" bson:"npsBuckets"`
}

// SentimentStats is the sentiment breakdown reported by the intelligence worker.
type SentimentStats struct {
	PositivePct float64 `json:"positivePct" bson:"positivePct"`
	NeutralPct  float64 `json:"neutralPct" bson:"neutralPct"`
	NegativePct float64 `json:"negativePct" bson:"negativePct"`
}

// TextIdea is one clustered idea extracted from free-text answers.
type TextIdea struct {
	Idea  string `json:"idea" bson:"idea"`
	Count int    `json:"count" bson:"count"`
}

// TextStats aggregates a TEXT question. The analysis fields are the only part
// of a snapshot mutated in place after the initial upsert.
type TextStats struct {
	ResponseCount  int                `json:"responseCount" bson:"responseCount"`
	TopIdeas       []TextIdea         `json:"topIdeas" bson:"topIdeas"`
	Sentiment      *SentimentStats    `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
	AnalysisStatus TextAnalysisStatus `json:"analysisStatus" bson:"analysisStatus"`
	AnalysisHash   string             `json:"analysisHash,omitempty" bson:"analysisHash,omitempty"`
	LastEnrichedAt *time.Time         `json:"lastEnrichedAt,omitempty" bson:"lastEnrichedAt,omitempty"`
	AnalysisError  string             `json:"analysisError,omitempty" bson:"analysisError,omitempty"`
}

// QuestionAnalytics carries exactly one of Rating or Text, matching Type.
type QuestionAnalytics struct {
	QuestionID    string       `json:"questionId" bson:"questionId"`
	Label         string       `json:"label" bson:"label"`
	Type          QuestionType `json:"type" bson:"type"`
	AnsweredCount int          `json:"answeredCount" bson:"answeredCount"`
	Rating        *RatingStats `json:"rating,omitempty" bson:"rating,omitempty"`
	Text          *TextStats   `json:"text,omitempty" bson:"text,omitempty"`
}

// TimeBucket is one point of the response time series.
type TimeBucket struct {
	BucketStart time.Time `json:"bucketStart" bson:"bucketStart"`
	Count       int       `json:"count" bson:"count"`
}

// SnapshotPayload is everything in a snapshot except its identity. The whole
// payload is replaced on every recomputation.
type SnapshotPayload struct {
	FormID         string              `json:"formId" bson:"formId"`
	WindowKey      string              `json:"windowKey" bson:"windowKey"`
	Window         *Window             `json:"window,omitempty" bson:"window,omitempty"`
	GeneratedAt    time.Time           `json:"generatedAt" bson:"generatedAt"`
	StaleAt        time.Time           `json:"staleAt" bson:"staleAt"`
	TotalResponses int                 `json:"totalResponses" bson:"totalResponses"`
	Nps            NpsSummary          `json:"nps" bson:"nps"`
	Questions      []QuestionAnalytics `json:"questions" bson:"questions"`
	TimeSeries     []TimeBucket        `json:"timeSeries" bson:"timeSeries"`
}

// Snapshot is the cached analytics document for one (formId, windowKey) pair.
// Uniqueness is enforced by a compound index plus upsert-by-key writes.
type Snapshot struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SnapshotPayload `bson:",inline"`
}

// Question returns the analytics for questionID, or nil if the snapshot does
// not contain it.
func (s *Snapshot) Question(questionID string) *QuestionAnalytics {
	for i := range s.Questions {
		if s.Questions[i].QuestionID == questionID {
			return &s.Questions[i]
		}
	}
	return nil
}
