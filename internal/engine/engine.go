package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"burrito-analytics/internal/model"
)

// Options control how a snapshot is aggregated.
type Options struct {
	SnapshotTTL time.Duration
	TimeBucket  string // "day" or "week"

	// EnableIntelligence gates the free-text enrichment pipeline. When off,
	// text questions are marked DISABLED and no TextInputs are returned.
	EnableIntelligence bool
}

// TextInput is a text question whose answers still need enrichment.
type TextInput struct {
	QuestionID   string
	QuestionText string
	Answers      []string
	Hash         string
}

type npsCounts struct {
	promoters  int
	passives   int
	detractors int
}

type accumulator struct {
	answeredCount int
	ratings       []float64
	distribution  map[string]int
	nps           npsCounts
	textAnswers   []string
}

// Build aggregates the full response set for one form and window into an
// immutable snapshot payload plus the list of text inputs awaiting analysis.
// It is deterministic for identical inputs, skips malformed answers silently
// and never fails.
func Build(form *model.Form, evaluations []*model.Evaluation, window *model.Window, windowKey string, now time.Time, opts Options) (model.SnapshotPayload, []TextInput) {
	questionMeta := make(map[string]model.Question, len(form.Questions))
	accumulators := make(map[string]*accumulator, len(form.Questions))
	for _, q := range form.Questions {
		if q.ID == "" {
			continue
		}
		questionMeta[q.ID] = q
		accumulators[q.ID] = &accumulator{distribution: emptyDistribution()}
	}

	var overallNps npsCounts
	timeSeriesCounts := make(map[time.Time]int)

	for _, evaluation := range evaluations {
		if evaluation == nil {
			continue
		}
		if evaluation.CreatedAt != nil {
			timeSeriesCounts[bucketStart(*evaluation.CreatedAt, opts.TimeBucket)]++
		}

		for _, answer := range evaluation.Answers {
			acc, ok := accumulators[answer.QuestionID]
			if !ok {
				continue
			}
			meta := questionMeta[answer.QuestionID]

			switch meta.Type {
			case model.QuestionRating:
				rating, ok := validRating(answer.Rating)
				if !ok {
					continue
				}
				acc.ratings = append(acc.ratings, rating)
				acc.distribution[distributionKey(rating)]++
				acc.answeredCount++
				acc.nps.add(rating)
				overallNps.add(rating)
			case model.QuestionText:
				text := strings.TrimSpace(answer.Text)
				if text == "" {
					continue
				}
				acc.textAnswers = append(acc.textAnswers, text)
				acc.answeredCount++
			}
		}
	}

	questions := make([]model.QuestionAnalytics, 0, len(form.Questions))
	var textInputs []TextInput

	for _, q := range form.Questions {
		acc, ok := accumulators[q.ID]
		if !ok {
			continue
		}

		entry := model.QuestionAnalytics{
			QuestionID:    q.ID,
			Label:         q.Label,
			Type:          q.Type,
			AnsweredCount: acc.answeredCount,
		}

		switch q.Type {
		case model.QuestionRating:
			entry.Rating = buildRatingStats(acc)
		case model.QuestionText:
			stats, input := buildTextStats(q, acc.textAnswers, opts.EnableIntelligence)
			entry.Text = stats
			if input != nil {
				textInputs = append(textInputs, *input)
			}
		}

		questions = append(questions, entry)
	}

	timeSeries := make([]model.TimeBucket, 0, len(timeSeriesCounts))
	for start, count := range timeSeriesCounts {
		timeSeries = append(timeSeries, model.TimeBucket{BucketStart: start, Count: count})
	}
	sort.Slice(timeSeries, func(i, j int) bool {
		return timeSeries[i].BucketStart.Before(timeSeries[j].BucketStart)
	})

	payload := model.SnapshotPayload{
		FormID:         form.ID,
		WindowKey:      windowKey,
		Window:         window,
		GeneratedAt:    now,
		StaleAt:        now.Add(opts.SnapshotTTL),
		TotalResponses: len(evaluations),
		Nps:            buildNpsSummary(overallNps),
		Questions:      questions,
		TimeSeries:     timeSeries,
	}

	return payload, textInputs
}

// AnalysisHash fingerprints one question's answer set. The hash is sensitive
// to answer order so that any change to the set forces re-analysis.
func AnalysisHash(questionID string, answers []string) string {
	h := sha256.New()
	h.Write([]byte(questionID))
	h.Write([]byte("\n"))
	h.Write([]byte(strings.Join(answers, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *npsCounts) add(rating float64) {
	switch {
	case rating >= 9:
		c.promoters++
	case rating >= 7:
		c.passives++
	default:
		c.detractors++
	}
}

func (c npsCounts) total() int {
	return c.promoters + c.passives + c.detractors
}

func validRating(value *float64) (float64, bool) {
	if value == nil {
		return 0, false
	}
	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 || v > 10 {
		return 0, false
	}
	return v, true
}

// Ratings are a 1-10 scale; fractional values land in the nearest bucket.
func distributionKey(rating float64) string {
	return strconv.Itoa(int(math.Round(rating)))
}

func emptyDistribution() map[string]int {
	distribution := make(map[string]int, 10)
	for rating := 1; rating <= 10; rating++ {
		distribution[strconv.Itoa(rating)] = 0
	}
	return distribution
}

func buildRatingStats(acc *accumulator) *model.RatingStats {
	count := len(acc.ratings)
	stats := &model.RatingStats{
		Distribution: acc.distribution,
		NpsBuckets:   buildNpsBuckets(acc.nps),
	}
	if count == 0 {
		return stats
	}

	sorted := make([]float64, count)
	copy(sorted, acc.ratings)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	stats.Avg = sum / float64(count)
	if count%2 == 1 {
		stats.Median = sorted[count/2]
	} else {
		stats.Median = (sorted[count/2-1] + sorted[count/2]) / 2
	}
	stats.Min = sorted[0]
	stats.Max = sorted[count-1]
	return stats
}

func buildTextStats(q model.Question, answers []string, enrichmentEnabled bool) (*model.TextStats, *TextInput) {
	stats := &model.TextStats{
		ResponseCount:  len(answers),
		TopIdeas:       []model.TextIdea{},
		AnalysisStatus: model.InitialAnalysisStatus(enrichmentEnabled, len(answers)),
	}
	if len(answers) == 0 {
		return stats, nil
	}

	stats.AnalysisHash = AnalysisHash(q.ID, answers)
	if stats.AnalysisStatus != model.AnalysisPending {
		return stats, nil
	}
	return stats, &TextInput{
		QuestionID:   q.ID,
		QuestionText: q.Label,
		Answers:      answers,
		Hash:         stats.AnalysisHash,
	}
}

func buildNpsBuckets(counts npsCounts) model.NpsBuckets {
	promotersPct, passivesPct, detractorsPct := npsPercentages(counts)
	return model.NpsBuckets{
		PromotersCount:  counts.promoters,
		PassivesCount:   counts.passives,
		DetractorsCount: counts.detractors,
		PromotersPct:    promotersPct,
		PassivesPct:     passivesPct,
		DetractorsPct:   detractorsPct,
	}
}

func buildNpsSummary(counts npsCounts) model.NpsSummary {
	promotersPct, passivesPct, detractorsPct := npsPercentages(counts)
	return model.NpsSummary{
		Score:           promotersPct - detractorsPct,
		PromotersPct:    promotersPct,
		PassivesPct:     passivesPct,
		DetractorsPct:   detractorsPct,
		PromotersCount:  counts.promoters,
		PassivesCount:   counts.passives,
		DetractorsCount: counts.detractors,
	}
}

func npsPercentages(counts npsCounts) (promoters, passives, detractors float64) {
	total := counts.total()
	if total == 0 {
		return 0, 0, 0
	}
	return float64(counts.promoters) / float64(total) * 100,
		float64(counts.passives) / float64(total) * 100,
		float64(counts.detractors) / float64(total) * 100
}

func bucketStart(t time.Time, bucket string) time.Time {
	t = t.UTC()
	if bucket == "week" {
		// Back up to the UTC Monday of this week.
		diff := (int(t.Weekday()) + 6) % 7
		t = t.AddDate(0, 0, -diff)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
