package model

import "time"

// TextAnalysisStatus is the lifecycle of free-text enrichment for one question.
//
// DISABLED: enrichment is switched off.
// PENDING:  answers were handed to the intelligence worker, result outstanding.
// READY:    analysis applied (or nothing to analyze).
// FAILED:   worker reported an error, publish failed, or the deadline passed.
//
// READY and FAILED move back to PENDING on the next recomputation whenever the
// answer-set hash changes.
type TextAnalysisStatus string

const (
	AnalysisDisabled TextAnalysisStatus = "DISABLED"
	AnalysisPending  TextAnalysisStatus = "PENDING"
	AnalysisReady    TextAnalysisStatus = "READY"
	AnalysisFailed   TextAnalysisStatus = "FAILED"
)

// AnalysisResolution is the terminal state a PENDING analysis moves to.
type AnalysisResolution struct {
	Status         TextAnalysisStatus // AnalysisReady or AnalysisFailed
	TopIdeas       []TextIdea
	Sentiment      *SentimentStats
	AnalysisError  string
	LastEnrichedAt time.Time
}

// TransitionOutcome explains why a resolution did or did not apply. Stale and
// already-resolved work is a first-class no-op, not an error.
type TransitionOutcome int

const (
	TransitionApplied TransitionOutcome = iota
	TransitionNoTextStats
	TransitionStaleHash
	TransitionNotPending
)

// Applied reports whether the transition changed state.
func (o TransitionOutcome) Applied() bool { return o == TransitionApplied }

func (o TransitionOutcome) String() string {
	switch o {
	case TransitionApplied:
		return "applied"
	case TransitionNoTextStats:
		return "no text stats"
	case TransitionStaleHash:
		return "stale hash"
	case TransitionNotPending:
		return "not pending"
	default:
		return "unknown"
	}
}

// InitialAnalysisStatus is the status a text question starts in when a
// snapshot is (re)computed.
func InitialAnalysisStatus(enrichmentEnabled bool, responseCount int) TextAnalysisStatus {
	if !enrichmentEnabled {
		return AnalysisDisabled
	}
	if responseCount == 0 {
		return AnalysisReady
	}
	return AnalysisPending
}

// ResolveText applies res to a copy of stats, refusing stale or already
// resolved work. The stored document's conditional write mirrors exactly this
// check, so both in-memory and database appliers agree on what is a no-op.
func ResolveText(stats *TextStats, hash string, res AnalysisResolution) (TextStats, TransitionOutcome) {
	if stats == nil {
		return TextStats{}, TransitionNoTextStats
	}
	next := *stats
	if stats.AnalysisHash != hash {
		return next, TransitionStaleHash
	}
	if stats.AnalysisStatus != AnalysisPending {
		return next, TransitionNotPending
	}

	enrichedAt := res.LastEnrichedAt
	next.AnalysisStatus = res.Status
	next.LastEnrichedAt = &enrichedAt
	if res.Status == AnalysisReady {
		next.TopIdeas = res.TopIdeas
		if next.TopIdeas == nil {
			next.TopIdeas = []TextIdea{}
		}
		next.Sentiment = res.Sentiment
		next.AnalysisError = ""
	} else {
		next.AnalysisError = res.AnalysisError
	}
	return next, TransitionApplied
}
