package service

import (
	"context"
	"fmt"
	"time"

	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/repository"
)

const timeoutError = "processing timed out"

// Reaper fails PENDING text analyses whose snapshot was generated longer ago
// than the enrichment deadline. It uses the same conditional transition as
// the result consumer, so a sweep racing a late result is harmless and a
// second pass over resolved work is a no-op.
type Reaper struct {
	repo     repository.SnapshotRepo
	status   StatusPublisher
	inFlight *inFlightSet
	timeout  time.Duration
	log      *logger.Logger
}

// NewReaper creates a new pending-timeout reaper.
func NewReaper(repo repository.SnapshotRepo, status StatusPublisher, inFlight *inFlightSet, timeout time.Duration, log *logger.Logger) *Reaper {
	return &Reaper{
		repo:     repo,
		status:   status,
		inFlight: inFlight,
		timeout:  timeout,
		log:      log.With("service", "reaper"),
	}
}

// Sweep fails every PENDING question on snapshots generated at or before
// now - timeout.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-r.timeout)
	stale, err := r.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale pending snapshots: %w", err)
	}

	for _, snapshot := range stale {
		snapshotID := snapshot.ID.Hex()
		for i := range snapshot.Questions {
			question := &snapshot.Questions[i]
			if question.Text == nil || question.Text.AnalysisStatus != model.AnalysisPending {
				continue
			}
			hash := question.Text.AnalysisHash

			res := model.AnalysisResolution{
				Status:         model.AnalysisFailed,
				AnalysisError:  timeoutError,
				LastEnrichedAt: now.UTC(),
			}
			applied, err := r.repo.ResolveAnalysis(ctx, snapshotID, question.QuestionID, hash, res)
			if err != nil {
				r.log.Warn("failed to time out pending analysis",
					"snapshotId", snapshotID, "questionId", question.QuestionID, "error", err)
				continue
			}
			r.inFlight.Remove(enrichmentKey(snapshotID, question.QuestionID, hash))
			if !applied {
				continue
			}

			r.log.Info("pending analysis timed out",
				"snapshotId", snapshotID, "questionId", question.QuestionID)
			if r.status != nil {
				enrichedAt := res.LastEnrichedAt
				event := model.TextAnalysisStatusEvent{
					FormID:         snapshot.FormID,
					QuestionID:     question.QuestionID,
					WindowKey:      snapshot.WindowKey,
					Window:         snapshot.Window,
					AnalysisStatus: model.AnalysisFailed,
					AnalysisHash:   hash,
					AnalysisError:  timeoutError,
					LastEnrichedAt: &enrichedAt,
				}
				if err := r.status.PublishStatusChanged(ctx, event); err != nil {
					r.log.Warn("status event publish failed",
						"formId", snapshot.FormID, "questionId", question.QuestionID, "error", err)
				}
			}
		}
	}
	return nil
}
