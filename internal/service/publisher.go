package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"burrito-analytics/internal/config"
	"burrito-analytics/internal/engine"
	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/repository"
	"burrito-analytics/internal/stream"
)

// Publisher turns pending text inputs into correlated intelligence request
// messages, deduplicating requests that are already in flight from this
// instance.
type Publisher struct {
	repo     repository.SnapshotRepo
	stream   stream.Client
	inFlight *inFlightSet
	cfg      *config.Config
	log      *logger.Logger
	now      func() time.Time
}

// NewPublisher creates a new enrichment request publisher.
func NewPublisher(repo repository.SnapshotRepo, streamClient stream.Client, inFlight *inFlightSet, cfg *config.Config, log *logger.Logger) *Publisher {
	return &Publisher{
		repo:     repo,
		stream:   streamClient,
		inFlight: inFlight,
		cfg:      cfg,
		log:      log.With("service", "publisher"),
		now:      time.Now,
	}
}

// Dispatch marks each text input PENDING and appends a request to the
// intelligence stream. A publish failure conditionally fails that question
// and untracks it so a later recomputation can retry; other inputs continue.
func (p *Publisher) Dispatch(ctx context.Context, snapshot *model.Snapshot, inputs []engine.TextInput) {
	snapshotID := snapshot.ID.Hex()
	for _, input := range inputs {
		key := enrichmentKey(snapshotID, input.QuestionID, input.Hash)
		if !p.inFlight.TryAdd(key) {
			continue
		}

		if err := p.publishOne(ctx, snapshot, input); err != nil {
			p.log.Warn("intelligence request publish failed",
				"snapshotId", snapshotID, "questionId", input.QuestionID, "error", err)

			res := model.AnalysisResolution{
				Status:         model.AnalysisFailed,
				AnalysisError:  "failed to publish analysis request",
				LastEnrichedAt: p.now().UTC(),
			}
			if _, ferr := p.repo.ResolveAnalysis(ctx, snapshotID, input.QuestionID, input.Hash, res); ferr != nil {
				p.log.Error("failed to mark analysis failed",
					"snapshotId", snapshotID, "questionId", input.QuestionID, "error", ferr)
			}
			p.inFlight.Remove(key)
		}
	}
}

func (p *Publisher) publishOne(ctx context.Context, snapshot *model.Snapshot, input engine.TextInput) error {
	snapshotID := snapshot.ID.Hex()
	if err := p.repo.MarkAnalysisPending(ctx, snapshotID, input.QuestionID, input.Hash); err != nil {
		return fmt.Errorf("mark analysis pending: %w", err)
	}

	event := model.IntelligenceRequestEvent{
		JobID:        uuid.NewString(),
		FormID:       snapshot.FormID,
		SnapshotID:   snapshotID,
		WindowKey:    snapshot.WindowKey,
		QuestionID:   input.QuestionID,
		QuestionText: input.QuestionText,
		Answers:      input.Answers,
		AnalysisHash: input.Hash,
		CreatedAt:    p.now().UTC(),
	}

	env, err := stream.NewEnvelope(ctx, event, p.cfg.ProducerService, p.now())
	if err != nil {
		return err
	}

	id, err := p.stream.PublishRequest(ctx, env)
	if err != nil {
		return err
	}
	p.log.Debug("intelligence request published",
		"jobId", event.JobID, "questionId", input.QuestionID, "messageId", id)
	return nil
}
