package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"burrito-analytics/internal/config"
	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/repository"
	"burrito-analytics/internal/stream"
)

const consumerBackoff = time.Second

// Consumer drains the intelligence result stream under a durable consumer
// group and applies results to snapshots. Every message is acknowledged
// exactly once per delivery: failed messages go to the DLQ first, so one
// poison message can never stall the stream.
type Consumer struct {
	repo         repository.SnapshotRepo
	stream       stream.Client
	status       StatusPublisher
	inFlight     *inFlightSet
	reaper       *Reaper
	cfg          *config.Config
	log          *logger.Logger
	consumerName string
	now          func() time.Time
}

// NewConsumer creates a result consumer with a process-unique consumer name.
func NewConsumer(
	repo repository.SnapshotRepo,
	streamClient stream.Client,
	status StatusPublisher,
	inFlight *inFlightSet,
	reaper *Reaper,
	cfg *config.Config,
	log *logger.Logger,
) *Consumer {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &Consumer{
		repo:         repo,
		stream:       streamClient,
		status:       status,
		inFlight:     inFlight,
		reaper:       reaper,
		cfg:          cfg,
		log:          log.With("service", "result-consumer"),
		consumerName: fmt.Sprintf("analytics-%d-%s", os.Getpid(), suffix),
		now:          time.Now,
	}
}

// Run blocks until ctx is cancelled, alternating blocking reads with
// processing. Loop-level errors back off briefly and retry.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.stream.EnsureResultGroup(ctx); err != nil {
		return fmt.Errorf("ensure result consumer group: %w", err)
	}
	c.log.Info("intelligence result consumer started",
		"stream", c.stream.ResultStream(), "consumer", c.consumerName)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messages, err := c.stream.ReadResults(ctx, c.consumerName, c.cfg.ResultBatchSize, c.cfg.ResultBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("result consumer loop error", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(consumerBackoff):
			}
			continue
		}

		for _, message := range messages {
			c.processMessage(ctx, message)
		}

		if err := c.reaper.Sweep(ctx, c.now()); err != nil {
			c.log.Warn("pending timeout sweep failed", "error", err)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, message stream.Message) {
	mctx := message.Envelope.Metadata.Extract(ctx)

	if err := c.handleResult(mctx, message); err != nil {
		c.log.Warn("failed to process intelligence result",
			"id", message.ID, "error", err)
		entry := stream.DLQEntry{
			SourceStream:    c.stream.ResultStream(),
			DLQStream:       c.stream.DLQStream(),
			FailedMessageID: message.ID,
			Payload:         message.Envelope.Payload,
			Metadata:        message.Envelope.Metadata,
			Error:           err.Error(),
			FailedAt:        c.now().UTC(),
		}
		if _, dlqErr := c.stream.PublishDLQ(mctx, entry); dlqErr != nil {
			c.log.Error("dead-letter publish failed", "id", message.ID, "error", dlqErr)
		}
	}

	// Ack unconditionally: failed work lives in the DLQ, never redelivered.
	if err := c.stream.AckResult(ctx, message.ID); err != nil {
		c.log.Warn("result ack failed", "id", message.ID, "error", err)
	}
}

func (c *Consumer) handleResult(ctx context.Context, message stream.Message) error {
	var event model.IntelligenceResultEvent
	if err := json.Unmarshal([]byte(message.Envelope.Payload), &event); err != nil {
		return fmt.Errorf("decode result payload: %w", err)
	}
	return c.applyResult(ctx, &event)
}

// applyResult validates correlation, then conditionally transitions the
// matching question out of PENDING. Stale and superseded results are silent
// no-ops; only a write that actually changed state emits a status event.
func (c *Consumer) applyResult(ctx context.Context, event *model.IntelligenceResultEvent) error {
	if event.SnapshotID == "" || event.FormID == "" || event.WindowKey == "" ||
		event.QuestionID == "" || event.AnalysisHash == "" {
		return errors.New("result event is missing correlation fields")
	}

	// Untrack whatever happens next; the request is no longer outstanding.
	defer c.inFlight.Remove(enrichmentKey(event.SnapshotID, event.QuestionID, event.AnalysisHash))

	snapshot, err := c.repo.FindByID(ctx, event.SnapshotID)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snapshot == nil || snapshot.FormID != event.FormID || snapshot.WindowKey != event.WindowKey {
		return nil
	}

	question := snapshot.Question(event.QuestionID)
	if question == nil || question.Text == nil || question.Text.AnalysisHash != event.AnalysisHash {
		return nil
	}

	resolution := resolutionFromResult(event, c.now())
	applied, err := c.repo.ResolveAnalysis(ctx, event.SnapshotID, event.QuestionID, event.AnalysisHash, resolution)
	if err != nil {
		return fmt.Errorf("apply analysis result: %w", err)
	}
	if !applied {
		// The reaper or a redelivered duplicate resolved it first.
		return nil
	}

	c.publishStatus(ctx, snapshot, event.QuestionID, resolution)
	return nil
}

func (c *Consumer) publishStatus(ctx context.Context, snapshot *model.Snapshot, questionID string, res model.AnalysisResolution) {
	if c.status == nil {
		return
	}
	enrichedAt := res.LastEnrichedAt
	event := model.TextAnalysisStatusEvent{
		FormID:         snapshot.FormID,
		QuestionID:     questionID,
		WindowKey:      snapshot.WindowKey,
		Window:         snapshot.Window,
		AnalysisStatus: res.Status,
		AnalysisError:  res.AnalysisError,
		LastEnrichedAt: &enrichedAt,
		TopIdeas:       res.TopIdeas,
		Sentiment:      res.Sentiment,
	}
	if question := snapshot.Question(questionID); question != nil && question.Text != nil {
		event.AnalysisHash = question.Text.AnalysisHash
	}
	if err := c.status.PublishStatusChanged(ctx, event); err != nil {
		c.log.Warn("status event publish failed",
			"formId", snapshot.FormID, "questionId", questionID, "error", err)
	}
}

func resolutionFromResult(event *model.IntelligenceResultEvent, now time.Time) model.AnalysisResolution {
	enrichedAt := now.UTC()
	if event.LastEnrichedAt != nil {
		enrichedAt = event.LastEnrichedAt.UTC()
	}

	if !event.Success {
		message := event.AnalysisError
		if message == "" {
			message = "analysis failed"
		}
		return model.AnalysisResolution{
			Status:         model.AnalysisFailed,
			AnalysisError:  message,
			LastEnrichedAt: enrichedAt,
		}
	}

	return model.AnalysisResolution{
		Status:         model.AnalysisReady,
		TopIdeas:       sanitizeTopIdeas(event.TopIdeas),
		Sentiment:      event.Sentiment,
		LastEnrichedAt: enrichedAt,
	}
}

// sanitizeTopIdeas keeps the first 10 non-empty ideas, trimming whitespace
// and flooring counts at 1.
func sanitizeTopIdeas(ideas []model.TextIdea) []model.TextIdea {
	sanitized := make([]model.TextIdea, 0, len(ideas))
	for _, idea := range ideas {
		text := strings.TrimSpace(idea.Idea)
		if text == "" {
			continue
		}
		count := idea.Count
		if count < 1 {
			count = 1
		}
		sanitized = append(sanitized, model.TextIdea{Idea: text, Count: count})
		if len(sanitized) == 10 {
			break
		}
	}
	return sanitized
}
