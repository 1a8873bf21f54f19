package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"burrito-analytics/internal/engine"
	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
)

func pendingInput(hash string) engine.TextInput {
	return engine.TextInput{
		QuestionID:   "q-text",
		QuestionText: "What could we improve?",
		Answers:      []string{"better docs", "faster setup"},
		Hash:         hash,
	}
}

func TestDispatchPublishesCorrelatedRequest(t *testing.T) {
	repo := newFakeRepo()
	streamClient := &fakeStream{}
	publisher := NewPublisher(repo, streamClient, newInFlightSet(), testConfig(), logger.NewNop())
	snapshot := seedSnapshot(repo, time.Now().UTC(), "h1")

	publisher.Dispatch(context.Background(), snapshot, []engine.TextInput{pendingInput("h1")})

	if streamClient.requestCount() != 1 {
		t.Fatalf("requests = %d, want 1", streamClient.requestCount())
	}

	var event model.IntelligenceRequestEvent
	if err := json.Unmarshal([]byte(streamClient.requests[0].Payload), &event); err != nil {
		t.Fatalf("request payload is not valid JSON: %v", err)
	}
	if event.SnapshotID != snapshot.ID.Hex() || event.FormID != "form-1" ||
		event.WindowKey != "all-time" || event.QuestionID != "q-text" || event.AnalysisHash != "h1" {
		t.Errorf("bad correlation fields: %+v", event)
	}
	if len(event.Answers) != 2 {
		t.Errorf("answers = %v", event.Answers)
	}
	if streamClient.requests[0].Metadata.ProducerService != "burrito-analytics" {
		t.Errorf("producerService = %q", streamClient.requests[0].Metadata.ProducerService)
	}

	question := repo.question(t, snapshot.ID.Hex(), "q-text")
	if question.Text.AnalysisStatus != model.AnalysisPending || question.Text.AnalysisHash != "h1" {
		t.Errorf("stored question not marked pending: %+v", question.Text)
	}
}

func TestDispatchDeduplicatesInFlightWork(t *testing.T) {
	repo := newFakeRepo()
	streamClient := &fakeStream{}
	publisher := NewPublisher(repo, streamClient, newInFlightSet(), testConfig(), logger.NewNop())
	snapshot := seedSnapshot(repo, time.Now().UTC(), "h1")

	inputs := []engine.TextInput{pendingInput("h1")}
	publisher.Dispatch(context.Background(), snapshot, inputs)
	publisher.Dispatch(context.Background(), snapshot, inputs)

	if streamClient.requestCount() != 1 {
		t.Errorf("requests = %d, want 1 (second dispatch must dedupe)", streamClient.requestCount())
	}
}

func TestDispatchNewHashIsNotDeduplicated(t *testing.T) {
	repo := newFakeRepo()
	streamClient := &fakeStream{}
	publisher := NewPublisher(repo, streamClient, newInFlightSet(), testConfig(), logger.NewNop())
	snapshot := seedSnapshot(repo, time.Now().UTC(), "h1")

	publisher.Dispatch(context.Background(), snapshot, []engine.TextInput{pendingInput("h1")})
	publisher.Dispatch(context.Background(), snapshot, []engine.TextInput{pendingInput("h2")})

	if streamClient.requestCount() != 2 {
		t.Errorf("requests = %d, want 2 (changed answer set is new work)", streamClient.requestCount())
	}
}

func TestDispatchPublishFailureFailsQuestionAndAllowsRetry(t *testing.T) {
	repo := newFakeRepo()
	streamClient := &fakeStream{publishErr: errors.New("stream unavailable")}
	publisher := NewPublisher(repo, streamClient, newInFlightSet(), testConfig(), logger.NewNop())
	snapshot := seedSnapshot(repo, time.Now().UTC(), "h1")

	publisher.Dispatch(context.Background(), snapshot, []engine.TextInput{pendingInput("h1")})

	if streamClient.requestCount() != 0 {
		t.Fatalf("requests = %d, want 0", streamClient.requestCount())
	}
	question := repo.question(t, snapshot.ID.Hex(), "q-text")
	if question.Text.AnalysisStatus != model.AnalysisFailed {
		t.Errorf("status = %s, want FAILED", question.Text.AnalysisStatus)
	}
	if question.Text.AnalysisError != "failed to publish analysis request" {
		t.Errorf("analysisError = %q", question.Text.AnalysisError)
	}

	// The key was untracked, so once the stream recovers a later
	// recomputation dispatches the same work again.
	streamClient.mu.Lock()
	streamClient.publishErr = nil
	streamClient.mu.Unlock()

	publisher.Dispatch(context.Background(), snapshot, []engine.TextInput{pendingInput("h1")})
	if streamClient.requestCount() != 1 {
		t.Errorf("requests after retry = %d, want 1", streamClient.requestCount())
	}
	question = repo.question(t, snapshot.ID.Hex(), "q-text")
	if question.Text.AnalysisStatus != model.AnalysisPending {
		t.Errorf("status after retry = %s, want PENDING", question.Text.AnalysisStatus)
	}
}
