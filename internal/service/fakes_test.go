package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"burrito-analytics/internal/client"
	"burrito-analytics/internal/config"
	"burrito-analytics/internal/model"
	"burrito-analytics/internal/stream"
)

func testConfig() *config.Config {
	return &config.Config{
		PageSize:           1000,
		SnapshotTTL:        time.Hour,
		TimeBucket:         "day",
		EnableIntelligence: true,
		RequestStream:      "analytics:intelligence:request:v1",
		ResultStream:       "analytics:intelligence:result:v1",
		DLQStream:          "analytics:intelligence:dlq:v1",
		ConsumerGroup:      "analytics",
		ResultBatchSize:    20,
		ResultBlock:        100 * time.Millisecond,
		PendingTimeout:     time.Minute,
		ProducerService:    "burrito-analytics",
	}
}

// fakeRepo is an in-memory SnapshotRepo. ResolveAnalysis reuses the same
// conditional transition as the production repository, so the idempotency
// tests exercise the real no-op semantics.
type fakeRepo struct {
	mu        sync.Mutex
	snapshots map[string]*model.Snapshot
	upserts   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{snapshots: make(map[string]*model.Snapshot)}
}

func (r *fakeRepo) put(snapshot *model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snapshot.ID.Hex()] = snapshot
}

func (r *fakeRepo) FindByKey(_ context.Context, formID, windowKey string) (*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snapshot := range r.snapshots {
		if snapshot.FormID == formID && snapshot.WindowKey == windowKey {
			return cloneSnapshot(snapshot), nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[id]
	if !ok {
		return nil, nil
	}
	return cloneSnapshot(snapshot), nil
}

func (r *fakeRepo) Upsert(_ context.Context, formID, windowKey string, payload model.SnapshotPayload) (*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++

	id := primitive.NewObjectID()
	for _, existing := range r.snapshots {
		if existing.FormID == formID && existing.WindowKey == windowKey {
			id = existing.ID
			break
		}
	}
	snapshot := &model.Snapshot{ID: id, SnapshotPayload: payload}
	r.snapshots[id.Hex()] = snapshot
	return cloneSnapshot(snapshot), nil
}

func (r *fakeRepo) MarkAnalysisPending(_ context.Context, snapshotID, questionID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[snapshotID]
	if !ok {
		return nil
	}
	question := snapshot.Question(questionID)
	if question == nil || question.Text == nil {
		return nil
	}
	question.Text.AnalysisStatus = model.AnalysisPending
	question.Text.AnalysisHash = hash
	question.Text.AnalysisError = ""
	return nil
}

func (r *fakeRepo) ResolveAnalysis(_ context.Context, snapshotID, questionID, hash string, res model.AnalysisResolution) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[snapshotID]
	if !ok {
		return false, nil
	}
	question := snapshot.Question(questionID)
	if question == nil {
		return false, nil
	}
	next, outcome := model.ResolveText(question.Text, hash, res)
	if !outcome.Applied() {
		return false, nil
	}
	question.Text = &next
	return true, nil
}

func (r *fakeRepo) FindStalePending(_ context.Context, cutoff time.Time) ([]*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []*model.Snapshot
	for _, snapshot := range r.snapshots {
		if snapshot.GeneratedAt.After(cutoff) {
			continue
		}
		for _, question := range snapshot.Questions {
			if question.Text != nil && question.Text.AnalysisStatus == model.AnalysisPending {
				stale = append(stale, cloneSnapshot(snapshot))
				break
			}
		}
	}
	return stale, nil
}

func (r *fakeRepo) question(t *testing.T, snapshotID, questionID string) model.QuestionAnalytics {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[snapshotID]
	if !ok {
		t.Fatalf("snapshot %s not found", snapshotID)
	}
	question := snapshot.Question(questionID)
	if question == nil {
		t.Fatalf("question %s not found", questionID)
	}
	return *question
}

func cloneSnapshot(s *model.Snapshot) *model.Snapshot {
	c := *s
	c.Questions = make([]model.QuestionAnalytics, len(s.Questions))
	for i, q := range s.Questions {
		if q.Rating != nil {
			rating := *q.Rating
			q.Rating = &rating
		}
		if q.Text != nil {
			text := *q.Text
			q.Text = &text
		}
		c.Questions[i] = q
	}
	return &c
}

// fakeStream records published envelopes, DLQ entries and acks.
type fakeStream struct {
	mu         sync.Mutex
	requests   []stream.Envelope
	dlq        []stream.DLQEntry
	acks       []string
	publishErr error
}

func (s *fakeStream) PublishRequest(_ context.Context, env stream.Envelope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return "", s.publishErr
	}
	s.requests = append(s.requests, env)
	return "1-0", nil
}

func (s *fakeStream) PublishDLQ(_ context.Context, entry stream.DLQEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, entry)
	return "1-0", nil
}

func (s *fakeStream) EnsureResultGroup(context.Context) error { return nil }

func (s *fakeStream) ReadResults(context.Context, string, int, time.Duration) ([]stream.Message, error) {
	return nil, nil
}

func (s *fakeStream) AckResult(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, id)
	return nil
}

func (s *fakeStream) RequestStream() string { return "analytics:intelligence:request:v1" }
func (s *fakeStream) ResultStream() string  { return "analytics:intelligence:result:v1" }
func (s *fakeStream) DLQStream() string     { return "analytics:intelligence:dlq:v1" }

func (s *fakeStream) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// fakeForms serves one form and counts lookups.
type fakeForms struct {
	mu    sync.Mutex
	form  *model.Form
	calls int
}

func (f *fakeForms) GetForm(_ context.Context, formID string) (*model.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.form == nil || f.form.ID != formID {
		return nil, client.ErrNotFound
	}
	return f.form, nil
}

func (f *fakeForms) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEvals pages through a fixed response set and counts queries.
type fakeEvals struct {
	mu          sync.Mutex
	evaluations []*model.Evaluation
	calls       int
}

func (f *fakeEvals) Query(_ context.Context, _ client.EvaluationFilter, paging client.Paging) ([]*model.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if paging.Offset >= len(f.evaluations) {
		return nil, nil
	}
	end := paging.Offset + paging.Limit
	if end > len(f.evaluations) {
		end = len(f.evaluations)
	}
	return f.evaluations[paging.Offset:end], nil
}

func (f *fakeEvals) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStatus collects status-changed events.
type fakeStatus struct {
	mu     sync.Mutex
	events []model.TextAnalysisStatusEvent
}

func (f *fakeStatus) PublishStatusChanged(_ context.Context, event model.TextAnalysisStatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStatus) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seedSnapshot(repo *fakeRepo, generatedAt time.Time, hash string) *model.Snapshot {
	snapshot := &model.Snapshot{
		ID: primitive.NewObjectID(),
		SnapshotPayload: model.SnapshotPayload{
			FormID:         "form-1",
			WindowKey:      "all-time",
			GeneratedAt:    generatedAt,
			StaleAt:        generatedAt.Add(time.Hour),
			TotalResponses: 2,
			Questions: []model.QuestionAnalytics{{
				QuestionID:    "q-text",
				Label:         "What could we improve?",
				Type:          model.QuestionText,
				AnsweredCount: 2,
				Text: &model.TextStats{
					ResponseCount:  2,
					TopIdeas:       []model.TextIdea{},
					AnalysisStatus: model.AnalysisPending,
					AnalysisHash:   hash,
				},
			}},
		},
	}
	repo.put(snapshot)
	return snapshot
}
