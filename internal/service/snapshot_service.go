package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"burrito-analytics/internal/client"
	"burrito-analytics/internal/config"
	"burrito-analytics/internal/engine"
	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/repository"
)

// SnapshotService serves cached analytics snapshots, recomputing them from
// upstream data when stale and kicking off asynchronous text enrichment.
type SnapshotService struct {
	repo        repository.SnapshotRepo
	forms       client.FormsClient
	evaluations client.EvaluationsClient
	publisher   *Publisher
	cfg         *config.Config
	log         *logger.Logger
	now         func() time.Time
}

// NewSnapshotService creates a new snapshot service. publisher may be nil
// when enrichment is disabled.
func NewSnapshotService(
	repo repository.SnapshotRepo,
	forms client.FormsClient,
	evaluations client.EvaluationsClient,
	publisher *Publisher,
	cfg *config.Config,
	log *logger.Logger,
) *SnapshotService {
	return &SnapshotService{
		repo:        repo,
		forms:       forms,
		evaluations: evaluations,
		publisher:   publisher,
		cfg:         cfg,
		log:         log.With("service", "snapshot"),
		now:         time.Now,
	}
}

// GetSnapshot returns the cached snapshot for (formID, window) when it is
// still fresh, otherwise recomputes it from upstream data. A failed
// recomputation never overwrites the previously cached document.
func (s *SnapshotService) GetSnapshot(ctx context.Context, formID string, window *model.Window, forceRefresh bool) (*model.Snapshot, error) {
	if formID == "" {
		return nil, ErrFormIDRequired
	}

	window = model.NormalizeWindow(window)
	windowKey := model.WindowKey(window)
	now := s.now()

	if !forceRefresh {
		cached, err := s.repo.FindByKey(ctx, formID, windowKey)
		if err != nil {
			return nil, fmt.Errorf("load cached snapshot: %w", err)
		}
		if cached != nil && cached.StaleAt.After(now) {
			return cached, nil
		}
	}

	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}

	evaluations, err := s.fetchEvaluations(ctx, formID, window)
	if err != nil {
		return nil, err
	}

	payload, textInputs := engine.Build(form, evaluations, window, windowKey, now, engine.Options{
		SnapshotTTL:        s.cfg.SnapshotTTL,
		TimeBucket:         s.cfg.TimeBucket,
		EnableIntelligence: s.cfg.EnableIntelligence,
	})

	saved, err := s.repo.Upsert(ctx, formID, windowKey, payload)
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if s.cfg.EnableIntelligence && len(textInputs) > 0 && s.publisher != nil {
		// Enrichment is fully decoupled from the read path; PENDING is a
		// valid, immediately returnable state.
		go s.publisher.Dispatch(context.WithoutCancel(ctx), saved, textInputs)
	}

	return saved, nil
}

// RefreshSnapshot recomputes the snapshot regardless of staleness.
func (s *SnapshotService) RefreshSnapshot(ctx context.Context, formID string, window *model.Window) (*model.Snapshot, error) {
	return s.GetSnapshot(ctx, formID, window, true)
}

// fetchEvaluations pages through the full response set, requesting fixed-size
// pages at increasing offsets until a short page comes back.
func (s *SnapshotService) fetchEvaluations(ctx context.Context, formID string, window *model.Window) ([]*model.Evaluation, error) {
	filter := client.EvaluationFilter{FormID: formID}
	if window != nil {
		filter.From = window.From
		filter.To = window.To
	}

	var all []*model.Evaluation
	offset := 0
	for {
		page, err := s.evaluations.Query(ctx, filter, client.Paging{Limit: s.cfg.PageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < s.cfg.PageSize {
			break
		}
		offset += s.cfg.PageSize
	}
	return all, nil
}
