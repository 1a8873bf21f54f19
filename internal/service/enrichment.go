package service

import (
	"burrito-analytics/internal/config"
	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/repository"
	"burrito-analytics/internal/stream"
)

// EnrichmentPipeline bundles the publisher, consumer and reaper around one
// shared in-flight set.
type EnrichmentPipeline struct {
	Publisher *Publisher
	Consumer  *Consumer
	Reaper    *Reaper
}

// NewEnrichmentPipeline wires the enrichment components together.
func NewEnrichmentPipeline(
	repo repository.SnapshotRepo,
	streamClient stream.Client,
	status StatusPublisher,
	cfg *config.Config,
	log *logger.Logger,
) *EnrichmentPipeline {
	inFlight := newInFlightSet()
	reaper := NewReaper(repo, status, inFlight, cfg.PendingTimeout, log)
	return &EnrichmentPipeline{
		Publisher: NewPublisher(repo, streamClient, inFlight, cfg, log),
		Consumer:  NewConsumer(repo, streamClient, status, inFlight, reaper, cfg, log),
		Reaper:    reaper,
	}
}
