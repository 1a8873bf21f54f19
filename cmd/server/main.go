package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"burrito-analytics/internal/client"
	"burrito-analytics/internal/config"
	"burrito-analytics/internal/pkg/logger"
	"burrito-analytics/internal/repository"
	"burrito-analytics/internal/service"
	"burrito-analytics/internal/stream"
	"burrito-analytics/internal/transport/rest"
)

func main() {
	cfg := config.Load()

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	defer logg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logg.Fatal("failed to connect to MongoDB", "error", err)
	}
	defer mongoClient.Disconnect(context.Background())

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		logg.Fatal("failed to ping MongoDB", "error", err)
	}
	logg.Info("connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDatabase)
	if err := repository.EnsureSnapshotIndexes(ctx, db); err != nil {
		logg.Fatal("failed to ensure snapshot indexes", "error", err)
	}

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logg.Fatal("failed to ping Redis", "error", err)
	}
	logg.Info("connected to Redis")

	// Repositories and clients
	snapshotRepo := repository.NewSnapshotRepo(db)
	formsClient := client.NewFormsClient(cfg.FormsBaseURL, cfg.UpstreamTimeout, logg)
	evaluationsClient := client.NewEvaluationsClient(cfg.EvaluationsBaseURL, cfg.UpstreamTimeout, logg)
	streamClient := stream.NewRedisClient(rdb, cfg, logg)
	statusPublisher := service.NewRedisStatusPublisher(rdb, cfg.StatusChannel, logg)

	// Enrichment pipeline and snapshot service
	enrichment := service.NewEnrichmentPipeline(snapshotRepo, streamClient, statusPublisher, cfg, logg)
	snapshotSvc := service.NewSnapshotService(snapshotRepo, formsClient, evaluationsClient, enrichment.Publisher, cfg, logg)

	// Result consumer loop
	if cfg.EnableIntelligence {
		go func() {
			if err := enrichment.Consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logg.Error("result consumer stopped", "error", err)
			}
		}()
	} else {
		logg.Info("intelligence enrichment disabled")
	}

	// HTTP server
	container := &rest.Container{
		SnapshotService: snapshotSvc,
		Log:             logg,
	}
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: rest.NewRouter(container),
	}

	go func() {
		logg.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("ListenAndServe failed", "error", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server forced to shutdown", "error", err)
	}
	logg.Info("server exited")
}
