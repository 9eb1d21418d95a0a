package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/newsdesk/backend/internal/config"
	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/logger"
	"github.com/DeafMist/newsdesk/backend/internal/metrics"
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, elasticsearch.Indices(cfg.Indices), log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	if err := waitForStore(ctx, log, esClient, connectAttempts, 2*time.Second); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("search_log_max_age", cfg.MaxAge),
		slog.Duration("archive_max_age", cfg.ArchiveMaxAge),
	)

	// Run immediately on start, but don't fail if ES is temporarily unavailable
	runOnce(ctx, log, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

const (
	connectAttempts = 10
	maxConnectDelay = 30 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

// waitForStore pings until the store answers, doubling delay between attempts up to maxConnectDelay.
func waitForStore(ctx context.Context, log *slog.Logger, store pinger, attempts int, delay time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, maxConnectDelay)
	}
	return fmt.Errorf("elasticsearch unreachable after %d attempts: %w", attempts, err)
}

type purger interface {
	DeleteSearchLogsOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	DeleteArchivedOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// runOnce purges old search logs and long-archived articles. A failing
// collection does not stop the other one.
func runOnce(ctx context.Context, log *slog.Logger, store purger, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	jobs := []struct {
		collection string
		run        func() (int64, error)
	}{
		{"search_logs", func() (int64, error) {
			return store.DeleteSearchLogsOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
		}},
		{"archived_articles", func() (int64, error) {
			return store.DeleteArchivedOlderThan(subCtx, cfg.ArchiveMaxAge, cfg.BatchSize)
		}},
	}

	for _, job := range jobs {
		deleted, err := job.run()
		if err != nil {
			log.Warn("retention run failed (will retry on next interval)",
				slog.String("collection", job.collection),
				slog.Any("err", err),
			)
			continue
		}

		metrics.RetentionDeleted.WithLabelValues(job.collection).Add(float64(deleted))
		if deleted > 0 {
			log.Info("retention run completed",
				slog.String("collection", job.collection),
				slog.Int64("deleted", deleted),
			)
		} else {
			log.Debug("retention run completed, no old documents found", slog.String("collection", job.collection))
		}
	}
}
