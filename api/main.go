package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/newsdesk/backend/internal/analysis"
	"github.com/DeafMist/newsdesk/backend/internal/cache"
	"github.com/DeafMist/newsdesk/backend/internal/config"
	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/ingest"
	"github.com/DeafMist/newsdesk/backend/internal/logger"
	"github.com/DeafMist/newsdesk/backend/internal/news"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
	"github.com/DeafMist/newsdesk/backend/internal/provider"
	"github.com/DeafMist/newsdesk/backend/internal/queue"
	"github.com/DeafMist/newsdesk/backend/internal/scheduler"
)

const rssTimeout = 15 * time.Second

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
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
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := esClient.EnsureIndices(initCtx); err != nil {
		// Missing indices are retried on the next start.
		log.Warn("ensure indices", slog.Any("err", err))
	}
	cancel()

	lexicon, err := processing.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		log.Error("load lexicon", slog.Any("err", err))
		os.Exit(1)
	}
	analyzer := processing.NewAnalyzer(lexicon)

	publisher := queue.NewPublisher(cfg.Brokers, cfg.AnalysisTopic)
	defer publisher.Close()

	readCache := cache.New(cfg.CacheCapacity)
	newsSvc := news.New(esClient, readCache, cfg.CacheTTL, log, news.WithEnqueuer(publisher))
	aiSvc := analysis.New(esClient, analyzer, log,
		analysis.WithCache(readCache, cfg.CacheTTL.Analysis, cfg.CacheTTL.Stats),
		analysis.WithUpdateHook(newsSvc.InvalidateArticle))

	providers := buildProviders(ctx, cfg, log)
	fetcher := ingest.New(esClient, analyzer, providers, log,
		ingest.WithWindow(cfg.FetchWindow),
		ingest.WithEnqueuer(publisher),
		ingest.WithInsertHook(newsSvc.InvalidateCategory),
	)

	if cfg.CronEnabled {
		deps := scheduler.Deps{
			Fetcher:  fetcher,
			Articles: esClient,
			Queue:    publisher,
			Cache:    newsSvc,
		}
		if feeds, err := provider.LoadFeeds(cfg.FeedsPath); err != nil {
			log.Warn("rss disabled", slog.Any("err", err))
		} else {
			deps.RSS = provider.NewRSS(feeds, rssTimeout, log)
		}

		sched, err := scheduler.New(ctx, scheduler.Config{
			Timezone:   cfg.CronTimezone,
			Categories: cfg.FetchCategories,
			FetchLimit: cfg.FetchLimit,
		}, deps, log)
		if err != nil {
			log.Error("init scheduler", slog.Any("err", err))
			os.Exit(1)
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	srv := &server{
		log:   log,
		cfg:   cfg,
		news:  newsSvc,
		ai:    aiSvc,
		fetch: fetcher,
		store: esClient,
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      3 * time.Minute,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.Int("providers", len(providers)),
			slog.Bool("cron", cfg.CronEnabled),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// buildProviders assembles the AI fallback chain. Providers without an API key are skipped.
func buildProviders(ctx context.Context, cfg *config.API, log *slog.Logger) []provider.Provider {
	var chain []provider.Provider
	if cfg.GeminiAPIKey != "" {
		g, err := provider.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout)
		if err != nil {
			log.Warn("gemini disabled", slog.Any("err", err))
		} else {
			chain = append(chain, g)
		}
	}
	if cfg.OpenAIAPIKey != "" {
		o, err := provider.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.OpenAITimeout)
		if err != nil {
			log.Warn("openai disabled", slog.Any("err", err))
		} else {
			chain = append(chain, o)
		}
	}
	if len(chain) == 0 {
		log.Warn("no AI provider configured, fetch-ai-news will report No Data")
	}
	return chain
}
