// Package scheduler runs the periodic fetch, analysis and cache jobs.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DeafMist/newsdesk/backend/internal/ingest"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/provider"
)

const (
	FetchSpec    = "0 * * * *"
	AnalysisSpec = "0 */2 * * *"
	CleanupSpec  = "0 2 * * *"

	analysisBatch = 50
	rssLimit      = 20
	jobTimeout    = 10 * time.Minute
)

// Fetcher pulls news into the store.
type Fetcher interface {
	Fetch(ctx context.Context, category string, limit int, force bool) ingest.Result
	Import(ctx context.Context, p provider.Provider, category string, limit int) ingest.Result
}

// ArticleLister finds articles still waiting for analysis.
type ArticleLister interface {
	Unanalyzed(ctx context.Context, limit int) ([]models.Article, error)
}

// Enqueuer schedules background analysis of articles.
type Enqueuer interface {
	Publish(ctx context.Context, force bool, articleIDs ...string) error
}

// CacheClearer drops cached reads.
type CacheClearer interface {
	ClearCache() int
}

// Config selects what the jobs cover.
type Config struct {
	Timezone   string
	Categories []string
	FetchLimit int
}

// Deps are the collaborators of the jobs. RSS may be nil.
type Deps struct {
	Fetcher  Fetcher
	RSS      provider.Provider
	Articles ArticleLister
	Queue    Enqueuer
	Cache    CacheClearer
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	cfg  Config
	deps Deps
	log  *slog.Logger
	base context.Context
}

// New registers the hourly fetch, the two-hourly analysis and the nightly
// cache cleanup in cfg.Timezone. Jobs derive their contexts from ctx.
func New(ctx context.Context, cfg Config, deps Deps, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		cfg:  cfg,
		deps: deps,
		log:  logger,
		base: ctx,
	}

	jobs := []struct {
		spec string
		run  func()
	}{
		{FetchSpec, func() { s.RunFetch(s.base) }},
		{AnalysisSpec, func() { s.RunAnalysis(s.base) }},
		{CleanupSpec, func() { s.RunCleanup() }},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return nil, fmt.Errorf("add cron job %q: %w", j.spec, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop prevents new runs and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// Entries lists the registered schedules.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// RunFetch fetches every configured category, then imports RSS feeds.
func (s *Scheduler) RunFetch(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	total := 0
	for _, category := range s.cfg.Categories {
		res := s.deps.Fetcher.Fetch(ctx, category, s.cfg.FetchLimit, false)
		total += len(res.Articles)
		s.log.Info("scheduled fetch",
			slog.String("category", category),
			slog.Bool("success", res.Success),
			slog.String("source", res.Source),
			slog.Int("added", len(res.Articles)),
		)
	}

	if s.deps.RSS != nil {
		res := s.deps.Fetcher.Import(ctx, s.deps.RSS, "", rssLimit)
		total += len(res.Articles)
		if !res.Success {
			s.log.Warn("rss import", slog.String("message", res.Message))
		}
	}
	s.log.Info("scheduled fetch completed", slog.Int("added", total))
}

// RunAnalysis queues articles that carry no sentiment yet.
func (s *Scheduler) RunAnalysis(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	articles, err := s.deps.Articles.Unanalyzed(ctx, analysisBatch)
	if err != nil {
		s.log.Error("list unanalyzed articles", slog.Any("err", err))
		return
	}
	if len(articles) == 0 {
		s.log.Debug("no article waiting for analysis")
		return
	}

	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}
	if err := s.deps.Queue.Publish(ctx, false, ids...); err != nil {
		s.log.Error("enqueue analysis", slog.Int("articles", len(ids)), slog.Any("err", err))
		return
	}
	s.log.Info("analysis queued", slog.Int("articles", len(ids)))
}

// RunCleanup clears the read cache.
func (s *Scheduler) RunCleanup() {
	n := s.deps.Cache.ClearCache()
	s.log.Info("scheduled cleanup", slog.Int("entries", n))
}
