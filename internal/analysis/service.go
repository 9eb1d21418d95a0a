// Package analysis runs the heuristic article analysis and keeps its
// append-only history in the store.
package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/cache"
	"github.com/DeafMist/newsdesk/backend/internal/metrics"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
)

const (
	batchChunkSize      = 5
	defaultTrendDays    = 30
	maxTrendDays        = 365
	defaultKeywordLimit = 20
	maxKeywordLimit     = 50
	keywordWindow       = 30 * 24 * time.Hour
	slowProbe           = time.Second
)

// Store is the persistence the service needs.
type Store interface {
	Ping(ctx context.Context) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	UpdateArticle(ctx context.Context, id string, upd models.ArticleUpdate) error
	IndexAnalysis(ctx context.Context, a models.Analysis) error
	LatestAnalysis(ctx context.Context, articleID string) (*models.Analysis, error)
	AnalysisStats(ctx context.Context) (*models.AnalysisStats, error)
	SentimentTrends(ctx context.Context, category string, since time.Time) (*models.SentimentTrends, error)
	PopularKeywords(ctx context.Context, category string, since time.Time, limit int) ([]string, error)
}

// Request is the input of a single analysis.
type Request struct {
	ArticleID string
	Title     string
	Content   string
	Category  string
	Source    string
	URL       string
}

// Health is the outcome of a probe analysis.
type Health struct {
	Status       string    `json:"status"`
	LastCheck    time.Time `json:"lastCheck"`
	ResponseTime string    `json:"responseTime,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Service coordinates the analyzer and the store.
type Service struct {
	store    Store
	analyzer *processing.Analyzer
	log      *slog.Logger
	now      func() time.Time
	newID    func() string

	cache       *cache.Cache
	analysisTTL time.Duration
	statsTTL    time.Duration
	onUpdate    func(articleID, category string)
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCache caches latest analyses and stats.
func WithCache(c *cache.Cache, analysisTTL, statsTTL time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.analysisTTL = analysisTTL
		s.statsTTL = statsTTL
	}
}

// WithUpdateHook registers fn to run after analysis results are written onto
// an article, once per category the article was listed under.
func WithUpdateHook(fn func(articleID, category string)) Option {
	return func(s *Service) { s.onUpdate = fn }
}

// New builds a Service. A nil analyzer selects the default lexicon.
func New(store Store, analyzer *processing.Analyzer, logger *slog.Logger, opts ...Option) *Service {
	if analyzer == nil {
		analyzer = processing.NewAnalyzer(nil)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		store:    store,
		analyzer: analyzer,
		log:      logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeArticle runs every heuristic over the article and appends the record.
// A persistence failure yields an unsuccessful record rather than an error.
func (s *Service) AnalyzeArticle(ctx context.Context, req Request) (models.Analysis, error) {
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		return models.Analysis{}, apperr.Validation("title or content is required")
	}

	start := s.now()
	res := s.analyzer.Analyze(processing.ReliabilityInput{
		Title:   req.Title,
		Content: req.Content,
		Source:  req.Source,
		URL:     req.URL,
	})

	category := req.Category
	if category == "" {
		category = res.Classification.Category
	}
	reliability := res.Reliability
	classification := res.Classification

	record := models.Analysis{
		ID:             s.newID(),
		ArticleID:      req.ArticleID,
		Category:       category,
		Summary:        res.Summary,
		KeyPoints:      res.KeyPoints,
		Keywords:       res.Keywords,
		Sentiment:      res.Sentiment.Label,
		SentimentScore: res.Sentiment.Score,
		Confidence:     processing.AnalysisConfidence,
		RelatedTopics:  res.RelatedTopics,
		Reliability:    &reliability,
		Classification: &classification,
		ProcessedAt:    s.now().UTC(),
		Success:        true,
	}
	elapsed := s.now().Sub(start)
	record.ProcessingTime = elapsed.Milliseconds()

	if err := s.store.IndexAnalysis(ctx, record); err != nil {
		s.log.Error("persist analysis", slog.String("article_id", req.ArticleID), slog.Any("err", err))
		metrics.RecordAnalysis(false, elapsed)
		return failed(req.ArticleID, record.ProcessedAt, record.ProcessingTime), nil
	}

	metrics.RecordAnalysis(true, elapsed)
	s.invalidate(req.ArticleID)
	return record, nil
}

// ProcessArticle analyses a stored article and writes the results back onto it.
// Without force an existing successful analysis is reused and reused is true.
func (s *Service) ProcessArticle(ctx context.Context, articleID string, force bool) (a models.Analysis, reused bool, err error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return models.Analysis{}, false, err
	}

	if !force {
		latest, err := s.store.LatestAnalysis(ctx, articleID)
		if err != nil {
			return models.Analysis{}, false, fmt.Errorf("load latest analysis: %w", err)
		}
		if latest != nil {
			if article.Sentiment == "" {
				if err := s.writeBack(ctx, article, *latest); err != nil {
					return models.Analysis{}, false, err
				}
			}
			return *latest, true, nil
		}
	}

	record, err := s.AnalyzeArticle(ctx, Request{
		ArticleID: article.ID,
		Title:     article.Title,
		Content:   firstNonEmpty(article.Content, article.Description),
		Category:  article.Category,
		Source:    article.Source.Name,
		URL:       article.URL,
	})
	if err != nil || !record.Success {
		return record, false, err
	}

	if err := s.writeBack(ctx, article, record); err != nil {
		return models.Analysis{}, false, err
	}
	return record, false, nil
}

func (s *Service) writeBack(ctx context.Context, article *models.Article, a models.Analysis) error {
	sentiment := a.Sentiment
	upd := models.ArticleUpdate{
		Sentiment: &sentiment,
		Keywords:  a.Keywords,
		UpdatedAt: s.now().UTC(),
	}
	if a.Reliability != nil {
		score := a.Reliability.Score
		upd.Popularity = &score
	}
	if article.Summary == "" && a.Summary != "" {
		summary := a.Summary
		upd.Summary = &summary
	}
	if article.Category == "" && a.Classification != nil {
		category := a.Classification.Category
		upd.Category = &category
	}

	if err := s.store.UpdateArticle(ctx, article.ID, upd); err != nil {
		return fmt.Errorf("write back analysis: %w", err)
	}

	if s.onUpdate != nil {
		s.onUpdate(article.ID, article.Category)
		if upd.Category != nil {
			s.onUpdate(article.ID, *upd.Category)
		}
	}
	return nil
}

// Latest returns the current analysis of an article.
func (s *Service) Latest(ctx context.Context, articleID string) (*models.Analysis, error) {
	key := analysisKey(articleID)
	if s.cache != nil {
		if a, ok := cache.Typed[*models.Analysis](s.cache, key); ok {
			metrics.RecordCacheLookup(true)
			return a, nil
		}
		metrics.RecordCacheLookup(false)
	}

	a, err := s.store.LatestAnalysis(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load latest analysis: %w", err)
	}
	if a == nil {
		return nil, apperr.NotFound("analysis not found")
	}
	if s.cache != nil {
		s.cache.Set(key, a, s.analysisTTL)
	}
	return a, nil
}

// BatchAnalyze processes articles in concurrent chunks, preserving input order.
// Missing or failing articles are skipped.
func (s *Service) BatchAnalyze(ctx context.Context, articleIDs []string, force bool) ([]models.Analysis, error) {
	out := make([]models.Analysis, 0, len(articleIDs))
	for start := 0; start < len(articleIDs); start += batchChunkSize {
		chunk := articleIDs[start:min(start+batchChunkSize, len(articleIDs))]
		results := make([]*models.Analysis, len(chunk))

		g, gctx := errgroup.WithContext(ctx)
		for i, id := range chunk {
			i, id := i, id
			g.Go(func() error {
				a, _, err := s.ProcessArticle(gctx, id, force)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					if !apperr.IsNotFound(err) {
						s.log.Warn("batch analysis", slog.String("article_id", id), slog.Any("err", err))
					}
					return nil
				}
				results[i] = &a
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("batch analysis: %w", err)
		}

		for _, a := range results {
			if a != nil {
				out = append(out, *a)
			}
		}
	}
	return out, nil
}

// Stats summarises the analysis history.
func (s *Service) Stats(ctx context.Context) (*models.AnalysisStats, error) {
	const key = "ai:stats"
	if s.cache != nil {
		if st, ok := cache.Typed[*models.AnalysisStats](s.cache, key); ok {
			metrics.RecordCacheLookup(true)
			return st, nil
		}
		metrics.RecordCacheLookup(false)
	}

	st, err := s.store.AnalysisStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(key, st, s.statsTTL)
	}
	return st, nil
}

// SentimentTrends buckets sentiments per day over the last days.
func (s *Service) SentimentTrends(ctx context.Context, category string, days int) (*models.SentimentTrends, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	days = min(days, maxTrendDays)

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	trends, err := s.store.SentimentTrends(ctx, category, since)
	if err != nil {
		return nil, fmt.Errorf("sentiment trends: %w", err)
	}
	return trends, nil
}

// PopularKeywords lists the most frequent keywords of the last 30 days.
func (s *Service) PopularKeywords(ctx context.Context, category string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultKeywordLimit
	}
	limit = min(limit, maxKeywordLimit)

	keywords, err := s.store.PopularKeywords(ctx, category, s.now().Add(-keywordWindow), limit)
	if err != nil {
		return nil, fmt.Errorf("popular keywords: %w", err)
	}
	return keywords, nil
}

// CheckHealth runs a probe analysis and pings the store.
func (s *Service) CheckHealth(ctx context.Context) Health {
	start := s.now()
	res := s.analyzer.Analyze(processing.ReliabilityInput{
		Title:   "Health check",
		Content: "This is an excellent test article used to verify that the analysis pipeline works.",
	})

	h := Health{LastCheck: start.UTC()}
	if len(res.Keywords) == 0 {
		h.Status = "unhealthy"
		h.Error = "probe analysis returned no keywords"
		return h
	}
	if err := s.store.Ping(ctx); err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		return h
	}

	h.Status = "healthy"
	h.ResponseTime = "normal"
	if s.now().Sub(start) > slowProbe {
		h.ResponseTime = "slow"
	}
	return h
}

// DetectFakeNews scores reliability without persisting anything.
func (s *Service) DetectFakeNews(in processing.ReliabilityInput) models.Reliability {
	return s.analyzer.Reliability(in)
}

// Classify assigns a category without persisting anything.
func (s *Service) Classify(title, content string) models.Classification {
	return s.analyzer.Classify(title, content)
}

func (s *Service) invalidate(articleID string) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(analysisKey(articleID), "ai:stats")
}

func failed(articleID string, at time.Time, elapsedMs int64) models.Analysis {
	return models.Analysis{
		ArticleID:      articleID,
		KeyPoints:      []string{},
		Keywords:       []string{},
		RelatedTopics:  []string{},
		Sentiment:      models.SentimentNeutral,
		SentimentScore: 0.5,
		ProcessedAt:    at,
		ProcessingTime: elapsedMs,
	}
}

func analysisKey(articleID string) string {
	return "analysis:" + articleID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
