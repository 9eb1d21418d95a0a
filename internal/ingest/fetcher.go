// Package ingest pulls news from upstream providers into the store.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/metrics"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
	"github.com/DeafMist/newsdesk/backend/internal/provider"
)

const (
	// SourceNone is reported when no provider returned data.
	SourceNone = "No Data"

	DefaultWindow = time.Hour
	DefaultLimit  = 5

	// fetchBudget bounds a shared in-flight fetch independently of its callers.
	fetchBudget      = 2 * time.Minute
	untitled         = "Untitled"
	titleWords       = 12
	syntheticURLBase = "https://news.example.com/"
)

// Store is the persistence the fetcher needs.
type Store interface {
	LatestFetched(ctx context.Context, category string) (*models.Article, error)
	CreateArticle(ctx context.Context, a models.Article) error
	TouchFetchedAt(ctx context.Context, id string, at time.Time) error
}

// Enqueuer schedules background analysis of articles.
type Enqueuer interface {
	Publish(ctx context.Context, force bool, articleIDs ...string) error
}

// Result is the outcome of a fetch.
type Result struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Articles []models.Article `json:"articles"`
	Source   string           `json:"source"`
}

// Fetcher coordinates the fetch gate, the provider chain and insertion.
type Fetcher struct {
	store     Store
	analyzer  *processing.Analyzer
	providers []provider.Provider
	window    time.Duration
	log       *slog.Logger
	now       func() time.Time
	queue     Enqueuer
	onInsert  func(category string)

	group singleflight.Group
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithWindow sets how long fetched articles keep a category fresh.
func WithWindow(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithEnqueuer publishes inserted articles for background analysis.
func WithEnqueuer(q Enqueuer) Option {
	return func(f *Fetcher) { f.queue = q }
}

// WithInsertHook is called once per category that received new articles.
func WithInsertHook(fn func(category string)) Option {
	return func(f *Fetcher) { f.onInsert = fn }
}

// New builds a Fetcher trying providers in order.
func New(store Store, analyzer *processing.Analyzer, providers []provider.Provider, logger *slog.Logger, opts ...Option) *Fetcher {
	if analyzer == nil {
		analyzer = processing.NewAnalyzer(nil)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f := &Fetcher{
		store:     store,
		analyzer:  analyzer,
		providers: providers,
		window:    DefaultWindow,
		log:       logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ShouldFetch reports whether the category's newest article is older than the
// window. Lookup errors favour fetching.
func (f *Fetcher) ShouldFetch(ctx context.Context, category string) bool {
	latest, err := f.store.LatestFetched(ctx, category)
	if err != nil {
		f.log.Warn("check fetch gate", slog.String("category", category), slog.Any("err", err))
		return true
	}
	if latest == nil {
		return true
	}
	return f.now().Sub(latest.FetchedAt) > f.window
}

// Fetch pulls up to limit items for category through the provider chain and
// stores the new ones. Concurrent calls for the same category share one run.
func (f *Fetcher) Fetch(ctx context.Context, category string, limit int, force bool) Result {
	category = strings.ToLower(strings.TrimSpace(category))
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := category
	if force {
		key += "|force"
	}
	ch := f.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchBudget)
		defer cancel()
		return f.run(runCtx, category, limit, force), nil
	})

	select {
	case <-ctx.Done():
		return Result{Articles: []models.Article{}, Message: fmt.Sprintf("Erreur: %v", ctx.Err())}
	case res := <-ch:
		return res.Val.(Result)
	}
}

func (f *Fetcher) run(ctx context.Context, category string, limit int, force bool) Result {
	if !force && !f.ShouldFetch(ctx, category) {
		metrics.FetchOutcomes.WithLabelValues("gate", "suppressed").Inc()
		return Result{
			Articles: []models.Article{},
			Message:  "Les news ont déjà été récupérées il y a moins d'1h. Réessaie plus tard.",
		}
	}

	items, source := f.fetchChain(ctx, category, limit)
	added := f.ingest(ctx, category, source, items)

	return Result{
		Success:  true,
		Articles: added,
		Source:   source,
		Message:  fmt.Sprintf("%d nouvelle(s) news ajoutée(s) pour %q (source: %s)", len(added), category, source),
	}
}

// fetchChain tries each provider in order and returns the first success.
func (f *Fetcher) fetchChain(ctx context.Context, category string, limit int) ([]provider.RawArticle, string) {
	for _, p := range f.providers {
		items, err := p.Fetch(ctx, category, limit)
		if err != nil {
			metrics.FetchOutcomes.WithLabelValues(p.Name(), "error").Inc()
			f.log.Warn("provider failed", slog.String("provider", p.Name()), slog.String("category", category), slog.Any("err", err))
			continue
		}
		metrics.FetchOutcomes.WithLabelValues(p.Name(), "success").Inc()
		f.log.Info("provider fetched", slog.String("provider", p.Name()), slog.String("category", category), slog.Int("items", len(items)))
		return items, p.Name()
	}
	metrics.FetchOutcomes.WithLabelValues(SourceNone, "empty").Inc()
	return nil, SourceNone
}

// Import stores items read from p without consulting the gate. Items keep
// their own category when category is empty.
func (f *Fetcher) Import(ctx context.Context, p provider.Provider, category string, limit int) Result {
	items, err := p.Fetch(ctx, category, limit)
	if err != nil {
		metrics.FetchOutcomes.WithLabelValues(p.Name(), "error").Inc()
		return Result{Articles: []models.Article{}, Source: p.Name(), Message: fmt.Sprintf("Erreur: %v", err)}
	}
	metrics.FetchOutcomes.WithLabelValues(p.Name(), "success").Inc()

	added := f.ingest(ctx, category, p.Name(), items)
	return Result{
		Success:  true,
		Articles: added,
		Source:   p.Name(),
		Message:  fmt.Sprintf("%d nouvelle(s) news importée(s) (source: %s)", len(added), p.Name()),
	}
}

func (f *Fetcher) ingest(ctx context.Context, category, source string, items []provider.RawArticle) []models.Article {
	added := make([]models.Article, 0, len(items))
	touched := make(map[string]struct{})

	for _, it := range items {
		a := f.build(category, source, it)

		err := f.store.CreateArticle(ctx, a)
		switch {
		case err == nil:
			metrics.ArticlesIngested.WithLabelValues("inserted").Inc()
			added = append(added, a)
			touched[a.Category] = struct{}{}
		case apperr.IsConflict(err):
			metrics.ArticlesIngested.WithLabelValues("duplicate").Inc()
			f.log.Debug("article already exists", slog.String("id", a.ID), slog.String("title", a.Title))
			if err := f.store.TouchFetchedAt(ctx, a.ID, a.FetchedAt); err != nil {
				f.log.Warn("touch fetchedAt", slog.String("id", a.ID), slog.Any("err", err))
			}
		default:
			metrics.ArticlesIngested.WithLabelValues("failed").Inc()
			f.log.Error("create article", slog.String("id", a.ID), slog.Any("err", err))
		}
	}

	if f.onInsert != nil {
		for c := range touched {
			f.onInsert(c)
		}
	}
	if f.queue != nil && len(added) > 0 {
		ids := make([]string, 0, len(added))
		for _, a := range added {
			ids = append(ids, a.ID)
		}
		if err := f.queue.Publish(ctx, false, ids...); err != nil {
			f.log.Warn("enqueue analysis", slog.Int("articles", len(ids)), slog.Any("err", err))
		}
	}
	return added
}

// build applies defaults and the inline heuristics to a raw item.
func (f *Fetcher) build(category, source string, it provider.RawArticle) models.Article {
	now := f.now().UTC()

	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = processing.GenerateTitleFromText(firstNonEmpty(it.Description, it.Content), titleWords)
	}
	if title == "" {
		title = untitled
	}
	description := strings.TrimSpace(it.Description)
	content := strings.TrimSpace(it.Content)
	if content == "" {
		content = description
	}
	url := strings.TrimSpace(it.URL)
	if url == "" {
		url = syntheticURLBase + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	itemSource := strings.TrimSpace(it.Source)
	if itemSource == "" {
		itemSource = source
	}
	if category == "" {
		category = strings.ToLower(it.Category)
	}
	published := it.PublishedAt
	if published.IsZero() {
		published = now
	}

	hash := processing.DedupHash(url, title)
	res := f.analyzer.Analyze(processing.ReliabilityInput{Title: title, Content: content, Source: itemSource, URL: url})
	if category == "" {
		category = res.Classification.Category
	}

	return models.Article{
		ID:          hash,
		Title:       title,
		Description: description,
		Summary:     res.Summary,
		Content:     content,
		URL:         url,
		Source:      models.Source{Name: itemSource},
		PublishedAt: published.UTC(),
		Category:    category,
		DedupHash:   hash,
		Sentiment:   res.Sentiment.Label,
		Keywords:    res.Keywords,
		Popularity:  res.Reliability.Score,
		Status:      models.StatusPublished,
		AIGenerated: source != provider.SourceRSS,
		CreatedAt:   now,
		UpdatedAt:   now,
		FetchedAt:   now,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
