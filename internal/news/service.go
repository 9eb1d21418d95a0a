// Package news serves articles, comments, categories and search with an
// in-process read cache in front of the store.
package news

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/cache"
	"github.com/DeafMist/newsdesk/backend/internal/config"
	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/metrics"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
)

const (
	DefaultListLimit     = 20
	MaxListLimit         = 100
	DefaultTrendingLimit = 10
	MaxTrendingLimit     = 50
	MaxSimilar           = 5
	MinSuggestionLength  = 2
	maxSuggestions       = 5
	defaultSearchWindow  = 7 * 24 * time.Hour
	anonymousAuthor      = "Anonymous"
)

// Store is the persistence the service needs.
type Store interface {
	ListArticles(ctx context.Context, q elasticsearch.ArticleQuery) (*elasticsearch.ArticlePage, error)
	SearchArticles(ctx context.Context, query, category string, limit, offset int) (*elasticsearch.ArticlePage, error)
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	CreateArticle(ctx context.Context, a models.Article) error
	UpdateArticle(ctx context.Context, id string, upd models.ArticleUpdate) error
	DeleteArticle(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	SimilarArticles(ctx context.Context, a models.Article, limit int) ([]models.Article, error)
	Suggestions(ctx context.Context, prefix string, limit int) ([]string, []string, error)

	AddComment(ctx context.Context, c models.Comment) error
	ListComments(ctx context.Context, articleID string) ([]models.Comment, error)

	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, c models.Category) error
	PutCategory(ctx context.Context, c models.Category) error
	DeleteCategory(ctx context.Context, id string) error

	LogSearch(ctx context.Context, l models.SearchLog) error
	TrendingQueries(ctx context.Context, since time.Time, limit int) ([]models.TermCount, error)
	SearchStats(ctx context.Context, since time.Time) (*models.SearchStats, error)
}

// Enqueuer schedules background analysis of articles.
type Enqueuer interface {
	Publish(ctx context.Context, force bool, articleIDs ...string) error
}

// Service implements the article, comment, category and search operations.
type Service struct {
	store Store
	cache *cache.Cache
	ttl   config.CacheTTL
	log   *slog.Logger
	now   func() time.Time
	queue Enqueuer
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEnqueuer publishes created articles for analysis.
func WithEnqueuer(q Enqueuer) Option {
	return func(s *Service) { s.queue = q }
}

// New builds a Service backed by store and c.
func New(store Store, c *cache.Cache, ttl config.CacheTTL, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c == nil {
		c = cache.New(1000)
	}
	s := &Service{store: store, cache: c, ttl: ttl, log: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cached returns the value under key, loading and storing it on a miss.
func cached[T any](s *Service, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := cache.Typed[T](s.cache, key); ok {
		metrics.RecordCacheLookup(true)
		return v, nil
	}
	metrics.RecordCacheLookup(false)

	v, err := load()
	if err != nil {
		return v, err
	}
	s.cache.Set(key, v, ttl)
	return v, nil
}

func normalizeQuery(q elasticsearch.ArticleQuery) elasticsearch.ArticleQuery {
	q.Limit = clamp(q.Limit, DefaultListLimit, MaxListLimit)
	q.Offset = max(q.Offset, 0)
	switch q.SortBy {
	case "publishedAt", "popularity", "views", "fetchedAt":
	default:
		q.SortBy = "publishedAt"
	}
	if q.Order != "asc" {
		q.Order = "desc"
	}
	return q
}

func listKey(q elasticsearch.ArticleQuery) string {
	from, to := "", ""
	if q.From != nil {
		from = q.From.UTC().Format(time.RFC3339)
	}
	if q.To != nil {
		to = q.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("articles:%s|%s|%s|%s|%s|%s|%s|%d|%d",
		q.Category, q.Status, q.Source, from, to, q.SortBy, q.Order, q.Limit, q.Offset)
}

func articleKey(id string) string  { return "article:" + id }
func commentsKey(id string) string { return "comments:" + id }

const categoriesKey = "categories"

// defaultListKeys are the list keys a write to category must invalidate.
func defaultListKeys(category string) []string {
	keys := []string{listKey(normalizeQuery(elasticsearch.ArticleQuery{}))}
	if category != "" {
		keys = append(keys, listKey(normalizeQuery(elasticsearch.ArticleQuery{Category: category})))
	}
	return keys
}

// ListArticles returns a filtered page of articles, newest first by default.
func (s *Service) ListArticles(ctx context.Context, q elasticsearch.ArticleQuery) (*elasticsearch.ArticlePage, error) {
	q = normalizeQuery(q)
	return cached(s, listKey(q), s.ttl.Lists, func() (*elasticsearch.ArticlePage, error) {
		page, err := s.store.ListArticles(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("list articles: %w", err)
		}
		return page, nil
	})
}

// Trending returns the most popular articles.
func (s *Service) Trending(ctx context.Context, category string, limit int) ([]models.Article, error) {
	limit = clamp(limit, DefaultTrendingLimit, MaxTrendingLimit)
	key := fmt.Sprintf("trending:%s|%d", category, limit)
	return cached(s, key, s.ttl.Lists, func() ([]models.Article, error) {
		page, err := s.store.ListArticles(ctx, elasticsearch.ArticleQuery{
			Category: category,
			Status:   string(models.StatusPublished),
			SortBy:   "popularity",
			Order:    "desc",
			Limit:    limit,
		})
		if err != nil {
			return nil, fmt.Errorf("trending articles: %w", err)
		}
		return page.Articles, nil
	})
}

// GetArticle loads one article.
func (s *Service) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	return cached(s, articleKey(id), s.ttl.Article, func() (*models.Article, error) {
		return s.store.GetArticle(ctx, id)
	})
}

// SimilarArticles lists up to five articles sharing the category or keywords of id.
func (s *Service) SimilarArticles(ctx context.Context, id string, limit int) ([]models.Article, error) {
	limit = clamp(limit, MaxSimilar, MaxSimilar)
	a, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	similar, err := s.store.SimilarArticles(ctx, *a, limit)
	if err != nil {
		return nil, fmt.Errorf("similar articles: %w", err)
	}
	return similar, nil
}

// CreateArticle validates and stores a new article keyed by its dedup hash.
func (s *Service) CreateArticle(ctx context.Context, in CreateArticleInput) (*models.Article, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	hash := processing.DedupHash(in.URL, in.Title)
	status := models.Status(in.Status)
	if status == "" {
		status = models.StatusPublished
	}
	published := now
	if in.PublishedAt != nil {
		published = in.PublishedAt.UTC()
	}
	content := in.Content
	if strings.TrimSpace(content) == "" {
		content = in.Description
	}

	a := models.Article{
		ID:          hash,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Content:     content,
		URL:         in.URL,
		Source:      models.Source{Name: in.Source.Name, URL: in.Source.URL},
		PublishedAt: published,
		Category:    in.Category,
		DedupHash:   hash,
		Tags:        in.Tags,
		Status:      status,
		AIGenerated: in.AIGenerated,
		CreatedAt:   now,
		UpdatedAt:   now,
		FetchedAt:   now,
	}
	if err := s.store.CreateArticle(ctx, a); err != nil {
		return nil, err
	}

	s.cache.Invalidate(defaultListKeys(a.Category)...)
	s.enqueue(ctx, a.ID)
	return &a, nil
}

// UpdateArticle applies a partial update.
func (s *Service) UpdateArticle(ctx context.Context, id string, in UpdateArticleInput) (*models.Article, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	before, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateArticle(ctx, id, in.toUpdate(s.now().UTC())); err != nil {
		return nil, err
	}

	keys := append(defaultListKeys(before.Category), articleKey(id))
	if in.Category != nil && *in.Category != before.Category {
		keys = append(keys, defaultListKeys(*in.Category)...)
	}
	s.cache.Invalidate(keys...)

	return s.store.GetArticle(ctx, id)
}

// DeleteArticle removes an article together with its comments.
func (s *Service) DeleteArticle(ctx context.Context, id string) error {
	before, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(append(defaultListKeys(before.Category), articleKey(id), commentsKey(id))...)
	return nil
}

// IncrementViews bumps the view counter.
func (s *Service) IncrementViews(ctx context.Context, id string) error {
	if err := s.store.IncrementViews(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(articleKey(id))
	return nil
}

// AddComment attaches a comment to an existing article.
func (s *Service) AddComment(ctx context.Context, articleID string, in CommentInput) (*models.Comment, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperr.Validation("comment text is required")
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}

	author := strings.TrimSpace(in.AuthorName)
	if author == "" {
		author = anonymousAuthor
	}
	c := models.Comment{
		ID:         uuid.NewString(),
		ArticleID:  articleID,
		Text:       text,
		AuthorName: author,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AddComment(ctx, c); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	s.cache.Invalidate(commentsKey(articleID))
	return &c, nil
}

// ListComments returns an article's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, articleID string) ([]models.Comment, error) {
	return cached(s, commentsKey(articleID), s.ttl.Lists, func() ([]models.Comment, error) {
		comments, err := s.store.ListComments(ctx, articleID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		return comments, nil
	})
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return cached(s, categoriesKey, s.ttl.Categories, func() ([]models.Category, error) {
		cats, err := s.store.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		return cats, nil
	})
}

// CreateCategory stores a category under the slug of its name.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	c, err := buildCategory("", in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	s.cache.Invalidate(categoriesKey)
	return &c, nil
}

// UpdateCategory replaces an existing category; its ID never changes.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*models.Category, error) {
	c, err := buildCategory(id, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutCategory(ctx, c); err != nil {
		return nil, err
	}
	s.cache.Invalidate(categoriesKey)
	return &c, nil
}

// DeleteCategory removes a category. Articles keep their category string.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(categoriesKey)
	return nil
}

func buildCategory(id string, in CategoryInput) (models.Category, error) {
	if err := validateStruct(in); err != nil {
		return models.Category{}, err
	}
	name := strings.TrimSpace(in.Name)
	if id == "" {
		id = processing.Slug(name)
	}
	if id == "" {
		return models.Category{}, apperr.ValidationFields("validation failed", map[string]string{
			"name": "name must contain letters or digits",
		})
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = name
	}
	return models.Category{ID: id, Name: name, DisplayName: display, Color: in.Color, Icon: in.Icon}, nil
}

// Search runs a full-text query and records it in the search log.
func (s *Service) Search(ctx context.Context, p SearchParams) (*elasticsearch.ArticlePage, error) {
	query := strings.TrimSpace(processing.CleanText(p.Query))
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	limit := clamp(p.Limit, DefaultListLimit, MaxListLimit)

	page, err := s.store.SearchArticles(ctx, query, p.Category, limit, max(p.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}

	entry := models.SearchLog{
		ID:          uuid.NewString(),
		Query:       strings.ToLower(query),
		Category:    p.Category,
		ResultCount: len(page.Articles),
		UserID:      p.UserID,
		IP:          p.IP,
		Timestamp:   s.now().UTC(),
	}
	if err := s.store.LogSearch(ctx, entry); err != nil {
		s.log.Warn("log search", slog.String("query", query), slog.Any("err", err))
	}
	return page, nil
}

// LogSearch records a search issued elsewhere.
func (s *Service) LogSearch(ctx context.Context, in SearchLogInput, ip string) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	entry := models.SearchLog{
		ID:          uuid.NewString(),
		Query:       strings.ToLower(strings.TrimSpace(in.Query)),
		Category:    in.Category,
		ResultCount: in.ResultCount,
		UserID:      in.UserID,
		IP:          ip,
		Timestamp:   s.now().UTC(),
	}
	if err := s.store.LogSearch(ctx, entry); err != nil {
		return fmt.Errorf("log search: %w", err)
	}
	return nil
}

// Suggestions completes a prefix of at least two characters.
func (s *Service) Suggestions(ctx context.Context, prefix string) (*Suggestions, error) {
	prefix = strings.TrimSpace(prefix)
	if len([]rune(prefix)) < MinSuggestionLength {
		return &Suggestions{Titles: []string{}, Keywords: []string{}}, nil
	}

	key := "suggest:" + strings.ToLower(prefix)
	return cached(s, key, s.ttl.Suggestions, func() (*Suggestions, error) {
		titles, keywords, err := s.store.Suggestions(ctx, prefix, 2*maxSuggestions)
		if err != nil {
			return nil, fmt.Errorf("suggestions: %w", err)
		}
		return &Suggestions{
			Titles:   titles[:min(len(titles), maxSuggestions)],
			Keywords: keywords[:min(len(keywords), maxSuggestions)],
		}, nil
	})
}

// TrendingSearches returns the most frequent queries of the last week.
func (s *Service) TrendingSearches(ctx context.Context, limit int) ([]models.TermCount, error) {
	limit = clamp(limit, DefaultTrendingLimit, MaxTrendingLimit)
	key := fmt.Sprintf("search:trending|%d", limit)
	return cached(s, key, s.ttl.Stats, func() ([]models.TermCount, error) {
		terms, err := s.store.TrendingQueries(ctx, s.now().Add(-defaultSearchWindow), limit)
		if err != nil {
			return nil, fmt.Errorf("trending searches: %w", err)
		}
		return terms, nil
	})
}

// SearchStats summarises the search log over the last days (default 7).
func (s *Service) SearchStats(ctx context.Context, days int) (*models.SearchStats, error) {
	if days <= 0 {
		days = 7
	}
	days = min(days, 365)
	key := fmt.Sprintf("search:stats|%d", days)
	return cached(s, key, s.ttl.Stats, func() (*models.SearchStats, error) {
		stats, err := s.store.SearchStats(ctx, s.now().Add(-time.Duration(days)*24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("search stats: %w", err)
		}
		return stats, nil
	})
}

// ClearCache drops every cached read and reports how many entries were removed.
func (s *Service) ClearCache() int {
	n := s.cache.Clear()
	s.log.Info("cache cleared", slog.Int("entries", n))
	return n
}

// InvalidateArticle drops the cached article and the default listings of category.
func (s *Service) InvalidateArticle(id, category string) {
	s.cache.Invalidate(append(defaultListKeys(category), articleKey(id))...)
}

// InvalidateCategory drops the default listings touched by new articles in category.
func (s *Service) InvalidateCategory(category string) {
	s.cache.Invalidate(defaultListKeys(category)...)
}

func (s *Service) enqueue(ctx context.Context, ids ...string) {
	if s.queue == nil || len(ids) == 0 {
		return
	}
	if err := s.queue.Publish(ctx, false, ids...); err != nil {
		s.log.Warn("enqueue analysis", slog.Any("err", err))
	}
}

func clamp(v, fallback, maxValue int) int {
	if v <= 0 {
		return fallback
	}
	return min(v, maxValue)
}
