package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/newsdesk/backend/internal/analysis"
	"github.com/DeafMist/newsdesk/backend/internal/config"
	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/ingest"
	"github.com/DeafMist/newsdesk/backend/internal/metrics"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/news"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
)

type newsService interface {
	ListArticles(ctx context.Context, q elasticsearch.ArticleQuery) (*elasticsearch.ArticlePage, error)
	Trending(ctx context.Context, category string, limit int) ([]models.Article, error)
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	SimilarArticles(ctx context.Context, id string, limit int) ([]models.Article, error)
	CreateArticle(ctx context.Context, in news.CreateArticleInput) (*models.Article, error)
	UpdateArticle(ctx context.Context, id string, in news.UpdateArticleInput) (*models.Article, error)
	DeleteArticle(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error

	AddComment(ctx context.Context, articleID string, in news.CommentInput) (*models.Comment, error)
	ListComments(ctx context.Context, articleID string) ([]models.Comment, error)

	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, in news.CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, id string, in news.CategoryInput) (*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	Search(ctx context.Context, p news.SearchParams) (*elasticsearch.ArticlePage, error)
	LogSearch(ctx context.Context, in news.SearchLogInput, ip string) error
	Suggestions(ctx context.Context, prefix string) (*news.Suggestions, error)
	TrendingSearches(ctx context.Context, limit int) ([]models.TermCount, error)
	SearchStats(ctx context.Context, days int) (*models.SearchStats, error)

	ClearCache() int
}

type analysisService interface {
	ProcessArticle(ctx context.Context, articleID string, force bool) (models.Analysis, bool, error)
	Latest(ctx context.Context, articleID string) (*models.Analysis, error)
	BatchAnalyze(ctx context.Context, articleIDs []string, force bool) ([]models.Analysis, error)
	Stats(ctx context.Context) (*models.AnalysisStats, error)
	SentimentTrends(ctx context.Context, category string, days int) (*models.SentimentTrends, error)
	PopularKeywords(ctx context.Context, category string, limit int) ([]string, error)
	CheckHealth(ctx context.Context) analysis.Health
	DetectFakeNews(in processing.ReliabilityInput) models.Reliability
	Classify(title, content string) models.Classification
}

type newsFetcher interface {
	Fetch(ctx context.Context, category string, limit int, force bool) ingest.Result
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	news  newsService
	ai    analysisService
	fetch newsFetcher
	store healthChecker
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/news", s.handleListNews)
		r.Get("/news/trending", s.handleTrending)
		r.Post("/fetch-ai-news", s.handleFetchAINews)

		r.Post("/articles", s.handleCreateArticle)
		r.Route("/articles/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetArticle)
			r.Put("/", s.handleUpdateArticle)
			r.Delete("/", s.handleDeleteArticle)
			r.Post("/views", s.handleIncrementViews)
			r.Get("/similar", s.handleSimilar)
			r.Get("/comments", s.handleListComments)
			r.Post("/comments", s.handleAddComment)
		})

		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleCreateCategory)
		r.Put("/categories/{id}", s.handleUpdateCategory)
		r.Delete("/categories/{id}", s.handleDeleteCategory)

		r.Route("/search", func(r chi.Router) {
			r.Get("/", s.handleSearch)
			r.Get("/suggestions", s.handleSuggestions)
			r.Get("/trending", s.handleTrendingSearches)
			r.Post("/log", s.handleLogSearch)
			r.Get("/stats", s.handleSearchStats)
		})

		r.Route("/ai", func(r chi.Router) {
			r.Post("/analyze/{id}", s.handleAnalyze)
			r.Get("/analysis/{id}", s.handleGetAnalysis)
			r.Post("/batch-analyze", s.handleBatchAnalyze)
			r.Get("/stats", s.handleAIStats)
			r.Get("/sentiment-trends", s.handleSentimentTrends)
			r.Get("/keywords/popular", s.handlePopularKeywords)
			r.Get("/health", s.handleAIHealth)
			r.Post("/fake-news", s.handleFakeNews)
			r.Post("/classify", s.handleClassify)
		})

		r.Post("/cache/clear", s.handleClearCache)
	})

	return r
}
