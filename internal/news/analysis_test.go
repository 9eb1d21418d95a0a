package news_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/newsdesk/backend/internal/analysis"
	"github.com/DeafMist/newsdesk/backend/internal/cache"
	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/news"
)

// analysisStore adds the analysis history to memStore.
type analysisStore struct {
	*memStore
	analyses []models.Analysis
}

func (s *analysisStore) Ping(context.Context) error { return nil }

func (s *analysisStore) IndexAnalysis(_ context.Context, a models.Analysis) error {
	s.analyses = append(s.analyses, a)
	return nil
}

func (s *analysisStore) LatestAnalysis(context.Context, string) (*models.Analysis, error) {
	return nil, nil
}

func (s *analysisStore) AnalysisStats(context.Context) (*models.AnalysisStats, error) {
	return &models.AnalysisStats{}, nil
}

func (s *analysisStore) SentimentTrends(context.Context, string, time.Time) (*models.SentimentTrends, error) {
	return &models.SentimentTrends{}, nil
}

func (s *analysisStore) PopularKeywords(context.Context, string, time.Time, int) ([]string, error) {
	return nil, nil
}

func TestProcessArticleRefreshesSharedCache(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.articles["a1"] = models.Article{
		ID:          "a1",
		Title:       "Une victoire excellente pour le club",
		Content:     "Le club remporte une victoire excellente et un succès remarquable en finale.",
		Category:    "sports",
		PublishedAt: now,
	}

	c := cache.New(100, cache.WithClock(func() time.Time { return now }))
	svc := news.New(store, c, ttls(), nil, news.WithClock(func() time.Time { return now }))
	ai := analysis.New(&analysisStore{memStore: store}, nil, nil,
		analysis.WithClock(func() time.Time { return now }),
		analysis.WithCache(c, time.Hour, 30*time.Minute),
		analysis.WithUpdateHook(svc.InvalidateArticle),
	)

	before, err := svc.GetArticle(ctx, "a1")
	require.NoError(t, err)
	require.Empty(t, before.Sentiment)
	_, err = svc.ListArticles(ctx, elasticsearch.ArticleQuery{Category: "sports"})
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	a, reused, err := ai.ProcessArticle(ctx, "a1", true)
	require.NoError(t, err)
	require.False(t, reused)
	require.True(t, a.Success)

	after, err := svc.GetArticle(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, a.Sentiment, after.Sentiment)
	require.Equal(t, store.articles["a1"].Sentiment, after.Sentiment)
	require.Equal(t, a.Keywords, after.Keywords)

	page, err := svc.ListArticles(ctx, elasticsearch.ArticleQuery{Category: "sports"})
	require.NoError(t, err)
	require.Equal(t, 2, store.listCalls)
	require.Equal(t, a.Sentiment, page.Articles[0].Sentiment)
}
