package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/newsdesk/backend/internal/ingest"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/provider"
	"github.com/DeafMist/newsdesk/backend/internal/scheduler"
)

type stubFetcher struct {
	mu         sync.Mutex
	categories []string
	imports    int
}

func (s *stubFetcher) Fetch(_ context.Context, category string, _ int, force bool) ingest.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, category)
	return ingest.Result{Success: !force, Articles: []models.Article{{ID: category}}}
}

func (s *stubFetcher) Import(context.Context, provider.Provider, string, int) ingest.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports++
	return ingest.Result{Success: true}
}

type stubLister struct {
	articles []models.Article
	err      error
}

func (s *stubLister) Unanalyzed(context.Context, int) ([]models.Article, error) {
	return s.articles, s.err
}

type stubQueue struct {
	ids []string
}

func (s *stubQueue) Publish(_ context.Context, _ bool, ids ...string) error {
	s.ids = append(s.ids, ids...)
	return nil
}

type stubCache struct{ cleared int }

func (s *stubCache) ClearCache() int {
	s.cleared++
	return 3
}

type noopProvider struct{}

func (noopProvider) Name() string { return provider.SourceRSS }
func (noopProvider) Fetch(context.Context, string, int) ([]provider.RawArticle, error) {
	return nil, nil
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := scheduler.New(context.Background(), scheduler.Config{Timezone: "Europe/Paris"}, scheduler.Deps{}, nil)
	require.NoError(t, err)
	require.Len(t, s.Entries(), 3)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestNewRejectsBadTimezone(t *testing.T) {
	_, err := scheduler.New(context.Background(), scheduler.Config{Timezone: "Invalid/Zone"}, scheduler.Deps{}, nil)
	require.Error(t, err)
}

func TestRunFetch(t *testing.T) {
	f := &stubFetcher{}
	s, err := scheduler.New(context.Background(),
		scheduler.Config{Timezone: "UTC", Categories: []string{"technology", "sports"}, FetchLimit: 5},
		scheduler.Deps{Fetcher: f, RSS: noopProvider{}}, nil)
	require.NoError(t, err)

	s.RunFetch(context.Background())
	require.Equal(t, []string{"technology", "sports"}, f.categories)
	require.Equal(t, 1, f.imports)
}

func TestRunAnalysis(t *testing.T) {
	q := &stubQueue{}
	lister := &stubLister{articles: []models.Article{{ID: "a"}, {ID: "b"}}}
	s, err := scheduler.New(context.Background(), scheduler.Config{Timezone: "UTC"},
		scheduler.Deps{Articles: lister, Queue: q}, nil)
	require.NoError(t, err)

	s.RunAnalysis(context.Background())
	require.Equal(t, []string{"a", "b"}, q.ids)

	lister.articles = nil
	lister.err = errors.New("es down")
	s.RunAnalysis(context.Background())
	require.Len(t, q.ids, 2)
}

func TestRunCleanup(t *testing.T) {
	c := &stubCache{}
	s, err := scheduler.New(context.Background(), scheduler.Config{Timezone: "UTC"}, scheduler.Deps{Cache: c}, nil)
	require.NoError(t, err)

	s.RunCleanup()
	require.Equal(t, 1, c.cleared)
}
