package elasticsearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/models"
)

var testIndices = elasticsearch.Indices{
	Articles:   "t_articles",
	Comments:   "t_comments",
	Analyses:   "t_analyses",
	Categories: "t_categories",
	SearchLogs: "t_search_logs",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.New(srv.URL, testIndices, nil)
	require.NoError(t, err)
	return client
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestCreateArticleUsesCreateOpType(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.True(t, strings.HasPrefix(r.URL.Path, "/t_articles/"))
		require.True(t, strings.HasSuffix(r.URL.Path, "/abc123"))
		require.Equal(t, "create", r.URL.Query().Get("op_type"))

		body := decodeBody(t, r)
		require.Equal(t, "abc123", body["dedupHash"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := client.CreateArticle(context.Background(), models.Article{ID: "abc123", DedupHash: "abc123", Title: "t"})
	require.NoError(t, err)
}

func TestCreateArticleConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"type":"version_conflict_engine_exception"},"status":409}`))
	})

	err := client.CreateArticle(context.Background(), models.Article{ID: "dup"})
	require.Error(t, err)
	require.True(t, apperr.IsConflict(err))
}

func TestGetArticle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"found":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"found":true,"_source":{"id":"a1","title":"Bonjour","views":3}}`))
	})

	a, err := client.GetArticle(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "Bonjour", a.Title)
	require.EqualValues(t, 3, a.Views)

	_, err = client.GetArticle(context.Background(), "missing")
	require.True(t, apperr.IsNotFound(err))
}

func TestListArticlesBuildsQuery(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/t_articles/_search", r.URL.Path)
		captured = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":2},"hits":[
			{"_id":"a","_source":{"id":"a","title":"A"}},
			{"_id":"b","_source":{"id":"b","title":"B"}}]}}`))
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := client.ListArticles(context.Background(), elasticsearch.ArticleQuery{
		Category: "sports",
		Status:   "published",
		From:     &from,
		SortBy:   "views",
		Order:    "ASC",
		Limit:    5,
		Offset:   10,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Len(t, page.Articles, 2)

	require.EqualValues(t, 5, captured["size"])
	require.EqualValues(t, 10, captured["from"])
	sort := captured["sort"].([]any)[0].(map[string]any)
	require.Equal(t, "asc", sort["views"].(map[string]any)["order"])

	filters := captured["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	require.Len(t, filters, 3)
}

func TestListArticlesRejectsUnknownSortField(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":0},"hits":[]}}`))
	})

	_, err := client.ListArticles(context.Background(), elasticsearch.ArticleQuery{SortBy: "content"})
	require.NoError(t, err)

	sort := captured["sort"].([]any)[0].(map[string]any)
	require.Contains(t, sort, "publishedAt")
	require.Equal(t, map[string]any{"match_all": map[string]any{}}, captured["query"])
}

func TestLatestFetchedEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":0},"hits":[]}}`))
	})

	a, err := client.LatestFetched(context.Background(), "technology")
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestIncrementViewsUsesScript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/t_articles/_update/a1", r.URL.Path)
		body := decodeBody(t, r)
		script := body["script"].(map[string]any)
		require.Contains(t, script["source"], "views")
		_, _ = w.Write([]byte(`{"result":"updated"}`))
	})

	require.NoError(t, client.IncrementViews(context.Background(), "a1"))
}

func TestUpdateMissingArticle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"document_missing_exception"}}`))
	})

	err := client.TouchFetchedAt(context.Background(), "nope", time.Now())
	require.True(t, apperr.IsNotFound(err))
}

func TestSearchFailureSurfacesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"parsing_exception"}`))
	})

	_, err := client.SearchArticles(context.Background(), "foo", "", 10, 0)
	require.ErrorContains(t, err, "parsing_exception")
}

func TestListComments(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/t_comments/_search", r.URL.Path)
		captured = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":1},"hits":[
			{"_id":"c1","_source":{"id":"c1","articleId":"a1","text":"Bravo","authorName":"Anonymous"}}]}}`))
	})

	comments, err := client.ListComments(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, "Bravo", comments[0].Text)

	sort := captured["sort"].([]any)[0].(map[string]any)
	require.Equal(t, "asc", sort["createdAt"].(map[string]any)["order"])
}

func TestAnalysisStats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/t_analyses/_search", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"hits":{"total":{"value":10}},
			"aggregations":{
				"successful":{"doc_count":8},
				"avg_time":{"value":12.5},
				"sentiments":{"buckets":[{"key":"positive","doc_count":5},{"key":"neutral","doc_count":3}]},
				"keywords":{"buckets":[{"key":"marché","doc_count":4}]},
				"today":{"doc_count":2}}}`))
	})

	stats, err := client.AnalysisStats(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 10, stats.TotalAnalyses)
	require.EqualValues(t, 2, stats.FailedAnalyses)
	require.InDelta(t, 0.8, stats.SuccessRate, 1e-9)
	require.InDelta(t, 12.5, stats.AverageProcessingTime, 1e-9)
	require.EqualValues(t, 5, stats.SentimentDistribution["positive"])
	require.EqualValues(t, 0, stats.SentimentDistribution["negative"])
	require.Equal(t, []string{"marché"}, stats.PopularKeywords)
	require.EqualValues(t, 2, stats.DailyAnalyses)
}

func TestAnalysisStatsEmptyIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":0}},"aggregations":{"avg_time":{"value":null}}}`))
	})

	stats, err := client.AnalysisStats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.SuccessRate)
	require.Zero(t, stats.AverageProcessingTime)
}

func TestSentimentTrends(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"aggregations":{"days":{"buckets":[
			{"key_as_string":"2024-03-01","sentiments":{"buckets":[{"key":"positive","doc_count":2},{"key":"negative","doc_count":1}]}},
			{"key_as_string":"2024-03-02","sentiments":{"buckets":[{"key":"neutral","doc_count":4}]}}]}}}`))
	})

	trends, err := client.SentimentTrends(context.Background(), "", time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, trends.ByDay, 2)
	require.Equal(t, "2024-03-01", trends.ByDay[0].Day)
	require.EqualValues(t, 2, trends.ByDay[0].Counts.Positive)
	require.Equal(t, models.SentimentCounts{Positive: 2, Negative: 1, Neutral: 4}, trends.Overall)
}

func TestSearchStats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/t_search_logs/_search", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"hits":{"total":{"value":7}},
			"aggregations":{
				"unique":{"value":4},
				"avg_results":{"value":3.5},
				"zero":{"doc_count":1},
				"queries":{"buckets":[{"key":"climat","doc_count":3}]},
				"categories":{"buckets":[]}}}`))
	})

	stats, err := client.SearchStats(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 7, stats.TotalSearches)
	require.EqualValues(t, 4, stats.UniqueQueries)
	require.EqualValues(t, 1, stats.ZeroResultSearches)
	require.Equal(t, []models.TermCount{{Term: "climat", Count: 3}}, stats.TopQueries)
	require.Empty(t, stats.TopCategories)
}

func TestCreateCategoryConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "create", r.URL.Query().Get("op_type"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status":409}`))
	})

	err := client.CreateCategory(context.Background(), models.Category{ID: "sante", Name: "Santé"})
	require.True(t, apperr.IsConflict(err))
}

func TestDeleteSearchLogsLoopsUntilShortBatch(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/t_search_logs/_delete_by_query", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("max_docs"))
		n := calls.Add(1)
		deleted := 2
		if n == 2 {
			deleted = 1
		}
		_, _ = w.Write([]byte(`{"deleted":` + strconv.Itoa(deleted) + `}`))
	})

	deleted, err := client.DeleteSearchLogsOlderThan(context.Background(), time.Hour, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
	require.EqualValues(t, 2, calls.Load())
}

func TestDeleteArchivedFiltersStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/t_articles/_delete_by_query", r.URL.Path)
		body := decodeBody(t, r)
		filters := body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
		require.Len(t, filters, 2)
		require.Equal(t, map[string]any{"term": map[string]any{"status": "archived"}}, filters[1])
		_, _ = w.Write([]byte(`{"deleted":0}`))
	})

	deleted, err := client.DeleteArchivedOlderThan(context.Background(), 24*time.Hour, 100)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestHealth(t *testing.T) {
	status := "green"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
	})

	require.NoError(t, client.Health(context.Background()))
	status = "red"
	require.Error(t, client.Health(context.Background()))
}
