package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/models"
)

// ArticleQuery narrows an article listing.
type ArticleQuery struct {
	Category string
	Status   string
	Source   string
	From     *time.Time
	To       *time.Time
	SortBy   string
	Order    string
	Limit    int
	Offset   int
}

// ArticlePage bundles hits and total count.
type ArticlePage struct {
	Total    int64            `json:"total"`
	Articles []models.Article `json:"articles"`
}

var sortableArticleFields = map[string]bool{
	"publishedAt": true,
	"popularity":  true,
	"views":       true,
	"fetchedAt":   true,
	"createdAt":   true,
}

// CreateArticle stores a new article under its ID with create-only semantics.
// An existing document with the same ID yields a conflict error.
func (c *Client) CreateArticle(ctx context.Context, a models.Article) error {
	res, err := c.index(ctx, c.idx.Articles, a.ID, a, writeOptions{create: true})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return apperr.Conflict("article already exists")
	}
	if res.IsError() {
		return responseError("create article", res)
	}
	return nil
}

// GetArticle loads one article by ID.
func (c *Client) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	res, err := c.es.Get(c.idx.Articles, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("article not found")
	}
	if res.IsError() {
		return nil, responseError("get article", res)
	}

	var parsed struct {
		Source models.Article `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode article: %w", err)
	}
	return &parsed.Source, nil
}

// ListArticles executes a filtered, sorted listing.
func (c *Client) ListArticles(ctx context.Context, q ArticleQuery) (*ArticlePage, error) {
	filters := make([]map[string]any, 0, 4)
	if q.Category != "" {
		filters = append(filters, term("category", q.Category))
	}
	if q.Status != "" {
		filters = append(filters, term("status", q.Status))
	}
	if q.Source != "" {
		filters = append(filters, term("source.name", q.Source))
	}
	if q.From != nil || q.To != nil {
		rangeQuery := map[string]any{}
		if q.From != nil {
			rangeQuery["gte"] = q.From.UTC().Format(time.RFC3339)
		}
		if q.To != nil {
			rangeQuery["lte"] = q.To.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"publishedAt": rangeQuery},
		})
	}

	field := q.SortBy
	if !sortableArticleFields[field] {
		field = "publishedAt"
	}
	order := strings.ToLower(q.Order)
	if order != "asc" {
		order = "desc"
	}

	body := map[string]any{
		"from":             max(q.Offset, 0),
		"size":             pageSize(q.Limit),
		"track_total_hits": true,
		"query":            boolQuery(nil, filters, nil),
		"sort": []map[string]any{
			{field: map[string]any{"order": order}},
		},
	}

	var parsed hits[models.Article]
	if err := c.search(ctx, c.idx.Articles, body, &parsed); err != nil {
		return nil, err
	}
	return &ArticlePage{Total: parsed.Hits.Total.Value, Articles: parsed.items()}, nil
}

// SearchArticles runs a full-text query over title, description and content.
func (c *Client) SearchArticles(ctx context.Context, query, category string, limit, offset int) (*ArticlePage, error) {
	must := []map[string]any{{
		"multi_match": map[string]any{
			"query":     query,
			"fields":    []string{"title^3", "description^2", "content", "keywords^2"},
			"fuzziness": "AUTO",
		},
	}}
	var filters []map[string]any
	if category != "" {
		filters = append(filters, term("category", category))
	}

	body := map[string]any{
		"from":             max(offset, 0),
		"size":             pageSize(limit),
		"track_total_hits": true,
		"query":            boolQuery(must, filters, nil),
	}

	var parsed hits[models.Article]
	if err := c.search(ctx, c.idx.Articles, body, &parsed); err != nil {
		return nil, err
	}
	return &ArticlePage{Total: parsed.Hits.Total.Value, Articles: parsed.items()}, nil
}

// UpdateArticle applies a partial document update.
func (c *Client) UpdateArticle(ctx context.Context, id string, upd models.ArticleUpdate) error {
	return c.updateArticle(ctx, id, map[string]any{"doc": upd})
}

// IncrementViews atomically bumps the view counter.
func (c *Client) IncrementViews(ctx context.Context, id string) error {
	return c.updateArticle(ctx, id, map[string]any{
		"script": map[string]any{
			"source": "ctx._source.views = (ctx._source.views == null ? 0 : ctx._source.views) + 1",
			"lang":   "painless",
		},
	})
}

// TouchFetchedAt refreshes the fetch timestamp of an existing article.
func (c *Client) TouchFetchedAt(ctx context.Context, id string, at time.Time) error {
	return c.updateArticle(ctx, id, map[string]any{
		"doc": map[string]any{"fetchedAt": at.UTC()},
	})
}

// DeleteArticle removes an article and its comments.
func (c *Client) DeleteArticle(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: c.idx.Articles, DocumentID: id, Refresh: "wait_for"}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return apperr.NotFound("article not found")
	}
	if res.IsError() {
		return responseError("delete article", res)
	}

	if _, err := c.deleteByQuery(ctx, c.idx.Comments, term("articleId", id), 0); err != nil {
		c.log.Warn("delete article comments", slog.String("article_id", id), slog.Any("err", err))
	}
	return nil
}

// LatestFetched returns the most recently fetched article of a category, or nil.
func (c *Client) LatestFetched(ctx context.Context, category string) (*models.Article, error) {
	body := map[string]any{
		"size":  1,
		"query": boolQuery(nil, []map[string]any{term("category", category)}, nil),
		"sort": []map[string]any{
			{"fetchedAt": map[string]any{"order": "desc"}},
		},
	}

	var parsed hits[models.Article]
	if err := c.search(ctx, c.idx.Articles, body, &parsed); err != nil {
		return nil, err
	}
	items := parsed.items()
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// SimilarArticles finds articles sharing the category or keywords of a, excluding a itself.
func (c *Client) SimilarArticles(ctx context.Context, a models.Article, limit int) ([]models.Article, error) {
	should := make([]map[string]any, 0, 2)
	if a.Category != "" {
		should = append(should, term("category", a.Category))
	}
	if len(a.Keywords) > 0 {
		should = append(should, map[string]any{
			"terms": map[string]any{"keywords": a.Keywords, "boost": 2},
		})
	}
	if len(should) == 0 {
		return []models.Article{}, nil
	}

	body := map[string]any{
		"size": pageSize(limit),
		"query": map[string]any{
			"bool": map[string]any{
				"should":               should,
				"minimum_should_match": 1,
				"must_not":             []map[string]any{{"ids": map[string]any{"values": []string{a.ID}}}},
			},
		},
	}

	var parsed hits[models.Article]
	if err := c.search(ctx, c.idx.Articles, body, &parsed); err != nil {
		return nil, err
	}
	return parsed.items(), nil
}

// Unanalyzed lists the newest articles that carry no sentiment yet.
func (c *Client) Unanalyzed(ctx context.Context, limit int) ([]models.Article, error) {
	body := map[string]any{
		"size": pageSize(limit),
		"query": boolQuery(nil, nil, []map[string]any{
			{"exists": map[string]any{"field": "sentiment"}},
		}),
		"sort": []map[string]any{
			{"createdAt": map[string]any{"order": "desc"}},
		},
	}

	var parsed hits[models.Article]
	if err := c.search(ctx, c.idx.Articles, body, &parsed); err != nil {
		return nil, err
	}
	return parsed.items(), nil
}

// Suggestions returns article titles starting with prefix and matching keywords.
func (c *Client) Suggestions(ctx context.Context, prefix string, limit int) ([]string, []string, error) {
	lower := strings.ToLower(prefix)
	body := map[string]any{
		"size": pageSize(limit),
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{"match_phrase_prefix": map[string]any{"title": prefix}},
					{"prefix": map[string]any{"keywords": lower}},
				},
				"minimum_should_match": 1,
			},
		},
		"_source": []string{"title", "keywords"},
	}

	var parsed hits[models.Article]
	if err := c.search(ctx, c.idx.Articles, body, &parsed); err != nil {
		return nil, nil, err
	}

	titles := make([]string, 0, len(parsed.Hits.Hits))
	keywords := make([]string, 0)
	seen := make(map[string]struct{})
	for _, a := range parsed.items() {
		if strings.HasPrefix(strings.ToLower(a.Title), lower) {
			titles = append(titles, a.Title)
		}
		for _, kw := range a.Keywords {
			if _, ok := seen[kw]; ok || !strings.HasPrefix(kw, lower) {
				continue
			}
			seen[kw] = struct{}{}
			keywords = append(keywords, kw)
		}
	}
	return titles, keywords, nil
}

// DeleteArchivedOlderThan removes archived articles last updated before now-maxAge.
func (c *Client) DeleteArchivedOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return c.deleteOlderThan(ctx, c.idx.Articles, "updatedAt", maxAge, batchSize,
		term("status", string(models.StatusArchived)))
}

func (c *Client) updateArticle(ctx context.Context, id string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:           c.idx.Articles,
		DocumentID:      id,
		Body:            bytes.NewReader(payload),
		RetryOnConflict: intPtr(3),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return apperr.NotFound("article not found")
	}
	if res.IsError() {
		return responseError("update article", res)
	}
	return nil
}

func pageSize(n int) int {
	switch {
	case n <= 0:
		return 20
	case n > 1000:
		return 1000
	default:
		return n
	}
}

func intPtr(v int) *int { return &v }
