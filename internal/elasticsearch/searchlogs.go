package elasticsearch

import (
	"context"
	"time"

	"github.com/DeafMist/newsdesk/backend/internal/models"
)

// LogSearch records a search query.
func (c *Client) LogSearch(ctx context.Context, l models.SearchLog) error {
	res, err := c.index(ctx, c.idx.SearchLogs, l.ID, l, writeOptions{})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("log search", res)
	}
	return nil
}

// TrendingQueries returns the most frequent queries since the given time.
func (c *Client) TrendingQueries(ctx context.Context, since time.Time, limit int) ([]models.TermCount, error) {
	body := map[string]any{
		"size": 0,
		"query": boolQuery(nil, []map[string]any{{
			"range": map[string]any{"timestamp": map[string]any{"gte": since.UTC().Format(time.RFC3339)}},
		}}, nil),
		"aggs": map[string]any{
			"queries": map[string]any{"terms": map[string]any{"field": "query", "size": pageSize(limit)}},
		},
	}

	var parsed struct {
		Aggregations struct {
			Queries struct {
				Buckets []termBucket `json:"buckets"`
			} `json:"queries"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, c.idx.SearchLogs, body, &parsed); err != nil {
		return nil, err
	}
	return termCounts(parsed.Aggregations.Queries.Buckets), nil
}

// SearchStats summarises the search log since the given time.
func (c *Client) SearchStats(ctx context.Context, since time.Time) (*models.SearchStats, error) {
	body := map[string]any{
		"size":             0,
		"track_total_hits": true,
		"query": boolQuery(nil, []map[string]any{{
			"range": map[string]any{"timestamp": map[string]any{"gte": since.UTC().Format(time.RFC3339)}},
		}}, nil),
		"aggs": map[string]any{
			"unique":      map[string]any{"cardinality": map[string]any{"field": "query"}},
			"avg_results": map[string]any{"avg": map[string]any{"field": "resultCount"}},
			"zero":        map[string]any{"filter": term("resultCount", 0)},
			"queries":     map[string]any{"terms": map[string]any{"field": "query", "size": 10}},
			"categories":  map[string]any{"terms": map[string]any{"field": "category", "size": 10}},
		},
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
		} `json:"hits"`
		Aggregations struct {
			Unique struct {
				Value int64 `json:"value"`
			} `json:"unique"`
			AvgResults struct {
				Value *float64 `json:"value"`
			} `json:"avg_results"`
			Zero struct {
				DocCount int64 `json:"doc_count"`
			} `json:"zero"`
			Queries struct {
				Buckets []termBucket `json:"buckets"`
			} `json:"queries"`
			Categories struct {
				Buckets []termBucket `json:"buckets"`
			} `json:"categories"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, c.idx.SearchLogs, body, &parsed); err != nil {
		return nil, err
	}

	aggs := parsed.Aggregations
	stats := &models.SearchStats{
		TotalSearches:      parsed.Hits.Total.Value,
		UniqueQueries:      aggs.Unique.Value,
		ZeroResultSearches: aggs.Zero.DocCount,
		TopQueries:         termCounts(aggs.Queries.Buckets),
		TopCategories:      termCounts(aggs.Categories.Buckets),
	}
	if aggs.AvgResults.Value != nil {
		stats.AverageResultCount = *aggs.AvgResults.Value
	}
	return stats, nil
}

func termCounts(buckets []termBucket) []models.TermCount {
	out := make([]models.TermCount, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, models.TermCount{Term: b.Key, Count: b.DocCount})
	}
	return out
}
