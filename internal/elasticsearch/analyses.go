package elasticsearch

import (
	"context"
	"time"

	"github.com/DeafMist/newsdesk/backend/internal/models"
)

// IndexAnalysis appends an analysis record.
func (c *Client) IndexAnalysis(ctx context.Context, a models.Analysis) error {
	res, err := c.index(ctx, c.idx.Analyses, a.ID, a, writeOptions{})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index analysis", res)
	}
	return nil
}

// LatestAnalysis returns the newest successful analysis of an article, or nil.
func (c *Client) LatestAnalysis(ctx context.Context, articleID string) (*models.Analysis, error) {
	body := map[string]any{
		"size": 1,
		"query": boolQuery(nil, []map[string]any{
			term("articleId", articleID),
			term("success", true),
		}, nil),
		"sort": []map[string]any{
			{"processedAt": map[string]any{"order": "desc"}},
		},
	}

	var parsed hits[models.Analysis]
	if err := c.search(ctx, c.idx.Analyses, body, &parsed); err != nil {
		return nil, err
	}
	items := parsed.items()
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// AnalysisStats aggregates counters over the whole analyses index.
func (c *Client) AnalysisStats(ctx context.Context) (*models.AnalysisStats, error) {
	body := map[string]any{
		"size":             0,
		"track_total_hits": true,
		"aggs": map[string]any{
			"successful": map[string]any{"filter": term("success", true)},
			"avg_time":   map[string]any{"avg": map[string]any{"field": "processingTime"}},
			"sentiments": map[string]any{"terms": map[string]any{"field": "sentiment", "size": 3}},
			"keywords":   map[string]any{"terms": map[string]any{"field": "keywords", "size": 10}},
			"today": map[string]any{"filter": map[string]any{
				"range": map[string]any{"processedAt": map[string]any{"gte": "now/d"}},
			}},
		},
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
		} `json:"hits"`
		Aggregations struct {
			Successful struct {
				DocCount int64 `json:"doc_count"`
			} `json:"successful"`
			AvgTime struct {
				Value *float64 `json:"value"`
			} `json:"avg_time"`
			Sentiments struct {
				Buckets []termBucket `json:"buckets"`
			} `json:"sentiments"`
			Keywords struct {
				Buckets []termBucket `json:"buckets"`
			} `json:"keywords"`
			Today struct {
				DocCount int64 `json:"doc_count"`
			} `json:"today"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, c.idx.Analyses, body, &parsed); err != nil {
		return nil, err
	}

	aggs := parsed.Aggregations
	total := parsed.Hits.Total.Value
	stats := &models.AnalysisStats{
		TotalAnalyses:         total,
		SuccessfulAnalyses:    aggs.Successful.DocCount,
		FailedAnalyses:        total - aggs.Successful.DocCount,
		SentimentDistribution: map[string]int64{"positive": 0, "negative": 0, "neutral": 0},
		PopularKeywords:       make([]string, 0, len(aggs.Keywords.Buckets)),
		DailyAnalyses:         aggs.Today.DocCount,
	}
	if aggs.AvgTime.Value != nil {
		stats.AverageProcessingTime = *aggs.AvgTime.Value
	}
	if total > 0 {
		stats.SuccessRate = float64(stats.SuccessfulAnalyses) / float64(total)
	}
	for _, b := range aggs.Sentiments.Buckets {
		stats.SentimentDistribution[b.Key] = b.DocCount
	}
	for _, b := range aggs.Keywords.Buckets {
		stats.PopularKeywords = append(stats.PopularKeywords, b.Key)
	}
	return stats, nil
}

// SentimentTrends buckets analyses processed since the given time by day and sentiment.
func (c *Client) SentimentTrends(ctx context.Context, category string, since time.Time) (*models.SentimentTrends, error) {
	body := map[string]any{
		"size":  0,
		"query": boolQuery(nil, analysisFilters(category, since), nil),
		"aggs": map[string]any{
			"days": map[string]any{
				"date_histogram": map[string]any{
					"field":             "processedAt",
					"calendar_interval": "day",
					"format":            "yyyy-MM-dd",
					"min_doc_count":     1,
				},
				"aggs": map[string]any{
					"sentiments": map[string]any{
						"terms": map[string]any{"field": "sentiment", "size": 3, "missing": "neutral"},
					},
				},
			},
		},
	}

	var parsed struct {
		Aggregations struct {
			Days struct {
				Buckets []struct {
					KeyAsString string `json:"key_as_string"`
					Sentiments  struct {
						Buckets []termBucket `json:"buckets"`
					} `json:"sentiments"`
				} `json:"buckets"`
			} `json:"days"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, c.idx.Analyses, body, &parsed); err != nil {
		return nil, err
	}

	trends := &models.SentimentTrends{ByDay: make([]models.DaySentiment, 0, len(parsed.Aggregations.Days.Buckets))}
	for _, day := range parsed.Aggregations.Days.Buckets {
		bucket := models.DaySentiment{Day: day.KeyAsString}
		for _, s := range day.Sentiments.Buckets {
			bucket.Counts.Add(s.Key, s.DocCount)
			trends.Overall.Add(s.Key, s.DocCount)
		}
		trends.ByDay = append(trends.ByDay, bucket)
	}
	return trends, nil
}

// PopularKeywords returns the most frequent analysis keywords since the given time.
func (c *Client) PopularKeywords(ctx context.Context, category string, since time.Time, limit int) ([]string, error) {
	body := map[string]any{
		"size":  0,
		"query": boolQuery(nil, analysisFilters(category, since), nil),
		"aggs": map[string]any{
			"keywords": map[string]any{"terms": map[string]any{"field": "keywords", "size": pageSize(limit)}},
		},
	}

	var parsed struct {
		Aggregations struct {
			Keywords struct {
				Buckets []termBucket `json:"buckets"`
			} `json:"keywords"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, c.idx.Analyses, body, &parsed); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(parsed.Aggregations.Keywords.Buckets))
	for _, b := range parsed.Aggregations.Keywords.Buckets {
		out = append(out, b.Key)
	}
	return out, nil
}

func analysisFilters(category string, since time.Time) []map[string]any {
	filters := []map[string]any{{
		"range": map[string]any{"processedAt": map[string]any{"gte": since.UTC().Format(time.RFC3339)}},
	}}
	if category != "" {
		filters = append(filters, term("category", category))
	}
	return filters
}
