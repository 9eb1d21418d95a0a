package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// DeleteSearchLogsOlderThan removes search log entries older than maxAge.
func (c *Client) DeleteSearchLogsOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	return c.deleteOlderThan(ctx, c.idx.SearchLogs, "timestamp", maxAge, batchSize, nil)
}

// deleteOlderThan removes documents whose field is older than maxAge using batched
// delete-by-query. It loops until a batch deletes fewer documents than batchSize.
func (c *Client) deleteOlderThan(ctx context.Context, index, field string, maxAge time.Duration, batchSize int, extra map[string]any) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	filters := []map[string]any{{
		"range": map[string]any{field: map[string]any{"lte": cutoff}},
	}}
	if extra != nil {
		filters = append(filters, extra)
	}
	query := boolQuery(nil, filters, nil)

	totalDeleted := int64(0)
	for {
		deleted, err := c.deleteByQuery(ctx, index, query, batchSize)
		totalDeleted += deleted
		if err != nil {
			return totalDeleted, err
		}
		if deleted < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}

func (c *Client) deleteByQuery(ctx context.Context, index string, query map[string]any, batchSize int) (int64, error) {
	payload, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	opts := []func(*esapi.DeleteByQueryRequest){
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithRefresh(true),
	}
	if batchSize > 0 {
		opts = append(opts, c.es.DeleteByQuery.WithMaxDocs(batchSize))
	}

	res, err := c.es.DeleteByQuery([]string{index}, bytes.NewReader(payload), opts...)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, responseError("delete by query", res)
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}
