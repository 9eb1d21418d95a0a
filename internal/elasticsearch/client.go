package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Indices names the indices backing each collection.
type Indices struct {
	Articles   string
	Comments   string
	Analyses   string
	Categories string
	SearchLogs string
}

// Client wraps go-elasticsearch with helpers tailored to the news store.
type Client struct {
	es  *elasticsearch.Client
	idx Indices
	log *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr string, indices Indices, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, idx: indices, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health reports cluster health; yellow and green are both healthy.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return responseError("cluster health", res)
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode cluster health: %w", err)
	}
	if parsed.Status == "red" {
		return fmt.Errorf("cluster health is red")
	}
	return nil
}

// EnsureIndices creates every index with its mapping. Existing indices are left alone.
func (c *Client) EnsureIndices(ctx context.Context) error {
	for name, mapping := range c.mappings() {
		res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("check index %s: %w", name, err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		res, err = c.es.Indices.Create(name,
			c.es.Indices.Create.WithContext(ctx),
			c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
		)
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		if res.IsError() {
			body := readBody(res)
			res.Body.Close()
			if strings.Contains(body, "resource_already_exists_exception") {
				continue
			}
			return fmt.Errorf("create index %s failed: %s", name, strings.TrimSpace(body))
		}
		res.Body.Close()
		c.log.Info("index created", slog.String("index", name))
	}
	return nil
}

func (c *Client) mappings() map[string]string {
	return map[string]string{
		c.idx.Articles: `{"mappings":{"properties":{
			"id":{"type":"keyword"},
			"title":{"type":"text","fields":{"keyword":{"type":"keyword","ignore_above":512}}},
			"description":{"type":"text"},
			"summary":{"type":"text"},
			"content":{"type":"text"},
			"url":{"type":"keyword"},
			"source":{"properties":{"name":{"type":"keyword"},"url":{"type":"keyword"}}},
			"publishedAt":{"type":"date"},
			"category":{"type":"keyword"},
			"dedupHash":{"type":"keyword"},
			"sentiment":{"type":"keyword"},
			"keywords":{"type":"keyword"},
			"tags":{"type":"keyword"},
			"views":{"type":"long"},
			"popularity":{"type":"float"},
			"status":{"type":"keyword"},
			"aiGenerated":{"type":"boolean"},
			"createdAt":{"type":"date"},
			"updatedAt":{"type":"date"},
			"fetchedAt":{"type":"date"}}}}`,
		c.idx.Comments: `{"mappings":{"properties":{
			"id":{"type":"keyword"},
			"articleId":{"type":"keyword"},
			"text":{"type":"text"},
			"authorName":{"type":"keyword"},
			"createdAt":{"type":"date"}}}}`,
		c.idx.Analyses: `{"mappings":{"properties":{
			"id":{"type":"keyword"},
			"articleId":{"type":"keyword"},
			"category":{"type":"keyword"},
			"summary":{"type":"text"},
			"keyPoints":{"type":"text"},
			"keywords":{"type":"keyword"},
			"sentiment":{"type":"keyword"},
			"sentimentScore":{"type":"float"},
			"confidence":{"type":"float"},
			"relatedTopics":{"type":"keyword"},
			"reliability":{"type":"object","enabled":false},
			"classification":{"type":"object","enabled":false},
			"processedAt":{"type":"date"},
			"processingTime":{"type":"long"},
			"success":{"type":"boolean"}}}}`,
		c.idx.Categories: `{"mappings":{"properties":{
			"id":{"type":"keyword"},
			"name":{"type":"keyword"},
			"displayName":{"type":"text"},
			"color":{"type":"keyword"},
			"icon":{"type":"keyword"}}}}`,
		c.idx.SearchLogs: `{"mappings":{"properties":{
			"id":{"type":"keyword"},
			"query":{"type":"keyword"},
			"category":{"type":"keyword"},
			"resultCount":{"type":"integer"},
			"userId":{"type":"keyword"},
			"ip":{"type":"keyword"},
			"timestamp":{"type":"date"}}}}`,
	}
}

// search runs a query body against index and decodes the response into out.
func (c *Client) search(ctx context.Context, index string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("search "+index, res)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

// hits is the common envelope of a search response over documents of type T.
type hits[T any] struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string `json:"_id"`
			Source T      `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (h hits[T]) items() []T {
	out := make([]T, 0, len(h.Hits.Hits))
	for _, hit := range h.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out
}

type termBucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// writeOptions control how a document write is issued.
type writeOptions struct {
	create  bool
	refresh bool
}

func (c *Client) index(ctx context.Context, index, id string, doc any, opts writeOptions) (*esapi.Response, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}
	if opts.refresh {
		req.Refresh = "wait_for"
	}
	if opts.create {
		req.OpType = "create"
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("index doc: %w", err)
	}
	return res, nil
}

func responseError(op string, res *esapi.Response) error {
	return fmt.Errorf("%s failed: %s", op, strings.TrimSpace(readBody(res)))
}

func readBody(res *esapi.Response) string {
	if res == nil || res.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(data)
}

func matchAll() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func boolQuery(must, filter, mustNot []map[string]any) map[string]any {
	q := map[string]any{}
	if len(must) > 0 {
		q["must"] = must
	}
	if len(filter) > 0 {
		q["filter"] = filter
	}
	if len(mustNot) > 0 {
		q["must_not"] = mustNot
	}
	if len(q) == 0 {
		return matchAll()
	}
	return map[string]any{"bool": q}
}
