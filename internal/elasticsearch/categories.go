package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/models"
)

// ListCategories returns every category ordered by name.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	body := map[string]any{
		"size":  200,
		"query": matchAll(),
		"sort":  []map[string]any{{"name": map[string]any{"order": "asc"}}},
	}

	var parsed hits[models.Category]
	if err := c.search(ctx, c.idx.Categories, body, &parsed); err != nil {
		return nil, err
	}
	return parsed.items(), nil
}

// CreateCategory stores a category under its slug ID. Duplicates conflict.
func (c *Client) CreateCategory(ctx context.Context, cat models.Category) error {
	res, err := c.index(ctx, c.idx.Categories, cat.ID, cat, writeOptions{create: true, refresh: true})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return apperr.Conflict("category already exists")
	}
	if res.IsError() {
		return responseError("create category", res)
	}
	return nil
}

// GetCategory loads a category by ID.
func (c *Client) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	res, err := c.es.Get(c.idx.Categories, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("category not found")
	}
	if res.IsError() {
		return nil, responseError("get category", res)
	}

	var parsed struct {
		Source models.Category `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode category: %w", err)
	}
	return &parsed.Source, nil
}

// PutCategory replaces an existing category.
func (c *Client) PutCategory(ctx context.Context, cat models.Category) error {
	if _, err := c.GetCategory(ctx, cat.ID); err != nil {
		return err
	}

	res, err := c.index(ctx, c.idx.Categories, cat.ID, cat, writeOptions{refresh: true})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("update category", res)
	}
	return nil
}

// DeleteCategory removes a category by ID.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: c.idx.Categories, DocumentID: id, Refresh: "wait_for"}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return apperr.NotFound("category not found")
	}
	if res.IsError() {
		return responseError("delete category", res)
	}
	return nil
}
