package elasticsearch

import (
	"context"

	"github.com/DeafMist/newsdesk/backend/internal/models"
)

const maxCommentsPerArticle = 500

// AddComment stores a comment. The write is visible to the next listing.
func (c *Client) AddComment(ctx context.Context, cm models.Comment) error {
	res, err := c.index(ctx, c.idx.Comments, cm.ID, cm, writeOptions{refresh: true})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("add comment", res)
	}
	return nil
}

// ListComments returns an article's comments, oldest first.
func (c *Client) ListComments(ctx context.Context, articleID string) ([]models.Comment, error) {
	body := map[string]any{
		"size":  maxCommentsPerArticle,
		"query": boolQuery(nil, []map[string]any{term("articleId", articleID)}, nil),
		"sort": []map[string]any{
			{"createdAt": map[string]any{"order": "asc"}},
		},
	}

	var parsed hits[models.Comment]
	if err := c.search(ctx, c.idx.Comments, body, &parsed); err != nil {
		return nil, err
	}
	return parsed.items(), nil
}
