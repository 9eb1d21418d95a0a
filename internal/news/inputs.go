package news

import (
	"time"

	"github.com/DeafMist/newsdesk/backend/internal/models"
)

// SourceInput names the outlet of a created article.
type SourceInput struct {
	Name string `json:"name" validate:"max=200"`
	URL  string `json:"url" validate:"omitempty,url"`
}

// CreateArticleInput is the body of an article creation.
type CreateArticleInput struct {
	Title       string      `json:"title" validate:"required,max=500"`
	Description string      `json:"description" validate:"max=5000"`
	Content     string      `json:"content" validate:"required_without=Description"`
	URL         string      `json:"url" validate:"omitempty,url"`
	Source      SourceInput `json:"source"`
	Category    string      `json:"category" validate:"max=64"`
	Status      string      `json:"status" validate:"omitempty,oneof=draft published archived"`
	Tags        []string    `json:"tags" validate:"max=20,dive,max=64"`
	PublishedAt *time.Time  `json:"publishedAt"`
	AIGenerated bool        `json:"aiGenerated"`
}

// UpdateArticleInput is a partial article update; omitted fields are kept.
type UpdateArticleInput struct {
	Title       *string  `json:"title" validate:"omitempty,max=500"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	Summary     *string  `json:"summary"`
	Content     *string  `json:"content"`
	Category    *string  `json:"category" validate:"omitempty,max=64"`
	Status      *string  `json:"status" validate:"omitempty,oneof=draft published archived"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,max=64"`
}

func (in UpdateArticleInput) toUpdate(now time.Time) models.ArticleUpdate {
	upd := models.ArticleUpdate{
		Title:       in.Title,
		Description: in.Description,
		Summary:     in.Summary,
		Content:     in.Content,
		Category:    in.Category,
		Tags:        in.Tags,
		UpdatedAt:   now,
	}
	if in.Status != nil {
		status := models.Status(*in.Status)
		upd.Status = &status
	}
	return upd
}

// CommentInput is the body of a new comment.
type CommentInput struct {
	Text       string `json:"text"`
	AuthorName string `json:"authorName" validate:"max=100"`
}

// CategoryInput is the body of a category create or replace.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"max=128"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Icon        string `json:"icon" validate:"max=64"`
}

// SearchParams drives a full-text search.
type SearchParams struct {
	Query    string
	Category string
	Limit    int
	Offset   int
	UserID   string
	IP       string
}

// SearchLogInput is an explicitly logged search.
type SearchLogInput struct {
	Query       string `json:"query" validate:"required,max=500"`
	Category    string `json:"category" validate:"max=64"`
	ResultCount int    `json:"resultCount" validate:"min=0"`
	UserID      string `json:"userId" validate:"max=128"`
}

// Suggestions are completions for a search prefix.
type Suggestions struct {
	Titles   []string `json:"titles"`
	Keywords []string `json:"keywords"`
}
