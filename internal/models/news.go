package models

import "time"

// Sentiment is the polarity label attached to articles and analyses.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Status is the publication state of an article.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Source names the outlet an article came from.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Article is the canonical document stored in the articles index.
// The document ID is the dedup hash.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      Source    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	Category    string    `json:"category"`
	DedupHash   string    `json:"dedupHash"`
	Sentiment   Sentiment `json:"sentiment,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Views       int64     `json:"views"`
	Popularity  float64   `json:"popularity"`
	Status      Status    `json:"status"`
	AIGenerated bool      `json:"aiGenerated"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// ArticleUpdate carries a partial update. Nil fields are left untouched.
type ArticleUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Summary     *string    `json:"summary,omitempty"`
	Content     *string    `json:"content,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Sentiment   *Sentiment `json:"sentiment,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Popularity  *float64   `json:"popularity,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Comment belongs to exactly one article.
type Comment struct {
	ID         string    `json:"id"`
	ArticleID  string    `json:"articleId"`
	Text       string    `json:"text"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Category is a browsable news section. ID is an accent-folded slug of Name.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
}

// SearchLog records a query issued against the search endpoint.
type SearchLog struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	Category    string    `json:"category,omitempty"`
	ResultCount int       `json:"resultCount"`
	UserID      string    `json:"userId,omitempty"`
	IP          string    `json:"ip"`
	Timestamp   time.Time `json:"timestamp"`
}
