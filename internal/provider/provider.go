// Package provider fetches raw news items from upstream sources.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Provider names as reported in fetch results.
const (
	SourceGemini = "Gemini"
	SourceOpenAI = "OpenAI"
	SourceRSS    = "RSS"
)

// ErrInvalidResponse reports an upstream answer without a JSON array of items.
var ErrInvalidResponse = errors.New("invalid response format")

// RawArticle is one item as returned by a provider, before defaults are applied.
type RawArticle struct {
	Title       string
	Description string
	Content     string
	URL         string
	Source      string
	Category    string
	PublishedAt time.Time
}

// Provider returns up to limit recent items for a category.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, category string, limit int) ([]RawArticle, error)
}

var jsonArray = regexp.MustCompile(`\[[\s\S]*\]`)

const promptTemplate = `Donne-moi %d actualités récentes du domaine "%s" en français.
Format JSON exact:
[
  {
    "title": "Titre de l'actualité",
    "description": "Description courte",
    "content": "Contenu détaillé de l'article",
    "url": "https://example.com",
    "source": "Nom de la source"
  }
]
UNIQUEMENT du JSON valide, aucun autre texte.`

func newsPrompt(category string, limit int) string {
	return fmt.Sprintf(promptTemplate, limit, category)
}

type item struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Content     string          `json:"content"`
	URL         string          `json:"url"`
	Source      json.RawMessage `json:"source"`
}

// parseItems extracts the first-to-last bracketed span of text and decodes it.
// A non-string source is ignored.
func parseItems(text string) ([]RawArticle, error) {
	match := jsonArray.FindString(text)
	if match == "" {
		return nil, ErrInvalidResponse
	}

	var items []item
	if err := json.Unmarshal([]byte(match), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	out := make([]RawArticle, 0, len(items))
	for _, it := range items {
		var source string
		_ = json.Unmarshal(it.Source, &source)
		out = append(out, RawArticle{
			Title:       strings.TrimSpace(it.Title),
			Description: strings.TrimSpace(it.Description),
			Content:     strings.TrimSpace(it.Content),
			URL:         strings.TrimSpace(it.URL),
			Source:      strings.TrimSpace(source),
		})
	}
	return out, nil
}
