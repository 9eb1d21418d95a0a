package provider

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"
)

//go:embed feeds.yaml
var defaultFeeds []byte

// Feed is one configured RSS source.
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

type feedsFile struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list from path, or the embedded default when path is empty.
func LoadFeeds(path string) ([]Feed, error) {
	data := defaultFeeds
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read feeds: %w", err)
		}
		data = raw
	}
	return ParseFeeds(data)
}

// ParseFeeds decodes a feeds YAML document.
func ParseFeeds(data []byte) ([]Feed, error) {
	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}

	out := make([]Feed, 0, len(f.Feeds))
	for _, feed := range f.Feeds {
		feed.URL = strings.TrimSpace(feed.URL)
		if feed.URL == "" {
			continue
		}
		feed.Category = strings.ToLower(strings.TrimSpace(feed.Category))
		out = append(out, feed)
	}
	if len(out) == 0 {
		return nil, errors.New("decode feeds: no feed with a url")
	}
	return out, nil
}

// RSS reads items from configured feeds.
type RSS struct {
	feeds   []Feed
	parser  *gofeed.Parser
	timeout time.Duration
	log     *slog.Logger
}

// NewRSS builds an RSS provider over feeds.
func NewRSS(feeds []Feed, timeout time.Duration, logger *slog.Logger) *RSS {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RSS{feeds: feeds, parser: gofeed.NewParser(), timeout: timeout, log: logger}
}

func (r *RSS) Name() string { return SourceRSS }

// Fetch returns up to limit items per feed matching category. An empty
// category reads every feed. Failing feeds are logged and skipped.
func (r *RSS) Fetch(ctx context.Context, category string, limit int) ([]RawArticle, error) {
	category = strings.ToLower(category)

	var out []RawArticle
	ok, tried := 0, 0
	for _, feed := range r.feeds {
		if category != "" && feed.Category != category {
			continue
		}
		tried++

		items, err := r.fetchFeed(ctx, feed, limit)
		if err != nil {
			r.log.Warn("parse feed", slog.String("feed", feed.URL), slog.Any("err", err))
			continue
		}
		ok++
		out = append(out, items...)
	}

	r.log.Info("feeds processed", slog.Int("ok", ok), slog.Int("total", tried), slog.Int("items", len(out)))
	if tried > 0 && ok == 0 {
		return nil, errors.New("every feed failed")
	}
	return out, nil
}

func (r *RSS) fetchFeed(ctx context.Context, feed Feed, limit int) ([]RawArticle, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	parsed, err := r.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, err
	}

	source := feed.Name
	if source == "" {
		source = parsed.Title
	}

	items := parsed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := make([]RawArticle, 0, len(items))
	for _, it := range items {
		raw := RawArticle{
			Title:       HTMLToText(it.Title),
			Description: HTMLToText(it.Description),
			Content:     HTMLToText(it.Content),
			URL:         strings.TrimSpace(it.Link),
			Source:      source,
			Category:    feed.Category,
		}
		if it.PublishedParsed != nil {
			raw.PublishedAt = it.PublishedParsed.UTC()
		}
		out = append(out, raw)
	}
	return out, nil
}

// HTMLToText flattens an HTML fragment to its text with collapsed whitespace.
func HTMLToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
