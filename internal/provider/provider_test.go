package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/newsdesk/backend/internal/provider"
)

type stubGenerator struct {
	text   string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.text, s.err
}

func TestGeminiParsesEmbeddedArray(t *testing.T) {
	gen := &stubGenerator{text: "Voici les news:\n```json\n[{\"title\":\" Titre \",\"description\":\"desc\",\"content\":\"\",\"url\":\"https://a.fr/1\",\"source\":\"AFP\"},{\"title\":\"B\",\"source\":{\"name\":\"x\"}}]\n```"}
	g := provider.NewGeminiWithGenerator(gen, time.Second)

	items, err := g.Fetch(context.Background(), "technology", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Titre", items[0].Title)
	require.Equal(t, "AFP", items[0].Source)
	require.Equal(t, "https://a.fr/1", items[0].URL)
	require.Empty(t, items[1].Source)
	require.Contains(t, gen.prompt, `"technology"`)
	require.Contains(t, gen.prompt, "Donne-moi 2 actualités")
	require.Equal(t, "Gemini", g.Name())
}

func TestGeminiErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{name: "no array", gen: &stubGenerator{text: "désolé, pas de news"}},
		{name: "broken json", gen: &stubGenerator{text: "[{\"title\": }]"}},
		{name: "upstream", gen: &stubGenerator{err: errors.New("quota exceeded")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.NewGeminiWithGenerator(tt.gen, time.Second).Fetch(context.Background(), "general", 5)
			require.Error(t, err)
		})
	}

	_, err := provider.NewGeminiWithGenerator(&stubGenerator{text: "rien"}, 0).Fetch(context.Background(), "general", 5)
	require.ErrorIs(t, err, provider.ErrInvalidResponse)
}

func TestNewProvidersRequireKeys(t *testing.T) {
	_, err := provider.NewGemini(context.Background(), "", "gemini-2.5-flash", time.Second)
	require.Error(t, err)
	_, err = provider.NewOpenAI("", "gpt-3.5-turbo", "http://x", time.Second)
	require.Error(t, err)
}

func TestOpenAIFetch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[{\"title\":\"Sommet\",\"content\":\"texte\"}]"}}]}`))
	}))
	defer srv.Close()

	o, err := provider.NewOpenAI("sk-test", "gpt-3.5-turbo", srv.URL+"/", time.Second)
	require.NoError(t, err)

	items, err := o.Fetch(context.Background(), "politics", 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Sommet", items[0].Title)
	require.Equal(t, "gpt-3.5-turbo", got["model"])
	require.EqualValues(t, 2000, got["max_tokens"])
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o, err := provider.NewOpenAI("sk-test", "gpt-3.5-turbo", srv.URL, time.Second)
	require.NoError(t, err)

	_, err = o.Fetch(context.Background(), "politics", 3)
	require.ErrorContains(t, err, "429")
}

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Flux test</title>
  <item>
    <title>Premier &amp; titre</title>
    <link>https://news.test/1</link>
    <description><![CDATA[<p>Une <b>description</b></p><script>x()</script>]]></description>
    <pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Second</title>
    <link>https://news.test/2</link>
    <description>texte brut</description>
  </item>
</channel>
</rss>`

func TestRSSFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	feeds := []provider.Feed{
		{Name: "Test", URL: srv.URL + "/ok", Category: "technology"},
		{Name: "Cassé", URL: srv.URL + "/broken", Category: "technology"},
		{Name: "Autre", URL: srv.URL + "/ok", Category: "sports"},
	}
	r := provider.NewRSS(feeds, time.Second, nil)

	items, err := r.Fetch(context.Background(), "Technology", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Premier & titre", items[0].Title)
	require.Equal(t, "Une description", items[0].Description)
	require.Equal(t, "https://news.test/1", items[0].URL)
	require.Equal(t, "Test", items[0].Source)
	require.Equal(t, "technology", items[0].Category)
	require.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), items[0].PublishedAt)

	all, err := r.Fetch(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	onlyBroken := provider.NewRSS(feeds[1:2], time.Second, nil)
	_, err = onlyBroken.Fetch(context.Background(), "", 5)
	require.Error(t, err)
}

func TestLoadFeeds(t *testing.T) {
	def, err := provider.LoadFeeds("")
	require.NoError(t, err)
	require.NotEmpty(t, def)

	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds:\n  - name: A\n    url: https://a.test/rss\n    category: Sports\n  - name: vide\n"), 0o600))
	feeds, err := provider.LoadFeeds(path)
	require.NoError(t, err)
	require.Equal(t, []provider.Feed{{Name: "A", URL: "https://a.test/rss", Category: "sports"}}, feeds)

	_, err = provider.LoadFeeds(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = provider.ParseFeeds([]byte("feeds: []"))
	require.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	tests := map[string]string{
		"plain   text\n here":              "plain text here",
		"<p>Hello <i>world</i></p>":        "Hello world",
		"Tom &amp; Jerry":                  "Tom & Jerry",
		"<div><style>p{}</style>ok</div>": "ok",
		"":                                 "",
	}
	for in, want := range tests {
		require.Equal(t, want, provider.HTMLToText(in), in)
	}
}
