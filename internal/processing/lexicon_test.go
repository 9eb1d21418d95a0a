package processing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DeafMist/newsdesk/backend/internal/processing"
	"github.com/stretchr/testify/require"
)

const customLexicon = `
version: 1
stopwords: [ignore]
sentiment:
  positive: [sunny]
  negative: [storm]
importance_indicators: [notable]
topics:
  - name: weather
    terms: [rain, wind]
categories:
  - name: weather
    keywords: [storm, heatwave]
  - name: travel
    weight: 2
    keywords: [flight]
reliability:
  trusted_domains: [example.org]
  suspicious_tlds: [zz]
  sensational_patterns: ['SHOCKING']
`

func TestDefaultLexicon(t *testing.T) {
	lex := processing.DefaultLexicon()
	require.Positive(t, lex.Version)
	require.NotEmpty(t, lex.Stopwords)
	require.Len(t, lex.Categories, 6)
	require.Len(t, lex.Reliability.SensationalPatterns, 4)
	require.Len(t, lex.ImportanceIndicators, 18)
}

func TestLoadLexiconEmptyPathUsesDefault(t *testing.T) {
	lex, err := processing.LoadLexicon("")
	require.NoError(t, err)
	require.Equal(t, processing.DefaultLexicon().Version, lex.Version)
}

func TestLoadLexiconFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customLexicon), 0o600))

	lex, err := processing.LoadLexicon(path)
	require.NoError(t, err)
	require.Equal(t, 1, lex.Version)

	a := processing.NewAnalyzer(lex)
	require.Equal(t, []string{"heavy", "rainfall"}, a.ExtractKeywords("ignore heavy rainfall ignore", 5, 4))
	require.Equal(t, "negative", string(a.Sentiment("storms tonight").Label))
	require.Equal(t, []string{"weather", "rain", "wind"}, a.RelatedTopics([]string{"rainfall"}))

	got := a.Classify("storm and heatwave", "one flight")
	require.Equal(t, "travel", got.Alternatives[0].Category)
	require.Equal(t, "weather", got.Category)
	require.InDelta(t, 0.2, got.Confidence, 1e-9)
	require.InDelta(t, 0.2, got.Alternatives[0].Confidence, 1e-9)

	rel := a.Reliability(processing.ReliabilityInput{Title: "shocking", URL: "https://news.example.org"})
	require.Contains(t, rel.Factors, "known reliable source")
	require.Contains(t, rel.Factors, "1 sensationalism indicator")
}

func TestLoadLexiconErrors(t *testing.T) {
	_, err := processing.LoadLexicon(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = processing.ParseLexicon([]byte("stopwords: {not: a list"))
	require.Error(t, err)

	_, err = processing.ParseLexicon([]byte("reliability:\n  sensational_patterns: ['(unclosed']\n"))
	require.ErrorContains(t, err, "sensational pattern")

	_, err = processing.ParseLexicon([]byte("categories:\n  - keywords: [x]\n"))
	require.ErrorContains(t, err, "no name")
}
