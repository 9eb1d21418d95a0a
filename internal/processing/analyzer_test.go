package processing_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
	"github.com/stretchr/testify/require"
)

func newAnalyzer() *processing.Analyzer {
	return processing.NewAnalyzer(nil)
}

func TestExtractKeywords(t *testing.T) {
	a := newAnalyzer()

	got := a.ExtractKeywords("the a is of testing testing coding coding coding", 2, 4)
	require.Equal(t, []string{"coding", "testing"}, got)

	got = a.ExtractKeywords("Le marché, le marché et l'économie en 2024 2024 2024", 10, 4)
	require.Equal(t, []string{"marché", "économie"}, got)

	require.Empty(t, a.ExtractKeywords("", 5, 4))
}

func TestExtractKeywordsTiesKeepFirstSeen(t *testing.T) {
	got := newAnalyzer().ExtractKeywords("gamma alpha beta beta alpha gamma", 0, 0)
	require.Equal(t, []string{"gamma", "alpha", "beta"}, got)
}

func TestExtractKeywordsBounds(t *testing.T) {
	a := newAnalyzer()
	lex := a.Lexicon()
	stop := make(map[string]bool, len(lex.Stopwords))
	for _, w := range lex.Stopwords {
		stop[w] = true
	}

	text := "Le président annonce une réforme de la santé. La réforme vise les hôpitaux et les patients, " +
		"selon le ministre de la santé, qui présente la réforme comme essentielle pour les patients."

	for limit := 1; limit <= 6; limit++ {
		got := a.ExtractKeywords(text, limit, 4)
		require.LessOrEqual(t, len(got), limit)

		seen := make(map[string]bool)
		for _, kw := range got {
			require.False(t, seen[kw], "duplicate keyword %q", kw)
			seen[kw] = true
			require.Greater(t, utf8.RuneCountInString(kw), 3)
			require.False(t, stop[kw], "stopword %q returned", kw)
		}
	}
	require.Equal(t, "réforme", a.ExtractKeywords(text, 1, 4)[0])
}

func TestSentiment(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		label models.Sentiment
		score float64
	}{
		{name: "no hits", text: "rien à signaler ici", label: models.SentimentNeutral, score: 0.5},
		{name: "all positive", text: "succès victoire progrès", label: models.SentimentPositive, score: 0.92},
		{name: "all negative", text: "crise guerre échec", label: models.SentimentNegative, score: 0.08},
		{name: "balanced", text: "crise succès", label: models.SentimentNeutral, score: 0.5},
		{name: "substring match", text: "bonjour", label: models.SentimentPositive, score: 0.92},
	}

	a := newAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Sentiment(tt.text)
			require.Equal(t, tt.label, got.Label)
			require.InDelta(t, tt.score, got.Score, 1e-9)
		})
	}
}

func TestSentimentMonotonic(t *testing.T) {
	a := newAnalyzer()

	base := a.Sentiment("succès victoire progrès")
	require.Equal(t, models.SentimentPositive, base.Label)
	require.Greater(t, base.Score, 0.6)
	require.LessOrEqual(t, base.Score, 1.0)

	more := a.Sentiment("succès victoire progrès espoir joie")
	require.GreaterOrEqual(t, more.Score, base.Score)

	mixed := a.Sentiment("crise succès")
	mixedMore := a.Sentiment("crise succès victoire")
	require.Greater(t, mixedMore.Score, mixed.Score)
}

func TestSummarize(t *testing.T) {
	a := newAnalyzer()

	text := "Première phrase. Deuxième phrase. Troisième phrase."
	require.Equal(t, "Première phrase. Deuxième phrase.", a.Summarize(text, 40))

	require.Equal(t, "Une très l", a.Summarize("Une très longue phrase sans aucune ponctuation", 10))
	require.Equal(t, "...", a.Summarize("...", 10))
	require.Equal(t, "Courte.", a.Summarize("Courte.", 0))
}

func TestSummarizeLengthBound(t *testing.T) {
	a := newAnalyzer()
	text := strings.Repeat("Le marché progresse encore aujourd'hui. Les investisseurs restent prudents! ", 10)

	for _, limit := range []int{20, 50, 80, 120, 200} {
		got := a.Summarize(text, limit)
		require.LessOrEqual(t, utf8.RuneCountInString(got), limit, "limit %d", limit)
		require.NotEmpty(t, got)
	}
}

func TestKeyPoints(t *testing.T) {
	a := newAnalyzer()

	s1 := "Le gouvernement annonce un plan important pour la ville"
	s2 := "Cette découverte révèle un mécanisme inconnu jusqu'ici"
	s3 := "Selon les experts, le résultat reste fragile à long terme"
	plain := "Il fait beau sur la côte atlantique ce matin-là"

	text := strings.Join([]string{s1, plain, s2, "Court", s3}, ". ") + "."
	require.Equal(t, []string{s1, s2, s3}, a.KeyPoints(text))
}

func TestKeyPointsFallback(t *testing.T) {
	a := newAnalyzer()

	sentences := []string{
		"Il fait beau sur la côte atlantique ce matin-là",
		"La mer est calme et les bateaux sont sortis",
		"Les enfants jouent sur la plage toute la journée",
		"Le maire annonce des travaux sur la promenade",
	}
	text := strings.Join(sentences, ". ")
	require.Equal(t, sentences[:3], a.KeyPoints(text))

	require.Equal(t, []string{processing.NoKeyPoints}, a.KeyPoints(""))
	require.Equal(t, []string{processing.NoKeyPoints}, a.KeyPoints("Trop court. Encore court!"))
}

func TestKeyPointsCap(t *testing.T) {
	var sentences []string
	for i := 0; i < 7; i++ {
		sentences = append(sentences, "Un point important à retenir pour tout le monde")
	}
	got := newAnalyzer().KeyPoints(strings.Join(sentences, ". "))
	require.Len(t, got, 5)
}

func TestRelatedTopics(t *testing.T) {
	a := newAnalyzer()

	got := a.RelatedTopics([]string{"croissance", "pollution"})
	require.Equal(t, []string{
		"économie", "finance", "marché", "entreprise", "croissance", "inflation",
		"environnement", "écologie",
	}, got)

	got = a.RelatedTopics([]string{"startups"})
	require.Equal(t, []string{"technologie", "intelligence artificielle", "innovation", "numérique", "startup"}, got)

	require.Empty(t, a.RelatedTopics([]string{"météo"}))
	require.Empty(t, a.RelatedTopics(nil))
}

func TestReliability(t *testing.T) {
	a := newAnalyzer()

	t.Run("trusted detailed", func(t *testing.T) {
		got := a.Reliability(processing.ReliabilityInput{
			Title:   "Le marché progresse",
			Content: strings.Repeat("le marché progresse ", 60),
			URL:     "https://www.lemonde.fr/economie/article",
		})
		require.InDelta(t, 0.9, got.Score, 1e-9)
		require.True(t, got.Reliable)
		require.Equal(t, []string{"known reliable source", "detailed content"}, got.Factors)
	})

	t.Run("sensational clamps to zero", func(t *testing.T) {
		got := a.Reliability(processing.ReliabilityInput{
			Title:   "URGENT: RÉVÉLATION CHOC",
			Content: "100% GARANTI",
			URL:     "http://news.tk/x",
		})
		require.Equal(t, 0.0, got.Score)
		require.False(t, got.Reliable)
		require.Contains(t, got.Factors, "3 sensationalism indicators")
		require.Contains(t, got.Factors, "suspicious domain")
		require.Contains(t, got.Factors, "excessive capitalisation")
	})

	t.Run("malformed url", func(t *testing.T) {
		got := a.Reliability(processing.ReliabilityInput{URL: "://bad url"})
		require.InDelta(t, 0.25, got.Score, 1e-9)
		require.Equal(t, "unknown or unreliable source", got.Factors[0])
	})

	t.Run("lookalike host is not trusted", func(t *testing.T) {
		got := a.Reliability(processing.ReliabilityInput{URL: "https://lemonde.fr.evil.com/a"})
		require.Equal(t, "unknown or unreliable source", got.Factors[0])
	})
}

func TestReliabilityAlwaysClamped(t *testing.T) {
	a := newAnalyzer()
	titles := []string{"", "URGENT SCANDALE", "Un titre calme"}
	contents := []string{"", "100% GARANTI PROUVÉ", strings.Repeat("texte ", 300)}
	urls := []string{"", "https://lemonde.fr/x", "http://promo.ml/y", "%%%"}

	for _, title := range titles {
		for _, content := range contents {
			for _, u := range urls {
				got := a.Reliability(processing.ReliabilityInput{Title: title, Content: content, URL: u})
				require.GreaterOrEqual(t, got.Score, 0.0)
				require.LessOrEqual(t, got.Score, 1.0)
				require.Equal(t, got.Score >= 0.6, got.Reliable)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	a := newAnalyzer()

	tests := []struct {
		name       string
		title      string
		content    string
		category   string
		confidence float64
	}{
		{name: "politics", title: "Le gouvernement et le ministre", content: "préparent une réforme", category: "politics", confidence: 0.3},
		{name: "phrase with apostrophe", title: "", content: "L'intelligence artificielle transforme les données", category: "technology", confidence: 0.2},
		{name: "repeated keyword", title: "VACCIN", content: "vaccin vaccin", category: "health", confidence: 0.3},
		{name: "capped confidence", title: "", content: strings.Repeat("football ", 12), category: "sports", confidence: 1},
		{name: "whole word only", title: "Le footballeur", content: "", category: "general", confidence: 0.5},
		{name: "empty", title: "", content: "", category: "general", confidence: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Classify(tt.title, tt.content)
			require.Equal(t, tt.category, got.Category)
			require.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			if tt.category == "general" {
				require.Empty(t, got.Alternatives)
			}
		})
	}
}

func TestClassifyOrdering(t *testing.T) {
	got := newAnalyzer().Classify(
		"Le ministre visite l'hôpital",
		"Le patient et le médecin parlent de santé et de vaccin avec le ministre",
	)
	require.Equal(t, "health", got.Category)
	require.Len(t, got.Alternatives, 2)
	require.Equal(t, "politics", got.Alternatives[0].Category)
	for _, alt := range got.Alternatives {
		require.GreaterOrEqual(t, got.Confidence, alt.Confidence)
	}
	require.GreaterOrEqual(t, got.Alternatives[0].Confidence, got.Alternatives[1].Confidence)
}

func TestAnalyze(t *testing.T) {
	res := newAnalyzer().Analyze(processing.ReliabilityInput{
		Title:   "Succès pour la startup",
		Content: "La startup annonce un nouveau succès important. Les investisseurs saluent une innovation majeure pour le secteur.",
		URL:     "https://www.lesechos.fr/tech",
	})

	require.NotEmpty(t, res.Summary)
	require.NotEmpty(t, res.Keywords)
	require.Equal(t, []string{"succès", "startup"}, res.Keywords[:2])
	require.Equal(t, models.SentimentPositive, res.Sentiment.Label)
	require.Contains(t, res.RelatedTopics, "technologie")
	require.Equal(t, "technology", res.Classification.Category)
	require.Contains(t, res.Reliability.Factors, "known reliable source")
}
