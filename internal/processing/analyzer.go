package processing

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/DeafMist/newsdesk/backend/internal/models"
)

const (
	DefaultKeywordLimit     = 10
	DefaultKeywordMinLength = 4
	DefaultSummaryLength    = 200

	keyPointMinLength = 30
	keyPointFallback  = 3
	keyPointMax       = 5
	relatedTopicMax   = 8
	alternativesMax   = 2

	// AnalysisConfidence is reported for every successful heuristic run.
	AnalysisConfidence = 0.85

	// NoKeyPoints stands in when no sentence is long enough to qualify.
	NoKeyPoints = "Aucun point clé identifié."
)

// Analyzer runs the text heuristics against one lexicon.
type Analyzer struct {
	lex *Lexicon
}

// NewAnalyzer binds an analyzer to a lexicon. A nil lexicon selects the embedded default.
func NewAnalyzer(lex *Lexicon) *Analyzer {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Analyzer{lex: lex}
}

// Lexicon exposes the tables the analyzer was built with.
func (a *Analyzer) Lexicon() *Lexicon {
	return a.lex
}

// ExtractKeywords returns up to limit unique tokens ordered by descending
// frequency. Ties keep first-occurrence order.
func (a *Analyzer) ExtractKeywords(text string, limit, minLen int) []string {
	if limit <= 0 {
		limit = DefaultKeywordLimit
	}
	if minLen <= 0 {
		minLen = DefaultKeywordMinLength
	}

	type kv struct {
		word  string
		count int
	}

	index := make(map[string]int)
	var pairs []kv
	for _, token := range Tokenize(text) {
		if runeLen(token) < minLen || a.lex.isStopword(token) || isNumeric(token) {
			continue
		}
		if i, ok := index[token]; ok {
			pairs[i].count++
			continue
		}
		index[token] = len(pairs)
		pairs = append(pairs, kv{word: token, count: 1})
	}

	if len(pairs) == 0 {
		return []string{}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].count > pairs[j].count
	})

	if limit > len(pairs) {
		limit = len(pairs)
	}
	keywords := make([]string, 0, limit)
	for _, p := range pairs[:limit] {
		keywords = append(keywords, p.word)
	}
	return keywords
}

// SentimentResult is a label with its directional score in [0,1].
type SentimentResult struct {
	Label models.Sentiment `json:"sentiment"`
	Score float64          `json:"score"`
}

// Sentiment counts tokens containing a positive or negative list entry as a
// substring. A token may count for both polarities.
func (a *Analyzer) Sentiment(text string) SentimentResult {
	var pos, neg int
	for _, token := range Tokenize(text) {
		if containsAny(token, a.lex.Sentiment.Positive) {
			pos++
		}
		if containsAny(token, a.lex.Sentiment.Negative) {
			neg++
		}
	}
	return scoreSentiment(pos, neg)
}

func scoreSentiment(pos, neg int) SentimentResult {
	if pos+neg == 0 {
		return SentimentResult{Label: models.SentimentNeutral, Score: 0.5}
	}
	ratio := float64(pos) / float64(pos+neg)
	switch {
	case ratio > 0.6:
		return SentimentResult{Label: models.SentimentPositive, Score: 0.6 + (ratio-0.6)*0.8}
	case ratio < 0.4:
		return SentimentResult{Label: models.SentimentNegative, Score: 0.4 - (0.4-ratio)*0.8}
	default:
		return SentimentResult{Label: models.SentimentNeutral, Score: 0.5}
	}
}

// Summarize concatenates leading sentences while the result stays within
// maxLength runes. When no sentence fits it falls back to a hard cut.
func (a *Analyzer) Summarize(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}

	var b strings.Builder
	length := 0
	for _, sentence := range SplitSentences(text) {
		// the trailing space is trimmed at the end, so it does not count
		next := length + runeLen(sentence) + 1
		if next > maxLength {
			break
		}
		b.WriteString(sentence)
		b.WriteString(". ")
		length = next + 1
	}

	if summary := strings.TrimSpace(b.String()); summary != "" {
		return summary
	}
	return truncateRunes(text, maxLength)
}

// KeyPoints returns sentences that carry an importance indicator, in original
// order. With fewer than three matches it returns the first three sentences.
// Text without any qualifying sentence yields the single NoKeyPoints entry.
func (a *Analyzer) KeyPoints(text string) []string {
	var sentences []string
	for _, s := range SplitSentences(text) {
		if runeLen(s) > keyPointMinLength {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return []string{NoKeyPoints}
	}

	var points []string
	for _, s := range sentences {
		if containsAny(strings.ToLower(s), a.lex.ImportanceIndicators) {
			points = append(points, s)
		}
	}

	if len(points) < keyPointFallback {
		n := min(keyPointFallback, len(sentences))
		return append([]string(nil), sentences[:n]...)
	}
	if len(points) > keyPointMax {
		points = points[:keyPointMax]
	}
	return points
}

// RelatedTopics maps keywords onto the topic dictionary. Output keeps
// first-insertion order and is capped at eight entries.
func (a *Analyzer) RelatedTopics(keywords []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, kw := range keywords {
		lower := strings.ToLower(kw)
		for _, topic := range a.lex.Topics {
			if !containsAny(lower, topic.Terms) {
				continue
			}
			add(topic.Name)
			for _, term := range topic.Terms {
				add(term)
			}
		}
	}

	if len(out) > relatedTopicMax {
		out = out[:relatedTopicMax]
	}
	return out
}

// ReliabilityInput is the article subset the fake-news scorer reads.
type ReliabilityInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
	URL     string `json:"url"`
}

// Reliability scores how trustworthy an article looks. The score is clamped to [0,1].
func (a *Analyzer) Reliability(in ReliabilityInput) models.Reliability {
	rules := a.lex.Reliability
	score := 0.5
	factors := []string{}

	host := hostname(in.URL)
	if host != "" && matchesDomain(host, rules.TrustedDomains) {
		score += 0.3
		factors = append(factors, "known reliable source")
	} else {
		score -= 0.1
		factors = append(factors, "unknown or unreliable source")
	}

	fullText := in.Title + " " + in.Content
	suspicious := 0
	for _, re := range a.lex.sensational {
		if re.MatchString(fullText) {
			suspicious++
		}
	}
	if suspicious > 0 {
		score -= float64(suspicious) * 0.1
		factors = append(factors, pluralize(suspicious, "sensationalism indicator"))
	}

	contentLen := runeLen(in.Content)
	if contentLen < 200 {
		score -= 0.15
		factors = append(factors, "content too short to be informative")
	}
	if contentLen > 1000 {
		score += 0.1
		factors = append(factors, "detailed content")
	}

	if upperRatio(fullText) > 0.15 {
		score -= 0.2
		factors = append(factors, "excessive capitalisation")
	}

	if hasSuspiciousTLD(host, rules.SuspiciousTLDs) {
		score -= 0.2
		factors = append(factors, "suspicious domain")
	}

	score = round2(math.Max(0, math.Min(1, score)))
	return models.Reliability{
		Score:    score,
		Factors:  factors,
		Reliable: score >= 0.6,
	}
}

// Classify scores every category by whole-word keyword hits in title and content.
func (a *Analyzer) Classify(title, content string) models.Classification {
	text := title + " " + content

	type scored struct {
		name  string
		score float64
	}
	scores := make([]scored, len(a.lex.Categories))
	for i, cat := range a.lex.Categories {
		total := 0.0
		for _, re := range a.lex.phrases[i] {
			total += float64(countWholeWord(re, text)) * cat.Weight
		}
		scores[i] = scored{name: cat.Name, score: total}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if len(scores) == 0 || scores[0].score == 0 {
		return models.Classification{
			Category:     "general",
			Confidence:   0.5,
			Alternatives: []models.CategoryScore{},
		}
	}

	alternatives := make([]models.CategoryScore, 0, alternativesMax)
	for _, s := range scores[1:min(len(scores), alternativesMax+1)] {
		alternatives = append(alternatives, models.CategoryScore{
			Category:   s.name,
			Confidence: confidence(s.score),
		})
	}

	return models.Classification{
		Category:     scores[0].name,
		Confidence:   confidence(scores[0].score),
		Alternatives: alternatives,
	}
}

// Result bundles every heuristic run over one article.
type Result struct {
	Summary        string
	KeyPoints      []string
	Keywords       []string
	Sentiment      SentimentResult
	RelatedTopics  []string
	Reliability    models.Reliability
	Classification models.Classification
}

// Analyze runs the full heuristic pipeline on an article.
func (a *Analyzer) Analyze(in ReliabilityInput) Result {
	text := in.Title + " " + in.Content
	keywords := a.ExtractKeywords(text, DefaultKeywordLimit, DefaultKeywordMinLength)
	return Result{
		Summary:        a.Summarize(in.Content, DefaultSummaryLength),
		KeyPoints:      a.KeyPoints(in.Content),
		Keywords:       keywords,
		Sentiment:      a.Sentiment(text),
		RelatedTopics:  a.RelatedTopics(keywords),
		Reliability:    a.Reliability(in),
		Classification: a.Classify(in.Title, in.Content),
	}
}

func wholeWordPattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(` + regexp.QuoteMeta(strings.TrimSpace(phrase)) + `)(?:[^\p{L}\p{N}_]|$)`)
}

// countWholeWord counts non-overlapping matches; the trailing boundary
// character is not consumed so adjacent occurrences are all counted.
func countWholeWord(re *regexp.Regexp, text string) int {
	n, pos := 0, 0
	for pos < len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil || loc[3] <= 0 {
			break
		}
		n++
		pos += loc[3]
	}
	return n
}

func confidence(score float64) float64 {
	return round2(math.Min(score/10, 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return token != ""
}

func hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func hasSuspiciousTLD(host string, tlds []string) bool {
	if host == "" {
		return false
	}
	for _, tld := range tlds {
		if strings.HasSuffix(host, "."+strings.TrimPrefix(strings.ToLower(tld), ".")) {
			return true
		}
	}
	return false
}

func upperRatio(text string) float64 {
	total, upper := 0, 0
	for _, r := range text {
		total++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(upper) / float64(total)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
