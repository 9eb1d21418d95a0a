package models

import "time"

// Reliability is the outcome of the fake-news heuristic.
type Reliability struct {
	Score    float64  `json:"score"`
	Factors  []string `json:"factors"`
	Reliable bool     `json:"reliable"`
}

// CategoryScore is one ranked entry of a classification.
type CategoryScore struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classification is the outcome of the keyword category classifier.
type Classification struct {
	Category     string          `json:"category"`
	Confidence   float64         `json:"confidence"`
	Alternatives []CategoryScore `json:"alternatives"`
}

// Analysis is one heuristic analysis run. Records are append-only;
// the latest successful one for an article is the current analysis.
type Analysis struct {
	ID             string          `json:"id"`
	ArticleID      string          `json:"articleId"`
	Category       string          `json:"category,omitempty"`
	Summary        string          `json:"summary"`
	KeyPoints      []string        `json:"keyPoints"`
	Keywords       []string        `json:"keywords"`
	Sentiment      Sentiment       `json:"sentiment"`
	SentimentScore float64         `json:"sentimentScore"`
	Confidence     float64         `json:"confidence"`
	RelatedTopics  []string        `json:"relatedTopics"`
	Reliability    *Reliability    `json:"reliability,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	ProcessedAt    time.Time       `json:"processedAt"`
	ProcessingTime int64           `json:"processingTime"`
	Success        bool            `json:"success"`
}

// AnalysisStats summarises the analyses index.
type AnalysisStats struct {
	TotalAnalyses         int64            `json:"totalAnalyses"`
	SuccessfulAnalyses    int64            `json:"successfulAnalyses"`
	FailedAnalyses        int64            `json:"failedAnalyses"`
	AverageProcessingTime float64          `json:"averageProcessingTime"`
	SentimentDistribution map[string]int64 `json:"sentimentDistribution"`
	PopularKeywords       []string         `json:"popularKeywords"`
	DailyAnalyses         int64            `json:"dailyAnalyses"`
	SuccessRate           float64          `json:"successRate"`
}

// SentimentCounts tallies analyses per sentiment label.
type SentimentCounts struct {
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
	Neutral  int64 `json:"neutral"`
}

// Add increments the counter matching label by n.
func (c *SentimentCounts) Add(label string, n int64) {
	switch Sentiment(label) {
	case SentimentPositive:
		c.Positive += n
	case SentimentNegative:
		c.Negative += n
	default:
		c.Neutral += n
	}
}

// DaySentiment is the per-day bucket of a sentiment trend.
type DaySentiment struct {
	Day    string          `json:"day"`
	Counts SentimentCounts `json:"counts"`
}

// SentimentTrends groups analyses by day.
type SentimentTrends struct {
	ByDay   []DaySentiment  `json:"sentimentByDay"`
	Overall SentimentCounts `json:"overall"`
}

// TermCount pairs a term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// SearchStats summarises the search log.
type SearchStats struct {
	TotalSearches      int64       `json:"totalSearches"`
	UniqueQueries      int64       `json:"uniqueQueries"`
	AverageResultCount float64     `json:"averageResultCount"`
	ZeroResultSearches int64       `json:"zeroResultSearches"`
	TopQueries         []TermCount `json:"topQueries"`
	TopCategories      []TermCount `json:"topCategories"`
}
