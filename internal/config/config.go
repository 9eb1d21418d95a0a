package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Indices names every Elasticsearch index the services touch.
type Indices struct {
	Articles   string
	Comments   string
	Analyses   string
	Categories string
	SearchLogs string
}

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr string
	Indices           Indices
	LexiconPath       string
}

// Kafka describes the analysis queue.
type Kafka struct {
	Brokers       []string
	AnalysisTopic string
}

// Worker holds configuration for the analysis consumer.
type Worker struct {
	Common
	Kafka
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	MaxAttempts    int
	CommitInterval time.Duration
	MetricsAddr    string
}

// CacheTTL is the read-cache lifetime per resource class.
type CacheTTL struct {
	Lists       time.Duration
	Article     time.Duration
	Categories  time.Duration
	Suggestions time.Duration
	Analysis    time.Duration
	Stats       time.Duration
}

// Providers configures the upstream news sources.
type Providers struct {
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAITimeout time.Duration
	FeedsPath     string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Kafka
	Providers
	BindAddr        string
	DefaultPage     int
	MaxPage         int
	CacheCapacity   int
	CacheTTL        CacheTTL
	FetchWindow     time.Duration
	FetchLimit      int
	FetchCategories []string
	CronEnabled     bool
	CronTimezone    string
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval      time.Duration
	MaxAge        time.Duration
	ArchiveMaxAge time.Duration
	BatchSize     int
}

func loadCommon() Common {
	prefix := getEnv("ELASTICSEARCH_INDEX_PREFIX", "newsdesk")
	return Common{
		ElasticsearchAddr: getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		Indices: Indices{
			Articles:   prefix + "_articles",
			Comments:   prefix + "_comments",
			Analyses:   prefix + "_analyses",
			Categories: prefix + "_categories",
			SearchLogs: prefix + "_search_logs",
		},
		LexiconPath: getEnv("LEXICON_PATH", ""),
	}
}

func loadKafka() Kafka {
	return Kafka{
		Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		AnalysisTopic: getEnv("ANALYSIS_TOPIC", "article_analysis"),
	}
}

// DLQTopic is where messages that exhausted their retries are parked.
func (k Kafka) DLQTopic() string {
	return k.AnalysisTopic + "_dlq"
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:         loadCommon(),
		Kafka:          loadKafka(),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "analysis-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 10000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "10m"),
		MaxAttempts:    getInt("WORKER_MAX_ATTEMPTS", 5),
		CommitInterval: getDuration("WORKER_COMMIT_INTERVAL", "2s"),
		MetricsAddr:    getEnv("WORKER_METRICS_ADDR", ":9102"),
	}

	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.MaxAttempts <= 0 {
		return nil, fmt.Errorf("WORKER_MAX_ATTEMPTS must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common: loadCommon(),
		Kafka:  loadKafka(),
		Providers: Providers{
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			GeminiTimeout: getDuration("GEMINI_TIMEOUT", "30s"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAITimeout: getDuration("OPENAI_TIMEOUT", "15s"),
			FeedsPath:     getEnv("FEEDS_PATH", ""),
		},
		BindAddr:      getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:   getInt("API_PAGE_SIZE", 20),
		MaxPage:       getInt("API_MAX_PAGE_SIZE", 100),
		CacheCapacity: getInt("CACHE_CAPACITY", 1000),
		CacheTTL: CacheTTL{
			Lists:       getDuration("CACHE_TTL_LISTS", "5m"),
			Article:     getDuration("CACHE_TTL_ARTICLE", "10m"),
			Categories:  getDuration("CACHE_TTL_CATEGORIES", "30m"),
			Suggestions: getDuration("CACHE_TTL_SUGGESTIONS", "15m"),
			Analysis:    getDuration("CACHE_TTL_ANALYSIS", "1h"),
			Stats:       getDuration("CACHE_TTL_STATS", "30m"),
		},
		FetchWindow:     getDuration("FETCH_WINDOW", "1h"),
		FetchLimit:      getInt("FETCH_LIMIT", 10),
		FetchCategories: splitAndTrim(getEnv("FETCH_CATEGORIES", "general,technology,business,science,health,sports")),
		CronEnabled:     getBool("CRON_ENABLED", true),
		CronTimezone:    getEnv("CRON_TIMEZONE", "Europe/Paris"),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.CacheCapacity <= 0 {
		return nil, fmt.Errorf("CACHE_CAPACITY must be positive")
	}
	if c.FetchLimit <= 0 {
		return nil, fmt.Errorf("FETCH_LIMIT must be positive")
	}
	if _, err := time.LoadLocation(c.CronTimezone); err != nil {
		return nil, fmt.Errorf("CRON_TIMEZONE: %w", err)
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:        loadCommon(),
		Interval:      getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:        getDuration("RETENTION_MAX_AGE", "720h"),
		ArchiveMaxAge: getDuration("RETENTION_ARCHIVE_MAX_AGE", "2160h"),
		BatchSize:     getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.ArchiveMaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_ARCHIVE_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err == nil {
		return d
	}
	fd, ferr := time.ParseDuration(fallback)
	if ferr != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
	}
	return fd
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
