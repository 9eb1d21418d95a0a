package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/newsdesk/backend/internal/analysis"
	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/cache"
	"github.com/DeafMist/newsdesk/backend/internal/config"
	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/logger"
	"github.com/DeafMist/newsdesk/backend/internal/metrics"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
	"github.com/DeafMist/newsdesk/backend/internal/queue"
)

type articleProcessor interface {
	ProcessArticle(ctx context.Context, articleID string, force bool) (models.Analysis, bool, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, elasticsearch.Indices(cfg.Indices), log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	lexicon, err := processing.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		log.Error("load lexicon", slog.Any("err", err))
		os.Exit(1)
	}
	svc := analysis.New(esClient, processing.NewAnalyzer(lexicon), log)
	seen := cache.New(cfg.DedupeCapacity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go serveMetrics(log, cfg.MetricsAddr)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.AnalysisTopic,
		GroupID:        cfg.KafkaConsumer,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: cfg.CommitInterval,
	})
	defer reader.Close()

	dlqWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.DLQTopic(),
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.AnalysisTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.DLQTopic()),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, svc, seen, cfg, msg); err != nil {
			if ctx.Err() != nil {
				log.Info("context canceled mid-message, leaving it uncommitted")
				return
			}
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			metrics.QueueMessages.WithLabelValues("failed").Inc()

			// An unparked message stays uncommitted.
			if !sendToDLQ(ctx, log, dlqWriter, msg, err, cfg.MaxAttempts) {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage analyses the article named by msg. Errors are meant for the DLQ;
// requests for deleted articles and recent duplicates are acknowledged silently.
func processMessage(ctx context.Context, log *slog.Logger, proc articleProcessor, seen *cache.Cache, cfg *config.Worker, msg kafka.Message) error {
	req, err := queue.Decode(msg.Value)
	if err != nil {
		return err
	}

	if !req.Force {
		if _, ok := seen.Get(req.ArticleID); ok {
			log.Debug("duplicate analysis request", slog.String("article_id", req.ArticleID))
			metrics.QueueMessages.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	a, reused, err := proc.ProcessArticle(ctx, req.ArticleID, req.Force)
	if err != nil {
		if apperr.IsNotFound(err) {
			log.Warn("article vanished before analysis", slog.String("article_id", req.ArticleID))
			metrics.QueueMessages.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("process article %s: %w", req.ArticleID, err)
	}
	if !a.Success {
		return fmt.Errorf("analysis of article %s was not persisted", req.ArticleID)
	}

	seen.Set(req.ArticleID, struct{}{}, cfg.DedupeTTL)
	metrics.QueueMessages.WithLabelValues("processed").Inc()
	log.Info("article analysed",
		slog.String("article_id", req.ArticleID),
		slog.String("sentiment", string(a.Sentiment)),
		slog.Bool("reused", reused),
	)
	return nil
}

// sendToDLQ parks msg with its failure context, retrying with exponential backoff.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, attempts int) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(slices.Clone(msg.Headers),
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < attempts; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			metrics.QueueMessages.WithLabelValues("dlq").Inc()
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

func serveMetrics(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server stopped", slog.Any("err", err))
	}
}
