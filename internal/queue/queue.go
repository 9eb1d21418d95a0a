// Package queue carries article analysis requests over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// AnalysisRequest asks the worker to analyse one article.
type AnalysisRequest struct {
	ArticleID   string    `json:"articleId"`
	Force       bool      `json:"force"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Decode parses a queue message value.
func Decode(value []byte) (AnalysisRequest, error) {
	var req AnalysisRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return AnalysisRequest{}, fmt.Errorf("decode analysis request: %w", err)
	}
	req.ArticleID = strings.TrimSpace(req.ArticleID)
	if req.ArticleID == "" {
		return AnalysisRequest{}, errors.New("analysis request without articleId")
	}
	return req, nil
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher enqueues analysis requests, keyed by article ID so requests for
// one article land on one partition.
type Publisher struct {
	w   MessageWriter
	now func() time.Time
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			MaxAttempts:            3,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{w: w, now: time.Now}
}

// Publish enqueues one request per article ID.
func (p *Publisher) Publish(ctx context.Context, force bool, articleIDs ...string) error {
	if len(articleIDs) == 0 {
		return nil
	}

	now := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(articleIDs))
	for _, id := range articleIDs {
		value, err := json.Marshal(AnalysisRequest{ArticleID: id, Force: force, RequestedAt: now})
		if err != nil {
			return fmt.Errorf("marshal analysis request: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(id), Value: value})
	}

	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish analysis requests: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
