package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/cache"
	"github.com/DeafMist/newsdesk/backend/internal/config"
	"github.com/DeafMist/newsdesk/backend/internal/models"
	"github.com/DeafMist/newsdesk/backend/internal/queue"
)

type stubProcessor struct {
	calls  []string
	forced []bool
	result models.Analysis
	err    error
}

func (s *stubProcessor) ProcessArticle(_ context.Context, id string, force bool) (models.Analysis, bool, error) {
	s.calls = append(s.calls, id)
	s.forced = append(s.forced, force)
	if s.err != nil {
		return models.Analysis{}, false, s.err
	}
	a := s.result
	a.ArticleID = id
	return a, false, nil
}

func testDeps() (*slog.Logger, *cache.Cache, *config.Worker) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return log, cache.New(100), &config.Worker{DedupeTTL: time.Hour}
}

func message(t *testing.T, id string, force bool) kafka.Message {
	t.Helper()
	data, err := json.Marshal(queue.AnalysisRequest{ArticleID: id, Force: force})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(id), Value: data}
}

func TestProcessMessageAnalysesArticle(t *testing.T) {
	log, seen, cfg := testDeps()
	proc := &stubProcessor{result: models.Analysis{Success: true, Sentiment: models.SentimentPositive}}

	require.NoError(t, processMessage(context.Background(), log, proc, seen, cfg, message(t, "a1", false)))
	require.Equal(t, []string{"a1"}, proc.calls)

	_, ok := seen.Get("a1")
	require.True(t, ok)
}

func TestProcessMessageSkipsRecentDuplicate(t *testing.T) {
	log, seen, cfg := testDeps()
	proc := &stubProcessor{result: models.Analysis{Success: true}}

	require.NoError(t, processMessage(context.Background(), log, proc, seen, cfg, message(t, "a1", false)))
	require.NoError(t, processMessage(context.Background(), log, proc, seen, cfg, message(t, "a1", false)))
	require.Len(t, proc.calls, 1)

	require.NoError(t, processMessage(context.Background(), log, proc, seen, cfg, message(t, "a1", true)))
	require.Len(t, proc.calls, 2)
	require.True(t, proc.forced[1])
}

func TestProcessMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		value   []byte
		proc    *stubProcessor
		wantErr bool
	}{
		{name: "malformed json", value: []byte("{"), proc: &stubProcessor{}, wantErr: true},
		{name: "missing id", value: []byte(`{"articleId":"  "}`), proc: &stubProcessor{}, wantErr: true},
		{name: "article gone", value: []byte(`{"articleId":"a1"}`), proc: &stubProcessor{err: apperr.NotFound("article not found")}},
		{name: "store failure", value: []byte(`{"articleId":"a1"}`), proc: &stubProcessor{err: errors.New("es down")}, wantErr: true},
		{name: "unpersisted analysis", value: []byte(`{"articleId":"a1"}`), proc: &stubProcessor{result: models.Analysis{Success: false}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, seen, cfg := testDeps()
			err := processMessage(context.Background(), log, tt.proc, seen, cfg, kafka.Message{Value: tt.value})
			if tt.wantErr {
				require.Error(t, err)
				_, ok := seen.Get("a1")
				require.False(t, ok)
				return
			}
			require.NoError(t, err)
		})
	}
}

type flakyWriter struct {
	failures int
	written  []kafka.Message
}

func (w *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func TestSendToDLQ(t *testing.T) {
	log, _, _ := testDeps()
	w := &flakyWriter{}
	msg := kafka.Message{Value: []byte(`{"articleId":"a1"}`), Partition: 2, Offset: 41}

	require.True(t, sendToDLQ(context.Background(), log, w, msg, errors.New("boom"), 3))
	require.Len(t, w.written, 1)

	headers := map[string]string{}
	for _, h := range w.written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "2", headers["original_partition"])
	require.Equal(t, "41", headers["original_offset"])
	require.Equal(t, "boom", headers["error"])
}

func TestSendToDLQStopsOnCancel(t *testing.T) {
	log, _, _ := testDeps()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &flakyWriter{failures: 10}
	require.False(t, sendToDLQ(ctx, log, w, kafka.Message{}, errors.New("boom"), 5))
	require.Empty(t, w.written)
}

func TestSendToDLQLeavesSourceHeadersUntouched(t *testing.T) {
	log, _, _ := testDeps()
	headers := make([]kafka.Header, 1, 8)
	headers[0] = kafka.Header{Key: "trace", Value: []byte("t-1")}
	msg := kafka.Message{Value: []byte(`{"articleId":"a1"}`), Headers: headers}

	w := &flakyWriter{}
	require.True(t, sendToDLQ(context.Background(), log, w, msg, errors.New("boom"), 1))

	require.Len(t, msg.Headers, 1)
	require.Equal(t, kafka.Header{}, headers[:2][1])
	require.Len(t, w.written[0].Headers, 5)
	require.Equal(t, "trace", w.written[0].Headers[0].Key)
}
