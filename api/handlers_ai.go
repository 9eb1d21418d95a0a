package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DeafMist/newsdesk/backend/internal/apperr"
	"github.com/DeafMist/newsdesk/backend/internal/processing"
)

const (
	maxBatchArticles   = 10
	defaultTrendDays   = 30
	maxTrendDays       = 365
	defaultKeywordsCap = 20
	maxKeywordsCap     = 50
)

type batchRequest struct {
	ArticleIDs     []string `json:"articleIds"`
	ForceReanalyze bool     `json:"forceReanalyze"`
}

type textRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
	URL     string `json:"url"`
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	force := parseBool(r.URL.Query().Get("force"))
	a, reused, err := s.ai.ProcessArticle(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"analysis": a, "fromCache": reused})
}

func (s *server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.ai.Latest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"analysis": a})
}

func (s *server) handleBatchAnalyze(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ids := make([]string, 0, len(req.ArticleIDs))
	for _, id := range req.ArticleIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	switch {
	case len(ids) == 0:
		s.writeError(w, r, apperr.Validation("articleIds must be a non-empty array"))
		return
	case len(ids) > maxBatchArticles:
		s.writeError(w, r, apperr.Validation("at most 10 articles per batch"))
		return
	}

	analyses, err := s.ai.BatchAnalyze(r.Context(), ids, req.ForceReanalyze)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{
		"analyses":  analyses,
		"processed": len(analyses),
		"total":     len(ids),
	})
}

func (s *server) handleAIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ai.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"stats": stats})
}

func (s *server) handleSentimentTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	trends, err := s.ai.SentimentTrends(r.Context(),
		strings.TrimSpace(q.Get("category")),
		clampInt(q.Get("days"), defaultTrendDays, maxTrendDays),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"trends": trends})
}

func (s *server) handlePopularKeywords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keywords, err := s.ai.PopularKeywords(r.Context(),
		strings.TrimSpace(q.Get("category")),
		clampInt(q.Get("limit"), defaultKeywordsCap, maxKeywordsCap),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"keywords": keywords})
}

func (s *server) handleAIHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := s.ai.CheckHealth(ctx)
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, envelope{"ok": status == http.StatusOK, "health": health})
}

func (s *server) handleFakeNews(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		s.writeError(w, r, apperr.Validation("title or content is required"))
		return
	}

	reliability := s.ai.DetectFakeNews(processing.ReliabilityInput{
		Title:   req.Title,
		Content: req.Content,
		Source:  req.Source,
		URL:     req.URL,
	})
	writeOK(w, http.StatusOK, envelope{"reliability": reliability})
}

func (s *server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		s.writeError(w, r, apperr.Validation("title or content is required"))
		return
	}
	writeOK(w, http.StatusOK, envelope{"classification": s.ai.Classify(req.Title, req.Content)})
}
