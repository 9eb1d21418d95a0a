package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DeafMist/newsdesk/backend/internal/elasticsearch"
	"github.com/DeafMist/newsdesk/backend/internal/ingest"
	"github.com/DeafMist/newsdesk/backend/internal/news"
)

const defaultFetchCategory = "informatique"

type fetchRequest struct {
	Category     string `json:"category"`
	ForceRefresh bool   `json:"forceRefresh"`
	Limit        int    `json:"limit"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	es := "up"
	if err := s.store.Health(ctx); err != nil {
		es = "down"
	}
	writeOK(w, http.StatusOK, envelope{
		"message":       "Newsdesk API is running",
		"elasticsearch": es,
	})
}

func (s *server) handleListNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.news.ListArticles(r.Context(), elasticsearch.ArticleQuery{
		Category: strings.TrimSpace(q.Get("category")),
		Status:   strings.TrimSpace(q.Get("status")),
		Source:   strings.TrimSpace(q.Get("source")),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		SortBy:   strings.TrimSpace(q.Get("sortBy")),
		Order:    strings.TrimSpace(q.Get("order")),
		Limit:    clampInt(q.Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Offset:   clampInt(q.Get("offset"), 0, 10_000),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"articles": page.Articles, "total": page.Total})
}

func (s *server) handleTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	articles, err := s.news.Trending(r.Context(),
		strings.TrimSpace(q.Get("category")),
		clampInt(q.Get("limit"), news.DefaultTrendingLimit, news.MaxTrendingLimit),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"articles": articles})
}

func (s *server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.news.GetArticle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"article": article})
}

func (s *server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var in news.CreateArticleInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	article, err := s.news.CreateArticle(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"article": article})
}

func (s *server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	var in news.UpdateArticleInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	article, err := s.news.UpdateArticle(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"article": article})
}

func (s *server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := s.news.DeleteArticle(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"message": "article deleted"})
}

func (s *server) handleIncrementViews(w http.ResponseWriter, r *http.Request) {
	if err := s.news.IncrementViews(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(r.URL.Query().Get("limit"), news.MaxSimilar, news.MaxSimilar)
	articles, err := s.news.SimilarArticles(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"articles": articles})
}

func (s *server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.news.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"comments": comments})
}

func (s *server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var in news.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	comment, err := s.news.AddComment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"comment": comment})
}

func (s *server) handleFetchAINews(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		category = defaultFetchCategory
	}
	limit := req.Limit
	if limit <= 0 {
		limit = ingest.DefaultLimit
	}
	limit = min(limit, s.cfg.FetchLimit)

	res := s.fetch.Fetch(r.Context(), category, limit, req.ForceRefresh)
	if !res.Success {
		writeJSON(w, http.StatusOK, envelope{"ok": false, "message": res.Message})
		return
	}
	writeOK(w, http.StatusOK, envelope{
		"message":    res.Message,
		"addedCount": len(res.Articles),
		"articles":   res.Articles,
		"source":     res.Source,
	})
}

func (s *server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.news.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"categories": categories})
}

func (s *server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in news.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	category, err := s.news.CreateCategory(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"category": category})
}

func (s *server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in news.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	category, err := s.news.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"category": category})
}

func (s *server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.news.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"message": "category deleted"})
}

func (s *server) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	cleared := s.news.ClearCache()
	writeOK(w, http.StatusOK, envelope{"cleared": cleared})
}
