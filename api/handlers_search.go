package main

import (
	"net/http"
	"strings"

	"github.com/DeafMist/newsdesk/backend/internal/news"
)

const (
	defaultTrendingSearches = 10
	maxTrendingSearches     = 50
	defaultStatsDays        = 7
	maxStatsDays            = 365
)

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := news.SearchParams{
		Query:    q.Get("q"),
		Category: strings.TrimSpace(q.Get("category")),
		Limit:    clampInt(q.Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Offset:   clampInt(q.Get("offset"), 0, 10_000),
		UserID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
		IP:       clientIP(r),
	}

	page, err := s.news.Search(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{
		"query":    strings.TrimSpace(params.Query),
		"articles": page.Articles,
		"total":    page.Total,
	})
}

func (s *server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.news.Suggestions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"suggestions": suggestions})
}

func (s *server) handleTrendingSearches(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(r.URL.Query().Get("limit"), defaultTrendingSearches, maxTrendingSearches)
	trending, err := s.news.TrendingSearches(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"trending": trending})
}

func (s *server) handleLogSearch(w http.ResponseWriter, r *http.Request) {
	var in news.SearchLogInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.news.LogSearch(r.Context(), in, clientIP(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, nil)
}

func (s *server) handleSearchStats(w http.ResponseWriter, r *http.Request) {
	days := clampInt(r.URL.Query().Get("days"), defaultStatsDays, maxStatsDays)
	stats, err := s.news.SearchStats(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"stats": stats})
}
