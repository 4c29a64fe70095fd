package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/store"
)

func (s *Server) handleListArticles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		opts := store.QueryOptions{
			PublishedOnly: true,
			Tags:          splitList(q["tags"]),
			Search:        q.Get("q"),
			SortField:     q.Get("sort"),
			SortOrder:     q.Get("order"),
		}
		var err error
		if opts.Page, err = intParam(q.Get("page")); err != nil {
			respondError(w, http.StatusBadRequest, "invalid page")
			return
		}
		if opts.Limit, err = intParam(q.Get("limit")); err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if v := q.Get("published"); v != "" {
			published, err := strconv.ParseBool(v)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid published flag")
				return
			}
			if !published && !s.isAdmin(r) {
				respondError(w, http.StatusForbidden, "unpublished articles require admin access")
				return
			}
			opts.PublishedOnly = published
		}

		page, err := s.articles.Query(r.Context(), opts)
		if errors.Is(err, store.ErrInvalidSort) || errors.Is(err, store.ErrInvalidPage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			s.logger.Error("query articles failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to query articles")
			return
		}
		respondJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleGetArticle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := s.articles.FindByID(r.Context(), r.PathValue("id"))
		if err != nil {
			s.logger.Error("find article failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to load article")
			return
		}
		if a == nil || (!a.IsPublished && !s.isAdmin(r)) {
			respondError(w, http.StatusNotFound, "article not found")
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleListTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := s.articles.ListDistinctTags(r.Context(), true)
		if err != nil {
			s.logger.Error("list tags failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list tags")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.articles.Stats(r.Context())
		if err != nil {
			s.logger.Error("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"time":     s.now().UTC(),
			"articles": stats,
		})
	}
}

// splitList accepts both repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
