package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/queue"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/scheduler"
)

func (s *Server) handleIngest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.scheduler.FetchAndScheduleBatch(r.Context())
		if err != nil {
			s.logger.Error("ingest trigger failed", "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success":   false,
				"error":     err.Error(),
				"total":     0,
				"scheduled": 0,
				"failed":    0,
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"total":     res.TotalCandidates,
			"scheduled": res.Scheduled,
			"failed":    res.Failed,
		})
	}
}

func (s *Server) handlePublish() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.scheduler.PublishDue(r.Context())
		if err != nil {
			s.logger.Error("publish trigger failed", "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success":   false,
				"error":     err.Error(),
				"published": res.Published,
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"published": res.Published,
		})
	}
}

func (s *Server) handlePending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := s.scheduler.ListPending(r.Context())
		if err != nil {
			s.logger.Error("list pending failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list pending articles")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"pending": pending})
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				respondError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		history, err := s.scheduler.ListHistory(r.Context(), limit)
		if err != nil {
			s.logger.Error("list history failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list history")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
	}
}

type ScheduleRequest struct {
	ArticleID   string `json:"articleId"`
	PublishTime string `json:"publishTime"`
}

func (s *Server) handleSchedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ArticleID == "" {
			respondError(w, http.StatusBadRequest, "articleId is required")
			return
		}
		publishTime, err := time.Parse(time.RFC3339, req.PublishTime)
		if err != nil {
			respondError(w, http.StatusBadRequest, "publishTime must be RFC3339")
			return
		}

		res := s.scheduler.ScheduleManually(r.Context(), req.ArticleID, publishTime)
		status := http.StatusOK
		switch {
		case res.Success:
		case errors.Is(res.Err, scheduler.ErrArticleNotFound):
			status = http.StatusNotFound
		case errors.Is(res.Err, queue.ErrAlreadyPublished):
			status = http.StatusConflict
		default:
			status = http.StatusInternalServerError
		}
		respondJSON(w, status, res)
	}
}
