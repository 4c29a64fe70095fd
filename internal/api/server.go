// Package api provides the REST API server for newsdesk.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/queue"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/scheduler"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/store"
)

// Articles is the read side of the article store.
type Articles interface {
	Query(ctx context.Context, opts store.QueryOptions) (store.Page, error)
	FindByID(ctx context.Context, id string) (*sources.Article, error)
	ListDistinctTags(ctx context.Context, publishedOnly bool) ([]string, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Scheduler runs the ingestion and publication triggers.
type Scheduler interface {
	FetchAndScheduleBatch(ctx context.Context) (scheduler.BatchResult, error)
	PublishDue(ctx context.Context) (scheduler.PublishResult, error)
	ListPending(ctx context.Context) ([]scheduler.PendingArticle, error)
	ListHistory(ctx context.Context, limit int) ([]queue.Entry, error)
	ScheduleManually(ctx context.Context, articleID string, publishTime time.Time) scheduler.ManualResult
}

// Options holds server secrets and presentation settings.
type Options struct {
	CronSecret        string
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string
	TokenTTL          time.Duration
	PublicURL         string
	CORSOrigin        string
}

// Server holds the dependencies for the API.
type Server struct {
	articles  Articles
	scheduler Scheduler
	opts      Options
	jwtSecret []byte
	now       func() time.Time
	logger    *slog.Logger
}

// NewServer creates a new API Server instance.
func NewServer(articles Articles, sched Scheduler, opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	return &Server{
		articles:  articles,
		scheduler: sched,
		opts:      opts,
		jwtSecret: []byte(opts.JWTSecret),
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// Routes returns the configured http.Handler (ServeMux) for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /healthz", s.handleHealth())
	mux.HandleFunc("GET /feed.xml", s.handleFeed())
	mux.HandleFunc("GET /api/articles", s.handleListArticles())
	mux.HandleFunc("GET /api/articles/{id}", s.handleGetArticle())
	mux.HandleFunc("GET /api/tags", s.handleListTags())
	mux.HandleFunc("POST /api/auth/login", s.handleLogin())

	// Cron triggers (shared secret)
	mux.Handle("POST /api/cron/ingest", s.requireCron(s.handleIngest()))
	mux.Handle("POST /api/cron/publish", s.requireCron(s.handlePublish()))

	// Admin (JWT)
	mux.Handle("GET /api/admin/schedule/pending", s.requireAuthHandler(s.handlePending()))
	mux.Handle("GET /api/admin/schedule/history", s.requireAuthHandler(s.handleHistory()))
	mux.Handle("POST /api/admin/schedule", s.requireAuthHandler(s.handleSchedule()))

	return s.corsMiddleware(s.logRequests(mux))
}

// --- Middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	if s.opts.CORSOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Cron-Secret")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}
