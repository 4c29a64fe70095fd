// Package scheduler moves articles through Unscheduled → Pending → Published.
// It owns the schedule sets and is the only caller of Store.MarkPublished.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/aggregator"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/queue"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
)

const (
	DefaultBatchSize = 20
	DefaultStagger   = 30 * time.Minute

	restoreTimeout = 5 * time.Second
)

// ErrArticleNotFound is returned when scheduling an article that is not stored.
var ErrArticleNotFound = errors.New("article not found")

// Store is the article persistence the scheduler needs.
type Store interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, url string) (bool, error)
	Upsert(ctx context.Context, a *sources.Article) (bool, error)
	FindByID(ctx context.Context, id string) (*sources.Article, error)
	MarkPublished(ctx context.Context, id string, at time.Time) (bool, error)
}

// Collector produces ranked candidates. *aggregator.Aggregator satisfies it.
type Collector interface {
	Collect(ctx context.Context) aggregator.Result
}

// Announcer is told about articles right after they are published.
type Announcer interface {
	Announce(ctx context.Context, published []sources.Article) error
}

// Options tunes batch scheduling.
type Options struct {
	BatchSize int
	Stagger   time.Duration
}

// BatchResult summarises one FetchAndScheduleBatch run.
type BatchResult struct {
	TotalCandidates int `json:"total"`
	Scheduled       int `json:"scheduled"`
	Failed          int `json:"failed"`
}

// PublishResult summarises one PublishDue run.
type PublishResult struct {
	Published int `json:"published"`
}

// PendingArticle is a pending entry joined to its article.
type PendingArticle struct {
	Article       sources.Article `json:"article"`
	ScheduledTime time.Time       `json:"scheduledTime"`
}

// ManualResult is the outcome of an admin scheduling request.
type ManualResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Err is the failure cause, matchable with ErrArticleNotFound and
	// queue.ErrAlreadyPublished.
	Err error `json:"-"`
}

// Service runs ingestion and publication cycles.
type Service struct {
	store     Store
	queue     queue.Queue
	collector Collector
	announcer Announcer
	opts      Options
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Service. collector may be nil for processes that only publish.
func New(store Store, q queue.Queue, collector Collector, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Stagger <= 0 {
		opts.Stagger = DefaultStagger
	}
	return &Service{
		store:     store,
		queue:     q,
		collector: collector,
		opts:      opts,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithAnnouncer sets the announcer notified by PublishDue.
func (s *Service) WithAnnouncer(a Announcer) *Service {
	s.announcer = a
	return s
}

// ScheduleArticle puts the article in pending with the given due time,
// replacing any earlier due time.
func (s *Service) ScheduleArticle(ctx context.Context, articleID string, dueAt time.Time) error {
	a, err := s.store.FindByID(ctx, articleID)
	if err != nil {
		return fmt.Errorf("look up article %s: %w", articleID, err)
	}
	if a == nil {
		return fmt.Errorf("%w: %s", ErrArticleNotFound, articleID)
	}
	if a.IsPublished {
		return queue.ErrAlreadyPublished
	}

	err = s.queue.Add(ctx, articleID, dueAt)
	if !errors.Is(err, queue.ErrAlreadyPublished) {
		return err
	}
	// The store is authoritative: a history entry for an unpublished article
	// is a claim whose publish never landed.
	s.logger.Warn("reconciling stale history entry", "id", articleID)
	return s.queue.Restore(ctx, queue.Entry{ArticleID: articleID, At: dueAt})
}

// FetchAndScheduleBatch ingests the top candidates and schedules every newly
// stored one. Consecutive scheduled articles are due exactly Stagger apart,
// the first one immediately.
func (s *Service) FetchAndScheduleBatch(ctx context.Context) (BatchResult, error) {
	if s.collector == nil {
		return BatchResult{}, errors.New("no candidate collector configured")
	}
	if err := s.store.Ping(ctx); err != nil {
		return BatchResult{}, fmt.Errorf("article store unavailable: %w", err)
	}

	res := s.collector.Collect(ctx)
	candidates := res.Articles
	if len(candidates) > s.opts.BatchSize {
		candidates = candidates[:s.opts.BatchSize]
	}

	result := BatchResult{TotalCandidates: res.Fetched}
	now := s.now()
	for i := range candidates {
		c := candidates[i]

		exists, err := s.store.Exists(ctx, c.URL)
		if err != nil {
			s.logger.Warn("candidate lookup failed", "url", c.URL, "error", err)
			result.Failed++
			continue
		}
		if exists {
			continue
		}

		inserted, err := s.store.Upsert(ctx, &c)
		if err != nil {
			s.logger.Warn("candidate persist failed", "url", c.URL, "error", err)
			result.Failed++
			continue
		}
		if !inserted {
			continue
		}

		dueAt := now.Add(time.Duration(result.Scheduled) * s.opts.Stagger)
		if err := s.queue.Add(ctx, c.ID, dueAt); err != nil {
			s.logger.Warn("candidate schedule failed", "id", c.ID, "error", err)
			result.Failed++
			continue
		}
		result.Scheduled++
	}

	s.logger.Info("batch scheduled",
		"candidates", result.TotalCandidates,
		"considered", len(candidates),
		"scheduled", result.Scheduled,
		"failed", result.Failed,
	)
	return result, nil
}

// PublishDue publishes every pending article whose due time has passed.
// Each entry is claimed before the store is updated so concurrent runs
// publish an article once. A store failure puts the claimed entry back and
// aborts the run.
func (s *Service) PublishDue(ctx context.Context) (PublishResult, error) {
	now := s.now()
	due, err := s.queue.Due(ctx, now)
	if err != nil {
		return PublishResult{}, fmt.Errorf("read due entries: %w", err)
	}

	var result PublishResult
	var published []sources.Article
	for _, e := range due {
		claimed, err := s.queue.Claim(ctx, e.ArticleID, now)
		if err != nil {
			return result, err
		}
		if !claimed {
			continue
		}

		ok, err := s.store.MarkPublished(ctx, e.ArticleID, now)
		if err != nil {
			s.restore(ctx, e)
			return result, fmt.Errorf("publish %s: %w", e.ArticleID, err)
		}
		if !ok {
			s.logger.Warn("due entry had no unpublished article", "id", e.ArticleID)
			continue
		}

		result.Published++
		if s.announcer != nil {
			if a, err := s.store.FindByID(ctx, e.ArticleID); err == nil && a != nil {
				published = append(published, *a)
			}
		}
	}

	if len(published) > 0 {
		if err := s.announcer.Announce(ctx, published); err != nil {
			s.logger.Warn("announce failed", "count", len(published), "error", err)
		}
	}
	if result.Published > 0 {
		s.logger.Info("published due articles", "count", result.Published)
	}
	return result, nil
}

// restore puts a claimed entry back into pending. It runs even when ctx is
// already cancelled, since a cancelled publish is the usual reason to restore.
func (s *Service) restore(ctx context.Context, e queue.Entry) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	if err := s.queue.Restore(rctx, e); err != nil {
		s.logger.Error("restore claimed entry failed", "id", e.ArticleID, "error", err)
	}
}

// ListPending returns pending entries joined to their articles, earliest
// first. Entries whose article is missing are skipped.
func (s *Service) ListPending(ctx context.Context) ([]PendingArticle, error) {
	entries, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pending entries: %w", err)
	}

	out := make([]PendingArticle, 0, len(entries))
	for _, e := range entries {
		a, err := s.store.FindByID(ctx, e.ArticleID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			continue
		}
		out = append(out, PendingArticle{Article: *a, ScheduledTime: e.At})
	}
	return out, nil
}

// ListHistory returns up to limit recently published entries, newest first.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]queue.Entry, error) {
	return s.queue.History(ctx, limit)
}

// ScheduleManually is the admin form of ScheduleArticle. Failures are
// reported in the result.
func (s *Service) ScheduleManually(ctx context.Context, articleID string, publishTime time.Time) ManualResult {
	err := s.ScheduleArticle(ctx, articleID, publishTime)
	switch {
	case err == nil:
		return ManualResult{
			Success: true,
			Message: fmt.Sprintf("article %s scheduled for %s", articleID, publishTime.UTC().Format(time.RFC3339)),
		}
	case errors.Is(err, ErrArticleNotFound):
		return ManualResult{Message: fmt.Sprintf("article %s not found", articleID), Err: err}
	case errors.Is(err, queue.ErrAlreadyPublished):
		return ManualResult{Message: fmt.Sprintf("article %s is already published", articleID), Err: err}
	default:
		s.logger.Error("manual schedule failed", "id", articleID, "error", err)
		return ManualResult{Message: "failed to schedule article", Err: err}
	}
}
