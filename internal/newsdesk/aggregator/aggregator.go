// Package aggregator merges provider results into a scored, de-duplicated
// candidate list.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/relevance"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
)

// Fetcher returns raw candidates from every provider. *sources.Registry
// satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context) []sources.Article
}

// Aggregator turns raw provider output into ranked candidates.
type Aggregator struct {
	fetcher Fetcher
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an aggregator over fetcher.
func New(fetcher Fetcher) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// WithClock replaces the clock used for recency scoring.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Result is the outcome of one aggregation run.
type Result struct {
	// Fetched counts every candidate returned by the providers, before
	// relevance filtering and de-duplication.
	Fetched  int
	Articles []sources.Article
}

// Collect fetches from every provider and ranks the candidates.
func (a *Aggregator) Collect(ctx context.Context) Result {
	raw := a.fetcher.FetchAll(ctx)
	out := Rank(raw, a.now())
	a.logger.Info("aggregation complete", "fetched", len(raw), "relevant", len(out))
	return Result{Fetched: len(raw), Articles: out}
}

// FetchAllRelevant fetches from every provider, scores and tags each
// candidate, drops irrelevant and duplicate ones, and sorts by score
// descending. Provider failures only shrink the pool; the result may be empty.
func (a *Aggregator) FetchAllRelevant(ctx context.Context) []sources.Article {
	return a.Collect(ctx).Articles
}

// Rank scores, tags, filters, de-duplicates and sorts candidates.
// A candidate is a duplicate when its lower-cased URL or title was already
// seen; the first occurrence wins.
func Rank(candidates []sources.Article, now time.Time) []sources.Article {
	seenURL := make(map[string]bool, len(candidates))
	seenTitle := make(map[string]bool, len(candidates))
	out := make([]sources.Article, 0, len(candidates))

	for _, c := range candidates {
		c.RelevanceScore = relevance.ScoreRelevance(c, now)
		if c.RelevanceScore <= 0 {
			continue
		}

		url := strings.ToLower(c.URL)
		title := strings.ToLower(c.Title)
		if seenURL[url] || seenTitle[title] {
			continue
		}
		seenURL[url] = true
		seenTitle[title] = true

		c.Tags = relevance.DeriveTags(c)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}
