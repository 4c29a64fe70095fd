// Package queue holds the two time-ordered schedule sets: pending entries
// keyed by due time and history entries keyed by publish time. An article
// ID is in at most one of the sets at any moment.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyPublished is returned when adding an article that is in history.
var ErrAlreadyPublished = errors.New("article already published")

// Entry associates an article with a due or publish time.
type Entry struct {
	ArticleID string    `json:"articleId"`
	At        time.Time `json:"at"`
}

// Queue is the schedule set pair used by the scheduler.
type Queue interface {
	// Add inserts or moves the pending entry for articleID.
	Add(ctx context.Context, articleID string, dueAt time.Time) error
	// Due returns pending entries with At <= now, earliest first.
	Due(ctx context.Context, now time.Time) ([]Entry, error)
	// Claim atomically moves articleID from pending to history. It reports
	// false when the entry is no longer pending.
	Claim(ctx context.Context, articleID string, publishedAt time.Time) (bool, error)
	// Restore undoes a Claim, putting e back into pending.
	Restore(ctx context.Context, e Entry) error
	// Pending returns every pending entry, earliest first.
	Pending(ctx context.Context) ([]Entry, error)
	// History returns up to limit published entries, most recent first.
	// A limit <= 0 returns all of them.
	History(ctx context.Context, limit int) ([]Entry, error)
}
