package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"
)

type item struct {
	id    string
	at    time.Time
	index int
}

type entryHeap []*item

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// MemoryQueue is an in-process Queue backed by a min-heap.
type MemoryQueue struct {
	mu      sync.Mutex
	pending entryHeap
	byID    map[string]*item
	history map[string]time.Time
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		byID:    make(map[string]*item),
		history: make(map[string]time.Time),
	}
}

func (q *MemoryQueue) Add(ctx context.Context, articleID string, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.history[articleID]; ok {
		return ErrAlreadyPublished
	}
	q.put(articleID, dueAt)
	return nil
}

func (q *MemoryQueue) put(id string, at time.Time) {
	if it, ok := q.byID[id]; ok {
		it.at = at
		heap.Fix(&q.pending, it.index)
		return
	}
	it := &item{id: id, at: at}
	heap.Push(&q.pending, it)
	q.byID[id] = it
}

func (q *MemoryQueue) Due(ctx context.Context, now time.Time) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Entry
	for _, e := range q.sortedPending() {
		if e.At.After(now) {
			break
		}
		due = append(due, e)
	}
	return due, nil
}

func (q *MemoryQueue) Claim(ctx context.Context, articleID string, publishedAt time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[articleID]
	if !ok {
		return false, nil
	}
	heap.Remove(&q.pending, it.index)
	delete(q.byID, articleID)
	q.history[articleID] = publishedAt
	return true, nil
}

func (q *MemoryQueue) Restore(ctx context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.history, e.ArticleID)
	q.put(e.ArticleID, e.At)
	return nil
}

func (q *MemoryQueue) Pending(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sortedPending(), nil
}

func (q *MemoryQueue) History(ctx context.Context, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]Entry, 0, len(q.history))
	for id, at := range q.history {
		entries = append(entries, Entry{ArticleID: id, At: at})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].At.Equal(entries[j].At) {
			return entries[i].ArticleID > entries[j].ArticleID
		}
		return entries[i].At.After(entries[j].At)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// sortedPending returns the pending set in due order without disturbing the heap.
func (q *MemoryQueue) sortedPending() []Entry {
	h := make(entryHeap, len(q.pending))
	for i, it := range q.pending {
		h[i] = &item{id: it.id, at: it.at, index: i}
	}
	out := make([]Entry, 0, len(h))
	for h.Len() > 0 {
		it := heap.Pop(&h).(*item)
		out = append(out, Entry{ArticleID: it.id, At: it.at})
	}
	return out
}
