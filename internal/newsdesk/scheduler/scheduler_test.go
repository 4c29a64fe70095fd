package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/aggregator"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/queue"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/store"
	"github.com/RobinCoderZhao/newsdesk/pkg/notify"
	"github.com/RobinCoderZhao/newsdesk/pkg/storage"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type staticFetcher []sources.Article

func (f staticFetcher) FetchAll(ctx context.Context) []sources.Article { return f }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(storage.Config{Path: filepath.Join(t.TempDir(), "newsdesk.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newService(t *testing.T, fetched ...sources.Article) (*Service, *store.Store, *queue.MemoryQueue) {
	t.Helper()
	st := newTestStore(t)
	q := queue.NewMemoryQueue()
	clock := func() time.Time { return now }
	agg := aggregator.New(staticFetcher(fetched)).WithClock(clock)
	return New(st, q, agg, Options{}).WithClock(clock), st, q
}

func candidate(i int) sources.Article {
	return sources.Article{
		URL:         "https://example.com/" + string(rune('a'+i)),
		Title:       "Deepfake story " + string(rune('A'+i)),
		Source:      "newsapi",
		PublishedAt: now.Add(-time.Hour),
		Category:    sources.Category,
	}
}

func storeArticle(t *testing.T, st *store.Store, url, title string) *sources.Article {
	t.Helper()
	a := &sources.Article{URL: url, Title: title, Source: "newsapi", PublishedAt: now, Category: sources.Category}
	if _, err := st.Upsert(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestFetchAndScheduleBatch_OnlyRelevantScheduled(t *testing.T) {
	a := sources.Article{
		URL: "https://example.com/a", Title: "New Deepfake Detection Tool",
		URLToImage: "https://img.example/a.png", PublishedAt: now, Source: "newsapi",
	}
	b := sources.Article{URL: "https://example.com/b", Title: "Weather Report", PublishedAt: now, Source: "newsapi"}

	svc, st, q := newService(t, a, b)
	res, err := svc.FetchAndScheduleBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCandidates != 2 || res.Scheduled != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	stored, _ := st.FindByURL(context.Background(), a.URL)
	if stored == nil || stored.RelevanceScore < 6 {
		t.Fatalf("expected A stored with score >= 6, got %+v", stored)
	}
	if missing, _ := st.FindByURL(context.Background(), b.URL); missing != nil {
		t.Fatal("expected B not to be stored")
	}
	pending, _ := q.Pending(context.Background())
	if len(pending) != 1 || pending[0].ArticleID != stored.ID || !pending[0].At.Equal(now) {
		t.Fatalf("expected A due now, got %+v", pending)
	}
}

func TestFetchAndScheduleBatch_Stagger(t *testing.T) {
	var fetched []sources.Article
	for i := 0; i < 5; i++ {
		fetched = append(fetched, candidate(i))
	}

	svc, st, q := newService(t, fetched...)
	// An already stored candidate is skipped without taking a slot.
	storeArticle(t, st, fetched[1].URL, fetched[1].Title)

	res, err := svc.FetchAndScheduleBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 4 {
		t.Fatalf("expected 4 scheduled, got %+v", res)
	}

	pending, _ := q.Pending(context.Background())
	if len(pending) != 4 {
		t.Fatalf("expected 4 pending, got %d", len(pending))
	}
	for i, e := range pending {
		want := now.Add(time.Duration(i) * DefaultStagger)
		if !e.At.Equal(want) {
			t.Fatalf("entry %d due at %s, want %s", i, e.At, want)
		}
	}
}

func TestFetchAndScheduleBatch_BatchSize(t *testing.T) {
	var fetched []sources.Article
	for i := 0; i < 25; i++ {
		fetched = append(fetched, candidate(i))
	}
	svc, _, _ := newService(t, fetched...)

	res, err := svc.FetchAndScheduleBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCandidates != 25 || res.Scheduled != DefaultBatchSize {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFetchAndScheduleBatch_SecondRunSchedulesNothing(t *testing.T) {
	svc, _, _ := newService(t, candidate(0), candidate(1))
	ctx := context.Background()

	if _, err := svc.FetchAndScheduleBatch(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := svc.FetchAndScheduleBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 0 {
		t.Fatalf("expected nothing new on re-ingest, got %+v", res)
	}
}

func TestFetchAndScheduleBatch_StoreUnavailable(t *testing.T) {
	svc, st, _ := newService(t, candidate(0))
	st.Close()

	res, err := svc.FetchAndScheduleBatch(context.Background())
	if err == nil {
		t.Fatal("expected error when store is closed")
	}
	if res != (BatchResult{}) {
		t.Fatalf("expected zero counts, got %+v", res)
	}
}

func TestPublishDue_ExactlyOnce(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	x := storeArticle(t, st, "https://example.com/x", "Deepfake X")

	if err := svc.ScheduleArticle(ctx, x.ID, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	res, err := svc.PublishDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Published != 1 {
		t.Fatalf("expected 1 published, got %d", res.Published)
	}

	got, _ := st.FindByID(ctx, x.ID)
	if !got.IsPublished || got.PublishDate == nil || !got.PublishDate.Equal(now) {
		t.Fatalf("expected X published at now, got %+v", got)
	}
	pending, _ := svc.ListPending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected X gone from pending, got %d", len(pending))
	}
	history, _ := svc.ListHistory(ctx, 10)
	if len(history) != 1 || history[0].ArticleID != x.ID {
		t.Fatalf("expected X in history, got %+v", history)
	}

	res, err = svc.PublishDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Published != 0 {
		t.Fatalf("expected second run to publish nothing, got %d", res.Published)
	}
}

func TestPublishDue_NotYetDue(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	a := storeArticle(t, st, "https://example.com/f", "Future deepfake")

	if err := svc.ScheduleArticle(ctx, a.ID, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	res, err := svc.PublishDue(ctx)
	if err != nil || res.Published != 0 {
		t.Fatalf("expected no-op, got %+v, %v", res, err)
	}
}

type failingStore struct {
	*store.Store
}

func (f failingStore) MarkPublished(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, errors.New("disk full")
}

func TestPublishDue_RestoresOnStoreFailure(t *testing.T) {
	st := newTestStore(t)
	q := queue.NewMemoryQueue()
	svc := New(failingStore{st}, q, nil, Options{}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	a := storeArticle(t, st, "https://example.com/r", "Deepfake R")
	if err := svc.ScheduleArticle(ctx, a.ID, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.PublishDue(ctx); err == nil {
		t.Fatal("expected store error")
	}
	due, _ := q.Due(ctx, now)
	if len(due) != 1 || due[0].ArticleID != a.ID {
		t.Fatalf("expected entry restored to pending, got %+v", due)
	}
	history, _ := q.History(ctx, 0)
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}
}

type recordingAnnouncer struct {
	got []sources.Article
}

func (r *recordingAnnouncer) Announce(ctx context.Context, published []sources.Article) error {
	r.got = append(r.got, published...)
	return nil
}

func TestPublishDue_Announces(t *testing.T) {
	svc, st, _ := newService(t)
	ann := &recordingAnnouncer{}
	svc.WithAnnouncer(ann)
	ctx := context.Background()

	a := storeArticle(t, st, "https://example.com/n", "Deepfake N")
	svc.ScheduleArticle(ctx, a.ID, now)
	if _, err := svc.PublishDue(ctx); err != nil {
		t.Fatal(err)
	}
	if len(ann.got) != 1 || ann.got[0].ID != a.ID || !ann.got[0].IsPublished {
		t.Fatalf("expected announcement of published article, got %+v", ann.got)
	}
}

func TestScheduleArticle_Errors(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	if err := svc.ScheduleArticle(ctx, "missing", now); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}

	a := storeArticle(t, st, "https://example.com/p", "Deepfake P")
	svc.ScheduleArticle(ctx, a.ID, now)
	svc.PublishDue(ctx)
	if err := svc.ScheduleArticle(ctx, a.ID, now.Add(time.Hour)); !errors.Is(err, queue.ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
}

func TestScheduleManually(t *testing.T) {
	svc, st, q := newService(t)
	ctx := context.Background()

	res := svc.ScheduleManually(ctx, "nope", now)
	if res.Success || res.Message != "article nope not found" {
		t.Fatalf("unexpected result: %+v", res)
	}

	a := storeArticle(t, st, "https://example.com/m", "Deepfake M")
	res = svc.ScheduleManually(ctx, a.ID, now.Add(2*time.Hour))
	if !res.Success || !strings.Contains(res.Message, "2026-10-16T14:00:00Z") {
		t.Fatalf("unexpected result: %+v", res)
	}
	// Rescheduling overwrites the due time.
	svc.ScheduleManually(ctx, a.ID, now.Add(time.Hour))
	pending, _ := q.Pending(ctx)
	if len(pending) != 1 || !pending[0].At.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected single overwritten entry, got %+v", pending)
	}
}

func TestListPending_SkipsMissingArticles(t *testing.T) {
	svc, st, q := newService(t)
	ctx := context.Background()

	a := storeArticle(t, st, "https://example.com/l", "Deepfake L")
	svc.ScheduleArticle(ctx, a.ID, now.Add(time.Hour))
	q.Add(ctx, "ghost", now)

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Article.ID != a.ID {
		t.Fatalf("expected only the stored article, got %+v", pending)
	}
}

func TestNotifyAnnouncer(t *testing.T) {
	d := notify.NewDispatcher()
	rec := &recordingNotifier{}
	d.Register(rec)

	err := NewNotifyAnnouncer(d).Announce(context.Background(), []sources.Article{
		{ID: "a", Title: "Deepfake A", URL: "https://a.example", Tags: []string{"deepfake"}},
		{ID: "b", Title: "Deepfake B", URL: "https://b.example"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.sent) != 1 || rec.sent[0].Title != "2 new deepfake stories published" {
		t.Fatalf("unexpected messages: %+v", rec.sent)
	}
	items := rec.sent[0].Items
	if len(items) != 2 || items[0].ID != "a" || items[0].Tags[0] != "deepfake" {
		t.Fatalf("expected the article batch on the message, got %+v", items)
	}
}

type recordingNotifier struct {
	sent []notify.Message
}

func (r *recordingNotifier) Channel() notify.Channel { return notify.ChannelWebhook }

func (r *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func newRedisQueue(t *testing.T) *queue.RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := queue.DialRedis(context.Background(), queue.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return queue.NewRedisQueue(client, "test")
}

// cancellingStore cancels the run's context while marking an article
// published, as a shutdown or a dropped cron request would.
type cancellingStore struct {
	*store.Store
	cancel context.CancelFunc
}

func (c cancellingStore) MarkPublished(ctx context.Context, id string, at time.Time) (bool, error) {
	c.cancel()
	return false, ctx.Err()
}

func TestPublishDue_RestoresAfterCancel(t *testing.T) {
	st := newTestStore(t)
	q := newRedisQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := New(cancellingStore{Store: st, cancel: cancel}, q, nil, Options{}).WithClock(func() time.Time { return now })

	a := storeArticle(t, st, "https://example.com/c", "Deepfake C")
	if err := svc.ScheduleArticle(ctx, a.ID, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.PublishDue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}

	bg := context.Background()
	pending, _ := q.Pending(bg)
	if len(pending) != 1 || pending[0].ArticleID != a.ID {
		t.Fatalf("expected entry restored to pending, got %+v", pending)
	}
	history, _ := q.History(bg, 0)
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}
}

func TestScheduleArticle_ReconcilesStaleHistory(t *testing.T) {
	st := newTestStore(t)
	q := newRedisQueue(t)
	svc := New(st, q, nil, Options{}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	a := storeArticle(t, st, "https://example.com/s", "Deepfake S")
	// Claimed in the queue but never marked published in the store.
	if err := q.Add(ctx, a.ID, now); err != nil {
		t.Fatal(err)
	}
	if ok, err := q.Claim(ctx, a.ID, now); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	res := svc.ScheduleManually(ctx, a.ID, now.Add(time.Hour))
	if !res.Success {
		t.Fatalf("expected reschedule of unpublished article, got %+v", res)
	}
	pending, _ := q.Pending(ctx)
	if len(pending) != 1 || !pending[0].At.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected pending entry, got %+v", pending)
	}
	history, _ := q.History(ctx, 0)
	if len(history) != 0 {
		t.Fatalf("expected stale history entry removed, got %+v", history)
	}

	if _, err := svc.PublishDue(ctx); err != nil {
		t.Fatal(err)
	}
	svc.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	if res, err := svc.PublishDue(ctx); err != nil || res.Published != 1 {
		t.Fatalf("expected article published once due, got %+v err=%v", res, err)
	}
}

func TestScheduleManually_ReportsCause(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	if res := svc.ScheduleManually(ctx, "missing", now); !errors.Is(res.Err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", res.Err)
	}

	a := storeArticle(t, st, "https://example.com/p", "Deepfake P")
	if _, err := st.MarkPublished(ctx, a.ID, now); err != nil {
		t.Fatal(err)
	}
	if res := svc.ScheduleManually(ctx, a.ID, now); !errors.Is(res.Err, queue.ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", res.Err)
	}
}

func TestSchedule_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newsdesk.db")
	clock := func() time.Time { return now }
	ctx := context.Background()

	open := func() (*store.Store, *queue.SQLiteQueue) {
		st, err := store.Open(storage.Config{Path: path})
		if err != nil {
			t.Fatal(err)
		}
		q, err := queue.NewSQLiteQueue(st.DB())
		if err != nil {
			st.Close()
			t.Fatal(err)
		}
		return st, q
	}

	st, q := open()
	agg := aggregator.New(staticFetcher{candidate(0)}).WithClock(clock)
	res, err := New(st, q, agg, Options{}).WithClock(clock).FetchAndScheduleBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 1 {
		t.Fatalf("expected 1 scheduled, got %+v", res)
	}
	st.Close()

	st, q = open()
	defer st.Close()
	svc := New(st, q, nil, Options{}).WithClock(clock)

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Article.URL != candidate(0).URL {
		t.Fatalf("expected pending entry after restart, got %+v", pending)
	}
	pub, err := svc.PublishDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pub.Published != 1 {
		t.Fatalf("expected 1 published after restart, got %+v", pub)
	}
}
