package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
	"github.com/RobinCoderZhao/newsdesk/pkg/storage"
)

var base = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(storage.Config{Path: filepath.Join(t.TempDir(), "newsdesk.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testArticle(url, title string, tags ...string) *sources.Article {
	return &sources.Article{
		URL:            url,
		Source:         "newsapi",
		Title:          title,
		Description:    "about " + title,
		PublishedAt:    base,
		Tags:           tags,
		RelevanceScore: 5,
		Category:       sources.Category,
	}
}

func mustUpsert(t *testing.T, s *Store, a *sources.Article) {
	t.Helper()
	if _, err := s.Upsert(context.Background(), a); err != nil {
		t.Fatal(err)
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testArticle("https://example.com/1", "Deepfake ban", "deepfake")
	inserted, err := s.Upsert(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted || a.ID == "" {
		t.Fatalf("expected fresh insert with id, got inserted=%v id=%q", inserted, a.ID)
	}
	firstID := a.ID

	again := testArticle("https://example.com/1", "Deepfake ban updated", "deepfake", "ethics")
	again.RelevanceScore = 9
	inserted, err = s.Upsert(ctx, again)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("expected update on second upsert")
	}
	if again.ID != firstID {
		t.Fatalf("expected stable id %s, got %s", firstID, again.ID)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 1 {
		t.Fatalf("expected 1 row, got %d", st.Total)
	}

	got, err := s.FindByID(ctx, firstID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Deepfake ban updated" || got.RelevanceScore != 9 {
		t.Fatalf("expected refreshed fields, got %+v", got)
	}
	if !reflect.DeepEqual(got.Tags, []string{"deepfake", "ethics"}) {
		t.Fatalf("expected refreshed tags, got %v", got.Tags)
	}
}

func TestUpsert_KeepsPublicationState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testArticle("https://example.com/p", "Published story")
	mustUpsert(t, s, a)
	if ok, err := s.MarkPublished(ctx, a.ID, base); err != nil || !ok {
		t.Fatalf("mark published: ok=%v err=%v", ok, err)
	}

	mustUpsert(t, s, testArticle("https://example.com/p", "Published story v2"))

	got, err := s.FindByURL(ctx, "https://example.com/p")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsPublished || got.PublishDate == nil || !got.PublishDate.Equal(base) {
		t.Fatalf("expected publication state preserved, got %+v", got)
	}
}

func TestUpsert_RequiresURLAndTitle(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Upsert(context.Background(), &sources.Article{Title: "no url"}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestFind_Missing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.FindByID(ctx, "nope")
	if err != nil || a != nil {
		t.Fatalf("expected nil, nil; got %v, %v", a, err)
	}
	a, err = s.FindByURL(ctx, "https://missing.example")
	if err != nil || a != nil {
		t.Fatalf("expected nil, nil; got %v, %v", a, err)
	}
	ok, err := s.Exists(ctx, "https://missing.example")
	if err != nil || ok {
		t.Fatalf("expected not exists, got %v, %v", ok, err)
	}
}

func TestMarkPublished_Once(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testArticle("https://example.com/m", "Mark me")
	mustUpsert(t, s, a)

	ok, err := s.MarkPublished(ctx, a.ID, base)
	if err != nil || !ok {
		t.Fatalf("first mark: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkPublished(ctx, a.ID, base.Add(time.Hour))
	if err != nil || ok {
		t.Fatalf("second mark must be a no-op: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkPublished(ctx, "missing", base)
	if err != nil || ok {
		t.Fatalf("missing article: ok=%v err=%v", ok, err)
	}
}

func TestQuery_VisibilityBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pub := testArticle("https://example.com/pub", "Public")
	hidden := testArticle("https://example.com/hidden", "Hidden")
	mustUpsert(t, s, pub)
	mustUpsert(t, s, hidden)
	if _, err := s.MarkPublished(ctx, pub.ID, base); err != nil {
		t.Fatal(err)
	}

	page, err := s.Query(ctx, QueryOptions{PublishedOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != pub.ID {
		t.Fatalf("expected only the published article, got %+v", page)
	}

	page, err = s.Query(ctx, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Fatalf("expected both articles when explicitly unfiltered, got %d", page.Total)
	}
}

func TestQuery_TagsIntersect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, testArticle("https://example.com/a", "A", "deepfake", "security"))
	mustUpsert(t, s, testArticle("https://example.com/b", "B", "research"))
	mustUpsert(t, s, testArticle("https://example.com/c", "C", "ethics"))

	page, err := s.Query(ctx, QueryOptions{Tags: []string{"security", "research"}})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 articles intersecting tags, got %d", page.Total)
	}
}

func TestQuery_Search(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testArticle("https://example.com/v", "Voice cloning scam")
	a.Content = "Criminals used cloned audio of a chief executive."
	mustUpsert(t, s, a)
	mustUpsert(t, s, testArticle("https://example.com/w", "Watermark standard"))

	page, err := s.Query(ctx, QueryOptions{Search: "executive"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Items[0].URL != a.URL {
		t.Fatalf("expected search hit on content, got %+v", page)
	}

	// The index follows updates.
	a.Content = "Now about something else."
	mustUpsert(t, s, a)
	page, err = s.Query(ctx, QueryOptions{Search: "executive"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 0 {
		t.Fatalf("expected stale content to be unindexed, got %d", page.Total)
	}

	// Operators are treated as plain words.
	if _, err := s.Query(ctx, QueryOptions{Search: `watermark OR "NEAR(`}); err != nil {
		t.Fatalf("expected sanitized search, got %v", err)
	}
}

func TestQuery_PaginationAndSort(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		a := testArticle("https://example.com/"+string(rune('a'+i)), "Story "+string(rune('a'+i)))
		a.PublishedAt = base.Add(time.Duration(i) * time.Hour)
		a.RelevanceScore = float64(15 - i)
		mustUpsert(t, s, a)
	}

	page, err := s.Query(ctx, QueryOptions{Page: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 15 || len(page.Items) != 5 || page.Limit != DefaultLimit {
		t.Fatalf("unexpected page: total=%d items=%d limit=%d", page.Total, len(page.Items), page.Limit)
	}
	// Default sort is publishedAt descending, so page 2 starts at the 11th newest.
	if page.Items[0].URL != "https://example.com/e" {
		t.Fatalf("unexpected first item on page 2: %s", page.Items[0].URL)
	}

	page, err = s.Query(ctx, QueryOptions{Limit: 3, SortField: SortRelevanceScore, SortOrder: "desc"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Items[0].RelevanceScore != 15 || page.Items[2].RelevanceScore != 13 {
		t.Fatalf("unexpected relevance ordering: %v, %v", page.Items[0].RelevanceScore, page.Items[2].RelevanceScore)
	}

	page, err = s.Query(ctx, QueryOptions{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if page.Limit != MaxLimit {
		t.Fatalf("expected limit clamp to %d, got %d", MaxLimit, page.Limit)
	}

	if _, err := s.Query(ctx, QueryOptions{SortField: "bogus"}); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}

	for _, p := range []int{MaxPage + 1, math.MaxInt} {
		if _, err := s.Query(ctx, QueryOptions{Page: p, Limit: MaxLimit}); !errors.Is(err, ErrInvalidPage) {
			t.Fatalf("page %d: expected ErrInvalidPage, got %v", p, err)
		}
	}
	page, err = s.Query(ctx, QueryOptions{Page: MaxPage, Limit: MaxLimit})
	if err != nil || len(page.Items) != 0 {
		t.Fatalf("expected empty last page, got %d items, err %v", len(page.Items), err)
	}
}

func TestListDistinctTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pub := testArticle("https://example.com/t1", "T1", "security", "deepfake")
	mustUpsert(t, s, pub)
	mustUpsert(t, s, testArticle("https://example.com/t2", "T2", "research", "deepfake"))
	if _, err := s.MarkPublished(ctx, pub.ID, base); err != nil {
		t.Fatal(err)
	}

	tags, err := s.ListDistinctTags(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tags, []string{"deepfake", "security"}) {
		t.Fatalf("unexpected published tags: %v", tags)
	}

	tags, err = s.ListDistinctTags(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tags, []string{"deepfake", "research", "security"}) {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 0 || st.Published != 0 {
		t.Fatalf("expected empty stats, got %+v", st)
	}
}
