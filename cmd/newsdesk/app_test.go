package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/config"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/queue"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "newsdesk.db")
	// Keyless providers would reach the network.
	cfg.Sources.GoogleNews = false
	return cfg
}

func TestNewApp_ScheduleSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.queue.(*queue.SQLiteQueue); !ok {
		t.Fatalf("expected the SQLite queue without redis, got %T", a.queue)
	}
	art := &sources.Article{URL: "https://example.com/x", Title: "Deepfake X", Source: "newsapi", PublishedAt: time.Now()}
	if _, err := a.store.Upsert(ctx, art); err != nil {
		t.Fatal(err)
	}
	if res := a.scheduler.ScheduleManually(ctx, art.ID, time.Now().Add(time.Hour)); !res.Success {
		t.Fatalf("schedule failed: %+v", res)
	}
	a.Close()

	a, err = newApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	pending, err := a.scheduler.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Article.ID != art.ID {
		t.Fatalf("expected pending entry after restart, got %+v", pending)
	}
}

func TestApp_JobsRunOnce(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	// Providers without credentials contribute nothing; both jobs still succeed.
	if err := a.jobs().RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
}
