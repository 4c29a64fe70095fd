package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/aggregator"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/config"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/cron"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/queue"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/scheduler"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/store"
)

// app wires the store, schedule queue and scheduler service.
type app struct {
	cfg       config.Config
	store     *store.Store
	queue     queue.Queue
	scheduler *scheduler.Service
	redis     *redis.Client
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, store: st}
	if cfg.Redis.Addr != "" {
		client, err := queue.DialRedis(ctx, cfg.Redis)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.redis = client
		a.queue = queue.NewRedisQueue(client, cfg.Redis.Prefix)
	} else {
		q, err := queue.NewSQLiteQueue(st.DB())
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open schedule queue: %w", err)
		}
		slog.Debug("redis not configured, schedule kept in the article database")
		a.queue = q
	}

	registry := cfg.Sources.Registry()
	names := make([]string, 0, len(registry.Sources()))
	for _, src := range registry.Sources() {
		names = append(names, src.Name())
	}
	slog.Debug("news providers registered", "providers", names)

	agg := aggregator.New(registry)
	a.scheduler = scheduler.New(st, a.queue, agg, scheduler.Options{
		BatchSize: cfg.Schedule.BatchSize,
		Stagger:   cfg.Schedule.Stagger,
	})

	if d := cfg.Notify.Dispatcher(); d.Len() > 0 {
		a.scheduler.WithAnnouncer(scheduler.NewNotifyAnnouncer(d))
	}
	return a, nil
}

// jobs returns the periodic ingest and publish jobs, ingest first.
func (a *app) jobs() *cron.Scheduler {
	sched := cron.NewScheduler()
	sched.Add(cron.Job{
		Name:       "ingest",
		Interval:   a.cfg.Schedule.IngestInterval,
		RunAtStart: true,
		Fn: func(ctx context.Context) error {
			_, err := a.scheduler.FetchAndScheduleBatch(ctx)
			return err
		},
	})
	sched.Add(cron.Job{
		Name:     "publish",
		Interval: a.cfg.Schedule.PublishInterval,
		Fn: func(ctx context.Context) error {
			_, err := a.scheduler.PublishDue(ctx)
			return err
		},
	})
	return sched
}

func (a *app) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.store.Close()
}

// withApp loads the config, builds the app and runs fn against it.
func withApp(ctx context.Context, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
