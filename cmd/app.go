package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mobilifiver/feedwise/internal/assistant"
	"github.com/mobilifiver/feedwise/internal/catalog"
	"github.com/mobilifiver/feedwise/internal/fetcher"
	"github.com/mobilifiver/feedwise/internal/monitoring"
	"github.com/mobilifiver/feedwise/internal/query"
	"github.com/mobilifiver/feedwise/internal/store"
	"github.com/mobilifiver/feedwise/pkg/anthropic"
)

// app bundles the wired components commands operate on.
type app struct {
	store     store.Store
	importer  *catalog.Importer
	executor  *query.Executor
	assistant *assistant.Assistant
	checker   *monitoring.Checker
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initApp(ctx context.Context) (*app, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	feed := fetcher.NewClient(fetcher.Options{
		UserAgent:  cfg.Feed.UserAgent,
		Timeout:    time.Duration(cfg.Feed.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Feed.MaxRetries,
	})

	exec := query.NewExecutor(st, query.Limits{
		Results:       cfg.Query.ResultLimit,
		ChangeGroups:  cfg.Query.ChangesLimit,
		RecentImports: cfg.Query.RecentImportsLimit,
	})

	var client anthropic.Client
	if cfg.Anthropic.Key != "" {
		client = anthropic.NewClient(cfg.Anthropic.Key)
	}

	return &app{
		store:    st,
		importer: catalog.NewImporter(st, feed),
		executor: exec,
		assistant: assistant.New(exec, st, client, assistant.Options{
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
		}),
		checker: monitoring.NewChecker(st, monitoring.Thresholds{
			MaxSyncAge:             time.Duration(cfg.Monitor.MaxSyncAgeHours) * time.Hour,
			MaxConsecutiveFailures: cfg.Monitor.MaxConsecutiveFailures,
		}),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}
