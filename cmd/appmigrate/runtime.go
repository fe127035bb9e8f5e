package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.kirha.ai/appmigrate"
	"go.kirha.ai/appmigrate/cache"
	rediscache "go.kirha.ai/appmigrate/cache/redis"
	memoryqueue "go.kirha.ai/appmigrate/queue/memory"
	natsqueue "go.kirha.ai/appmigrate/queue/nats"
	redisqueue "go.kirha.ai/appmigrate/queue/redis"
	memorystore "go.kirha.ai/appmigrate/store/memory"
	neo4jstore "go.kirha.ai/appmigrate/store/neo4j"
	"go.kirha.ai/appmigrate/store/sqldb"
)

const localBuffer = 1024

// runtime holds the engine and the transports built from one Config.
type runtime struct {
	engine     *appmigrate.Engine
	subscriber appmigrate.Subscriber
	local      *memoryqueue.Queue
	logger     *slog.Logger
	closers    []func() error
}

func newLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler).With("component", "appmigrate")
}

func newRuntime(ctx context.Context, cfg Config) (*runtime, error) {
	rt := &runtime{logger: newLogger(cfg.Log)}

	store, err := rt.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := rt.openQueue(cfg.Queue)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	registry := appmigrate.NewRegistry()
	for _, app := range cfg.Applications {
		if err := registry.Register(appmigrate.Application{Name: app.Name, Dir: app.Dir}); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	engine, err := appmigrate.New(appmigrate.Config{
		Registry: registry,
		Store:    store,
		Queue:    queue,
		Logger:   rt.logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	rt.engine = engine

	if err := engine.Init(ctx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context, cfg Config) (appmigrate.Store, error) {
	var store appmigrate.Store

	switch cfg.Store.Driver {
	case "neo4j":
		s, err := neo4jstore.New(ctx, neo4jstore.Config{
			URI:      cfg.Store.Neo4j.URI,
			Username: cfg.Store.Neo4j.Username,
			Password: cfg.Store.Neo4j.Password,
			Database: cfg.Store.Neo4j.Database,
		}, rt.logger)
		if err != nil {
			return nil, err
		}
		store = s
	case "sql":
		dialect, err := sqldb.ParseDialect(cfg.Store.SQL.Dialect)
		if err != nil {
			return nil, err
		}
		s, err := sqldb.Open(ctx, sqldb.Config{Dialect: dialect, DSN: cfg.Store.SQL.DSN, Table: cfg.Store.SQL.Table}, rt.logger)
		if err != nil {
			return nil, err
		}
		store = s
	case "memory":
		rt.logger.Warn("using the in-memory store, records are lost on exit")
		store = memorystore.New()
	}
	rt.closers = append(rt.closers, store.Close)

	if cfg.Cache.Redis == "" {
		return store, nil
	}

	c, err := rediscache.Dial(ctx, rediscache.Config{
		Address:  cfg.Cache.Redis,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, c.Close)

	return cache.NewStore(store, c, cfg.Cache.TTL, rt.logger), nil
}

func (rt *runtime) openQueue(cfg QueueConfig) (appmigrate.Queue, error) {
	switch cfg.Driver {
	case "nats":
		q, err := natsqueue.Connect(cfg.URL, cfg.Group, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error {
			q.Close()
			return nil
		})
		rt.subscriber = q
		return q, nil
	case "redis":
		q, err := redisqueue.Dial(cfg.URL, cfg.Prefix, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, q.Close)
		rt.subscriber = q
		return q, nil
	default:
		q := memoryqueue.New(localBuffer, rt.logger)
		rt.local = q
		rt.subscriber = q
		return q, nil
	}
}

// settle runs the dispatch chain and status reports left on an in-memory
// queue, which no worker can see.
func (rt *runtime) settle(ctx context.Context) error {
	if rt.local == nil {
		return nil
	}

	err := rt.local.Drain(ctx, appmigrate.TopicDispatch, func(ctx context.Context, msg appmigrate.Message) error {
		if err := rt.engine.HandleDispatch(ctx, msg); err != nil {
			return err
		}
		return rt.local.Drain(ctx, appmigrate.TopicStatus, rt.engine.HandleStatus)
	})
	if err != nil {
		return err
	}
	return rt.local.Drain(ctx, appmigrate.TopicStatus, rt.engine.HandleStatus)
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}
