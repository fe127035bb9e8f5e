package appmigrate

import (
	"context"
	"fmt"
)

type Config struct {
	Registry *Registry
	Store    Store
	Queue    Queue
	Logger   Logger
	// Names restricts the regular migrations that are loaded.
	Names []string
}

// Engine loads the registered applications once and drives their
// migrations, either synchronously or through dispatch messages.
type Engine struct {
	store    Store
	queue    Queue
	logger   Logger
	list     *List
	statuses *StatusConsumer
}

func New(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = newDefaultLogger()
	}

	list, err := newLoader(cfg.Store, cfg.Queue, logger).load(cfg.Registry.Snapshot(), LoadOptions{Names: cfg.Names})
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:    cfg.Store,
		queue:    cfg.Queue,
		logger:   logger,
		list:     list,
		statuses: NewStatusConsumer(cfg.Store, logger),
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Registry == nil {
		return fmt.Errorf("%w: Registry is required", ErrInvalidConfig)
	}

	if cfg.Store == nil {
		return fmt.Errorf("%w: Store is required", ErrInvalidConfig)
	}

	if cfg.Queue == nil {
		return fmt.Errorf("%w: Queue is required", ErrInvalidConfig)
	}

	return nil
}

// Init prepares the store for migration records.
func (e *Engine) Init(ctx context.Context) error {
	return e.store.Init(ctx)
}

func (e *Engine) List() *List {
	return e.list
}

// Migrate applies the outstanding migrations of application in order, then
// its hooks.
func (e *Engine) Migrate(ctx context.Context, application string, force bool) error {
	list, err := e.list.ForApp(application).ToApply(ctx)
	if err != nil {
		return err
	}

	if list.Len() == 0 {
		e.logger.Info("no migrations to apply", "application", application)
		return nil
	}

	list = NewList(list.Items(), hooksOf(list.Hooks(), application))

	e.logger.Info("applying migrations", "application", application, "count", list.Len())
	return list.Apply(ctx, force)
}

// Statuses lists every loaded migration with its live status, read from a
// single record listing. Hooks are listed after the migrations of their
// application with Index -1.
func (e *Engine) Statuses(ctx context.Context) ([]MigrationStatus, error) {
	records, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}

	// List is oldest first, so the last record of a pair wins.
	latest := make(map[recordRef]Status, len(records))
	for _, r := range records {
		latest[recordRef{id: r.ID, application: r.Application}] = r.Status
	}

	var out []MigrationStatus
	for _, application := range e.applications() {
		list := e.list.ForApp(application)
		for i, m := range list.Items() {
			status, ok := latest[recordRef{id: m.ID, application: application}]
			if !ok {
				status = StatusNew
			}
			out = append(out, MigrationStatus{Application: application, Index: i, ID: m.ID, Kind: m.Kind, Status: status})
		}

		for _, h := range hooksOf(e.list.hooks, application) {
			out = append(out, MigrationStatus{Application: application, Index: -1, ID: h.ID, Kind: h.Kind, Status: StatusNew})
		}
	}

	return out, nil
}

type recordRef struct {
	id          string
	application string
}

func (e *Engine) HandleStatus(ctx context.Context, msg Message) error {
	return e.statuses.Handle(ctx, msg)
}

func (e *Engine) Close() error {
	return e.store.Close()
}

// applications returns the application names in load order.
func (e *Engine) applications() []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range append(e.list.Items(), e.list.Hooks()...) {
		if !seen[m.Application] {
			seen[m.Application] = true
			names = append(names, m.Application)
		}
	}
	return names
}

func hooksOf(hooks []*Migration, application string) []*Migration {
	var out []*Migration
	for _, h := range hooks {
		if h.Application == application {
			out = append(out, h)
		}
	}
	return out
}
