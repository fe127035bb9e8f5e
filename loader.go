package appmigrate

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"go.kirha.ai/appmigrate/metrics"
)

type LoadOptions struct {
	// Names restricts regular migrations to these identifiers. Hook
	// migrations are always loaded.
	Names []string
}

type loader struct {
	store  Store
	queue  Queue
	logger Logger
}

func newLoader(store Store, queue Queue, logger Logger) *loader {
	return &loader{store: store, queue: queue, logger: logger}
}

// load builds the migration list of apps. No store I/O happens here.
func (l *loader) load(apps []Application, opts LoadOptions) (*List, error) {
	var items, hooks []*Migration

	for _, app := range apps {
		appItems, appHooks, err := l.loadApplication(app, opts)
		if err != nil {
			return nil, fmt.Errorf("application %s: %w", app.Name, err)
		}
		items = append(items, appItems...)
		hooks = append(hooks, appHooks...)
	}

	return NewList(items, hooks), nil
}

func (l *loader) loadApplication(app Application, opts LoadOptions) ([]*Migration, []*Migration, error) {
	sources := make(map[string]Definition, len(app.Definitions))
	texts := make(map[string]string)

	for id, def := range app.Definitions {
		if def == nil {
			return nil, nil, fmt.Errorf("%w: definition %q is nil", ErrInvalidConfig, id)
		}
		sources[id] = def
	}

	filesystem := app.FS
	if filesystem == nil && app.Dir != "" {
		filesystem = os.DirFS(app.Dir)
	}

	if filesystem != nil {
		declarations, err := newParser(filesystem).parseDeclarations(".")
		if err != nil {
			return nil, nil, err
		}
		for _, decl := range declarations {
			if _, dup := sources[decl.ID]; dup {
				return nil, nil, fmt.Errorf("%w: migration %q is declared twice", ErrInvalidConfig, decl.ID)
			}
			sources[decl.ID] = decl.replay
			texts[decl.ID] = decl.Source
		}
	}

	ids := make([]string, 0, len(sources))
	for id := range sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	collector := metrics.NewCollector(app.Name)

	var items, hooks []*Migration
	for _, id := range ids {
		kind := KindRegular
		if strings.HasPrefix(id, hookPrefix) {
			kind = KindHook
		}

		if kind == KindRegular && opts.Names != nil && !slices.Contains(opts.Names, id) {
			continue
		}

		b := newBuilder()
		if err := sources[id](b); err != nil {
			return nil, nil, fmt.Errorf("migration %s: %w", id, err)
		}

		m := &Migration{
			ID:           id,
			Application:  app.Name,
			Kind:         kind,
			Source:       texts[id],
			transactions: b.transactions,
			store:        l.store,
			queue:        l.queue,
			logger:       l.logger,
			metrics:      collector,
		}

		l.logger.Debug("loaded migration", "application", app.Name, "migration", id, "kind", kind, "transactions", len(m.transactions))

		if kind == KindHook {
			hooks = append(hooks, m)
		} else {
			items = append(items, m)
		}
	}

	return items, hooks, nil
}
