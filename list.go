package appmigrate

import (
	"context"
	"slices"
)

// List is an ordered list of migrations plus the hook migrations that run
// after it. Every derived list keeps the same hooks.
type List struct {
	items []*Migration
	hooks []*Migration
}

func NewList(items, hooks []*Migration) *List {
	return &List{items: items, hooks: hooks}
}

func (l *List) Len() int {
	return len(l.items)
}

func (l *List) At(i int) *Migration {
	return l.items[i]
}

func (l *List) Items() []*Migration {
	return slices.Clone(l.items)
}

func (l *List) Hooks() []*Migration {
	return slices.Clone(l.hooks)
}

// Index returns the position of m in the list, or -1.
func (l *List) Index(m *Migration) int {
	return slices.Index(l.items, m)
}

func (l *List) ForApp(application string) *List {
	return l.Filter(func(m *Migration) bool {
		return m.Application == application
	})
}

// ToApply returns the migrations without a record, in declaration order.
func (l *List) ToApply(ctx context.Context) (*List, error) {
	var out []*Migration
	for _, m := range l.items {
		applied, err := m.IsApplied(ctx)
		if err != nil {
			return nil, err
		}
		if !applied {
			out = append(out, m)
		}
	}
	return l.Replace(out), nil
}

// ToRollback returns the migrations with a record, last declared first.
func (l *List) ToRollback(ctx context.Context) (*List, error) {
	var out []*Migration
	for i := len(l.items) - 1; i >= 0; i-- {
		applied, err := l.items[i].IsApplied(ctx)
		if err != nil {
			return nil, err
		}
		if applied {
			out = append(out, l.items[i])
		}
	}
	return l.Replace(out), nil
}

func (l *List) Filter(pred func(*Migration) bool) *List {
	var out []*Migration
	for _, m := range l.items {
		if pred(m) {
			out = append(out, m)
		}
	}
	return l.Replace(out)
}

func (l *List) Replace(items []*Migration) *List {
	return &List{items: items, hooks: l.hooks}
}

// Slice returns items[i:j], with both bounds clamped to the list.
func (l *List) Slice(i, j int) *List {
	i = clamp(i, 0, len(l.items))
	j = clamp(j, i, len(l.items))
	return l.Replace(slices.Clone(l.items[i:j]))
}

// Apply applies every migration and then every hook, stopping at the first
// error. An empty list does nothing, hooks included.
func (l *List) Apply(ctx context.Context, force bool) error {
	if len(l.items) == 0 {
		return nil
	}
	for _, m := range l.all() {
		if err := m.Apply(ctx, force); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) Rollback(ctx context.Context, force bool) error {
	if len(l.items) == 0 {
		return nil
	}
	for _, m := range l.all() {
		if err := m.Rollback(ctx, force); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) all() []*Migration {
	return slices.Concat(l.items, l.hooks)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
