package appmigrate

import (
	"context"
	"fmt"
)

// ErrorPolicy names the directions in which a transaction's failures are
// logged and swallowed instead of propagated.
type ErrorPolicy string

const (
	IgnoreNone     ErrorPolicy = ""
	IgnoreApply    ErrorPolicy = "apply"
	IgnoreRollback ErrorPolicy = "rollback"
	IgnoreAll      ErrorPolicy = "all"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(s); p {
	case IgnoreNone, IgnoreApply, IgnoreRollback, IgnoreAll:
		return p, nil
	case "none":
		return IgnoreNone, nil
	}
	return IgnoreNone, fmt.Errorf("%w: unknown ignore_errors value %q", ErrInvalidDeclaration, s)
}

func (p ErrorPolicy) tolerates(direction Direction) bool {
	return p == IgnoreAll || string(p) == string(direction)
}

// Transaction groups steps under one error policy. When Atomic is false the
// steps of an apply run one by one without a real atomic scope.
type Transaction struct {
	steps   []*step
	policy  ErrorPolicy
	atomic  bool
	bare    bool
	builder *Builder
}

func (t *Transaction) Policy() ErrorPolicy {
	return t.policy
}

func (t *Transaction) Atomic() bool {
	return t.atomic
}

func (t *Transaction) Len() int {
	return len(t.steps)
}

// StepIDs returns the sequence numbers of the grouped steps in order.
func (t *Transaction) StepIDs() []int {
	ids := make([]int, len(t.steps))
	for i, s := range t.steps {
		ids[i] = s.id
	}
	return ids
}

func (t *Transaction) Apply(ctx context.Context, m *Migration, force bool) error {
	run := func(ctx context.Context, exec Executor) error {
		for _, s := range t.steps {
			if err := s.Apply(ctx, m, exec); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if t.atomic {
		err = m.store.Atomic(ctx, run)
	} else {
		err = run(ctx, m.store)
	}

	return t.settle(ctx, m, DirectionApply, force, err)
}

func (t *Transaction) Rollback(ctx context.Context, m *Migration, force bool) error {
	err := m.store.Atomic(ctx, func(ctx context.Context, exec Executor) error {
		for i := len(t.steps) - 1; i >= 0; i-- {
			if err := t.steps[i].Rollback(ctx, m, exec); err != nil {
				return err
			}
		}
		return nil
	})

	return t.settle(ctx, m, DirectionRollback, force, err)
}

func (t *Transaction) Reapply(ctx context.Context, m *Migration, force bool) error {
	if err := t.Rollback(ctx, m, force); err != nil {
		return err
	}
	return t.Apply(ctx, m, force)
}

// settle applies the same tolerance rule to atomic-scope failures and step
// errors in both directions.
func (t *Transaction) settle(ctx context.Context, m *Migration, direction Direction, force bool, err error) error {
	if err == nil {
		return nil
	}

	if force || t.policy.tolerates(direction) {
		m.logger.Warn("ignored error in transaction",
			"migration", m.ID,
			"direction", direction,
			"atomic_scope", IsAtomicScopeFailure(err),
			"error", err)
		m.metrics.IncIgnoredErrors(string(direction))
		return nil
	}

	m.metrics.IncFailures(string(direction))
	m.Fail(ctx)
	return err
}
