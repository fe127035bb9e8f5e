package appmigrate

import (
	"context"
	"fmt"
)

// StepAction is either a Query or a Func.
type StepAction interface {
	run(ctx context.Context, m *Migration, exec Executor) error
}

// Query is literal query text executed against the store.
type Query string

func (q Query) run(ctx context.Context, m *Migration, exec Executor) error {
	m.logger.Debug("executing query", "migration", m.ID, "query", string(q))

	rows, err := exec.Exec(ctx, string(q))
	if err != nil {
		return err
	}

	m.logger.Debug("query returned", "migration", m.ID, "rows", len(rows), "result", fmt.Sprint(rows))
	return nil
}

// Func is arbitrary step logic. exec is bound to the enclosing transaction's
// scope.
type Func func(ctx context.Context, m *Migration, exec Executor) error

func (f Func) run(ctx context.Context, m *Migration, exec Executor) error {
	return f(ctx, m, exec)
}

type step struct {
	id       int
	apply    StepAction
	rollback StepAction
}

func (s *step) Apply(ctx context.Context, m *Migration, exec Executor) error {
	m.logger.Info("applying step", "migration", m.ID, "step", s.id)
	return s.execute(ctx, m, exec, s.apply, DirectionApply)
}

func (s *step) Rollback(ctx context.Context, m *Migration, exec Executor) error {
	m.logger.Info("rolling back step", "migration", m.ID, "step", s.id)
	return s.execute(ctx, m, exec, s.rollback, DirectionRollback)
}

func (s *step) execute(ctx context.Context, m *Migration, exec Executor, action StepAction, direction Direction) error {
	if isNilAction(action) {
		return nil
	}

	if err := action.run(ctx, m, exec); err != nil {
		return &StepError{Migration: m.ID, Step: s.id, Direction: direction, Err: err}
	}
	return nil
}

func isNilAction(action StepAction) bool {
	switch a := action.(type) {
	case nil:
		return true
	case Query:
		return a == ""
	case Func:
		return a == nil
	}
	return false
}
