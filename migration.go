package appmigrate

import (
	"context"
	"time"

	"go.kirha.ai/appmigrate/metrics"
)

// Migration is one loaded change-set of an application. Regular migrations
// track their completion in a MigrationRecord; hook migrations run after
// every list apply or rollback and never touch records.
type Migration struct {
	ID          string
	Application string
	Kind        Kind
	// Source is the raw declaration text, kept for diagnostics.
	Source string

	transactions []*Transaction
	key          string

	store   Store
	queue   Queue
	logger  Logger
	metrics *metrics.Collector
}

func (m *Migration) IsHook() bool {
	return m.Kind == KindHook
}

// Key returns the record key bound by the last Apply or Rollback, or "".
func (m *Migration) Key() string {
	return m.key
}

func (m *Migration) Transactions() []*Transaction {
	out := make([]*Transaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

func (m *Migration) Status(ctx context.Context) (Status, error) {
	record, err := m.store.Find(ctx, m.ID, m.Application)
	if err != nil {
		return "", err
	}
	if record == nil {
		return StatusNew, nil
	}
	return record.Status, nil
}

// IsApplied reports whether any record exists for the migration. A failed
// record counts: the migration has to be rolled back before it is retried.
func (m *Migration) IsApplied(ctx context.Context) (bool, error) {
	n, err := m.store.Count(ctx, m.ID, m.Application)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *Migration) Apply(ctx context.Context, force bool) error {
	m.logger.Info("applying migration", "application", m.Application, "migration", m.ID, "force", force)
	start := time.Now()

	if m.IsHook() {
		force = true
	} else {
		record, err := m.store.Create(ctx, m.ID, m.Application)
		if err != nil {
			return err
		}
		m.key = record.Key
	}

	for i, t := range m.transactions {
		if err := t.Apply(ctx, m, force); err != nil {
			m.compensate(ctx, m.transactions[:i])
			return err
		}
	}

	m.metrics.ObserveAction(string(DirectionApply), time.Since(start))
	if !m.IsHook() {
		m.metrics.IncApplied()
		m.Succeed(ctx)
	}
	return nil
}

// compensate rolls back the transactions completed by a failed apply, last
// first. Each rollback keeps its own error policy; a failure is logged and
// the remaining transactions still run.
func (m *Migration) compensate(ctx context.Context, done []*Transaction) {
	if len(done) == 0 {
		return
	}

	m.logger.Warn("compensating failed apply", "migration", m.ID, "transactions", len(done))
	m.metrics.IncCompensations()

	for i := len(done) - 1; i >= 0; i-- {
		if err := done[i].Rollback(ctx, m, false); err != nil {
			m.logger.Error("compensation failed", "migration", m.ID, "error", err)
		}
	}
}

func (m *Migration) Rollback(ctx context.Context, force bool) error {
	m.logger.Info("rolling back migration", "application", m.Application, "migration", m.ID, "force", force)
	start := time.Now()

	if m.IsHook() {
		force = true
	} else {
		record, err := m.store.Find(ctx, m.ID, m.Application)
		if err != nil {
			return err
		}
		m.key = ""
		if record != nil {
			m.key = record.Key
		}
	}

	for i := len(m.transactions) - 1; i >= 0; i-- {
		if err := m.transactions[i].Rollback(ctx, m, force); err != nil {
			return err
		}
	}

	m.metrics.ObserveAction(string(DirectionRollback), time.Since(start))
	if m.IsHook() {
		return nil
	}
	m.metrics.IncRolledBack()

	if m.key == "" {
		return nil
	}

	if err := m.store.Delete(ctx, m.key); err != nil {
		m.logger.Warn("failed to delete migration record, deferring to status consumer",
			"migration", m.ID, "key", m.key, "error", err)
		if reportErr := m.report(ctx, StatusRollbackSuccess); reportErr != nil {
			m.logger.Error("failed to report rollback", "migration", m.ID, "error", reportErr)
			return err
		}
	}

	m.key = ""
	return nil
}

func (m *Migration) Reapply(ctx context.Context, force bool) error {
	if err := m.Rollback(ctx, force); err != nil {
		return err
	}
	return m.Apply(ctx, force)
}

// Succeed enqueues a success report for the bound record.
func (m *Migration) Succeed(ctx context.Context) {
	if err := m.report(ctx, StatusSuccess); err != nil {
		m.logger.Error("failed to report status", "migration", m.ID, "status", StatusSuccess, "error", err)
	}
}

// Fail enqueues a failure report for the bound record.
func (m *Migration) Fail(ctx context.Context) {
	if err := m.report(ctx, StatusFailed); err != nil {
		m.logger.Error("failed to report status", "migration", m.ID, "status", StatusFailed, "error", err)
	}
}

func (m *Migration) report(ctx context.Context, status Status) error {
	return m.queue.Enqueue(ctx, TopicStatus, newStatusReport(m.key, m.Application, status))
}
