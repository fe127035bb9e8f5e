package appmigrate

import (
	"fmt"
	"slices"
)

// Definition declares the steps of one migration against the builder it is
// given.
type Definition func(b *Builder) error

type options struct {
	policy ErrorPolicy
	atomic bool
}

type Option func(*options)

// IgnoreErrors sets the directions in which failures are logged and
// swallowed.
func IgnoreErrors(policy ErrorPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// NonAtomic runs the transaction's apply without a real atomic scope.
// Rollbacks are always atomic.
func NonAtomic() Option {
	return func(o *options) {
		o.atomic = false
	}
}

func newOptions(opts []Option) options {
	o := options{policy: IgnoreNone, atomic: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Builder collects the transactions of a single migration while its
// definition runs. It is not safe for concurrent use.
type Builder struct {
	nextStep     int
	transactions []*Transaction
}

func newBuilder() *Builder {
	return &Builder{}
}

// Step wraps one step in its own transaction, appends it and returns the
// handle, which can later be merged with Transaction.
func (b *Builder) Step(apply, rollback StepAction, opts ...Option) *Transaction {
	o := newOptions(opts)

	t := &Transaction{
		steps:   []*step{{id: b.nextStep, apply: apply, rollback: rollback}},
		policy:  o.policy,
		atomic:  o.atomic,
		bare:    true,
		builder: b,
	}
	b.nextStep++
	b.transactions = append(b.transactions, t)

	return t
}

// Transaction merges single-step handles into one transaction placed where
// the earliest of them was. The merged handles are removed.
func (b *Builder) Transaction(handles []*Transaction, opts ...Option) (*Transaction, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: no steps to group", ErrStructural)
	}

	seen := make(map[*Transaction]bool, len(handles))
	for _, h := range handles {
		if h == nil || h.builder != b {
			return nil, fmt.Errorf("%w: step belongs to another migration", ErrStructural)
		}
		if h.policy != IgnoreNone {
			return nil, ErrPolicyInTransaction
		}
		if !h.bare || len(h.steps) != 1 || seen[h] {
			return nil, ErrNestedTransaction
		}
		seen[h] = true
	}

	o := newOptions(opts)
	merged := &Transaction{
		policy:  o.policy,
		atomic:  o.atomic,
		builder: b,
	}

	position := len(b.transactions)
	for _, h := range handles {
		merged.steps = append(merged.steps, h.steps[0])
		if i := slices.Index(b.transactions, h); i < position {
			position = i
		}
		h.bare = false
	}

	b.transactions = slices.DeleteFunc(b.transactions, func(t *Transaction) bool {
		return seen[t]
	})
	b.transactions = slices.Insert(b.transactions, position, merged)

	return merged, nil
}
