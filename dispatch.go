package appmigrate

import (
	"context"
	"fmt"
	"strconv"

	"go.kirha.ai/appmigrate/metrics"
)

type Action string

const (
	ActionApply    Action = "apply"
	ActionRollback Action = "rollback"
	ActionReapply  Action = "reapply"
)

var actionTable = map[Action]func(m *Migration, ctx context.Context, force bool) error{
	ActionApply:    (*Migration).Apply,
	ActionRollback: (*Migration).Rollback,
	ActionReapply:  (*Migration).Reapply,
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := actionTable[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// direction is the way a chain of this action walks the list and runs its
// hooks. Reapply ends in the apply direction.
func (a Action) direction() Direction {
	if a == ActionRollback {
		return DirectionRollback
	}
	return DirectionApply
}

type dispatchRequest struct {
	Application string
	Action      Action
	Index       int
	TargetIndex int
}

func (r dispatchRequest) message() Message {
	return Message{
		FieldApplication: r.Application,
		FieldAction:      string(r.Action),
		FieldIndex:       strconv.Itoa(r.Index),
		FieldTargetIndex: strconv.Itoa(r.TargetIndex),
	}
}

func parseDispatchRequest(msg Message) (dispatchRequest, error) {
	var req dispatchRequest

	req.Application = msg[FieldApplication]
	if req.Application == "" {
		return req, fmt.Errorf("missing %s", FieldApplication)
	}

	action, err := ParseAction(msg[FieldAction])
	if err != nil {
		return req, err
	}
	req.Action = action

	if req.Index, err = strconv.Atoi(msg[FieldIndex]); err != nil {
		return req, fmt.Errorf("invalid %s: %w", FieldIndex, err)
	}
	if req.TargetIndex, err = strconv.Atoi(msg[FieldTargetIndex]); err != nil {
		return req, fmt.Errorf("invalid %s: %w", FieldTargetIndex, err)
	}

	return req, nil
}

// Request enqueues the first action of a chain that brings application's
// migration at target to the state action asks for. Nothing is enqueued when
// there is no outstanding work.
func (e *Engine) Request(ctx context.Context, application string, action Action, target int) error {
	if _, ok := actionTable[action]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	list := e.list.ForApp(application)
	if target < 0 || target >= list.Len() {
		return fmt.Errorf("%w: %s has no migration at index %d", ErrMigrationNotFound, application, target)
	}

	var from int
	switch action {
	case ActionApply:
		from = 0
	case ActionRollback:
		from = list.Len() - 1
	case ActionReapply:
		from = target
	}

	first, ok, err := nextIndex(ctx, list, action, from, target)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Info("nothing to dispatch", "application", application, "action", action, "target_index", target)
		return nil
	}

	req := dispatchRequest{Application: application, Action: action, Index: first, TargetIndex: target}
	e.logger.Info("dispatching migration action", "application", application, "action", action, "index", first, "target_index", target)
	return e.queue.Enqueue(ctx, TopicDispatch, req.message())
}

// HandleDispatch runs one dispatched action and enqueues the next one of
// the chain. At most one worker may process a given application's chain at
// a time.
func (e *Engine) HandleDispatch(ctx context.Context, msg Message) error {
	req, err := parseDispatchRequest(msg)
	if err != nil {
		e.logger.Warn("dropping malformed dispatch message", "error", err)
		return nil
	}

	list := e.list.ForApp(req.Application)
	if req.Index < 0 || req.Index >= list.Len() || req.TargetIndex < 0 || req.TargetIndex >= list.Len() {
		e.logger.Warn("dropping dispatch message for unknown migration",
			"application", req.Application, "index", req.Index, "target_index", req.TargetIndex)
		return nil
	}

	m := list.At(req.Index)
	pending, err := isPending(ctx, m, req.Action)
	if err != nil {
		return err
	}

	if pending {
		metrics.NewCollector(req.Application).IncDispatches(string(req.Action))
		if err := actionTable[req.Action](m, ctx, false); err != nil {
			e.logger.Error("migration action failed, ending chain",
				"application", req.Application, "migration", m.ID, "action", req.Action, "error", err)
			return nil
		}
	} else {
		e.logger.Info("skipping migration already in requested state",
			"application", req.Application, "migration", m.ID, "action", req.Action)
	}

	if req.Action != ActionReapply {
		from := req.Index + 1
		if req.Action == ActionRollback {
			from = req.Index - 1
		}

		next, ok, err := nextIndex(ctx, list, req.Action, from, req.TargetIndex)
		if err != nil {
			return err
		}
		if ok {
			req.Index = next
			return e.queue.Enqueue(ctx, TopicDispatch, req.message())
		}
	}

	e.runHooks(ctx, list, req.Application, req.Action.direction())
	return nil
}

func (e *Engine) runHooks(ctx context.Context, list *List, application string, direction Direction) {
	for _, h := range hooksOf(list.Hooks(), application) {
		var err error
		if direction == DirectionRollback {
			err = h.Rollback(ctx, true)
		} else {
			err = h.Apply(ctx, true)
		}
		if err != nil {
			e.logger.Error("hook migration failed", "application", application, "migration", h.ID, "error", err)
		}
	}
}

// isPending reports whether action still has work to do on m.
func isPending(ctx context.Context, m *Migration, action Action) (bool, error) {
	if action == ActionReapply {
		return true, nil
	}

	applied, err := m.IsApplied(ctx)
	if err != nil {
		return false, err
	}
	if action == ActionApply {
		return !applied, nil
	}
	return applied, nil
}

// nextIndex finds the first index from from toward target, inclusive, that
// action still has to process. Apply walks forward, rollback backward and
// reapply only considers target.
func nextIndex(ctx context.Context, list *List, action Action, from, target int) (int, bool, error) {
	switch action {
	case ActionApply:
		for i := from; i <= target; i++ {
			pending, err := isPending(ctx, list.At(i), action)
			if err != nil {
				return 0, false, err
			}
			if pending {
				return i, true, nil
			}
		}
	case ActionRollback:
		for i := from; i >= target; i-- {
			pending, err := isPending(ctx, list.At(i), action)
			if err != nil {
				return 0, false, err
			}
			if pending {
				return i, true, nil
			}
		}
	case ActionReapply:
		if from == target {
			return target, true, nil
		}
	}
	return 0, false, nil
}
