package appmigrate

import (
	"context"
	"errors"

	"go.kirha.ai/appmigrate/metrics"
)

const (
	TopicDispatch = "migration.dispatch"
	TopicStatus   = "migration.status"
)

const (
	FieldID          = "id"
	FieldStatus      = "status"
	FieldApplication = "application"
	FieldAction      = "action"
	FieldIndex       = "index"
	FieldTargetIndex = "target_index"
)

func newStatusReport(key, application string, status Status) Message {
	msg := Message{
		FieldStatus:      string(status),
		FieldApplication: application,
	}
	if key != "" {
		msg[FieldID] = key
	}
	return msg
}

// StatusConsumer records status reports. Reports without a known record are
// dropped, so redelivery of an already handled report is harmless.
type StatusConsumer struct {
	store  Store
	logger Logger
}

func NewStatusConsumer(store Store, logger Logger) *StatusConsumer {
	if logger == nil {
		logger = newDefaultLogger()
	}
	return &StatusConsumer{store: store, logger: logger}
}

func (c *StatusConsumer) Handle(ctx context.Context, msg Message) error {
	key := msg[FieldID]
	status := Status(msg[FieldStatus])

	if key == "" {
		c.logger.Debug("ignoring status report without id", "status", status)
		return nil
	}

	if status != StatusRollbackSuccess && !status.Valid() {
		c.logger.Warn("ignoring status report with unknown status", "id", key, "status", status)
		return nil
	}

	record, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		c.logger.Debug("ignoring status report for unknown record", "id", key, "status", status)
		return nil
	}
	if err != nil {
		return err
	}

	if status == StatusRollbackSuccess {
		err = c.store.Delete(ctx, key)
	} else {
		err = c.store.SetStatus(ctx, key, status)
	}
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	metrics.NewCollector(record.Application).IncStatusReports(string(status))
	c.logger.Info("recorded status report", "application", record.Application, "migration", record.ID, "status", status)
	return nil
}
