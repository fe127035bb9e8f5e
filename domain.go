package appmigrate

import "time"

// RecordKind is the type name stores use for migration records. Caches
// holding record listings are keyed by it.
const RecordKind = "MigrationRecord"

const hookPrefix = "post-apply"

type Status string

const (
	StatusNew       Status = "new"
	StatusInProcess Status = "in_process"
	StatusFailed    Status = "failed"
	StatusSuccess   Status = "success"

	// StatusRollbackSuccess is only ever carried by status reports; the
	// consumer deletes the record instead of persisting it.
	StatusRollbackSuccess Status = "rollback success"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInProcess, StatusFailed, StatusSuccess:
		return true
	}
	return false
}

type Kind string

const (
	KindRegular Kind = "regular"
	KindHook    Kind = "hook"
)

type MigrationRecord struct {
	Key         string
	ID          string
	Application string
	CreatedAt   time.Time
	Status      Status
}

type MigrationStatus struct {
	Application string
	Index       int
	ID          string
	Kind        Kind
	Status      Status
}

// Row is one result row of a literal query, keyed by column name.
type Row map[string]any
