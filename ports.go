package appmigrate

import "context"

type Executor interface {
	Exec(ctx context.Context, query string, args ...any) ([]Row, error)
}

// Store persists migration records and executes literal queries.
//
// Atomic runs fn as a single attempt inside the store's atomic scope. An
// error returned by fn is returned unchanged once the scope is rolled back;
// a failure to commit is wrapped with ErrAtomicScope.
//
// Get and SetStatus return ErrRecordNotFound for an unknown key, Find returns
// a nil record when none exists, and Delete of an unknown key is a no-op.
// List returns every record, oldest first.
type Store interface {
	Executor
	Init(ctx context.Context) error
	Get(ctx context.Context, key string) (MigrationRecord, error)
	Find(ctx context.Context, id, application string) (*MigrationRecord, error)
	Count(ctx context.Context, id, application string) (int, error)
	Create(ctx context.Context, id, application string) (MigrationRecord, error)
	SetStatus(ctx context.Context, key string, status Status) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]MigrationRecord, error)
	Atomic(ctx context.Context, fn func(ctx context.Context, exec Executor) error) error
	Close() error
}

type Message map[string]string

type Handler func(ctx context.Context, msg Message) error

// Queue is a fire-and-forget, at-least-once transport.
type Queue interface {
	Enqueue(ctx context.Context, topic string, msg Message) error
}

// Subscriber delivers messages of one topic to h until ctx is done. A
// handler error asks the transport to redeliver the message.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler) error
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
