package appmigrate

import (
	"errors"
	"fmt"
)

var (
	ErrAtomicScope         = errors.New("atomic scope failed")
	ErrAlreadyRegistered   = errors.New("already registered")
	ErrRegistrySealed      = errors.New("registry sealed")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrStructural          = errors.New("invalid transaction structure")
	ErrNestedTransaction   = fmt.Errorf("%w: transactions cannot be nested", ErrStructural)
	ErrPolicyInTransaction = fmt.Errorf("%w: ignore_errors cannot be specified within a transaction", ErrStructural)
	ErrInvalidDeclaration  = errors.New("invalid migration declaration")
	ErrRecordNotFound      = errors.New("migration record not found")
	ErrUnknownAction       = errors.New("unknown action")
	ErrMigrationNotFound   = errors.New("migration not found")
)

type Direction string

const (
	DirectionApply    Direction = "apply"
	DirectionRollback Direction = "rollback"
)

// StepError annotates a failure raised by a step's action.
type StepError struct {
	Migration string
	Step      int
	Direction Direction
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step %d of %s: %v", e.Direction, e.Step, e.Migration, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsAtomicScopeFailure reports whether err means the store could not commit
// an atomic scope, as opposed to an error raised by step logic.
func IsAtomicScopeFailure(err error) bool {
	return errors.Is(err, ErrAtomicScope)
}
