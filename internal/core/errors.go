package core

import "errors"

// Predefined errors returned by persistence operations. Callers test them
// with errors.Is.
var (
	// ErrUsage is returned when the API is used in a way that can never succeed.
	ErrUsage = errors.New("invalid usage")
	// ErrNoWhere is returned when And/Or is called before Where, or when an
	// update or delete would run without a filter.
	ErrNoWhere = WrapError(ErrUsage, "where clause required")
	// ErrNotFound is returned by the *OrFail lookups when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrExecution wraps every failure reported by the backend.
	ErrExecution = errors.New("execution failed")
	// ErrSerialization is returned when a field value cannot be converted
	// to or from its stored string form.
	ErrSerialization = errors.New("serialization failed")
	// ErrUnsupportedDialect is returned for unknown drivers or for SQL-only
	// operations on a document backend.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
	// ErrInvalidModelType is returned when a type cannot be mapped as an entity.
	ErrInvalidModelType = errors.New("invalid model type")
	// ErrNotPersisted is returned when an operation needs a stored row but the
	// entity was never saved or was not created through a repository.
	ErrNotPersisted = errors.New("entity is not persisted")
)

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

// executionError tags a backend failure with ErrExecution while keeping the
// driver error reachable through errors.Is / errors.As.
type executionError struct {
	op  string
	err error
}

func (e *executionError) Error() string {
	return ErrExecution.Error() + ": " + e.op + ": " + e.err.Error()
}

func (e *executionError) Unwrap() []error {
	return []error{ErrExecution, e.err}
}

func newExecutionError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &executionError{op: op, err: err}
}
