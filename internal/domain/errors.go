package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyQuestion rejects a query before any retrieval work begins.
var ErrEmptyQuestion = errors.New("question must not be empty")

// ExternalError marks a failed call to an external collaborator and names
// the originating operation. The query path does not retry these.
type ExternalError struct {
	Op  string // "vector_search", "embed", "generate", ...
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// External wraps err as an ExternalError. Returns nil for a nil err.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{Op: op, Err: err}
}

// IsExternal reports whether err originated in an external collaborator.
func IsExternal(err error) bool {
	var ee *ExternalError
	return errors.As(err, &ee)
}
