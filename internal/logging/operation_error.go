package logging

import (
	"errors"
	"fmt"
)

// OperationError annotates an error with the operation and search it belongs to.
type OperationError struct {
	Operation string
	SearchID  string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.SearchID != "" {
		return fmt.Sprintf("%s (search_id=%s): %v", e.Operation, e.SearchID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation that produced it. A nil err stays nil.
func NewOperationError(operation, searchID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, SearchID: searchID, Err: err}
}

// OperationOf returns the outermost operation recorded in err's chain.
func OperationOf(err error) (string, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Operation != "" {
		return opErr.Operation, true
	}
	return "", false
}
