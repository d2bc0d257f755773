//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import "fmt"

// TransactionAbortedError wraps the error that triggered a rollback,
// plus how many compensating actions failed while unwinding. Rollback
// itself always runs to completion; only individual step failures are
// swallowed and surfaced here as a count.
type TransactionAbortedError struct {
	Base Error `json:"error"`

	FailedSteps int `json:"failedSteps"`
}

// NewTransactionAbortedError wraps cause as the root cause of a rolled
// back transaction.
func NewTransactionAbortedError(cause error, failedSteps int) *TransactionAbortedError {
	return &TransactionAbortedError{
		Base: Error{
			Category: CategoryTransaction,
			Code:     CodeTransactionAborted,
			Message:  fmt.Sprintf("operation failed and was rolled back (%d rollback step(s) failed)", failedSteps),
			Cause:    cause,
		},
		FailedSteps: failedSteps,
	}
}

func (e *TransactionAbortedError) Error() string { return e.Base.Error() }
func (e *TransactionAbortedError) Unwrap() error { return e.Base.Cause }
func (e *TransactionAbortedError) Is(target error) bool {
	t, ok := target.(*TransactionAbortedError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
