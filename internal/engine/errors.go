package engine

import (
	"errors"
	"fmt"
)

// RunError reports why a run stopped before the end of its input.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Record is the 1-based position of the record being processed.
	Record uint64

	// Err is the underlying source or ledger error.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeSourceFailed indicates the source returned an error that was
	// neither io.EOF nor a malformed record.
	ErrCodeSourceFailed RunErrorCode = "SOURCE_FAILED"

	// ErrCodeLedgerHalted indicates a fatal invariant violation.
	ErrCodeLedgerHalted RunErrorCode = "LEDGER_HALTED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("%s at record %d: %v", e.Code, e.Record, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsHaltError returns true if the run stopped on a fatal ledger error.
// Uses errors.As to handle wrapped errors.
func IsHaltError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeLedgerHalted
	}
	return false
}

// IsSourceError returns true if the run stopped because the source failed.
func IsSourceError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSourceFailed
	}
	return false
}

func sourceError(record uint64, err error) *RunError {
	return &RunError{Code: ErrCodeSourceFailed, Record: record, Err: err}
}

func haltError(record uint64, err error) *RunError {
	return &RunError{Code: ErrCodeLedgerHalted, Record: record, Err: err}
}
