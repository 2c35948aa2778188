package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes a rejected transaction.
type ErrorCode string

const (
	// CodeDuplicateTransactionID: a deposit reused a recorded tx id.
	CodeDuplicateTransactionID ErrorCode = "DUPLICATE_TRANSACTION_ID"

	// CodeAccountLocked: the account is locked and the lock policy refuses
	// the transaction.
	CodeAccountLocked ErrorCode = "ACCOUNT_LOCKED"

	// CodeInsufficientFunds: a withdrawal or dispute hold exceeds the
	// available balance.
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// CodeUnknownDeposit: the referenced deposit does not exist or belongs
	// to another client.
	CodeUnknownDeposit ErrorCode = "UNKNOWN_DEPOSIT"

	// CodeInvalidDisputeState: the referenced deposit is not in the state
	// the transaction requires.
	CodeInvalidDisputeState ErrorCode = "INVALID_DISPUTE_STATE"

	// CodeCurrencyOverflow: a deposit or hold would exceed money.Max.
	CodeCurrencyOverflow ErrorCode = "CURRENCY_OVERFLOW"

	// CodeMalformedTransaction: the transaction itself is unusable
	// (unknown kind, negative amount).
	CodeMalformedTransaction ErrorCode = "MALFORMED_TRANSACTION"

	// CodeInvariantViolation: internal state is corrupt. Fatal.
	CodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
)

var (
	ErrDuplicateTransactionID = errors.New("transaction id already recorded")
	ErrUnknownDeposit         = errors.New("deposit not found")
	ErrInvalidDisputeState    = errors.New("invalid dispute state")
	ErrUnknownKind            = errors.New("unknown transaction kind")

	// ErrMalformedTransaction marks input that could not be turned into a
	// Transaction. Input collaborators wrap their per-record errors with it
	// so stream drivers can skip the record and continue.
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrLedgerHalted is returned by Apply after a fatal error.
	ErrLedgerHalted = errors.New("ledger halted after invariant violation")
)

// TransactionError describes why a transaction was rejected.
// The ledger state is unchanged whenever a TransactionError is returned.
type TransactionError struct {
	Code     ErrorCode
	Kind     Kind
	ClientID uint16
	TxID     uint32
	Err      error
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %s client=%d tx=%d: %v", e.Code, e.Kind, e.ClientID, e.TxID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error indicates corrupted internal state.
func (e *TransactionError) Fatal() bool {
	return e.Code == CodeInvariantViolation
}

func reject(code ErrorCode, tx Transaction, err error) *TransactionError {
	return &TransactionError{
		Code:     code,
		Kind:     tx.Kind,
		ClientID: tx.ClientID,
		TxID:     tx.TxID,
		Err:      err,
	}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a
// TransactionError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var te *TransactionError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsFatal reports whether err must stop stream processing.
func IsFatal(err error) bool {
	if errors.Is(err, ErrLedgerHalted) {
		return true
	}
	var te *TransactionError
	return errors.As(err, &te) && te.Fatal()
}
