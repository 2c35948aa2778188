// Package ledger applies transactions to client accounts.
//
// The ledger owns one account.Account per client and one DepositRecord per
// accepted deposit. Apply computes the next account value from a copy and
// commits it, together with any DepositRecord change, only when every step
// succeeded. A rejected transaction leaves the ledger exactly as it was.
//
// Deposit tx ids are unique across all clients. Accounts are created by
// the first committed transaction that references a client; a rejected
// transaction does not create one. A client whose every transaction was
// rejected has no row in Snapshot, not even a zero one.
//
// A Ledger is not safe for concurrent use. Parallel callers shard by
// client and give each shard its own Ledger.
package ledger

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/txledger/internal/account"
	"github.com/roach88/txledger/internal/money"
)

// LockPolicy decides which transactions a locked account still accepts.
type LockPolicy string

const (
	// LockWithdrawalsOnly refuses withdrawals on locked accounts and
	// accepts everything else.
	LockWithdrawalsOnly LockPolicy = "withdrawals-only"

	// LockFreezeAll refuses every transaction on locked accounts.
	LockFreezeAll LockPolicy = "freeze-all"
)

// ParseLockPolicy validates a policy name. Empty selects the default.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch LockPolicy(s) {
	case "", LockWithdrawalsOnly:
		return LockWithdrawalsOnly, nil
	case LockFreezeAll:
		return LockFreezeAll, nil
	}
	return "", fmt.Errorf("unknown lock policy %q (want %s or %s)", s, LockWithdrawalsOnly, LockFreezeAll)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLockPolicy sets the lock policy. Default: LockWithdrawalsOnly.
func WithLockPolicy(p LockPolicy) Option {
	return func(l *Ledger) {
		l.policy = p
	}
}

// Ledger is the transaction state machine.
type Ledger struct {
	index    map[uint16]int // client -> position in accounts
	accounts []account.Account
	deposits map[uint32]DepositRecord
	foreign  map[uint32]struct{} // deposit ids recorded by another ledger
	policy   LockPolicy
	halted   error
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		index:    make(map[uint16]int),
		deposits: make(map[uint32]DepositRecord),
		policy:   LockWithdrawalsOnly,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the configured lock policy.
func (l *Ledger) Policy() LockPolicy {
	return l.policy
}

// Apply routes tx to its operation and commits the result.
//
// A nil return means the transaction took effect. Any *TransactionError
// means it did not. A fatal error (CodeInvariantViolation) halts the
// ledger: every later call returns ErrLedgerHalted.
func (l *Ledger) Apply(tx Transaction) error {
	if l.halted != nil {
		return fmt.Errorf("%w: %w", ErrLedgerHalted, l.halted)
	}

	pos, found := l.index[tx.ClientID]
	current := account.New(tx.ClientID)
	if found {
		current = l.accounts[pos]
	}

	if current.Locked && l.policy == LockFreezeAll {
		return reject(CodeAccountLocked, tx, account.ErrLocked)
	}

	var (
		next   account.Account
		record *DepositRecord
		err    error
	)
	switch tx.Kind {
	case KindDeposit:
		next, record, err = l.deposit(current, tx)
	case KindWithdrawal:
		next, err = l.withdraw(current, tx)
	case KindDispute:
		next, record, err = l.dispute(current, tx)
	case KindResolve:
		next, record, err = l.resolve(current, tx)
	case KindChargeback:
		next, record, err = l.chargeback(current, tx)
	default:
		err = reject(CodeMalformedTransaction, tx, fmt.Errorf("%w: %s", ErrUnknownKind, tx.Kind))
	}
	if err != nil {
		if IsFatal(err) {
			l.halted = err
		}
		return err
	}

	// Commit point: nothing above has touched ledger state.
	if found {
		l.accounts[pos] = next
	} else {
		l.index[tx.ClientID] = len(l.accounts)
		l.accounts = append(l.accounts, next)
	}
	if record != nil {
		l.deposits[record.TxID] = *record
	}
	return nil
}

func (l *Ledger) deposit(a account.Account, tx Transaction) (account.Account, *DepositRecord, error) {
	_, dup := l.deposits[tx.TxID]
	_, elsewhere := l.foreign[tx.TxID]
	if dup || elsewhere {
		return a, nil, reject(CodeDuplicateTransactionID, tx, ErrDuplicateTransactionID)
	}
	next, err := a.Deposit(tx.Amount)
	if err != nil {
		return a, nil, reject(amountCode(err), tx, err)
	}
	return next, &DepositRecord{
		TxID:     tx.TxID,
		ClientID: tx.ClientID,
		Amount:   tx.Amount,
		State:    StateNormal,
	}, nil
}

func (l *Ledger) withdraw(a account.Account, tx Transaction) (account.Account, error) {
	next, err := a.Withdraw(tx.Amount)
	if err != nil {
		return a, reject(amountCode(err), tx, err)
	}
	return next, nil
}

func (l *Ledger) dispute(a account.Account, tx Transaction) (account.Account, *DepositRecord, error) {
	rec, err := l.disputable(tx, StateNormal)
	if err != nil {
		return a, nil, err
	}
	next, err := a.Hold(rec.Amount)
	if err != nil {
		return a, nil, reject(amountCode(err), tx, err)
	}
	rec.State = StateDisputed
	return next, &rec, nil
}

func (l *Ledger) resolve(a account.Account, tx Transaction) (account.Account, *DepositRecord, error) {
	rec, err := l.disputable(tx, StateDisputed)
	if err != nil {
		return a, nil, err
	}
	next, err := a.Release(rec.Amount)
	if err != nil {
		return a, nil, reject(CodeInvariantViolation, tx, fmt.Errorf("release %s against held %s: %w", rec.Amount, a.Held, err))
	}
	rec.State = StateNormal
	return next, &rec, nil
}

func (l *Ledger) chargeback(a account.Account, tx Transaction) (account.Account, *DepositRecord, error) {
	rec, err := l.disputable(tx, StateDisputed)
	if err != nil {
		return a, nil, err
	}
	next, err := a.Chargeback(rec.Amount)
	if err != nil {
		return a, nil, reject(CodeInvariantViolation, tx, fmt.Errorf("charge back %s against held %s: %w", rec.Amount, a.Held, err))
	}
	rec.State = StateChargedBack
	return next, &rec, nil
}

// disputable looks up the deposit referenced by tx and checks that it
// belongs to the same client and sits in the wanted state. The returned
// record is a copy.
func (l *Ledger) disputable(tx Transaction, want DisputeState) (DepositRecord, error) {
	rec, ok := l.deposits[tx.TxID]
	if !ok || rec.ClientID != tx.ClientID {
		return DepositRecord{}, reject(CodeUnknownDeposit, tx, ErrUnknownDeposit)
	}
	if rec.State != want {
		return DepositRecord{}, reject(CodeInvalidDisputeState, tx,
			fmt.Errorf("%w: expected %s, was %s", ErrInvalidDisputeState, want, rec.State))
	}
	return rec, nil
}

// amountCode maps an account or money error to its rejection code.
func amountCode(err error) ErrorCode {
	switch {
	case errors.Is(err, account.ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, account.ErrLocked):
		return CodeAccountLocked
	case errors.Is(err, account.ErrNegativeAmount):
		return CodeMalformedTransaction
	case errors.Is(err, money.ErrOverflow), errors.Is(err, money.ErrUnderflow):
		return CodeCurrencyOverflow
	default:
		return CodeInvariantViolation
	}
}

// Account returns the current state of a client's account.
func (l *Ledger) Account(client uint16) (account.Account, bool) {
	pos, ok := l.index[client]
	if !ok {
		return account.Account{}, false
	}
	return l.accounts[pos], true
}

// Deposit returns the history record of a deposit.
func (l *Ledger) Deposit(tx uint32) (DepositRecord, bool) {
	rec, ok := l.deposits[tx]
	return rec, ok
}

// ExcludeDepositID marks tx as a deposit id recorded by another ledger.
// Later deposits with that id are rejected as duplicates. The id does not
// appear in Deposits.
func (l *Ledger) ExcludeDepositID(tx uint32) {
	if l.foreign == nil {
		l.foreign = make(map[uint32]struct{})
	}
	l.foreign[tx] = struct{}{}
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	return len(l.accounts)
}

// Halted returns the fatal error that stopped the ledger, if any.
func (l *Ledger) Halted() error {
	return l.halted
}

// Snapshot returns every account in creation order.
func (l *Ledger) Snapshot() []AccountSnapshot {
	out := make([]AccountSnapshot, len(l.accounts))
	for i, a := range l.accounts {
		out[i] = AccountSnapshot{
			ClientID:  a.ClientID,
			Available: a.Available,
			Held:      a.Held,
			Total:     a.Total(),
			Locked:    a.Locked,
		}
	}
	return out
}

// Deposits returns all deposit records ordered by tx id.
func (l *Ledger) Deposits() []DepositRecord {
	out := make([]DepositRecord, 0, len(l.deposits))
	for _, rec := range l.deposits {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b DepositRecord) int {
		return cmp.Compare(a.TxID, b.TxID)
	})
	return out
}
