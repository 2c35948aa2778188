// Package account holds the per-client balance record and the pure
// transitions that transform it.
//
// Every transition takes the account by value and returns either a new
// account or an error. The receiver is never modified, so a failed
// transition leaves the caller holding the exact pre-transition value.
package account

import (
	"errors"

	"github.com/roach88/txledger/internal/money"
)

var (
	// ErrInsufficientFunds is returned when available funds cannot cover
	// a withdrawal or a hold.
	ErrInsufficientFunds = errors.New("insufficient available funds")

	// ErrLocked is returned when a withdrawal targets a locked account.
	ErrLocked = errors.New("account is locked")

	// ErrNegativeAmount is returned when a transition is given an amount
	// below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Account is a client's balance record.
//
// Invariants: Available >= 0, Held >= 0 and Available+Held <= money.Max.
// The total is always derived from the two stored fields.
type Account struct {
	ClientID  uint16
	Available money.Money
	Held      money.Money
	Locked    bool
}

// New returns an empty, unlocked account.
func New(clientID uint16) Account {
	return Account{ClientID: clientID}
}

// Total returns Available + Held.
func (a Account) Total() money.Money {
	return a.Available + a.Held
}

// Deposit credits amt to the available balance. Locked accounts accept
// deposits.
func (a Account) Deposit(amt money.Money) (Account, error) {
	if amt.IsNegative() {
		return a, ErrNegativeAmount
	}
	if _, err := a.Total().Add(amt); err != nil {
		return a, money.ErrOverflow
	}
	available, err := a.Available.Add(amt)
	if err != nil {
		return a, err
	}
	a.Available = available
	return a, nil
}

// Withdraw debits amt from the available balance.
func (a Account) Withdraw(amt money.Money) (Account, error) {
	if amt.IsNegative() {
		return a, ErrNegativeAmount
	}
	if a.Locked {
		return a, ErrLocked
	}
	if a.Available < amt {
		return a, ErrInsufficientFunds
	}
	available, err := a.Available.Sub(amt)
	if err != nil {
		return a, err
	}
	a.Available = available
	return a, nil
}

// Hold moves amt from available to held.
func (a Account) Hold(amt money.Money) (Account, error) {
	if amt.IsNegative() {
		return a, ErrNegativeAmount
	}
	if a.Available < amt {
		return a, ErrInsufficientFunds
	}
	available, err := a.Available.Sub(amt)
	if err != nil {
		return a, err
	}
	held, err := a.Held.Add(amt)
	if err != nil {
		return a, err
	}
	a.Available, a.Held = available, held
	return a, nil
}

// Release moves amt from held back to available.
//
// Held smaller than amt means the dispute history disagrees with the
// balances; the returned money.ErrUnderflow must be treated as fatal.
func (a Account) Release(amt money.Money) (Account, error) {
	if amt.IsNegative() {
		return a, ErrNegativeAmount
	}
	if a.Held < amt {
		return a, money.ErrUnderflow
	}
	held, err := a.Held.Sub(amt)
	if err != nil {
		return a, err
	}
	available, err := a.Available.Add(amt)
	if err != nil {
		return a, err
	}
	a.Available, a.Held = available, held
	return a, nil
}

// Chargeback removes amt from held and locks the account.
// Held smaller than amt is fatal in the same way as for Release.
func (a Account) Chargeback(amt money.Money) (Account, error) {
	if amt.IsNegative() {
		return a, ErrNegativeAmount
	}
	if a.Held < amt {
		return a, money.ErrUnderflow
	}
	held, err := a.Held.Sub(amt)
	if err != nil {
		return a, err
	}
	a.Held = held
	a.Locked = true
	return a, nil
}
