package ledger

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/txledger/internal/money"
)

// Kind identifies one of the five transaction types.
type Kind uint8

const (
	KindDeposit Kind = iota + 1
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

var kindNames = map[Kind]string{
	KindDeposit:    "deposit",
	KindWithdrawal: "withdrawal",
	KindDispute:    "dispute",
	KindResolve:    "resolve",
	KindChargeback: "chargeback",
}

var kindsByName = map[string]Kind{
	"deposit":    KindDeposit,
	"withdrawal": KindWithdrawal,
	"dispute":    KindDispute,
	"resolve":    KindResolve,
	"chargeback": KindChargeback,
}

// String returns the lowercase wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// HasAmount reports whether transactions of this kind carry an amount.
func (k Kind) HasAmount() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// ParseKind resolves a kind name case-insensitively, ignoring surrounding
// whitespace.
func ParseKind(s string) (Kind, error) {
	name := strings.TrimSpace(s)
	if k, ok := kindsByName[name]; ok {
		return k, nil
	}
	// Casers are stateful, so one is built per call; the exact-match path
	// above covers nearly all input.
	if k, ok := kindsByName[cases.Fold().String(name)]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Transaction is one decoded input record.
// Amount is meaningful only for deposits and withdrawals.
type Transaction struct {
	Kind     Kind
	ClientID uint16
	TxID     uint32
	Amount   money.Money
}

// NewDeposit returns a deposit transaction.
func NewDeposit(client uint16, tx uint32, amount money.Money) Transaction {
	return Transaction{Kind: KindDeposit, ClientID: client, TxID: tx, Amount: amount}
}

// NewWithdrawal returns a withdrawal transaction.
func NewWithdrawal(client uint16, tx uint32, amount money.Money) Transaction {
	return Transaction{Kind: KindWithdrawal, ClientID: client, TxID: tx, Amount: amount}
}

// NewDispute returns a dispute against deposit tx.
func NewDispute(client uint16, tx uint32) Transaction {
	return Transaction{Kind: KindDispute, ClientID: client, TxID: tx}
}

// NewResolve returns a resolve of disputed deposit tx.
func NewResolve(client uint16, tx uint32) Transaction {
	return Transaction{Kind: KindResolve, ClientID: client, TxID: tx}
}

// NewChargeback returns a chargeback of disputed deposit tx.
func NewChargeback(client uint16, tx uint32) Transaction {
	return Transaction{Kind: KindChargeback, ClientID: client, TxID: tx}
}

// DisputeState is the position of a deposit in the dispute lifecycle.
type DisputeState uint8

const (
	StateNormal DisputeState = iota
	StateDisputed
	StateChargedBack
)

// String returns a readable state name.
func (s DisputeState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateDisputed:
		return "disputed"
	case StateChargedBack:
		return "charged_back"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ParseDisputeState is the inverse of DisputeState.String.
func ParseDisputeState(s string) (DisputeState, error) {
	switch s {
	case "normal":
		return StateNormal, nil
	case "disputed":
		return StateDisputed, nil
	case "charged_back":
		return StateChargedBack, nil
	}
	return 0, fmt.Errorf("unknown dispute state %q", s)
}

// DepositRecord is the history kept for every accepted deposit.
type DepositRecord struct {
	TxID     uint32
	ClientID uint16
	Amount   money.Money
	State    DisputeState
}

// AccountSnapshot is the externally visible state of one account.
type AccountSnapshot struct {
	ClientID  uint16
	Available money.Money
	Held      money.Money
	Total     money.Money
	Locked    bool
}
