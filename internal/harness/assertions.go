package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/money"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace up to the failure, may be empty
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s client=%d tx=%d", event.Seq, event.Type, event.Client, event.Tx)
			if event.Amount != "" {
				fmt.Fprintf(&buf, " amount=%s", event.Amount)
			}
			fmt.Fprintf(&buf, " -> %s\n", event.Outcome)
		}
	}

	return buf.String()
}

// assertAccount checks one expected account against the ledger.
func assertAccount(l *ledger.Ledger, want ExpectedAccount) error {
	acct, ok := l.Account(want.Client)
	if !ok {
		return &AssertionError{
			Type:     "account",
			Expected: fmt.Sprintf("client %d exists", want.Client),
			Actual:   "no such account",
		}
	}

	var diffs []string
	check := func(field, expected string, actual money.Money) {
		if expected == "" {
			return
		}
		if exp := money.MustParse(expected); exp != actual {
			diffs = append(diffs, fmt.Sprintf("%s=%s (want %s)", field, actual, exp))
		}
	}
	check("available", want.Available, acct.Available)
	check("held", want.Held, acct.Held)
	check("total", want.Total, acct.Total())
	if acct.Locked != want.Locked {
		diffs = append(diffs, fmt.Sprintf("locked=%t (want %t)", acct.Locked, want.Locked))
	}

	if len(diffs) > 0 {
		return &AssertionError{
			Type:     "account",
			Expected: fmt.Sprintf("client %d matches", want.Client),
			Actual:   strings.Join(diffs, ", "),
		}
	}
	return nil
}

// assertDeposit checks the dispute state of one deposit.
func assertDeposit(l *ledger.Ledger, want ExpectedDeposit) error {
	rec, ok := l.Deposit(want.Tx)
	if !ok {
		return &AssertionError{
			Type:     "deposit",
			Expected: fmt.Sprintf("tx %d recorded", want.Tx),
			Actual:   "no such deposit",
		}
	}
	if rec.State.String() != want.State {
		return &AssertionError{
			Type:     "deposit",
			Expected: fmt.Sprintf("tx %d %s", want.Tx, want.State),
			Actual:   rec.State.String(),
		}
	}
	return nil
}

// EvaluateAssertions checks the scenario's final-state assertions against
// the ledger. Returns a slice of error messages for failed assertions.
// Scenarios are validated on load, so expected amounts always parse.
func EvaluateAssertions(scenario *Scenario, l *ledger.Ledger) []string {
	var errors []string

	for _, want := range scenario.Accounts {
		if err := assertAccount(l, want); err != nil {
			errors = append(errors, err.Error())
		}
	}
	for _, want := range scenario.Deposits {
		if err := assertDeposit(l, want); err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
