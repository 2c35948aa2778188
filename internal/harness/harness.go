package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/ledger"
)

// ShardedWorkers is the worker count of the cross-check run.
const ShardedWorkers = 4

// Harness applies scenario steps to a ledger and records the outcomes.
type Harness struct {
	ledger *ledger.Ledger
	txs    []ledger.Transaction
	logger *slog.Logger
}

// Run executes a scenario against a fresh ledger and returns the result.
//
// Execution flow:
//  1. Apply every step in order, recording its outcome
//  2. Compare outcomes with each step's expect
//  3. Check the final account and deposit assertions
//  4. Replay the steps through a sharded engine and compare snapshots
//
// The returned error is reserved for scenarios that cannot be executed;
// failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	policy, err := ledger.ParseLockPolicy(scenario.LockPolicy)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		ledger: ledger.New(ledger.WithLockPolicy(policy)),
		logger: slog.New(slog.DiscardHandler),
	}

	result := NewResult()
	if err := h.executeSteps(scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}
	result.SetAccounts(h.ledger.Snapshot())

	for _, msg := range EvaluateAssertions(scenario, h.ledger) {
		result.AddError(msg)
	}

	if h.ledger.Halted() == nil {
		if err := h.crossCheck(policy); err != nil {
			result.AddError(err.Error())
		}
	}

	return result, nil
}

func (h *Harness) executeSteps(steps []Step, result *Result) error {
	for i, step := range steps {
		tx, err := step.transaction()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		h.txs = append(h.txs, tx)

		outcome := outcomeOf(h.ledger.Apply(tx))
		result.AddTrace(step, outcome)

		if want := step.expect(); outcome != want {
			result.AddError((&AssertionError{
				Type:     "step",
				Expected: fmt.Sprintf("steps[%d] %s client=%d tx=%d: %s", i, step.Type, step.Client, step.Tx, want),
				Actual:   outcome,
				Trace:    result.Trace,
			}).Error())
		}
	}
	return nil
}

// crossCheck replays the applied transactions through a sharded engine.
// Client routing must not change the final snapshot.
func (h *Harness) crossCheck(policy ledger.LockPolicy) error {
	eng := engine.New(
		engine.WithWorkers(ShardedWorkers),
		engine.WithLockPolicy(policy),
		engine.WithLogger(h.logger),
	)
	report, err := eng.Run(context.Background(), engine.FromSlice(h.txs))
	if err != nil {
		return fmt.Errorf("sharded run failed: %w", err)
	}
	if want := h.ledger.Snapshot(); !slices.Equal(report.Accounts, want) {
		return &AssertionError{
			Type:     "sharded",
			Expected: fmt.Sprintf("%d accounts matching the sequential snapshot", len(want)),
			Actual:   fmt.Sprintf("%d accounts, diverged", len(report.Accounts)),
		}
	}
	return nil
}

// outcomeOf maps an Apply error to a trace outcome.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, ledger.ErrLedgerHalted) {
		return OutcomeHalted
	}
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}
