package store

import (
	"time"

	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/ledger"
)

// Run is one archived engine run.
type Run struct {
	ID         string
	Source     string
	Workers    int
	LockPolicy ledger.LockPolicy
	Digest     string
	Stats      engine.Stats
	Started    time.Time
	Elapsed    time.Duration

	// Accounts and Deposits are empty in listings.
	Accounts []ledger.AccountSnapshot
	Deposits []ledger.DepositRecord
}

// NewRun builds the archive record of a completed report. source names
// the input, typically a file path.
func NewRun(source string, r *engine.Report) Run {
	return Run{
		ID:         r.RunID,
		Source:     source,
		Workers:    r.Workers,
		LockPolicy: r.LockPolicy,
		Digest:     r.Digest,
		Stats:      r.Stats,
		Started:    r.Started,
		Elapsed:    r.Elapsed,
		Accounts:   r.Accounts,
		Deposits:   r.Deposits,
	}
}
