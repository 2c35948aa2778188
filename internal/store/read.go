package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/money"
)

const runColumns = `id, source, workers, lock_policy, digest, records, applied, malformed, started_at, elapsed_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                         Run
		policy, started             string
		records, applied, malformed int64
		elapsed                     int64
	)
	err := row.Scan(&run.ID, &run.Source, &run.Workers, &policy, &run.Digest,
		&records, &applied, &malformed, &started, &elapsed)
	if err != nil {
		return Run{}, err
	}
	run.LockPolicy = ledger.LockPolicy(policy)
	run.Stats = engine.Stats{
		Records:   uint64(records),
		Applied:   uint64(applied),
		Malformed: uint64(malformed),
		Rejected:  make(map[ledger.ErrorCode]uint64),
	}
	run.Elapsed = time.Duration(elapsed)
	run.Started, err = time.Parse(timeLayout, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	return run, nil
}

// ReadRun loads a run with its accounts, deposits and rejection counts.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	if run.Accounts, err = s.readAccounts(ctx, id); err != nil {
		return Run{}, err
	}
	if run.Deposits, err = s.readDeposits(ctx, id); err != nil {
		return Run{}, err
	}
	if err := s.readRejections(ctx, id, &run.Stats); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns all runs without accounts or deposits, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY started_at ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		if err := s.readRejections(ctx, runs[i].ID, &runs[i].Stats); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) readAccounts(ctx context.Context, id string) ([]ledger.AccountSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client, available, held, locked FROM accounts
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	defer rows.Close()

	accounts := []ledger.AccountSnapshot{}
	for rows.Next() {
		var (
			client          int64
			available, held int64
			locked          bool
		)
		if err := rows.Scan(&client, &available, &held, &locked); err != nil {
			return nil, fmt.Errorf("read accounts: %w", err)
		}
		a := ledger.AccountSnapshot{ClientID: uint16(client), Locked: locked}
		if a.Available, err = money.FromRaw(available); err != nil {
			return nil, fmt.Errorf("read account %d available: %w", client, err)
		}
		if a.Held, err = money.FromRaw(held); err != nil {
			return nil, fmt.Errorf("read account %d held: %w", client, err)
		}
		if a.Total, err = a.Available.Add(a.Held); err != nil {
			return nil, fmt.Errorf("read account %d total: %w", client, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) readDeposits(ctx context.Context, id string) ([]ledger.DepositRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx, client, amount, state FROM deposits
		WHERE run_id = ?
		ORDER BY tx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read deposits: %w", err)
	}
	defer rows.Close()

	deposits := []ledger.DepositRecord{}
	for rows.Next() {
		var (
			tx, client, amount int64
			state              string
		)
		if err := rows.Scan(&tx, &client, &amount, &state); err != nil {
			return nil, fmt.Errorf("read deposits: %w", err)
		}
		d := ledger.DepositRecord{TxID: uint32(tx), ClientID: uint16(client)}
		if d.Amount, err = money.FromRaw(amount); err != nil {
			return nil, fmt.Errorf("read deposit %d: %w", tx, err)
		}
		if d.State, err = ledger.ParseDisputeState(state); err != nil {
			return nil, fmt.Errorf("read deposit %d: %w", tx, err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

func (s *Store) readRejections(ctx context.Context, id string, stats *engine.Stats) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, count FROM rejections WHERE run_id = ? ORDER BY code ASC
	`, id)
	if err != nil {
		return fmt.Errorf("read rejections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			code  string
			count int64
		)
		if err := rows.Scan(&code, &count); err != nil {
			return fmt.Errorf("read rejections: %w", err)
		}
		stats.Rejected[ledger.ErrorCode(code)] = uint64(count)
	}
	return rows.Err()
}
