package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveRun writes a run with its accounts, deposits and rejection counts in
// a single transaction. Saving an id that already exists fails and leaves
// the archive unchanged.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, source, workers, lock_policy, digest, records, applied, malformed, started_at, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Source,
		run.Workers,
		string(run.LockPolicy),
		run.Digest,
		int64(run.Stats.Records),
		int64(run.Stats.Applied),
		int64(run.Stats.Malformed),
		run.Started.UTC().Format(timeLayout),
		int64(run.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	if err = writeAccounts(ctx, tx, run); err != nil {
		return err
	}
	if err = writeDeposits(ctx, tx, run); err != nil {
		return err
	}
	if err = writeRejections(ctx, tx, run); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save run %s: commit: %w", run.ID, err)
	}
	return nil
}

func writeAccounts(ctx context.Context, tx *sql.Tx, run Run) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accounts (run_id, position, client, available, held, locked)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	defer stmt.Close()

	for i, a := range run.Accounts {
		if _, err := stmt.ExecContext(ctx, run.ID, i, int64(a.ClientID), a.Available.Raw(), a.Held.Raw(), a.Locked); err != nil {
			return fmt.Errorf("save account %d: %w", a.ClientID, err)
		}
	}
	return nil
}

func writeDeposits(ctx context.Context, tx *sql.Tx, run Run) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deposits (run_id, tx, client, amount, state)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save deposits: %w", err)
	}
	defer stmt.Close()

	for _, d := range run.Deposits {
		if _, err := stmt.ExecContext(ctx, run.ID, int64(d.TxID), int64(d.ClientID), d.Amount.Raw(), d.State.String()); err != nil {
			return fmt.Errorf("save deposit %d: %w", d.TxID, err)
		}
	}
	return nil
}

func writeRejections(ctx context.Context, tx *sql.Tx, run Run) error {
	for _, code := range run.Stats.Codes() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rejections (run_id, code, count) VALUES (?, ?, ?)
		`, run.ID, string(code), int64(run.Stats.Rejected[code]))
		if err != nil {
			return fmt.Errorf("save rejections %s: %w", code, err)
		}
	}
	return nil
}

// DeleteRun removes a run and everything archived with it.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// timeLayout is fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
