package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/store"
	"github.com/roach88/txledger/internal/txcsv"
)

// RunSummary is the JSON rendering of an archived run.
type RunSummary struct {
	ID         string       `json:"id"`
	Source     string       `json:"source"`
	Workers    int          `json:"workers"`
	LockPolicy string       `json:"lock_policy"`
	Digest     string       `json:"digest"`
	Started    time.Time    `json:"started"`
	ElapsedMS  int64        `json:"elapsed_ms"`
	Stats      engine.Stats `json:"stats"`
}

// RunDetail is an archived run with its final accounts.
type RunDetail struct {
	RunSummary
	Deposits int          `json:"deposits"`
	Accounts []AccountRow `json:"accounts"`
}

func summarize(run store.Run) RunSummary {
	return RunSummary{
		ID:         run.ID,
		Source:     run.Source,
		Workers:    run.Workers,
		LockPolicy: string(run.LockPolicy),
		Digest:     run.Digest,
		Started:    run.Started,
		ElapsedMS:  run.Elapsed.Milliseconds(),
		Stats:      run.Stats,
	}
}

// openArchive opens an existing archive. Unlike store.Open it refuses to
// create a new database.
func openArchive(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		Long: `List the runs archived by "process --db", oldest first.

Examples:
  txledger runs --db runs.db
  txledger runs --db runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	st, err := openArchive(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = summarize(run)
	}

	if opts.Format == "json" {
		return opts.Formatter(cmd).Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %s  workers=%d records=%d rejected=%d digest=%.12s  %s\n",
			s.ID, s.Started.Format(time.RFC3339), s.Workers, s.Stats.Records, s.Stats.RejectedTotal(), s.Digest, s.Source)
	}
	return nil
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print an archived run",
		Long: `Print the metadata and final accounts of one archived run.

In text format the accounts are written in the same CSV layout as
"process", after a commented header.

Examples:
  txledger show --db runs.db --run 0190c3b1-...
  txledger show --db runs.db --run 0190c3b1-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	st, err := openArchive(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.ReadRun(context.Background(), opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitFailure, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Format == "json" {
		return opts.Formatter(cmd).Success(RunDetail{
			RunSummary: summarize(run),
			Deposits:   len(run.Deposits),
			Accounts:   accountRows(run.Accounts),
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "# run %s\n", run.ID)
	fmt.Fprintf(w, "# source %s\n", run.Source)
	fmt.Fprintf(w, "# started %s elapsed %s\n", run.Started.Format(time.RFC3339Nano), run.Elapsed)
	fmt.Fprintf(w, "# workers %d lock_policy %s\n", run.Workers, run.LockPolicy)
	fmt.Fprintf(w, "# %s\n", describeStats(run.Stats))
	fmt.Fprintf(w, "# digest %s\n", run.Digest)
	if err := txcsv.WriteSnapshot(w, run.Accounts); err != nil {
		return WrapExitError(ExitFailure, "failed to write snapshot", err)
	}
	return nil
}
