package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/txledger/internal/config"
	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/store"
	"github.com/roach88/txledger/internal/txcsv"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	Workers    int
	LockPolicy string
	Database   string
	ConfigFile string
	Buffer     int

	// IDGenerator overrides the run id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	IDGenerator engine.IDGenerator
}

// ProcessResult is the JSON payload of the process command.
type ProcessResult struct {
	RunID      string       `json:"run_id"`
	Source     string       `json:"source"`
	Workers    int          `json:"workers"`
	LockPolicy string       `json:"lock_policy"`
	Digest     string       `json:"digest"`
	Stats      engine.Stats `json:"stats"`
	Archived   bool         `json:"archived"`
	Accounts   []AccountRow `json:"accounts"`
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	return newProcessCommand(&ProcessOptions{RootOptions: rootOpts})
}

func newProcessCommand(opts *ProcessOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <file.csv>",
		Short: "Apply a transaction CSV and print the final balances",
		Long: `Apply every transaction of a CSV file to a fresh ledger and print one
row per client: client,available,held,total,locked.

Rejected and malformed records are counted and skipped. The run stops only
on an internal invariant violation. Use "-" to read standard input.

Flags override values from --config (YAML or CUE).

Exit codes:
  0 - Run completed
  1 - Ledger halted or run interrupted
  2 - Command error (missing file, bad config, bad header, etc.)

Examples:
  txledger process transactions.csv > accounts.csv
  txledger process --workers 8 transactions.csv
  txledger process --config txledger.yaml --db runs.db transactions.csv
  txledger process --format json transactions.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 1, "shard workers (1 = sequential)")
	cmd.Flags().StringVar(&opts.LockPolicy, "lock-policy", "withdrawals-only", "locked account policy (withdrawals-only|freeze-all)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the run in this SQLite database")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "configuration file (.yaml, .yml or .cue)")
	cmd.Flags().IntVar(&opts.Buffer, "buffer", engine.DefaultBuffer, "per-shard channel capacity")

	return cmd
}

func runProcess(opts *ProcessOptions, path string, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := opts.Logger(cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd)
	defer stop()

	engOpts := append(cfg.EngineOptions(), engine.WithLogger(logger))
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	report, err := processFile(ctx, cmd, path, engine.New(engOpts...))
	if err != nil {
		return err
	}

	archived := false
	if cfg.Database != "" {
		if err := archive(ctx, cfg.Database, path, report, logger); err != nil {
			return WrapExitError(ExitCommandError, "failed to archive run", err)
		}
		archived = true
	}

	if opts.Format == "json" {
		return opts.Formatter(cmd).Success(ProcessResult{
			RunID:      report.RunID,
			Source:     path,
			Workers:    report.Workers,
			LockPolicy: string(report.LockPolicy),
			Digest:     report.Digest,
			Stats:      report.Stats,
			Archived:   archived,
			Accounts:   accountRows(report.Accounts),
		})
	}

	opts.Formatter(cmd).VerboseLog("%s", describeStats(report.Stats))
	if err := txcsv.WriteSnapshot(cmd.OutOrStdout(), report.Accounts); err != nil {
		return WrapExitError(ExitFailure, "failed to write snapshot", err)
	}
	return nil
}

// resolveConfig loads --config if given and applies explicitly set flags
// on top.
func resolveConfig(opts *ProcessOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("lock-policy") {
		cfg.LockPolicy = opts.LockPolicy
	}
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("buffer") {
		cfg.Buffer = opts.Buffer
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// processFile runs eng over the CSV at path and maps run failures to exit
// codes.
func processFile(ctx context.Context, cmd *cobra.Command, path string, eng *engine.Engine) (*engine.Report, error) {
	in, closeIn, err := openInput(cmd, path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer closeIn()

	report, err := eng.Run(ctx, txcsv.NewReader(in))
	switch {
	case err == nil:
		return report, nil
	case engine.IsHaltError(err):
		return nil, WrapExitError(ExitFailure, "ledger halted", err)
	case engine.IsSourceError(err):
		return nil, WrapExitError(ExitCommandError, "failed to read input", err)
	case errors.Is(err, context.Canceled):
		return nil, WrapExitError(ExitFailure, "run interrupted", err)
	default:
		return nil, WrapExitError(ExitFailure, "run failed", err)
	}
}

// openInput opens path, or the command's stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func archive(ctx context.Context, dbPath, source string, report *engine.Report, logger *slog.Logger) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if err := st.SaveRun(ctx, store.NewRun(source, report)); err != nil {
		return err
	}
	logger.Info("run archived", "run", report.RunID, "db", dbPath)
	return nil
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// describeStats renders rejection counts for verbose text output.
func describeStats(s engine.Stats) string {
	out := fmt.Sprintf("records=%d applied=%d malformed=%d", s.Records, s.Applied, s.Malformed)
	for _, code := range s.Codes() {
		out += fmt.Sprintf(" %s=%d", code, s.Rejected[code])
	}
	return out
}
