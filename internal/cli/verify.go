package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/roach88/txledger/internal/engine"
	"github.com/roach88/txledger/internal/ledger"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Workers    int
	LockPolicy string
}

// DigestRun summarizes one of the two verify runs.
type DigestRun struct {
	Workers int    `json:"workers"`
	Digest  string `json:"digest"`
	Records uint64 `json:"records"`
	Applied uint64 `json:"applied"`
}

// VerifyResult is the outcome of the verify command.
type VerifyResult struct {
	Source     string    `json:"source"`
	LockPolicy string    `json:"lock_policy"`
	Sequential DigestRun `json:"sequential"`
	Sharded    DigestRun `json:"sharded"`
	Match      bool      `json:"match"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <file.csv>",
		Short: "Check that sharded processing matches sequential processing",
		Long: `Process a transaction CSV twice, once sequentially and once sharded by
client, and compare the SHA-256 digests of the two snapshots.

Exit codes:
  0 - Digests match
  1 - Digests differ or a run failed
  2 - Command error (missing file, bad flags, etc.)

Examples:
  txledger verify transactions.csv
  txledger verify --workers 16 --format json transactions.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", max(runtime.NumCPU(), 2), "shard workers of the sharded run")
	cmd.Flags().StringVar(&opts.LockPolicy, "lock-policy", "withdrawals-only", "locked account policy (withdrawals-only|freeze-all)")

	return cmd
}

func runVerify(opts *VerifyOptions, path string, cmd *cobra.Command) error {
	if opts.Workers < 2 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--workers must be at least 2, got %d", opts.Workers))
	}
	policy, err := ledger.ParseLockPolicy(opts.LockPolicy)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --lock-policy", err)
	}

	// Standard input can only be read once: buffer it and rewind between
	// the two runs.
	rewind := func() {}
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read input", err)
		}
		rewind = func() { cmd.SetIn(bytes.NewReader(data)) }
		rewind()
	}
	return verifyRuns(opts, path, policy, cmd, rewind)
}

func verifyRuns(opts *VerifyOptions, path string, policy ledger.LockPolicy, cmd *cobra.Command, rewind func()) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd)
	defer stop()

	seq, err := verifyRun(ctx, cmd, path, 1, policy, logger)
	if err != nil {
		return err
	}
	rewind()
	sharded, err := verifyRun(ctx, cmd, path, opts.Workers, policy, logger)
	if err != nil {
		return err
	}

	result := VerifyResult{
		Source:     path,
		LockPolicy: string(policy),
		Sequential: seq,
		Sharded:    sharded,
		Match:      seq.Digest == sharded.Digest,
	}

	if opts.Format == "json" {
		f := opts.Formatter(cmd)
		if !result.Match {
			if err := f.Error("E_DIGEST_MISMATCH", "sequential and sharded snapshots differ", result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "digests differ")
		}
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "sequential  %s  (%d records)\n", seq.Digest, seq.Records)
	fmt.Fprintf(w, "sharded/%-3d %s  (%d records)\n", sharded.Workers, sharded.Digest, sharded.Records)
	if !result.Match {
		fmt.Fprintln(w, "✗ digests differ")
		return NewExitError(ExitFailure, "digests differ")
	}
	fmt.Fprintln(w, "✓ digests match")
	return nil
}

func verifyRun(ctx context.Context, cmd *cobra.Command, path string, workers int, policy ledger.LockPolicy, logger *slog.Logger) (DigestRun, error) {
	eng := engine.New(
		engine.WithWorkers(workers),
		engine.WithLockPolicy(policy),
		engine.WithLogger(logger),
	)
	report, err := processFile(ctx, cmd, path, eng)
	if err != nil {
		return DigestRun{}, err
	}
	return DigestRun{
		Workers: report.Workers,
		Digest:  report.Digest,
		Records: report.Stats.Records,
		Applied: report.Stats.Applied,
	}, nil
}
