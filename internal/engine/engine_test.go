package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txledger/internal/generator"
	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/money"
	"github.com/roach88/txledger/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEngine(opts ...Option) *Engine {
	base := []Option{
		WithLogger(quietLogger()),
		WithIDGenerator(testutil.NewSequenceIDGenerator("run")),
	}
	return New(append(base, opts...)...)
}

var exampleStream = []string{
	"deposit 1 1 5.0",
	"withdrawal 1 2 3.0",
	"dispute 1 1",
	"deposit 2 10 10.0",
	"dispute 2 10",
	"chargeback 2 10",
	"withdrawal 2 11 0.01",
}

func TestEngine_New(t *testing.T) {
	e := New()
	assert.Equal(t, 1, e.Workers())
	assert.Equal(t, DefaultBuffer, e.buffer)
	assert.Equal(t, ledger.LockWithdrawalsOnly, e.policy)

	e = New(WithWorkers(-3), WithBuffer(0))
	assert.Equal(t, 1, e.Workers())
	assert.Equal(t, DefaultBuffer, e.buffer)
}

func TestRun_Sequential(t *testing.T) {
	e := newTestEngine()
	r, err := e.Run(context.Background(), FromSlice(testutil.Txs(t, exampleStream...)))
	require.NoError(t, err)

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, 1, r.Workers)
	assert.Equal(t, ledger.LockWithdrawalsOnly, r.LockPolicy)
	assert.Equal(t, []ledger.AccountSnapshot{
		{ClientID: 1, Available: money.MustParse("2"), Held: money.Zero, Total: money.MustParse("2")},
		{ClientID: 2, Locked: true},
	}, r.Accounts)
	assert.Equal(t, []ledger.DepositRecord{
		{TxID: 1, ClientID: 1, Amount: money.MustParse("5"), State: ledger.StateNormal},
		{TxID: 10, ClientID: 2, Amount: money.MustParse("10"), State: ledger.StateChargedBack},
	}, r.Deposits)

	assert.Equal(t, uint64(7), r.Stats.Records)
	assert.Equal(t, uint64(5), r.Stats.Applied)
	assert.Equal(t, uint64(2), r.Stats.RejectedTotal())
	assert.Equal(t, map[ledger.ErrorCode]uint64{
		ledger.CodeInsufficientFunds: 1,
		ledger.CodeAccountLocked:     1,
	}, r.Stats.Rejected)
	assert.Equal(t, "8dd9451c8eb4a4e2700c6ee8f5d176e970ea370c05e62c5358fc70993cd9d5b7", r.Digest)
}

func TestRun_Empty(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r, err := newTestEngine(WithWorkers(workers)).Run(context.Background(), FromSlice(nil))
			require.NoError(t, err)
			assert.Empty(t, r.Accounts)
			assert.Empty(t, r.Deposits)
			assert.Equal(t, uint64(0), r.Stats.Records)
			assert.Equal(t, "24e5eb2fc744e3ea27171b02f5d8f3a5d7455fa6db2318e32b0a25985f997b53", r.Digest)
		})
	}
}

// malformedSource interleaves malformed records with txs.
func malformedSource(txs []ledger.Transaction) Source {
	i, bad := 0, true
	return SourceFunc(func() (ledger.Transaction, error) {
		bad = !bad
		if bad {
			return ledger.Transaction{}, fmt.Errorf("row %d: %w", i, ledger.ErrMalformedTransaction)
		}
		if i >= len(txs) {
			return ledger.Transaction{}, io.EOF
		}
		tx := txs[i]
		i++
		return tx, nil
	})
}

func TestRun_SkipsMalformed(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			txs := testutil.Txs(t, "deposit 1 1 1", "deposit 2 2 2", "withdrawal 1 3 0.5")
			r, err := newTestEngine(WithWorkers(workers)).Run(context.Background(), malformedSource(txs))
			require.NoError(t, err)

			assert.Equal(t, uint64(3), r.Stats.Malformed)
			assert.Equal(t, uint64(6), r.Stats.Records)
			assert.Equal(t, uint64(3), r.Stats.Applied)
			assert.Len(t, r.Accounts, 2)
		})
	}
}

func TestRun_SourceError(t *testing.T) {
	boom := errors.New("disk on fire")
	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			n := 0
			src := SourceFunc(func() (ledger.Transaction, error) {
				n++
				if n == 3 {
					return ledger.Transaction{}, boom
				}
				return ledger.NewDeposit(1, uint32(n), money.MustParse("1")), nil
			})

			r, err := newTestEngine(WithWorkers(workers)).Run(context.Background(), src)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, boom)
			assert.True(t, IsSourceError(err))
			assert.False(t, IsHaltError(err))

			var re *RunError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, uint64(3), re.Record)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			g, err := generator.New(generator.Options{Count: 100000, Seed: 1})
			require.NoError(t, err)

			r, err := newTestEngine(WithWorkers(workers), WithBuffer(1)).Run(ctx, g)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Nil(t, r)
		})
	}
}

func TestRun_ShardedMatchesSequential(t *testing.T) {
	opts := generator.Options{Count: 50000, Seed: 99, Clients: 300}

	run := func(workers int) *Report {
		t.Helper()
		g, err := generator.New(opts)
		require.NoError(t, err)
		r, err := newTestEngine(WithWorkers(workers), WithBuffer(64)).Run(context.Background(), g)
		require.NoError(t, err)
		return r
	}

	want := run(1)
	require.NotEmpty(t, want.Accounts)
	for _, workers := range []int{2, 4, 7} {
		got := run(workers)
		assert.Equal(t, workers, got.Workers)
		assert.Equal(t, want.Accounts, got.Accounts, "workers=%d", workers)
		assert.Equal(t, want.Deposits, got.Deposits, "workers=%d", workers)
		assert.Equal(t, want.Stats, got.Stats, "workers=%d", workers)
		assert.Equal(t, want.Digest, got.Digest, "workers=%d", workers)
	}
}

func TestRun_ShardedCreationOrder(t *testing.T) {
	txs := testutil.Txs(t,
		"withdrawal 8 1 1",
		"deposit 5 2 1",
		"deposit 3 3 1",
		"deposit 8 4 1",
		"deposit 6 5 1",
		"deposit 5 6 1",
	)
	seq, err := newTestEngine().Run(context.Background(), FromSlice(txs))
	require.NoError(t, err)
	sharded, err := newTestEngine(WithWorkers(4)).Run(context.Background(), FromSlice(txs))
	require.NoError(t, err)

	var order []uint16
	for _, a := range sharded.Accounts {
		order = append(order, a.ClientID)
	}
	assert.Equal(t, []uint16{5, 3, 8, 6}, order)
	assert.Equal(t, seq.Accounts, sharded.Accounts)
}

func TestRun_ShardedCrossClientDuplicate(t *testing.T) {
	txs := testutil.Txs(t,
		"deposit 1 5 1",
		"deposit 2 5 2",
		"deposit 1 5 3",
		"deposit 3 6 1",
	)
	seq, err := newTestEngine().Run(context.Background(), FromSlice(txs))
	require.NoError(t, err)
	sharded, err := newTestEngine(WithWorkers(3)).Run(context.Background(), FromSlice(txs))
	require.NoError(t, err)

	assert.Equal(t, uint64(2), sharded.Stats.Rejected[ledger.CodeDuplicateTransactionID])
	assert.Equal(t, seq.Stats, sharded.Stats)
	assert.Equal(t, seq.Accounts, sharded.Accounts)
	assert.Equal(t, seq.Deposits, sharded.Deposits)
}

func TestRun_ShardedRejectedDepositFreesID(t *testing.T) {
	tests := []struct {
		name   string
		policy ledger.LockPolicy
		txs    func(t *testing.T) []ledger.Transaction
		code   ledger.ErrorCode
	}{
		{
			name:   "locked under freeze-all",
			policy: ledger.LockFreezeAll,
			txs: func(t *testing.T) []ledger.Transaction {
				return testutil.Txs(t,
					"deposit 1 1 10.0",
					"dispute 1 1",
					"chargeback 1 1",
					"deposit 1 7 1.0",
					"deposit 2 7 4.0",
					"deposit 3 7 1.0",
					"deposit 1 7 2.0",
				)
			},
			code: ledger.CodeAccountLocked,
		},
		{
			name:   "overflow",
			policy: ledger.LockWithdrawalsOnly,
			txs: func(t *testing.T) []ledger.Transaction {
				return testutil.Txs(t,
					"deposit 1 1 "+money.Max.String(),
					"deposit 1 7 1.0",
					"deposit 2 7 4.0",
					"deposit 3 7 1.0",
				)
			},
			code: ledger.CodeCurrencyOverflow,
		},
		{
			name:   "negative amount",
			policy: ledger.LockWithdrawalsOnly,
			txs: func(t *testing.T) []ledger.Transaction {
				return []ledger.Transaction{
					ledger.NewDeposit(1, 7, -money.MustParse("1.0")),
					ledger.NewDeposit(2, 7, money.MustParse("4.0")),
					ledger.NewDeposit(3, 7, money.MustParse("1.0")),
				}
			},
			code: ledger.CodeMalformedTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := tt.txs(t)
			seq, err := newTestEngine(WithLockPolicy(tt.policy)).Run(context.Background(), FromSlice(txs))
			require.NoError(t, err)
			sharded, err := newTestEngine(WithLockPolicy(tt.policy), WithWorkers(2)).Run(context.Background(), FromSlice(txs))
			require.NoError(t, err)

			rec, ok := findDeposit(sharded.Deposits, 7)
			require.True(t, ok, "tx 7 should be recorded for client 2")
			assert.Equal(t, uint16(2), rec.ClientID)
			assert.Equal(t, money.MustParse("4.0"), rec.Amount)
			assert.NotZero(t, sharded.Stats.Rejected[tt.code])
			assert.Equal(t, uint64(1), sharded.Stats.Rejected[ledger.CodeDuplicateTransactionID])

			assert.Equal(t, seq.Stats, sharded.Stats)
			assert.Equal(t, seq.Accounts, sharded.Accounts)
			assert.Equal(t, seq.Deposits, sharded.Deposits)
			assert.Equal(t, seq.Digest, sharded.Digest)
		})
	}
}

func TestRun_ShardedForeignDuplicateOnLockedAccount(t *testing.T) {
	// Client 3 is locked; under freeze-all the lock is reported before the
	// reused id, in both modes.
	txs := testutil.Txs(t,
		"deposit 3 1 5.0",
		"dispute 3 1",
		"chargeback 3 1",
		"deposit 2 9 1.0",
		"deposit 3 9 1.0",
	)
	seq, err := newTestEngine(WithLockPolicy(ledger.LockFreezeAll)).Run(context.Background(), FromSlice(txs))
	require.NoError(t, err)
	sharded, err := newTestEngine(WithLockPolicy(ledger.LockFreezeAll), WithWorkers(2)).Run(context.Background(), FromSlice(txs))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), sharded.Stats.Rejected[ledger.CodeAccountLocked])
	assert.Zero(t, sharded.Stats.Rejected[ledger.CodeDuplicateTransactionID])
	assert.Equal(t, seq.Stats, sharded.Stats)
	assert.Equal(t, seq.Accounts, sharded.Accounts)
}

func TestRun_ShardedMatchesSequentialWithReusedIDs(t *testing.T) {
	// Every deposit id is used by several clients, some of them locked.
	var lines []string
	for tx := 1; tx <= 40; tx++ {
		client := tx%7 + 1
		lines = append(lines,
			fmt.Sprintf("deposit %d %d %d.5", client, tx%10+1, tx),
			fmt.Sprintf("dispute %d %d", client, tx%10+1),
		)
		if tx%3 == 0 {
			lines = append(lines, fmt.Sprintf("chargeback %d %d", client, tx%10+1))
		}
	}
	txs := testutil.Txs(t, lines...)

	for _, policy := range []ledger.LockPolicy{ledger.LockWithdrawalsOnly, ledger.LockFreezeAll} {
		seq, err := newTestEngine(WithLockPolicy(policy)).Run(context.Background(), FromSlice(txs))
		require.NoError(t, err)
		for _, workers := range []int{2, 3, 4} {
			sharded, err := newTestEngine(WithLockPolicy(policy), WithWorkers(workers), WithBuffer(1)).Run(context.Background(), FromSlice(txs))
			require.NoError(t, err)
			assert.Equal(t, seq.Stats, sharded.Stats, "%s workers=%d", policy, workers)
			assert.Equal(t, seq.Accounts, sharded.Accounts, "%s workers=%d", policy, workers)
			assert.Equal(t, seq.Deposits, sharded.Deposits, "%s workers=%d", policy, workers)
		}
	}
}

func findDeposit(deposits []ledger.DepositRecord, tx uint32) (ledger.DepositRecord, bool) {
	for _, d := range deposits {
		if d.TxID == tx {
			return d, true
		}
	}
	return ledger.DepositRecord{}, false
}

func TestRun_FreezeAllPolicy(t *testing.T) {
	txs := testutil.Txs(t,
		"deposit 1 1 5",
		"dispute 1 1",
		"chargeback 1 1",
		"deposit 1 2 1",
	)
	r, err := newTestEngine(WithLockPolicy(ledger.LockFreezeAll)).Run(context.Background(), FromSlice(txs))
	require.NoError(t, err)
	assert.Equal(t, ledger.LockFreezeAll, r.LockPolicy)
	assert.Equal(t, uint64(1), r.Stats.Rejected[ledger.CodeAccountLocked])
	assert.Equal(t, money.Zero, r.Accounts[0].Total)
}

func TestRun_LogsRejections(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := New(WithLogger(logger)).Run(context.Background(), FromSlice(testutil.Txs(t, "withdrawal 4 9 1")))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "transaction rejected")
	assert.Contains(t, out, "code=INSUFFICIENT_FUNDS")
	assert.Contains(t, out, "client=4")
	assert.Contains(t, out, "run complete")
}

func TestRunError(t *testing.T) {
	cause := errors.New("held underflow")
	err := fmt.Errorf("wrapped: %w", haltError(12, cause))

	assert.True(t, IsHaltError(err))
	assert.False(t, IsSourceError(err))
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "wrapped: LEDGER_HALTED at record 12: held underflow")
	assert.False(t, IsHaltError(cause))
}

func TestDigest_Stable(t *testing.T) {
	snap := []ledger.AccountSnapshot{{ClientID: 1, Available: money.MustParse("1"), Total: money.MustParse("1")}}
	a, err := Digest(snap)
	require.NoError(t, err)
	b, err := Digest(snap)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	snap[0].Locked = true
	c, err := Digest(snap)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestStats_Codes(t *testing.T) {
	s := newStats()
	s.reject(ledger.CodeUnknownDeposit)
	s.reject(ledger.CodeAccountLocked)
	s.reject(ledger.CodeUnknownDeposit)
	assert.Equal(t, []ledger.ErrorCode{ledger.CodeAccountLocked, ledger.CodeUnknownDeposit}, s.Codes())
	assert.Equal(t, uint64(3), s.RejectedTotal())
}

func BenchmarkRun(b *testing.B) {
	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			e := New(WithWorkers(workers), WithLogger(quietLogger()))
			for i := 0; i < b.N; i++ {
				g, err := generator.New(generator.Options{Count: 100000, Seed: uint64(i)})
				if err != nil {
					b.Fatal(err)
				}
				if _, err := e.Run(context.Background(), g); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
