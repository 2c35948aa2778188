package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/txledger/internal/ledger"
)

// DefaultBuffer is the default per-shard channel capacity.
const DefaultBuffer = 1024

// cancelCheckInterval is how many records the sequential loop processes
// between context checks.
const cancelCheckInterval = 4096

// Engine runs transaction streams. An Engine holds only configuration and
// may run any number of streams, concurrently or not.
type Engine struct {
	workers int
	buffer  int
	policy  ledger.LockPolicy
	logger  *slog.Logger
	ids     IDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of shard workers.
//
// Default: 1 (sequential). Values below 2 select sequential mode.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithBuffer sets the channel capacity between the dispatcher and each
// worker. Default: DefaultBuffer.
func WithBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.buffer = n
		}
	}
}

// WithLockPolicy sets the lock policy of every ledger the engine creates.
func WithLockPolicy(p ledger.LockPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the run id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers: 1,
		buffer:  DefaultBuffer,
		policy:  ledger.LockWithdrawalsOnly,
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers returns the configured worker count, at least 1.
func (e *Engine) Workers() int {
	return max(e.workers, 1)
}

// Report is the result of a completed run.
type Report struct {
	RunID      string
	Workers    int
	LockPolicy ledger.LockPolicy
	Accounts   []ledger.AccountSnapshot
	Deposits   []ledger.DepositRecord
	Stats      Stats
	Digest     string
	Started    time.Time
	Elapsed    time.Duration
}

type outcome struct {
	accounts []ledger.AccountSnapshot
	deposits []ledger.DepositRecord
	stats    Stats
}

// Run processes src to exhaustion.
//
// It returns a *RunError if the source fails or the ledger halts, and
// ctx.Err() if ctx is cancelled. No partial report is returned in either
// case: the state after a fatal error is untrustworthy.
func (e *Engine) Run(ctx context.Context, src Source) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()
	runID := e.ids.Generate()
	e.logger.Info("run starting", "run", runID, "workers", e.Workers(), "lock_policy", string(e.policy))

	var (
		out *outcome
		err error
	)
	if e.Workers() > 1 {
		out, err = e.runSharded(ctx, src)
	} else {
		out, err = e.runSequential(ctx, src)
	}
	if err != nil {
		e.logger.Error("run aborted", "run", runID, "error", err)
		return nil, err
	}

	digest, err := Digest(out.accounts)
	if err != nil {
		return nil, fmt.Errorf("digest snapshot: %w", err)
	}

	r := &Report{
		RunID:      runID,
		Workers:    e.Workers(),
		LockPolicy: e.policy,
		Accounts:   out.accounts,
		Deposits:   out.deposits,
		Stats:      out.stats,
		Digest:     digest,
		Started:    started,
		Elapsed:    time.Since(started),
	}
	e.logger.Info("run complete",
		"run", runID,
		"records", r.Stats.Records,
		"applied", r.Stats.Applied,
		"rejected", r.Stats.RejectedTotal(),
		"malformed", r.Stats.Malformed,
		"accounts", len(r.Accounts),
		"elapsed", r.Elapsed,
	)
	return r, nil
}

func (e *Engine) runSequential(ctx context.Context, src Source) (*outcome, error) {
	l := ledger.New(ledger.WithLockPolicy(e.policy))
	stats := newStats()
	clock := NewClock()

	for {
		if clock.Current()%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		tx, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		seq := clock.Next()
		if err != nil {
			if !errors.Is(err, ledger.ErrMalformedTransaction) {
				return nil, sourceError(seq, err)
			}
			stats.Records++
			e.skip(ctx, &stats, seq, err)
			continue
		}
		stats.Records++
		if err := e.apply(ctx, l, &stats, seq, tx); err != nil {
			return nil, err
		}
	}

	return &outcome{
		accounts: l.Snapshot(),
		deposits: l.Deposits(),
		stats:    stats,
	}, nil
}

// item is one routed record.
type item struct {
	seq uint64
	tx  ledger.Transaction

	// foreign marks a deposit whose tx id another shard has recorded.
	foreign bool
}

var errShardStopped = errors.New("shard stopped")

// shard is the private state of one worker. mu guards the ledger and the
// progress fields while the worker runs; the dispatcher takes it only to
// ask about a deposit id another client reuses.
type shard struct {
	in      chan item
	ledger  *ledger.Ledger
	created []uint64 // created[i] is the seq that created account i
	stats   Stats

	mu       sync.Mutex
	progress *sync.Cond
	done     uint64 // seq of the last applied record
	stopped  bool
	err      error
}

func newShard(buffer int, policy ledger.LockPolicy) *shard {
	s := &shard{
		in:     make(chan item, buffer),
		ledger: ledger.New(ledger.WithLockPolicy(policy)),
		stats:  newStats(),
	}
	s.progress = sync.NewCond(&s.mu)
	return s
}

// holds waits until the shard has applied record seq and reports whether
// its ledger recorded deposit tx.
func (s *shard) holds(seq uint64, tx uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.done < seq && !s.stopped {
		s.progress.Wait()
	}
	if s.done < seq {
		if s.err != nil {
			return false, s.err
		}
		return false, errShardStopped
	}
	_, ok := s.ledger.Deposit(tx)
	return ok, nil
}

func (s *shard) stop(err error) {
	s.mu.Lock()
	s.stopped = true
	s.err = err
	s.mu.Unlock()
	s.progress.Broadcast()
}

// claim tracks which shard may hold the record of a deposit tx id. Only
// one deposit per id is ever accepted, and it always lands on the shard
// of the current claim.
type claim struct {
	shard    int
	seq      uint64 // last deposit with this id routed to shard
	recorded bool
}

func (e *Engine) runSharded(ctx context.Context, src Source) (*outcome, error) {
	shards := make([]*shard, e.Workers())
	for i := range shards {
		shards[i] = newShard(e.buffer, e.policy)
	}

	g, gctx := errgroup.WithContext(ctx)
	dispatched := newStats()
	g.Go(func() error {
		defer func() {
			for _, s := range shards {
				close(s.in)
			}
		}()
		return e.dispatch(gctx, src, shards, &dispatched)
	})
	for _, s := range shards {
		g.Go(func() (err error) {
			defer func() { s.stop(err) }()
			return e.work(gctx, s)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(shards, dispatched), nil
}

// dispatch reads src and routes each record to its client's shard.
func (e *Engine) dispatch(ctx context.Context, src Source, shards []*shard, stats *Stats) error {
	clock := NewClock()
	claims := make(map[uint32]*claim)

	for {
		tx, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		seq := clock.Next()
		if err != nil {
			if !errors.Is(err, ledger.ErrMalformedTransaction) {
				return sourceError(seq, err)
			}
			stats.Records++
			e.skip(ctx, stats, seq, err)
			continue
		}
		stats.Records++

		target := int(tx.ClientID) % len(shards)
		it := item{seq: seq, tx: tx}
		if tx.Kind == ledger.KindDeposit {
			if it.foreign, err = claimDeposit(claims, shards, target, seq, tx.TxID); err != nil {
				return err
			}
		}

		select {
		case shards[target].in <- it:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// claimDeposit decides whether a deposit routed to target reuses a tx id
// recorded on another shard. When the id was last routed elsewhere it
// waits for that shard to apply it, so a rejected deposit leaves the id
// free exactly as it does in a single ledger.
func claimDeposit(claims map[uint32]*claim, shards []*shard, target int, seq uint64, tx uint32) (bool, error) {
	c, ok := claims[tx]
	switch {
	case !ok:
		claims[tx] = &claim{shard: target, seq: seq}
		return false, nil
	case c.shard == target:
		c.seq = seq
		return false, nil
	case c.recorded:
		return true, nil
	}

	held, err := shards[c.shard].holds(c.seq, tx)
	if err != nil {
		return false, err
	}
	if held {
		c.recorded = true
		return true, nil
	}
	c.shard, c.seq = target, seq
	return false, nil
}

// work applies one shard's records in arrival order.
func (e *Engine) work(ctx context.Context, s *shard) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it, ok := <-s.in:
			if !ok {
				return nil
			}
			if err := e.applyShard(ctx, s, it); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) applyShard(ctx context.Context, s *shard, it item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.foreign {
		s.ledger.ExcludeDepositID(it.tx.TxID)
	}
	before := s.ledger.Len()
	if err := e.apply(ctx, s.ledger, &s.stats, it.seq, it.tx); err != nil {
		return err
	}
	if s.ledger.Len() > before {
		s.created = append(s.created, it.seq)
	}
	s.done = it.seq
	s.progress.Broadcast()
	return nil
}

// merge joins the shard results. Accounts are ordered by the sequence
// number of the record that created them, deposits by tx id.
func merge(shards []*shard, dispatched Stats) *outcome {
	type entry struct {
		seq  uint64
		snap ledger.AccountSnapshot
	}

	var (
		entries  []entry
		deposits []ledger.DepositRecord
	)
	stats := newStats()
	stats.merge(dispatched)
	for _, s := range shards {
		for i, snap := range s.ledger.Snapshot() {
			entries = append(entries, entry{seq: s.created[i], snap: snap})
		}
		deposits = append(deposits, s.ledger.Deposits()...)
		stats.merge(s.stats)
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	slices.SortFunc(deposits, func(a, b ledger.DepositRecord) int {
		return cmp.Compare(a.TxID, b.TxID)
	})

	accounts := make([]ledger.AccountSnapshot, len(entries))
	for i, en := range entries {
		accounts[i] = en.snap
	}
	if deposits == nil {
		deposits = []ledger.DepositRecord{}
	}
	return &outcome{accounts: accounts, deposits: deposits, stats: stats}
}

// apply runs one transaction against l and updates stats. Only fatal
// ledger errors are returned.
func (e *Engine) apply(ctx context.Context, l *ledger.Ledger, stats *Stats, seq uint64, tx ledger.Transaction) error {
	err := l.Apply(tx)
	if err == nil {
		stats.Applied++
		return nil
	}
	if ledger.IsFatal(err) {
		e.logger.Error("invariant violation",
			"record", seq,
			"kind", tx.Kind.String(),
			"client", tx.ClientID,
			"tx", tx.TxID,
			"error", err,
		)
		return haltError(seq, err)
	}
	e.rejected(ctx, stats, seq, tx, err)
	return nil
}

func (e *Engine) rejected(ctx context.Context, stats *Stats, seq uint64, tx ledger.Transaction, err error) {
	code := ledger.CodeOf(err)
	stats.reject(code)
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.Debug("transaction rejected",
			"record", seq,
			"kind", tx.Kind.String(),
			"client", tx.ClientID,
			"tx", tx.TxID,
			"code", string(code),
			"error", err,
		)
	}
}

func (e *Engine) skip(ctx context.Context, stats *Stats, seq uint64, err error) {
	stats.Malformed++
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.Debug("record skipped", "record", seq, "error", err)
	}
}
