// Package generator produces synthetic transaction streams for load and
// consistency testing.
//
// Streams are reproducible: the same Options always yield the same
// records. Deposits and withdrawals get strictly increasing tx ids.
// Disputes target deposits the generator believes are undisputed, and
// resolves target disputed ones. Chargebacks target a disputed deposit
// half the time and an undisputed one otherwise, so a share of them is
// rejected by the ledger.
package generator

import (
	"errors"
	"io"
	"math/rand/v2"

	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/money"
)

// Weights sets the relative frequency of each kind.
type Weights struct {
	Deposit    uint
	Withdrawal uint
	Dispute    uint
	Resolve    uint
	Chargeback uint
}

// DefaultWeights mirrors a realistic mix: mostly deposits and withdrawals,
// rare disputes.
var DefaultWeights = Weights{
	Deposit:    100,
	Withdrawal: 96,
	Dispute:    2,
	Resolve:    1,
	Chargeback: 1,
}

func (w Weights) total() uint {
	return w.Deposit + w.Withdrawal + w.Dispute + w.Resolve + w.Chargeback
}

// Options configures a Generator. Zero fields take defaults.
type Options struct {
	Count     uint64      // records to emit
	Clients   uint16      // client ids are drawn from [1, Clients]; default 1000
	Seed      uint64      // PRNG seed
	Weights   Weights     // default DefaultWeights
	MaxAmount money.Money // amounts are drawn from [0, MaxAmount); default 1
}

// ErrNoDeposits is returned by New when the deposit weight is zero.
var ErrNoDeposits = errors.New("deposit weight must be positive")

const (
	defaultClients = 1000
	pcgStream      = 0x9e3779b97f4a7c15
)

// deposit is the generator's view of one emitted deposit.
type deposit struct {
	tx     uint32
	client uint16
	state  ledger.DisputeState
}

// Generator is a Source of synthetic transactions.
// It is not safe for concurrent use.
type Generator struct {
	opts     Options
	rng      *rand.Rand
	total    uint
	emitted  uint64
	nextTx   uint32
	deposits []deposit
	disputed []int // indices into deposits
}

// New creates a Generator.
func New(opts Options) (*Generator, error) {
	if opts.Clients == 0 {
		opts.Clients = defaultClients
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	if opts.Weights.Deposit == 0 {
		return nil, ErrNoDeposits
	}
	if opts.MaxAmount <= 0 {
		opts.MaxAmount = money.MustParse("1")
	}
	return &Generator{
		opts:  opts,
		rng:   rand.New(rand.NewPCG(opts.Seed, pcgStream)),
		total: opts.Weights.total(),
	}, nil
}

// Emitted returns the number of records produced so far.
func (g *Generator) Emitted() uint64 {
	return g.emitted
}

// Next returns the next record, or io.EOF once Count records were emitted.
func (g *Generator) Next() (ledger.Transaction, error) {
	if g.emitted >= g.opts.Count {
		return ledger.Transaction{}, io.EOF
	}
	for {
		if tx, ok := g.pick(); ok {
			g.emitted++
			return tx, nil
		}
	}
}

// pick draws a kind and builds a record for it. It reports false when
// the drawn kind has no valid target yet; the caller draws again.
func (g *Generator) pick() (ledger.Transaction, bool) {
	w := g.opts.Weights
	r := g.rng.UintN(g.total)
	switch {
	case r < w.Deposit:
		return g.deposit(), true
	case r < w.Deposit+w.Withdrawal:
		return ledger.NewWithdrawal(g.client(), g.txID(), g.amount()), true
	case r < w.Deposit+w.Withdrawal+w.Dispute:
		return g.dispute()
	case r < w.Deposit+w.Withdrawal+w.Dispute+w.Resolve:
		return g.resolve()
	default:
		return g.chargeback()
	}
}

func (g *Generator) client() uint16 {
	return uint16(g.rng.UintN(uint(g.opts.Clients))) + 1
}

func (g *Generator) txID() uint32 {
	g.nextTx++
	return g.nextTx
}

func (g *Generator) amount() money.Money {
	return money.Money(g.rng.Int64N(int64(g.opts.MaxAmount)))
}

func (g *Generator) deposit() ledger.Transaction {
	tx := ledger.NewDeposit(g.client(), g.txID(), g.amount())
	g.deposits = append(g.deposits, deposit{tx: tx.TxID, client: tx.ClientID, state: ledger.StateNormal})
	return tx
}

func (g *Generator) dispute() (ledger.Transaction, bool) {
	if len(g.deposits) == 0 {
		return ledger.Transaction{}, false
	}
	i := g.rng.IntN(len(g.deposits))
	d := &g.deposits[i]
	if d.state != ledger.StateNormal {
		return ledger.Transaction{}, false
	}
	d.state = ledger.StateDisputed
	g.disputed = append(g.disputed, i)
	return ledger.NewDispute(d.client, d.tx), true
}

func (g *Generator) resolve() (ledger.Transaction, bool) {
	d, ok := g.takeDisputed()
	if !ok {
		return ledger.Transaction{}, false
	}
	d.state = ledger.StateNormal
	return ledger.NewResolve(d.client, d.tx), true
}

func (g *Generator) chargeback() (ledger.Transaction, bool) {
	if g.rng.IntN(2) == 0 {
		// Undisputed target: the ledger rejects it.
		if len(g.deposits) == 0 {
			return ledger.Transaction{}, false
		}
		d := g.deposits[g.rng.IntN(len(g.deposits))]
		if d.state != ledger.StateNormal {
			return ledger.Transaction{}, false
		}
		return ledger.NewChargeback(d.client, d.tx), true
	}
	d, ok := g.takeDisputed()
	if !ok {
		return ledger.Transaction{}, false
	}
	d.state = ledger.StateChargedBack
	return ledger.NewChargeback(d.client, d.tx), true
}

// takeDisputed removes a random entry from the disputed set.
func (g *Generator) takeDisputed() (*deposit, bool) {
	n := len(g.disputed)
	if n == 0 {
		return nil, false
	}
	j := g.rng.IntN(n)
	i := g.disputed[j]
	g.disputed[j] = g.disputed[n-1]
	g.disputed = g.disputed[:n-1]
	return &g.deposits[i], true
}
