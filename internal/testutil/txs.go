package testutil

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/money"
)

// Txs builds transactions from compact "kind client tx [amount]" lines:
//
//	testutil.Txs(t,
//		"deposit 1 1 5.0",
//		"dispute 1 1",
//	)
//
// Any line that does not parse fails the test immediately.
func Txs(t testing.TB, lines ...string) []ledger.Transaction {
	t.Helper()
	out := make([]ledger.Transaction, 0, len(lines))
	for _, line := range lines {
		out = append(out, Tx(t, line))
	}
	return out
}

// Tx builds a single transaction. See Txs.
func Tx(t testing.TB, line string) ledger.Transaction {
	t.Helper()
	f := strings.Fields(line)
	require.GreaterOrEqual(t, len(f), 3, "line %q: want kind client tx [amount]", line)

	kind, err := ledger.ParseKind(f[0])
	require.NoError(t, err, "line %q", line)
	client, err := strconv.ParseUint(f[1], 10, 16)
	require.NoError(t, err, "line %q: client", line)
	txID, err := strconv.ParseUint(f[2], 10, 32)
	require.NoError(t, err, "line %q: tx", line)

	tx := ledger.Transaction{Kind: kind, ClientID: uint16(client), TxID: uint32(txID)}
	if kind.HasAmount() {
		require.Len(t, f, 4, "line %q: %s needs an amount", line, kind)
		tx.Amount, err = money.Parse(f[3])
		require.NoError(t, err, "line %q: amount", line)
	}
	return tx
}
