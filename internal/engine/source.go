package engine

import (
	"io"

	"github.com/roach88/txledger/internal/ledger"
)

// Source yields transactions in input order.
//
// Next returns io.EOF after the last record. An error wrapping
// ledger.ErrMalformedTransaction marks a single bad record and the run
// continues past it; any other error ends the run.
type Source interface {
	Next() (ledger.Transaction, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (ledger.Transaction, error)

// Next calls f.
func (f SourceFunc) Next() (ledger.Transaction, error) {
	return f()
}

// FromSlice returns a Source over txs.
func FromSlice(txs []ledger.Transaction) Source {
	i := 0
	return SourceFunc(func() (ledger.Transaction, error) {
		if i >= len(txs) {
			return ledger.Transaction{}, io.EOF
		}
		tx := txs[i]
		i++
		return tx, nil
	})
}
