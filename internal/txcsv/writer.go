package txcsv

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/roach88/txledger/internal/ledger"
)

// SnapshotHeader is the header row written by SnapshotWriter.
var SnapshotHeader = []string{"client", "available", "held", "total", "locked"}

// SnapshotWriter renders account snapshots, one row per client.
type SnapshotWriter struct {
	csv    *csv.Writer
	header bool
	row    []string
}

// NewSnapshotWriter returns a writer that emits the header before the
// first row.
func NewSnapshotWriter(w io.Writer) *SnapshotWriter {
	return &SnapshotWriter{csv: csv.NewWriter(w), row: make([]string, len(SnapshotHeader))}
}

// Write appends one account row.
func (w *SnapshotWriter) Write(s ledger.AccountSnapshot) error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	w.row[0] = strconv.FormatUint(uint64(s.ClientID), 10)
	w.row[1] = s.Available.String()
	w.row[2] = s.Held.String()
	w.row[3] = s.Total.String()
	w.row[4] = strconv.FormatBool(s.Locked)
	return w.csv.Write(w.row)
}

func (w *SnapshotWriter) writeHeader() error {
	if w.header {
		return nil
	}
	w.header = true
	return w.csv.Write(SnapshotHeader)
}

// Flush writes any buffered rows. The header is written even when no
// account was.
func (w *SnapshotWriter) Flush() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// WriteSnapshot writes all accounts and flushes.
func WriteSnapshot(w io.Writer, accounts []ledger.AccountSnapshot) error {
	sw := NewSnapshotWriter(w)
	for _, s := range accounts {
		if err := sw.Write(s); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// TransactionHeader is the header row written by TransactionWriter.
var TransactionHeader = []string{ColType, ColClient, ColTx, ColAmount}

// TransactionWriter renders a transaction stream readable by Reader.
type TransactionWriter struct {
	csv    *csv.Writer
	header bool
	row    []string
}

// NewTransactionWriter returns a writer that emits the header before the
// first row.
func NewTransactionWriter(w io.Writer) *TransactionWriter {
	return &TransactionWriter{csv: csv.NewWriter(w), row: make([]string, len(TransactionHeader))}
}

// Write appends one transaction. The amount column is left empty for
// kinds that carry none.
func (w *TransactionWriter) Write(tx ledger.Transaction) error {
	if !w.header {
		w.header = true
		if err := w.csv.Write(TransactionHeader); err != nil {
			return err
		}
	}
	w.row[0] = tx.Kind.String()
	w.row[1] = strconv.FormatUint(uint64(tx.ClientID), 10)
	w.row[2] = strconv.FormatUint(uint64(tx.TxID), 10)
	w.row[3] = ""
	if tx.Kind.HasAmount() {
		w.row[3] = tx.Amount.String()
	}
	return w.csv.Write(w.row)
}

// Flush writes any buffered rows.
func (w *TransactionWriter) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
