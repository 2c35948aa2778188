// Package txcsv reads transaction streams from CSV and writes account
// snapshots back to CSV.
//
// Input has a header row naming the columns type, client, tx and amount in
// any order. Fields are trimmed of surrounding whitespace and the type is
// matched case-insensitively. Rows for dispute, resolve and chargeback may
// leave the amount empty or omit it entirely.
package txcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/money"
)

// Column names.
const (
	ColType   = "type"
	ColClient = "client"
	ColTx     = "tx"
	ColAmount = "amount"
)

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// RecordError reports a row that could not be decoded. The reader stays
// usable after returning one.
//
// errors.Is(err, ledger.ErrMalformedTransaction) holds for every
// RecordError.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() []error {
	return []error{ledger.ErrMalformedTransaction, e.Err}
}

type columns struct {
	kind, client, tx, amount int
	width                    int
}

// Reader decodes transactions one row at a time.
type Reader struct {
	csv  *csv.Reader
	cols *columns
	line int
}

// NewReader returns a Reader over r. The header is read on the first call
// to Next.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &Reader{csv: cr}
}

// Line returns the input line of the most recently read row.
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next transaction.
//
// It returns io.EOF at the end of input, a *RecordError for a row that
// could not be decoded, and any other error for failures that end the
// stream (unreadable input, bad header).
func (r *Reader) Next() (ledger.Transaction, error) {
	if r.cols == nil {
		if err := r.readHeader(); err != nil {
			return ledger.Transaction{}, err
		}
	}

	record, err := r.csv.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			r.line = pe.StartLine
			return ledger.Transaction{}, &RecordError{Line: pe.StartLine, Err: pe.Err}
		}
		return ledger.Transaction{}, err
	}
	r.line, _ = r.csv.FieldPos(0)

	tx, err := r.decode(record)
	if err != nil {
		return ledger.Transaction{}, &RecordError{Line: r.line, Err: err}
	}
	return tx, nil
}

func (r *Reader) readHeader() error {
	header, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("read header: %w", err)
	}

	cols := columns{kind: -1, client: -1, tx: -1, amount: -1, width: len(header)}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ColType:
			cols.kind = i
		case ColClient:
			cols.client = i
		case ColTx:
			cols.tx = i
		case ColAmount:
			cols.amount = i
		}
	}
	required := []struct {
		name string
		idx  int
	}{
		{ColType, cols.kind},
		{ColClient, cols.client},
		{ColTx, cols.tx},
		{ColAmount, cols.amount},
	}
	for _, col := range required {
		if col.idx < 0 {
			return fmt.Errorf("header: %w %q", ErrMissingColumn, col.name)
		}
	}
	r.cols = &cols
	return nil
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (r *Reader) decode(record []string) (ledger.Transaction, error) {
	c := r.cols
	if len(record) > c.width {
		return ledger.Transaction{}, fmt.Errorf("got %d fields, header has %d", len(record), c.width)
	}

	kind, err := ledger.ParseKind(field(record, c.kind))
	if err != nil {
		return ledger.Transaction{}, err
	}
	client, err := strconv.ParseUint(field(record, c.client), 10, 16)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("client: %w", err)
	}
	txID, err := strconv.ParseUint(field(record, c.tx), 10, 32)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("tx: %w", err)
	}

	tx := ledger.Transaction{Kind: kind, ClientID: uint16(client), TxID: uint32(txID)}
	if !kind.HasAmount() {
		return tx, nil
	}

	raw := field(record, c.amount)
	if raw == "" {
		return ledger.Transaction{}, fmt.Errorf("%s requires an amount", kind)
	}
	amount, err := money.Parse(raw)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if amount.IsNegative() {
		return ledger.Transaction{}, fmt.Errorf("amount %s is negative", raw)
	}
	tx.Amount = amount
	return tx, nil
}
