package engine

import (
	"maps"
	"slices"

	"github.com/roach88/txledger/internal/ledger"
)

// Stats counts what happened to each input record.
// Records = Applied + Malformed + RejectedTotal().
type Stats struct {
	Records   uint64                      `json:"records"`
	Applied   uint64                      `json:"applied"`
	Malformed uint64                      `json:"malformed"`
	Rejected  map[ledger.ErrorCode]uint64 `json:"rejected"`
}

func newStats() Stats {
	return Stats{Rejected: make(map[ledger.ErrorCode]uint64)}
}

func (s *Stats) reject(code ledger.ErrorCode) {
	s.Rejected[code]++
}

func (s *Stats) merge(o Stats) {
	s.Records += o.Records
	s.Applied += o.Applied
	s.Malformed += o.Malformed
	for code, n := range o.Rejected {
		s.Rejected[code] += n
	}
}

// RejectedTotal returns the number of rejected transactions across all
// codes.
func (s Stats) RejectedTotal() uint64 {
	var n uint64
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// Codes returns the rejection codes that occurred, sorted.
func (s Stats) Codes() []ledger.ErrorCode {
	return slices.Sorted(maps.Keys(s.Rejected))
}
