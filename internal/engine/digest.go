package engine

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/roach88/txledger/internal/ledger"
	"github.com/roach88/txledger/internal/txcsv"
)

// Digest returns the hex SHA-256 of the snapshot rendered as CSV. Two runs
// over the same input agree on the digest exactly when their output files
// would be byte-identical.
func Digest(accounts []ledger.AccountSnapshot) (string, error) {
	h := sha256.New()
	if err := txcsv.WriteSnapshot(h, accounts); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
