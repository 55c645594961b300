package license

import (
	"bytes"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// IsLicenseTx reports whether tx is a license transaction issued by the
// WDMO: a non-coinbase transaction carrying at least one license-header
// output, every input of which spends an output locked to wdmoScript.
//
// Input provenance is read from each input's attached source output (set
// via SetSourceTxOutput by whoever fetched the funding transactions); an
// input with no source output attached fails the check.
func IsLicenseTx(tx *transaction.Transaction, wdmoScript *script.Script) bool {
	if tx == nil || wdmoScript == nil || len(tx.Inputs) == 0 {
		return false
	}
	if isCoinbase(tx) {
		return false
	}
	if !hasLicenseOutput(tx) {
		return false
	}

	want := wdmoScript.Bytes()
	for _, in := range tx.Inputs {
		src := in.SourceTxOutput()
		if src == nil || src.LockingScript == nil {
			return false
		}
		if !bytes.Equal(src.LockingScript.Bytes(), want) {
			return false
		}
	}
	return true
}

// hasLicenseOutput reports whether any output carries the license header.
func hasLicenseOutput(tx *transaction.Transaction) bool {
	for _, out := range tx.Outputs {
		if IsLicenseHeader(out.LockingScript) {
			return true
		}
	}
	return false
}

// isCoinbase reports whether tx is a coinbase: a single input spending the
// null outpoint.
func isCoinbase(tx *transaction.Transaction) bool {
	if len(tx.Inputs) != 1 {
		return false
	}

	src := tx.Inputs[0].SourceTXID
	if src == nil {
		return true
	}
	var zero chainhash.Hash
	return src.IsEqual(&zero)
}
