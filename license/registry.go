package license

import (
	"sync"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/sirupsen/logrus"
)

// Entry is a single miner license: the block height at which its latest
// amendment was observed, the licensed hash rate in PH/s, and the miner
// address (lowercase hex of the script-hash embedded in the license
// output).
type Entry struct {
	Height   int32
	HashRate uint16
	Address  string
}

// Registry is the in-memory set of current miner licenses. It is a
// projection of the license transactions observed on the canonical chain:
// never persisted, reconstructible by replaying those transactions in
// block-connect order.
//
// Writes arrive only from the host's serialized chain-connection path;
// readers (block proposal, RPC) may run concurrently, so every access goes
// through the RWMutex. HandleTx applies all entries of one transaction
// under a single write lock, so readers never observe a half-applied
// batch.
type Registry struct {
	mu       sync.RWMutex
	licenses []Entry
}

// NewRegistry creates an empty license registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// HandleTx scans all outputs of tx and applies every well-formed license
// entry found, as one atomic batch. height is the block height at which tx
// confirmed. Provenance (that tx was issued by the WDMO) must have been
// verified by the caller; malformed outputs are skipped silently.
func (r *Registry) HandleTx(tx *transaction.Transaction, height int32) {
	if tx == nil {
		return
	}

	entries := extractEntries(tx, height)
	if len(entries) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		r.apply(e)
	}
}

// extractEntries collects the license entries carried by tx's outputs.
// Outputs that are not license-bearing, or that carry a malformed payload,
// are skipped.
func extractEntries(tx *transaction.Transaction, height int32) []Entry {
	var entries []Entry
	for _, out := range tx.Outputs {
		if !IsLicenseHeader(out.LockingScript) {
			continue
		}
		e, err := extractEntry(out.LockingScript, height)
		if err != nil {
			logrus.Debugf("license: skipping output: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// apply inserts or amends one entry. Caller holds the write lock.
//
// An address seen for the first time is inserted as-is (a zero rate at
// insert time has nothing to delete, so it is stored and a later non-zero
// amendment overwrites it). For a known address, data at or below the
// stored height is ignored, a zero rate deletes the entry, and anything
// else overwrites rate and height.
func (r *Registry) apply(e Entry) {
	i := r.find(e.Address)
	if i < 0 {
		r.licenses = append(r.licenses, e)
		logrus.Debugf("license: added %s rate=%d height=%d", e.Address, e.HashRate, e.Height)
		return
	}

	cur := r.licenses[i]
	if e.Height <= cur.Height {
		return
	}

	if e.HashRate == 0 {
		r.licenses = append(r.licenses[:i], r.licenses[i+1:]...)
		logrus.Debugf("license: removed %s height=%d", e.Address, e.Height)
		return
	}

	r.licenses[i].HashRate = e.HashRate
	r.licenses[i].Height = e.Height
	logrus.Debugf("license: modified %s rate=%d height=%d", e.Address, e.HashRate, e.Height)
}

// find returns the index of the entry for address, or -1. Caller holds a
// lock.
func (r *Registry) find(address string) int {
	for i := range r.licenses {
		if r.licenses[i].Address == address {
			return i
		}
	}
	return -1
}

// PushLicense inserts an entry directly, bypassing transaction parsing,
// iff the address is not already present. Amendments (including zero-rate
// deletions) go through HandleTx.
func (r *Registry) PushLicense(height int32, hashRate uint16, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(address) >= 0 {
		return
	}
	r.licenses = append(r.licenses, Entry{Height: height, HashRate: hashRate, Address: address})
}

// AllowedMiner reports whether the miner paying to lockingScript holds a
// license.
func (r *Registry) AllowedMiner(lockingScript *script.Script) bool {
	addr := ScriptToAddress(lockingScript)
	if addr == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.find(addr) >= 0
}

// HashRateSum returns the sum of all licensed hash rates.
func (r *Registry) HashRateSum() float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum float32
	for i := range r.licenses {
		sum += float32(r.licenses[i].HashRate)
	}
	return sum
}

// MinerHashRate returns the licensed hash rate for address, or 0 when no
// license exists.
func (r *Registry) MinerHashRate(address string) float32 {
	if e, ok := r.Find(address); ok {
		return float32(e.HashRate)
	}
	return 0
}

// Find returns a copy of the entry for address.
func (r *Registry) Find(address string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.find(address); i >= 0 {
		return r.licenses[i], true
	}
	return Entry{}, false
}

// Licenses returns a snapshot of all entries in insertion order.
func (r *Registry) Licenses() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.licenses))
	copy(out, r.licenses)
	return out
}

// Reset empties the registry. The host calls this before replaying the
// license transactions of a new canonical chain after a reorganization.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.licenses = nil
}
