package license

import (
	"sync"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/sirupsen/logrus"
)

// JournaledRegistry wraps a Registry with an append-only log of every
// amendment observed, keyed by the height it arrived at. A chain
// reorganization to height h then rewinds by truncating the log to
// entries with height <= h and replaying, instead of forcing the host to
// re-scan the whole chain.
//
// The journal lives in memory alongside the registry; on startup it is
// rebuilt the same way the registry is, by replaying the canonical chain.
type JournaledRegistry struct {
	mu  sync.Mutex
	reg *Registry
	log []Entry
}

// NewJournaledRegistry creates a journaled registry over a fresh Registry.
func NewJournaledRegistry() *JournaledRegistry {
	return &JournaledRegistry{reg: NewRegistry()}
}

// Registry exposes the underlying registry for reads (AllowedMiner,
// HashRateSum, Licenses, ...). Mutations must go through the journaled
// HandleTx so the log stays consistent.
func (j *JournaledRegistry) Registry() *Registry {
	return j.reg
}

// HandleTx records and applies the license entries of tx observed at
// height. Heights must arrive in block-connect order, exactly as the host
// serializes chain connection.
func (j *JournaledRegistry) HandleTx(tx *transaction.Transaction, height int32) {
	if tx == nil {
		return
	}

	entries := extractEntries(tx, height)
	if len(entries) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.log = append(j.log, entries...)

	j.reg.mu.Lock()
	defer j.reg.mu.Unlock()
	for _, e := range entries {
		j.reg.apply(e)
	}
}

// RewindTo truncates the journal to amendments observed at or below
// height and rebuilds the registry by replaying what remains. The host
// calls this with the fork point when the active chain reorganizes, then
// re-feeds the connected blocks of the new branch through HandleTx.
func (j *JournaledRegistry) RewindTo(height int32) {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.log[:0]
	for _, e := range j.log {
		if e.Height <= height {
			kept = append(kept, e)
		}
	}
	j.log = kept

	j.reg.mu.Lock()
	defer j.reg.mu.Unlock()

	j.reg.licenses = nil
	for _, e := range j.log {
		j.reg.apply(e)
	}
	logrus.Debugf("license: journal rewound to height %d, %d amendments kept", height, len(j.log))
}

// JournalLen returns the number of amendments currently journaled.
func (j *JournaledRegistry) JournalLen() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.log)
}
