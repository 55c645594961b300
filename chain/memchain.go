package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/bsv-blockchain/go-sdk/transaction"
)

// MemChain is an in-memory View implementation. It is the reference chain
// used throughout the tests and doubles as a host adapter for nodes that
// keep their own block index and only need to mirror connected blocks.
type MemChain struct {
	mu      sync.RWMutex
	blocks  []*Block
	indexes []*BlockIndex
	baseH   uint32
}

// NewMemChain creates an empty chain whose first appended block will be at
// the given height. Pass 0 to start at genesis.
func NewMemChain(startHeight uint32) *MemChain {
	return &MemChain{baseH: startHeight}
}

// Append connects a new block at the next height with the given timestamp
// and transactions (txs[0] is the coinbase) and returns its index entry.
func (c *MemChain) Append(time uint32, txs ...*transaction.Transaction) *BlockIndex {
	c.mu.Lock()
	defer c.mu.Unlock()

	height := c.baseH + uint32(len(c.blocks))
	b := &Block{Height: height, Time: time, Txs: txs}

	bi := &BlockIndex{
		Height: height,
		Time:   time,
		Hash:   blockKeyHash(height, time),
	}
	if n := len(c.indexes); n > 0 {
		bi.prev = c.indexes[n-1]
	}

	c.blocks = append(c.blocks, b)
	c.indexes = append(c.indexes, bi)
	return bi
}

// Tip returns the index of the highest connected block, or nil while the
// chain is empty.
func (c *MemChain) Tip() *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.indexes) == 0 {
		return nil
	}
	return c.indexes[len(c.indexes)-1]
}

// ReadBlock fetches the block body for an index entry.
func (c *MemChain) ReadBlock(bi *BlockIndex) (*Block, error) {
	if bi == nil {
		return nil, ErrNilParam
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if bi.Height < c.baseH || bi.Height >= c.baseH+uint32(len(c.blocks)) {
		return nil, ErrBlockNotFound
	}
	return c.blocks[bi.Height-c.baseH], nil
}

// Height returns the tip height, or (0, false) while the chain is empty.
func (c *MemChain) Height() (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.indexes) == 0 {
		return 0, false
	}
	return c.indexes[len(c.indexes)-1].Height, true
}

// blockKeyHash derives a synthetic block hash from height and timestamp.
// MemChain carries no headers, so a double-SHA256 over both fields stands
// in for the header hash.
func blockKeyHash(height, time uint32) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], height)
	binary.BigEndian.PutUint32(buf[4:8], time)

	first := sha256.Sum256(buf[:])
	second := sha256.Sum256(first[:])
	return second[:]
}
