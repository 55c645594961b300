package chain

import (
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// BlockIndex is a lightweight entry in the chain's height index. It carries
// the metadata the mining walks need (height, timestamp) without the block
// body; the body is fetched through View.ReadBlock.
type BlockIndex struct {
	Height uint32
	Time   uint32
	Hash   []byte

	prev *BlockIndex
}

// Parent returns the index of the previous block, or nil at genesis.
func (bi *BlockIndex) Parent() *BlockIndex {
	if bi == nil {
		return nil
	}
	return bi.prev
}

// Block is a connected block as seen by the policy core. Txs[0] is the
// coinbase transaction.
type Block struct {
	Height uint32
	Time   uint32
	Txs    []*transaction.Transaction
}

// Coinbase returns the block's coinbase transaction, or nil for an empty
// block.
func (b *Block) Coinbase() *transaction.Transaction {
	if b == nil || len(b.Txs) == 0 {
		return nil
	}
	return b.Txs[0]
}

// View is the read-only chain access the mining mechanism walks through.
// Tip returns nil while the chain is empty. ReadBlock fetches the block
// body for an index entry; a failed read is an infrastructure error and
// the caller must not fall back to partial results.
type View interface {
	Tip() *BlockIndex
	ReadBlock(bi *BlockIndex) (*Block, error)
}
