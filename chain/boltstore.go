package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"go.etcd.io/bbolt"
)

var (
	bucketBlocks = []byte("blocks")
	bucketIndex  = []byte("index")
)

// storedBlock is the gob-encoded disk form of a Block. Transactions are
// kept in wire format so the stored bytes stay stable across go-sdk
// versions.
type storedBlock struct {
	Height uint32
	Time   uint32
	RawTxs [][]byte
}

// storedIndex is the gob-encoded disk form of a BlockIndex entry.
type storedIndex struct {
	Height uint32
	Time   uint32
	Hash   []byte
}

// BoltStore is a bbolt-backed View. Block bodies live on disk; the height
// index is loaded into memory on open so Tip and parent traversal never
// touch the database.
type BoltStore struct {
	db *bbolt.DB

	mu      sync.RWMutex
	indexes []*BlockIndex
	baseH   uint32
}

// OpenBoltStore opens or creates the bbolt database at dbPath. The parent
// directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("chain: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("chain: create buckets: %w", err)
	}

	s := &BoltStore{db: db}
	if err := s.loadIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// loadIndex reads all index entries in height order and rebuilds the
// in-memory parent-linked index.
func (s *BoltStore) loadIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketIndex).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var si storedIndex
			if err := decodeGob(v, &si); err != nil {
				return fmt.Errorf("chain: decode index entry: %w", err)
			}

			bi := &BlockIndex{Height: si.Height, Time: si.Time, Hash: si.Hash}
			if len(s.indexes) == 0 {
				s.baseH = si.Height
			} else {
				bi.prev = s.indexes[len(s.indexes)-1]
			}
			s.indexes = append(s.indexes, bi)
		}
		return nil
	})
}

// Append connects a block at the next height and persists it.
func (s *BoltStore) Append(time uint32, txs ...*transaction.Transaction) (*BlockIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	height := s.baseH + uint32(len(s.indexes))

	sb := storedBlock{Height: height, Time: time, RawTxs: make([][]byte, 0, len(txs))}
	for _, t := range txs {
		if t == nil {
			return nil, fmt.Errorf("%w: transaction", ErrNilParam)
		}
		sb.RawTxs = append(sb.RawTxs, t.Bytes())
	}

	si := storedIndex{Height: height, Time: time, Hash: blockKeyHash(height, time)}

	blockBytes, err := encodeGob(sb)
	if err != nil {
		return nil, fmt.Errorf("chain: encode block: %w", err)
	}
	indexBytes, err := encodeGob(si)
	if err != nil {
		return nil, fmt.Errorf("chain: encode index entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		key := heightKey(height)
		if err := tx.Bucket(bucketBlocks).Put(key, blockBytes); err != nil {
			return err
		}
		return tx.Bucket(bucketIndex).Put(key, indexBytes)
	})
	if err != nil {
		return nil, fmt.Errorf("chain: put block: %w", err)
	}

	bi := &BlockIndex{Height: height, Time: time, Hash: si.Hash}
	if n := len(s.indexes); n > 0 {
		bi.prev = s.indexes[n-1]
	}
	s.indexes = append(s.indexes, bi)
	return bi, nil
}

// Tip returns the index of the highest stored block, or nil when empty.
func (s *BoltStore) Tip() *BlockIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.indexes) == 0 {
		return nil
	}
	return s.indexes[len(s.indexes)-1]
}

// ReadBlock fetches and decodes the block body for an index entry.
func (s *BoltStore) ReadBlock(bi *BlockIndex) (*Block, error) {
	if bi == nil {
		return nil, ErrNilParam
	}

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(heightKey(bi.Height))
		if v == nil {
			return ErrBlockNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var sb storedBlock
	if err := decodeGob(raw, &sb); err != nil {
		return nil, fmt.Errorf("chain: decode block: %w", err)
	}

	b := &Block{Height: sb.Height, Time: sb.Time}
	for _, rawTx := range sb.RawTxs {
		t, err := transaction.NewTransactionFromBytes(rawTx)
		if err != nil {
			return nil, fmt.Errorf("chain: decode transaction: %w", err)
		}
		b.Txs = append(b.Txs, t)
	}
	return b, nil
}

// heightKey encodes a block height as a 4-byte big-endian key so bucket
// cursors iterate in height order.
func heightKey(h uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, h)
	return k
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
