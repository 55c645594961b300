package mining

import "errors"

var (
	// ErrNilCandidate indicates CanMine was called without a candidate
	// block.
	ErrNilCandidate = errors.New("mining: candidate block is nil")

	// ErrReadBlock wraps a failed chain-view block read. The walk is
	// aborted; no partial results are returned.
	ErrReadBlock = errors.New("mining: read block")
)
