package chain

import "errors"

var (
	// ErrBlockNotFound indicates no block is stored for the requested index.
	ErrBlockNotFound = errors.New("chain: block not found")

	// ErrEmptyChain indicates the chain has no tip yet.
	ErrEmptyChain = errors.New("chain: empty chain")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("chain: required parameter is nil")
)
