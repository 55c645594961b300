// Copyright (c) 2025 The DDMS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrMissingWDMOScript indicates no WDMO script hash was configured.
	// There is no default: the WDMO identity is network-specific and must
	// be supplied by the operator.
	ErrMissingWDMOScript = errors.New("config: wdmo script hash is required")

	// ErrInvalidWDMOScript indicates the WDMO script hash is not valid hex
	// of 20 bytes.
	ErrInvalidWDMOScript = errors.New("config: invalid wdmo script hash (must be 40 hex chars)")

	// ErrMissingFirstRoundHeight indicates no first mining round height was
	// configured. There is no default: the activation height is decided per
	// network.
	ErrMissingFirstRoundHeight = errors.New("config: first mining round height is required")

	// ErrZeroRoundSize indicates the mining round size is zero.
	ErrZeroRoundSize = errors.New("config: mining round size must be positive")

	// ErrZeroFutureBlockTime indicates the max future block time is zero.
	ErrZeroFutureBlockTime = errors.New("config: max future block time must be positive")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrUnknownConfigKey indicates a config file key is not recognized.
	ErrUnknownConfigKey = errors.New("config: unknown configuration key")
)
