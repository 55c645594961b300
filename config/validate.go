// Copyright (c) 2025 The DDMS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"encoding/hex"
)

// ValidateConfig checks that all configuration values are usable and
// returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.WDMOScriptHash == "" {
		return ErrMissingWDMOScript
	}

	hashBytes, err := hex.DecodeString(cfg.WDMOScriptHash)
	if err != nil || len(hashBytes) != wdmoScriptHashLen {
		return ErrInvalidWDMOScript
	}

	if cfg.FirstMiningRoundHeight == 0 {
		return ErrMissingFirstRoundHeight
	}

	if cfg.MiningRoundSize == 0 {
		return ErrZeroRoundSize
	}

	if cfg.MaxFutureBlockTime == 0 {
		return ErrZeroFutureBlockTime
	}

	return nil
}
