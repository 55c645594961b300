// Copyright (c) 2025 The DDMS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	hash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	"github.com/bsv-blockchain/go-sdk/script"
)

const (
	// DefaultMiningRoundSize is the consensus-critical number of block
	// heights per mining round.
	DefaultMiningRoundSize = 100

	// DefaultMaxFutureBlockTime is the host chain's limit, in seconds, on
	// how far a block timestamp may run ahead of network-adjusted time.
	DefaultMaxFutureBlockTime = 2 * 60 * 60

	// wdmoScriptHashLen is the byte length of the WDMO P2SH script hash.
	wdmoScriptHashLen = 20
)

// Config holds the DDMS consensus parameters in their operator-facing
// form. WDMOScriptHash and FirstMiningRoundHeight have no defaults; both
// are fixed per network and must be configured explicitly.
type Config struct {
	// WDMOScriptHash is the lowercase hex of the 20-byte script hash in the
	// WDMO's OP_HASH160 <hash> OP_EQUAL locking script.
	WDMOScriptHash string

	// FirstMiningRoundHeight is the block height at which the first DDMS
	// mining round starts.
	FirstMiningRoundHeight uint32

	// MiningRoundSize is the number of block heights per mining round.
	MiningRoundSize uint16

	// MaxFutureBlockTime is the host chain's future-block-time consensus
	// limit in seconds.
	MaxFutureBlockTime uint32
}

// DefaultConfig returns a Config with the consensus defaults filled in.
// The WDMO script hash and first round height remain unset and must be
// provided before Params will resolve.
func DefaultConfig() Config {
	return Config{
		MiningRoundSize:    DefaultMiningRoundSize,
		MaxFutureBlockTime: DefaultMaxFutureBlockTime,
	}
}

// LoadConfig reads a key=value configuration file. Empty lines and lines
// starting with '#' are ignored. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, ErrConfigNotFound
		}
		return cfg, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return cfg, fmt.Errorf("%w: %q", ErrInvalidConfigLine, line)
		}
		key = strings.TrimSpace(strings.ToLower(key))
		value = strings.TrimSpace(value)

		switch key {
		case "wdmoscripthash":
			cfg.WDMOScriptHash = value
		case "firstminingroundheight":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return cfg, fmt.Errorf("%w: %q", ErrInvalidConfigLine, line)
			}
			cfg.FirstMiningRoundHeight = uint32(n)
		case "miningroundsize":
			n, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return cfg, fmt.Errorf("%w: %q", ErrInvalidConfigLine, line)
			}
			cfg.MiningRoundSize = uint16(n)
		case "maxfutureblocktime":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return cfg, fmt.Errorf("%w: %q", ErrInvalidConfigLine, line)
			}
			cfg.MaxFutureBlockTime = uint32(n)
		default:
			return cfg, fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path in key=value form.
func SaveConfig(path string, cfg Config) error {
	var b strings.Builder
	b.WriteString("# DDMS consensus parameters\n")
	fmt.Fprintf(&b, "wdmoscripthash=%s\n", cfg.WDMOScriptHash)
	fmt.Fprintf(&b, "firstminingroundheight=%d\n", cfg.FirstMiningRoundHeight)
	fmt.Fprintf(&b, "miningroundsize=%d\n", cfg.MiningRoundSize)
	fmt.Fprintf(&b, "maxfutureblocktime=%d\n", cfg.MaxFutureBlockTime)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// Params are the resolved consensus parameters handed to the policy core.
type Params struct {
	// WDMOScript is the WDMO's locking script: OP_HASH160 <hash> OP_EQUAL.
	WDMOScript *script.Script

	// MiningRoundSize is the number of block heights per mining round.
	MiningRoundSize uint16

	// FirstMiningRoundHeight is the height the first mining round starts at.
	FirstMiningRoundHeight uint32

	// MaxFutureBlockTime is the future-block-time consensus limit in
	// seconds.
	MaxFutureBlockTime uint32
}

// MaxClosedRoundTime is the stall interval, in seconds, after which a
// closed round reopens for saturated miners: five times the future block
// time limit.
func (p Params) MaxClosedRoundTime() uint32 {
	return 5 * p.MaxFutureBlockTime
}

// Params validates cfg and resolves it into consensus parameters.
func (c Config) Params() (Params, error) {
	if err := ValidateConfig(c); err != nil {
		return Params{}, err
	}

	hashBytes, err := hex.DecodeString(c.WDMOScriptHash)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidWDMOScript, err)
	}

	s := &script.Script{}
	if err := s.AppendOpcodes(script.OpHASH160); err != nil {
		return Params{}, fmt.Errorf("config: build wdmo script: %w", err)
	}
	if err := s.AppendPushData(hashBytes); err != nil {
		return Params{}, fmt.Errorf("config: build wdmo script: %w", err)
	}
	if err := s.AppendOpcodes(script.OpEQUAL); err != nil {
		return Params{}, fmt.Errorf("config: build wdmo script: %w", err)
	}

	return Params{
		WDMOScript:             s,
		MiningRoundSize:        c.MiningRoundSize,
		FirstMiningRoundHeight: c.FirstMiningRoundHeight,
		MaxFutureBlockTime:     c.MaxFutureBlockTime,
	}, nil
}

// WDMOScriptHashFromRedeemScript computes the script-hash hex for a WDMO
// redeem script, for operators who hold the redeem script rather than the
// hash.
func WDMOScriptHashFromRedeemScript(redeemScript []byte) string {
	return hex.EncodeToString(hash.Hash160(redeemScript))
}
