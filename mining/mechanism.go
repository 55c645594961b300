package mining

import (
	"fmt"
	"math"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/sirupsen/logrus"

	"github.com/ddmsorg/libddms-go/chain"
	"github.com/ddmsorg/libddms-go/config"
	"github.com/ddmsorg/libddms-go/license"
)

// Mechanism derives mining admission decisions from the license registry
// and a chain view. Every method is a pure function of the registry
// snapshot, the chain snapshot, and its arguments; the only time source is
// the injected network offset, used as additive slack in the stall
// predicate.
type Mechanism struct {
	reg    *license.Registry
	view   chain.View
	params config.Params

	// timeOffset returns the median peer time offset in seconds.
	timeOffset func() int64
}

// Option configures a Mechanism.
type Option func(*Mechanism)

// WithTimeOffset injects the network time offset source (the host node's
// median peer offset). Without it the offset is zero.
func WithTimeOffset(fn func() int64) Option {
	return func(m *Mechanism) { m.timeOffset = fn }
}

// NewMechanism creates a mining mechanism over the given registry, chain
// view and consensus parameters.
func NewMechanism(reg *license.Registry, view chain.View, params config.Params, opts ...Option) *Mechanism {
	m := &Mechanism{
		reg:        reg,
		view:       view,
		params:     params,
		timeOffset: func() int64 { return 0 },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CalcMinersBlockQuota returns each licensed miner's block quota for a
// full round: round(roundSize × rate / Σrate), rounded half away from
// zero. All quotas are zero when the registry holds no hash rate. Quotas
// are not normalized; their sum may differ from the round size by
// rounding.
func (m *Mechanism) CalcMinersBlockQuota() map[string]int32 {
	quota := make(map[string]int32)
	licenses := m.reg.Licenses()
	sum := float64(m.reg.HashRateSum())

	for _, l := range licenses {
		if sum == 0 {
			quota[l.Address] = 0
			continue
		}
		quota[l.Address] = int32(math.Round(float64(m.params.MiningRoundSize) * float64(l.HashRate) / sum))
	}
	return quota
}

// CalcMinerBlockQuota returns the block quota for the miner paying to
// lockingScript, or 0 for an unlicensed miner.
func (m *Mechanism) CalcMinerBlockQuota(lockingScript *script.Script) uint16 {
	q := m.CalcMinersBlockQuota()[license.ScriptToAddress(lockingScript)]
	if q < 0 {
		return 0
	}
	return uint16(q)
}

// CalcMinersBlockLeftInRound returns how many blocks each licensed miner
// may still mine in the current round: the quota, minus one per coinbase
// output paying that miner between the round's end block and
// max(round start, heightThreshold). Counters go negative when a miner
// has exceeded its quota.
func (m *Mechanism) CalcMinersBlockLeftInRound(heightThreshold uint32) (map[string]int32, error) {
	left := m.CalcMinersBlockQuota()

	tip := m.view.Tip()
	if tip == nil {
		return left, nil
	}

	start := m.roundStart(tip.Height, heightThreshold)
	end := m.roundEnd(tip.Height, tip.Height, heightThreshold)

	for bi := findBlockIndex(tip, end); bi != nil && bi.Height >= start; bi = bi.Parent() {
		block, err := m.view.ReadBlock(bi)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrReadBlock, bi.Height, err)
		}

		cb := block.Coinbase()
		if cb == nil {
			continue
		}
		for _, out := range cb.Outputs {
			addr := license.ScriptToAddress(out.LockingScript)
			if _, licensed := left[addr]; licensed {
				left[addr]--
			}
		}
	}

	return left, nil
}

// CalcMinerBlockLeftInRound returns the remaining-in-round count for the
// miner paying to lockingScript. Unlicensed and over-quota miners both
// report 0.
func (m *Mechanism) CalcMinerBlockLeftInRound(lockingScript *script.Script, heightThreshold uint32) (uint16, error) {
	left, err := m.CalcMinersBlockLeftInRound(heightThreshold)
	if err != nil {
		return 0, err
	}

	n := left[license.ScriptToAddress(lockingScript)]
	if n < 0 {
		return 0, nil
	}
	return uint16(n), nil
}

// CalcMinersBlockAverageOnAllRounds returns each licensed miner's average
// block count per round, over all blocks from the tip down to
// heightThreshold. A partially mined current round counts as one round,
// so the current round's output weighs in as a fraction.
func (m *Mechanism) CalcMinersBlockAverageOnAllRounds(heightThreshold uint32) (map[string]float32, error) {
	average := make(map[string]float32)

	tip := m.view.Tip()
	if tip == nil {
		return average, nil
	}

	roundSize := uint32(m.params.MiningRoundSize)
	rounds := uint16(1)
	if tip.Height%roundSize == roundSize-1 {
		// The tip closes a round; the step to its parent counts it.
		rounds = 0
	}

	for bi := tip; bi != nil && bi.Height >= heightThreshold; {
		block, err := m.view.ReadBlock(bi)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrReadBlock, bi.Height, err)
		}

		if cb := block.Coinbase(); cb != nil {
			for _, out := range cb.Outputs {
				addr := license.ScriptToAddress(out.LockingScript)
				if !m.reg.AllowedMiner(out.LockingScript) {
					continue
				}
				average[addr]++
			}
		}

		closesRound := bi.Height%roundSize == roundSize-1
		bi = bi.Parent()
		if closesRound {
			rounds++
		}
	}

	if rounds == 0 {
		return average, nil
	}
	for addr := range average {
		average[addr] /= float32(rounds)
	}
	return average, nil
}

// CalcMinerBlockAverageOnAllRounds returns the per-round average for the
// miner paying to lockingScript, or 0 for an unlicensed miner.
func (m *Mechanism) CalcMinerBlockAverageOnAllRounds(lockingScript *script.Script, heightThreshold uint32) (float32, error) {
	average, err := m.CalcMinersBlockAverageOnAllRounds(heightThreshold)
	if err != nil {
		return 0, err
	}
	return average[license.ScriptToAddress(lockingScript)], nil
}

// CanMine decides whether the miner paying to lockingScript may produce
// candidate as the next block. A miner may mine while the round is open
// (saturation threshold reached, stale candidate, or intra-round stall),
// or while its own remaining-in-round count is positive.
func (m *Mechanism) CanMine(lockingScript *script.Script, candidate *chain.Block, heightThreshold uint32) (bool, error) {
	if candidate == nil {
		return false, ErrNilCandidate
	}

	open, err := m.isOpenRingRound(candidate, heightThreshold)
	if err != nil {
		return false, err
	}
	if open {
		return true, nil
	}

	left, err := m.CalcMinerBlockLeftInRound(lockingScript, heightThreshold)
	if err != nil {
		return false, err
	}
	return left > 0, nil
}

// SaturatedPower returns the fraction of the total licensed hash rate held
// by miners whose remaining-in-round count is exhausted, or 0 for an empty
// registry.
func (m *Mechanism) SaturatedPower(heightThreshold uint32) (float32, error) {
	sum := m.reg.HashRateSum()
	if sum == 0 {
		return 0, nil
	}

	left, err := m.CalcMinersBlockLeftInRound(heightThreshold)
	if err != nil {
		return 0, err
	}

	var saturated float32
	for addr, n := range left {
		if n <= 0 {
			saturated += m.reg.MinerHashRate(addr)
		}
	}
	return saturated / sum, nil
}

// saturationThreshold is the saturated-power fraction at which the closed
// ring lifts for the rest of the round.
const saturationThreshold = 0.5

// isOpenRingRound reports whether the current round is open: saturated
// miners may exceed their quota. The round is open when half the licensed
// power is already saturated, when the candidate's timestamp has run past
// the stall interval, or when any two adjacent blocks inside the round
// are separated by more than the stall interval. An empty registry leaves
// the round trivially open.
func (m *Mechanism) isOpenRingRound(candidate *chain.Block, heightThreshold uint32) (bool, error) {
	if m.reg.HashRateSum() == 0 {
		return true, nil
	}

	tip := m.view.Tip()
	if tip == nil {
		return true, nil
	}

	power, err := m.SaturatedPower(heightThreshold)
	if err != nil {
		return false, err
	}
	if power >= saturationThreshold {
		logrus.Debugf("mining: round open, saturated power %.2f", power)
		return true, nil
	}

	offset := m.timeOffset()
	stall := int64(m.params.MaxClosedRoundTime())

	if int64(candidate.Time) > int64(tip.Time)+offset+stall {
		logrus.Debugf("mining: round open, candidate time %d past stall interval", candidate.Time)
		return true, nil
	}

	start := m.roundStart(tip.Height, heightThreshold)
	for bi := tip; bi.Height > start; {
		parent := bi.Parent()
		if parent == nil {
			break
		}
		if int64(bi.Time) > int64(parent.Time)+offset+stall {
			logrus.Debugf("mining: round open, stall between heights %d and %d", parent.Height, bi.Height)
			return true, nil
		}
		bi = parent
	}

	return false, nil
}

// roundStart returns the first height of the round containing h, clamped
// upward to threshold.
func (m *Mechanism) roundStart(h, threshold uint32) uint32 {
	start := h - h%uint32(m.params.MiningRoundSize)
	if start < threshold {
		return threshold
	}
	return start
}

// roundEnd returns the last height of the round containing h: the tip for
// the current round, the round boundary for an earlier one.
func (m *Mechanism) roundEnd(h, tipHeight, threshold uint32) uint32 {
	if h >= tipHeight || m.roundStart(h, threshold) == m.roundStart(tipHeight, threshold) {
		return tipHeight
	}
	return m.roundStart(h, threshold) + uint32(m.params.MiningRoundSize) - 1
}

// findBlockIndex walks parent links from `from` down to the entry at
// height, or nil when height is above `from` or below its ancestry.
func findBlockIndex(from *chain.BlockIndex, height uint32) *chain.BlockIndex {
	bi := from
	for bi != nil && bi.Height != height {
		bi = bi.Parent()
	}
	return bi
}
