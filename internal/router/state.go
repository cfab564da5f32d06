package router

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/batch"
	"github.com/elys-network/stablerouter/internal/batchout"
	"github.com/elys-network/stablerouter/internal/shares"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
)

// CustodyAddress holds the shares minted for a closed cycle until its receipts are redeemed.
const CustodyAddress = "stablerouter/custody"

// TokenSlot is a supported token and the idle strategy servicing it.
type TokenSlot struct {
	Token types.SupportedToken
	Idle  vault.IdleStrategy
}

// StrategySlot is an active strategy with its weight.
type StrategySlot struct {
	Strategy vault.Strategy
	Denom    string
	Weight   uint64
}

// SystemState is everything the router owns. Operations stage their changes on a Clone and
// the router swaps it in only when the whole operation succeeded.
type SystemState struct {
	Tokens         []TokenSlot // ordered by Token.Index
	NextTokenIndex int

	Strategies []StrategySlot // ordered by strategy index
	WeightSum  uint64

	Reserve  map[string]sdkmath.Int // router float in token units, counted in strategies' value
	Batch    *batch.Ledger
	Shares   *shares.Ledger
	BatchOut *batchout.Queue

	Cycles           map[uint64]types.Cycle
	CurrentCycleID   uint64
	LastAllocationAt time.Time

	Params     types.RouterParameters
	Moderators map[string]bool
}

func NewSystemState(params types.RouterParameters, moderators []string, now time.Time) *SystemState {
	s := &SystemState{
		Reserve:        make(map[string]sdkmath.Int),
		Batch:          batch.NewLedger(),
		Shares:         shares.NewLedger(),
		BatchOut:       batchout.NewQueue(),
		Cycles:         map[uint64]types.Cycle{1: types.NewCycle(1, now)},
		CurrentCycleID: 1,
		Params:         params,
		Moderators:     make(map[string]bool, len(moderators)),
	}
	for _, m := range moderators {
		s.Moderators[m] = true
	}
	return s
}

// Clone deep-copies the ledgers. Collaborator handles are shared; their side effects are
// undone through checkpoints instead.
func (s *SystemState) Clone() *SystemState {
	out := *s
	out.Tokens = append([]TokenSlot(nil), s.Tokens...)
	out.Strategies = append([]StrategySlot(nil), s.Strategies...)
	out.Reserve = make(map[string]sdkmath.Int, len(s.Reserve))
	for k, v := range s.Reserve {
		out.Reserve[k] = v
	}
	out.Batch = s.Batch.Clone()
	out.Shares = s.Shares.Clone()
	out.BatchOut = s.BatchOut.Clone()
	out.Cycles = make(map[uint64]types.Cycle, len(s.Cycles))
	for k, v := range s.Cycles {
		out.Cycles[k] = v.Clone()
	}
	out.Moderators = make(map[string]bool, len(s.Moderators))
	for k, v := range s.Moderators {
		out.Moderators[k] = v
	}
	return &out
}

// SupportedTokens lists token metadata in index order.
func (s *SystemState) SupportedTokens() []types.SupportedToken {
	out := make([]types.SupportedToken, 0, len(s.Tokens))
	for _, t := range s.Tokens {
		out = append(out, t.Token)
	}
	return out
}

func (s *SystemState) tokenPos(denom string) (int, bool) {
	for i, t := range s.Tokens {
		if t.Token.Denom == denom {
			return i, true
		}
	}
	return -1, false
}

func (s *SystemState) tokenPosByIndex(index int) (int, bool) {
	for i, t := range s.Tokens {
		if t.Token.Index == index {
			return i, true
		}
	}
	return -1, false
}

func (s *SystemState) reserveOf(denom string) sdkmath.Int {
	if b, ok := s.Reserve[denom]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (s *SystemState) addReserve(denom string, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	s.Reserve[denom] = s.reserveOf(denom).Add(amount)
}

func (s *SystemState) currentCycle() types.Cycle {
	return s.Cycles[s.CurrentCycleID]
}
