/*

This file contains the types for allocation plans: the low-level steps the router executes
to move balances between its reserve, idle strategies and active strategies.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// SubActionType defines the specific low-level operations.
type SubActionType string

const (
	SubActionWithdrawStrategy SubActionType = "WITHDRAW_STRATEGY" // Pull tokens from an active strategy
	SubActionWithdrawIdle     SubActionType = "WITHDRAW_IDLE"     // Pull tokens from a token's idle strategy
	SubActionSwap             SubActionType = "SWAP"              // Convert reserve tokens through the exchange
	SubActionDepositStrategy  SubActionType = "DEPOSIT_STRATEGY"  // Push reserve tokens into an active strategy
	SubActionDepositIdle      SubActionType = "DEPOSIT_IDLE"      // Park reserve tokens in a token's idle strategy
)

// SwapLeg is the part of a swap's input earmarked for one strategy deposit.
type SwapLeg struct {
	StrategyIndex int         `json:"strategy_index"`
	AmountIn      sdkmath.Int `json:"amount_in"`
}

// SubAction represents a single, executable step in an allocation plan.
type SubAction struct {
	Type SubActionType `json:"type"`

	// Fields for WITHDRAW_STRATEGY / DEPOSIT_STRATEGY (strategy index) and
	// WITHDRAW_IDLE / DEPOSIT_IDLE (supported token index)
	Index  int           `json:"index"`
	Amount sdktypes.Coin `json:"amount,omitempty"` // planned amount; deposits are finalised from actual swap output

	// Fields for SWAP
	TokenIn       sdktypes.Coin `json:"token_in,omitempty"`
	TokenOutDenom string        `json:"token_out_denom,omitempty"`
	Legs          []SwapLeg     `json:"legs,omitempty"`

	// Same-token transfers credited straight to a strategy deposit, no conversion
	DirectLegs []SwapLeg `json:"direct_legs,omitempty"`

	ExpectedUsd sdkmath.Int `json:"expected_usd,omitempty"` // oracle-implied value of the step
}

// ActionPlan holds a sequence of SubActions produced by the planner. Withdrawals come first,
// then swaps, then at most one deposit per strategy.
type ActionPlan struct {
	GoalDescription string      `json:"goal_description"`
	SubActions      []SubAction `json:"sub_actions"`
	TotalMovedUsd   sdkmath.Int `json:"total_moved_usd"`
}

// IsEmpty reports whether executing the plan would touch nothing.
func (p ActionPlan) IsEmpty() bool {
	return len(p.SubActions) == 0
}

// CountByType returns how many steps of the given type the plan holds.
func (p ActionPlan) CountByType(t SubActionType) int {
	n := 0
	for _, a := range p.SubActions {
		if a.Type == t {
			n++
		}
	}
	return n
}

// Payout is a token amount owed to an account as the result of a withdrawal.
type Payout struct {
	Owner   string        `json:"owner"`
	Coin    sdktypes.Coin `json:"coin"`
	CycleID uint64        `json:"cycle_id,omitempty"` // BatchOut cycle for deferred withdrawals
}

// StrategyWithdrawal is a withdrawal paid out of the strategies immediately rather than
// through a BatchOut cycle.
type StrategyWithdrawal struct {
	Payout
	Shares     sdkmath.Int `json:"shares"`
	FeeShares  sdkmath.Int `json:"fee_shares"` // protocol fee minted by the pre-withdrawal compound
	Compounded bool        `json:"compounded"`
	Swaps      int         `json:"swaps"`
	At         time.Time   `json:"at"`
}
