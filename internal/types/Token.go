/*

Token and strategy metadata shared by the accounting engine, the planner and the views.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// UniformDecimals is the fixed precision every cross-token amount is rescaled to.
const UniformDecimals = 18

// SupportedToken is a token the router accepts for deposits and withdrawals.
// Index is stable for as long as the token stays supported.
type SupportedToken struct {
	Denom    string `json:"denom"`    // e.g., "busd"
	Symbol   string `json:"symbol"`   // e.g., "BUSD"
	Decimals int    `json:"decimals"` // e.g., 18 for BUSD, 6 for USDC
	Index    int    `json:"index"`    // position in the supported token array
}

// StrategyInfo is a read-only view of one active strategy slot.
type StrategyInfo struct {
	Index         int         `json:"index"`
	Name          string      `json:"name"`
	Denom         string      `json:"denom"`          // the single token this strategy holds
	Weight        uint64      `json:"weight"`         // relative, summed into the router's weight total
	BalanceTokens sdkmath.Int `json:"balance_tokens"` // strategy totalTokens() in token units
	ValueUsd      sdkmath.Int `json:"value_usd"`      // uniform USD
}

// TokenValue pairs a token with a uniform USD amount.
type TokenValue struct {
	Denom    string      `json:"denom"`
	ValueUsd sdkmath.Int `json:"value_usd"`
}

// BatchValue is the USD breakdown of not-yet-allocated deposits.
type BatchValue struct {
	TotalBalanceUsd sdkmath.Int  `json:"total_balance_usd"`
	Balances        []TokenValue `json:"balances"` // ordered by supported token index
}

// StrategiesValue is the USD breakdown of everything owned by share holders.
type StrategiesValue struct {
	TotalUsd    sdkmath.Int  `json:"total_usd"`
	ReserveUsd  sdkmath.Int  `json:"reserve_usd"`
	IdleUsd     []TokenValue `json:"idle_usd"`     // ordered by supported token index
	StrategyUsd []TokenValue `json:"strategy_usd"` // ordered by strategy index
}
