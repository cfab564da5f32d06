package vault

import (
	sdkmath "cosmossdk.io/math"
)

// Oracle provides USD prices for supported tokens.
type Oracle interface {
	// IsTokenSupported must return false whenever no price has ever been set for the token.
	IsTokenSupported(denom string) bool

	// GetUsdPrice returns the USD price of one whole token as an integer scaled by 10^priceDecimals.
	GetUsdPrice(denom string) (price sdkmath.Int, priceDecimals uint8, err error)
}

// Exchange converts one token into another. Route selection and fee tiers are its own concern.
type Exchange interface {
	// Swap converts amountIn of tokenIn held by the router and returns the tokenOut amount received.
	Swap(amountIn sdkmath.Int, tokenIn, tokenOut string) (sdkmath.Int, error)

	// GetAmountOut quotes a swap without changing state.
	GetAmountOut(amountIn sdkmath.Int, tokenIn, tokenOut string) (sdkmath.Int, error)

	// GetExchangeProtocolFee returns the fee of the chosen route in basis points.
	GetExchangeProtocolFee(amountIn sdkmath.Int, tokenIn, tokenOut string) (uint64, error)
}

// Strategy is a yield-bearing position in exactly one token, owned by the router.
type Strategy interface {
	// Name identifies the strategy in logs and views.
	Name() string

	// DepositToken is the single token the strategy accepts.
	DepositToken() string

	// Deposit moves amount from the router's reserve into the strategy.
	Deposit(amount sdkmath.Int) error

	// Withdraw returns what was actually obtained. Asked for more than it holds,
	// it returns its full balance instead of failing.
	Withdraw(amount sdkmath.Int) (sdkmath.Int, error)

	// TotalTokens is the strategy balance in token units.
	TotalTokens() (sdkmath.Int, error)

	// Compound reinvests accrued rewards.
	Compound() error
}

// IdleStrategy is a near-zero risk, instantly liquid holding for one supported token.
type IdleStrategy interface {
	Strategy

	// WithdrawAll empties the idle strategy and returns the amount withdrawn.
	WithdrawAll() (sdkmath.Int, error)
}

// Checkpointer is implemented by collaborators whose side effects can be undone when a
// router operation aborts after touching them. Checkpoint captures the current state and
// returns the function restoring it.
type Checkpointer interface {
	Checkpoint() (restore func())
}
