package vault

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/types"
)

// Swap converts through the exchange and maps its failures onto the router's taxonomy:
// a missing route stays ErrRouteNotFound, anything else becomes ErrRoutedSwapFailed.
func Swap(exchange Exchange, amountIn sdkmath.Int, tokenIn, tokenOut string) (sdkmath.Int, error) {
	if tokenIn == tokenOut {
		return amountIn, nil
	}
	out, err := exchange.Swap(amountIn, tokenIn, tokenOut)
	if err != nil {
		if errors.Is(err, types.ErrRouteNotFound) {
			return sdkmath.ZeroInt(), err
		}
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrRoutedSwapFailed, "%s %s -> %s: %s", amountIn, tokenIn, tokenOut, err)
	}
	if out.IsNil() || out.IsNegative() {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrRoutedSwapFailed, "%s %s -> %s returned no output", amountIn, tokenIn, tokenOut)
	}
	return out, nil
}

// Debit withdraws up to amount from a strategy and reports both what the strategy's balance
// dropped by and what was actually handed back. The two differ when the venue charges for
// the exit; debited falls short of amount when the venue lacks liquidity.
func Debit(s Strategy, amount sdkmath.Int) (debited, received sdkmath.Int, err error) {
	before, err := s.TotalTokens()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	received, err = s.Withdraw(amount)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	after, err := s.TotalTokens()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	debited = before.Sub(after)
	if debited.IsNegative() {
		debited = sdkmath.ZeroInt()
	}
	if debited.LT(received) {
		debited = received
	}
	return debited, received, nil
}
