package simulations

import (
	"errors"
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
)

var (
	ErrSameToken    = errors.New("token in and token out are the same")
	ErrPoolReverted = errors.New("pool reverted the swap")
)

var swapLogger = logger.GetForComponent("swap_simulator")

type pair struct{ in, out string }

type pinnedPrice struct {
	value    sdkmath.Int
	decimals uint8
}

// Exchange converts at the oracle-implied rate minus a flat fee. A token can be pinned to a
// fixed price so its pools stop following the oracle. Routes can be disabled and swaps forced
// to fail to exercise the router's error paths.
type Exchange struct {
	mu       sync.Mutex
	oracle   vault.Oracle
	decimals map[string]int
	feeBps   uint64
	disabled map[pair]bool
	pinned   map[string]pinnedPrice
	failing  bool
	swaps    int
}

var _ vault.Exchange = (*Exchange)(nil)
var _ vault.Checkpointer = (*Exchange)(nil)

// NewExchange prices swaps with the oracle. tokens supplies the decimals of every tradable token.
func NewExchange(oracle vault.Oracle, tokens []types.SupportedToken, feeBps uint64) *Exchange {
	decimals := make(map[string]int, len(tokens))
	for _, t := range tokens {
		decimals[t.Denom] = t.Decimals
	}
	return &Exchange{
		oracle:   oracle,
		decimals: decimals,
		feeBps:   feeBps,
		disabled: make(map[pair]bool),
		pinned:   make(map[string]pinnedPrice),
	}
}

// AddToken makes another token tradable.
func (e *Exchange) AddToken(denom string, decimals int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decimals[denom] = decimals
}

func (e *Exchange) SetFeeBps(feeBps uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feeBps = feeBps
}

// PinPrice makes every later swap value denom at price/10^decimals USD, whatever the oracle says.
func (e *Exchange) PinPrice(denom string, price sdkmath.Int, decimals uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[denom] = pinnedPrice{value: price, decimals: decimals}
}

func (e *Exchange) price(denom string) (sdkmath.Int, uint8, error) {
	if p, ok := e.pinned[denom]; ok {
		return p.value, p.decimals, nil
	}
	return e.oracle.GetUsdPrice(denom)
}

// DisableRoute removes the tokenIn -> tokenOut route.
func (e *Exchange) DisableRoute(tokenIn, tokenOut string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled[pair{tokenIn, tokenOut}] = true
}

// FailSwaps makes every following swap revert.
func (e *Exchange) FailSwaps(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failing = fail
}

// SwapCount is the number of swaps executed so far.
func (e *Exchange) SwapCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.swaps
}

func (e *Exchange) quote(amountIn sdkmath.Int, tokenIn, tokenOut string) (sdkmath.Int, error) {
	if tokenIn == tokenOut {
		return sdkmath.ZeroInt(), ErrSameToken
	}
	if e.disabled[pair{tokenIn, tokenOut}] {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrRouteNotFound, "%s -> %s", tokenIn, tokenOut)
	}
	decIn, okIn := e.decimals[tokenIn]
	decOut, okOut := e.decimals[tokenOut]
	if !okIn || !okOut {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrRouteNotFound, "%s -> %s", tokenIn, tokenOut)
	}
	priceIn, pdIn, err := e.price(tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("price %s: %w", tokenIn, err)
	}
	priceOut, pdOut, err := e.price(tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("price %s: %w", tokenOut, err)
	}

	uniformIn, err := accounting.ToUniform(amountIn, decIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	usd, err := accounting.UsdValue(uniformIn, priceIn, pdIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	uniformOut, err := accounting.FromUsd(usd, priceOut, pdOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	out, err := accounting.FromUniform(uniformOut, decOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out.Sub(accounting.BpsOf(out, e.feeBps)), nil
}

func (e *Exchange) Swap(amountIn sdkmath.Int, tokenIn, tokenOut string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failing {
		return sdkmath.ZeroInt(), ErrPoolReverted
	}
	out, err := e.quote(amountIn, tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.swaps++
	swapLogger.Debug().
		Str("tokenIn", tokenIn).
		Str("tokenOut", tokenOut).
		Stringer("amountIn", amountIn).
		Stringer("amountOut", out).
		Msg("Simulated swap executed")
	return out, nil
}

func (e *Exchange) GetAmountOut(amountIn sdkmath.Int, tokenIn, tokenOut string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote(amountIn, tokenIn, tokenOut)
}

func (e *Exchange) GetExchangeProtocolFee(amountIn sdkmath.Int, tokenIn, tokenOut string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disabled[pair{tokenIn, tokenOut}] {
		return 0, errorsmod.Wrapf(types.ErrRouteNotFound, "%s -> %s", tokenIn, tokenOut)
	}
	return e.feeBps, nil
}

// Checkpoint captures the swap counter, the only state a swap mutates.
func (e *Exchange) Checkpoint() func() {
	e.mu.Lock()
	swaps := e.swaps
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.swaps = swaps
	}
}
