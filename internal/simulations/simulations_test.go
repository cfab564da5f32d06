package simulations

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/types"
)

func newTestExchange(feeBps uint64) (*Oracle, *Exchange) {
	oracle := NewOracle()
	oracle.SetPriceBps("usdc", 10000)
	oracle.SetPriceBps("usdt", 10000)
	oracle.SetPriceBps("dai", 5000)
	tokens := []types.SupportedToken{
		{Denom: "usdc", Decimals: 6},
		{Denom: "usdt", Decimals: 18},
		{Denom: "dai", Decimals: 18},
	}
	return oracle, NewExchange(oracle, tokens, feeBps)
}

func TestOracle(t *testing.T) {
	o := NewOracle()
	assert.False(t, o.IsTokenSupported("usdc"))
	_, _, err := o.GetUsdPrice("usdc")
	require.ErrorIs(t, err, ErrPriceNotSet)

	o.SetPriceBps("usdc", 9990)
	require.True(t, o.IsTokenSupported("usdc"))
	price, decimals, err := o.GetUsdPrice("usdc")
	require.NoError(t, err)
	assert.Equal(t, "9990", price.String())
	assert.Equal(t, uint8(4), decimals)

	o.RemovePrice("usdc")
	assert.False(t, o.IsTokenSupported("usdc"))
}

func TestExchangeSwap(t *testing.T) {
	_, ex := newTestExchange(30)

	// 100 USDC -> USDT at par minus 0.3%.
	out, err := ex.Swap(sdkmath.NewInt(100_000_000), "usdc", "usdt")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(997, 17).String(), out.String())
	assert.Equal(t, 1, ex.SwapCount())

	// $1 of USDT buys two $0.50 DAI.
	quote, err := ex.GetAmountOut(sdkmath.NewIntWithDecimal(1, 18), "usdt", "dai")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(1994, 15).String(), quote.String())
	assert.Equal(t, 1, ex.SwapCount(), "quotes do not count as swaps")

	fee, err := ex.GetExchangeProtocolFee(sdkmath.NewInt(1), "usdc", "usdt")
	require.NoError(t, err)
	assert.Equal(t, uint64(30), fee)
}

func TestExchangeFailures(t *testing.T) {
	oracle, ex := newTestExchange(0)

	_, err := ex.Swap(sdkmath.NewInt(1), "usdc", "usdc")
	require.ErrorIs(t, err, ErrSameToken)

	_, err = ex.Swap(sdkmath.NewInt(1), "usdc", "busd")
	require.ErrorIs(t, err, types.ErrRouteNotFound)

	ex.DisableRoute("usdc", "usdt")
	_, err = ex.Swap(sdkmath.NewInt(1), "usdc", "usdt")
	require.ErrorIs(t, err, types.ErrRouteNotFound)
	_, err = ex.GetExchangeProtocolFee(sdkmath.NewInt(1), "usdc", "usdt")
	require.ErrorIs(t, err, types.ErrRouteNotFound)

	_, err = ex.Swap(sdkmath.NewInt(1_000_000), "usdt", "usdc")
	require.NoError(t, err, "only the disabled direction fails")

	oracle.RemovePrice("dai")
	_, err = ex.Swap(sdkmath.NewInt(1_000_000), "usdc", "dai")
	require.ErrorIs(t, err, ErrPriceNotSet)

	ex.FailSwaps(true)
	_, err = ex.Swap(sdkmath.NewInt(1_000_000), "usdt", "usdc")
	require.ErrorIs(t, err, ErrPoolReverted)
}

func TestExchangePinnedPrice(t *testing.T) {
	oracle, ex := newTestExchange(0)
	ex.PinPrice("dai", sdkmath.NewInt(100), 2)

	// dai trades at $1 in the pools while the oracle says $0.50.
	out, err := ex.GetAmountOut(sdkmath.NewInt(1_000_000), "usdc", "dai")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(1, 18).String(), out.String())

	oracle.RemovePrice("dai")
	_, err = ex.Swap(sdkmath.NewInt(1_000_000), "usdc", "dai")
	require.NoError(t, err, "a pinned token needs no oracle price")
}

func TestExchangeCheckpoint(t *testing.T) {
	_, ex := newTestExchange(0)
	restore := ex.Checkpoint()
	_, err := ex.Swap(sdkmath.NewInt(1_000_000), "usdc", "usdt")
	require.NoError(t, err)
	require.Equal(t, 1, ex.SwapCount())
	restore()
	assert.Equal(t, 0, ex.SwapCount())
}

func TestStrategyWithdrawals(t *testing.T) {
	tests := []struct {
		name      string
		balance   int64
		exitFee   uint64
		cap       int64
		request   int64
		wantOut   int64
		wantAfter int64
	}{
		{"full", 1000, 0, 0, 400, 400, 600},
		{"more than held", 1000, 0, 0, 5000, 1000, 0},
		{"exit fee", 1000, 100, 0, 500, 495, 500},
		{"liquidity cap", 1000, 0, 300, 500, 300, 700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStrategy("s", "usdc").WithExitFeeBps(tt.exitFee)
			if tt.cap > 0 {
				s.WithLiquidityCap(sdkmath.NewInt(tt.cap))
			}
			s.SetBalance(sdkmath.NewInt(tt.balance))

			out, err := s.Withdraw(sdkmath.NewInt(tt.request))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out.Int64())

			left, err := s.TotalTokens()
			require.NoError(t, err)
			assert.Equal(t, tt.wantAfter, left.Int64())
		})
	}
}

func TestStrategyLifecycle(t *testing.T) {
	s := NewIdleStrategy("usdc").WithYieldBps(100)
	assert.Equal(t, "idle-usdc", s.Name())
	assert.Equal(t, "usdc", s.DepositToken())

	require.NoError(t, s.Deposit(sdkmath.NewInt(10_000)))
	require.Error(t, s.Deposit(sdkmath.NewInt(-1)))
	require.NoError(t, s.Compound())
	bal, _ := s.TotalTokens()
	assert.Equal(t, int64(10_100), bal.Int64())

	restore := s.Checkpoint()
	out, err := s.WithdrawAll()
	require.NoError(t, err)
	assert.Equal(t, int64(10_100), out.Int64())
	restore()
	bal, _ = s.TotalTokens()
	assert.Equal(t, int64(10_100), bal.Int64())

	s.Pause(true)
	require.ErrorIs(t, s.Deposit(sdkmath.NewInt(1)), ErrStrategyPaused)
	_, err = s.Withdraw(sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrStrategyPaused)

	deposits, withdrawals, compounds := s.Calls()
	assert.Equal(t, 1, deposits)
	assert.Equal(t, 0, withdrawals, "restored by the checkpoint")
	assert.Equal(t, 1, compounds)
}
