package router

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/shares"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/utils"
)

func TestSingleStrategyRoundTrip(t *testing.T) {
	h := newHarness(t, 0, "busd")
	strategy := h.addStrategy("busd", 10_000)

	receipt := h.deposit("alice", "busd", 100)
	cycle := h.allocate()
	assert.True(t, cycle.Closed)
	assert.True(t, cycle.TotalDepositedInUsd.Equal(usd(100)))
	assert.True(t, cycle.PricePerShare.Equal(usd(1)))
	assert.True(t, balance(t, strategy).Equal(amount("busd", 100)))
	assert.Equal(t, uint64(2), h.r.CurrentCycleID())

	minted := h.redeem("alice", receipt)
	assert.True(t, minted.Equal(usd(100).Sub(shares.InitialShares)))
	assert.True(t, h.r.SharesOf(shares.LockAddress).Equal(shares.InitialShares))
	assert.Empty(t, h.r.ReceiptsOf("alice"))

	payout, err := h.r.WithdrawFromStrategies("alice", nil, minted, "busd", amount("busd", 99), false)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, whole(t, "busd", payout.Coin.Amount), 1e-3)
	assert.InDelta(t, 0.0, whole(t, "busd", balance(t, strategy)), 1e-3)
	assert.True(t, h.r.SharesOf("alice").IsZero())
}

func TestConversionLossAndPriceMove(t *testing.T) {
	h := newHarness(t, 30, "busd", "usdc", "usdt")
	h.addStrategy("busd", 1)
	h.addStrategy("usdc", 1)
	h.addStrategy("usdt", 1)

	receipt := h.deposit("alice", "busd", 1000)
	h.allocate()

	// Two thirds are converted at a 0.3% fee.
	held := h.redeem("alice", receipt)
	assert.InDelta(t, 998.0, utils.UniformToFloat64(held), 0.01)

	h.oracle.SetPriceBps("busd", 10500)
	value, err := h.r.UsdFromShares(held)
	require.NoError(t, err)
	assert.InDelta(t, 1014.67, utils.UniformToFloat64(value), 0.01)

	payout, err := h.r.WithdrawFromStrategies("alice", nil, held, "busd", amount("busd", 960), false)
	require.NoError(t, err)
	assert.InDelta(t, 964.45, whole(t, "busd", payout.Coin.Amount), 0.5)
}

func TestPriceMoveWithPoolsAtPar(t *testing.T) {
	h := newHarness(t, 30, "busd", "usdc", "usdt")
	for _, denom := range []string{"busd", "usdc", "usdt"} {
		h.exchange.PinPrice(denom, sdkmath.NewInt(10000), 4)
	}
	h.addStrategy("busd", 1)
	h.addStrategy("usdc", 1)
	h.addStrategy("usdt", 1)

	receipt := h.deposit("alice", "busd", 1000)
	h.allocate()
	held := h.redeem("alice", receipt)
	assert.InDelta(t, 998.0, utils.UniformToFloat64(held), 0.01)

	// the oracle moves but the pools keep trading at par
	h.oracle.SetPriceBps("busd", 10500)
	payout, err := h.r.WithdrawFromStrategies("alice", nil, held, "busd", amount("busd", 990), false)
	require.NoError(t, err)
	assert.InDelta(t, 997.0, whole(t, "busd", payout.Coin.Amount), 1.5)
	assert.True(t, h.r.SharesOf("alice").IsZero())
}

func TestBatchValueBreakdown(t *testing.T) {
	h := newHarness(t, 0, "busd", "usdc", "usdt")
	h.addStrategy("busd", 1)
	h.addStrategy("usdc", 1)
	h.addStrategy("usdt", 1)
	h.oracle.SetPriceBps("busd", 9000)
	h.oracle.SetPriceBps("usdc", 9000)
	h.oracle.SetPriceBps("usdt", 11000)

	for _, denom := range []string{"busd", "usdc", "usdt"} {
		h.deposit("alice", denom, 100)
	}

	value, err := h.r.GetBatchValueUsd()
	require.NoError(t, err)
	assert.True(t, value.TotalBalanceUsd.Equal(usd(290)))
	require.Len(t, value.Balances, 3)
	for i, want := range []int64{90, 90, 110} {
		assert.True(t, value.Balances[i].ValueUsd.Equal(usd(want)), "token %d", i)
	}
}

func TestIdleServesWithdrawalFirst(t *testing.T) {
	h := newHarness(t, 0, "busd")
	strategy := h.addStrategy("busd", 1)

	receipt := h.deposit("alice", "busd", 100)
	h.allocate()
	h.redeem("alice", receipt)
	h.idle["busd"].SetBalance(amount("busd", 1000))

	sharesFor100, err := h.r.SharesFromUsd(usd(100))
	require.NoError(t, err)

	payout, err := h.r.WithdrawFromStrategies("alice", nil, sharesFor100, "busd", sdkmath.ZeroInt(), false)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, whole(t, "busd", payout.Coin.Amount), 0.1)
	assert.InDelta(t, 100.0, whole(t, "busd", balance(t, strategy)), 0.1)
	assert.InDelta(t, 900.0, whole(t, "busd", balance(t, h.idle["busd"])), 0.1)
}

func TestConservationWithoutFees(t *testing.T) {
	h := newHarness(t, 0, "usdc", "usdt")
	h.addStrategy("usdc", 1)
	h.addStrategy("usdt", 1)

	ra := h.deposit("alice", "usdc", 100)
	rb := h.deposit("bob", "usdt", 50)
	h.allocate()
	aliceShares := h.redeem("alice", ra)
	bobShares := h.redeem("bob", rb)

	pa, err := h.r.WithdrawFromStrategies("alice", nil, aliceShares, "usdc", sdkmath.ZeroInt(), false)
	require.NoError(t, err)
	pb, err := h.r.WithdrawFromStrategies("bob", nil, bobShares, "usdt", sdkmath.ZeroInt(), false)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, whole(t, "usdc", pa.Coin.Amount), 0.1)
	assert.InDelta(t, 50.0, whole(t, "usdt", pb.Coin.Amount), 0.1)
	assert.InDelta(t, 150.0, whole(t, "usdc", pa.Coin.Amount)+whole(t, "usdt", pb.Coin.Amount), 0.1)
}

func TestSharesRoundTrip(t *testing.T) {
	h := newHarness(t, 0, "usdc", "usdt")
	h.addStrategy("usdc", 1)
	h.addStrategy("usdt", 1)
	h.deposit("alice", "usdc", 100)
	h.deposit("bob", "usdt", 50)
	h.allocate()

	for _, x := range []sdkmath.Int{sdkmath.NewInt(1_000), usd(1), usd(37), usd(149)} {
		s, err := h.r.SharesFromUsd(x)
		require.NoError(t, err)
		back, err := h.r.UsdFromShares(s)
		require.NoError(t, err)
		assert.True(t, back.LTE(x), "round trip must not create value: %s -> %s", x, back)
		assert.True(t, x.Sub(back).LT(sdkmath.NewInt(1_000)), "round trip lost %s", x.Sub(back))
	}
}

func TestRebalanceTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t, 0, "usdc", "usdt")
	s0 := h.addStrategy("usdc", 1)
	s1 := h.addStrategy("usdt", 1)
	h.deposit("alice", "usdc", 100)
	h.deposit("bob", "usdt", 50)
	h.allocate()

	plan, err := h.r.UpdateStrategies(admin, []int{0}, []uint64{3})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.CountByType(types.SubActionSwap))
	assert.InDelta(t, 112.5, whole(t, "usdc", balance(t, s0)), 0.01)
	assert.InDelta(t, 37.5, whole(t, "usdt", balance(t, s1)), 0.01)
	assert.Equal(t, uint64(4), h.r.WeightSum())

	swaps := h.exchange.SwapCount()
	d0, w0, _ := s0.Calls()
	d1, w1, _ := s1.Calls()

	_, err = h.r.RebalanceStrategies(admin)
	require.ErrorIs(t, err, types.ErrNothingToRebalance)

	assert.Equal(t, swaps, h.exchange.SwapCount())
	d0b, w0b, _ := s0.Calls()
	d1b, w1b, _ := s1.Calls()
	assert.Equal(t, []int{d0, w0, d1, w1}, []int{d0b, w0b, d1b, w1b})
}

func TestWithdrawerPaysExitAndSwapFees(t *testing.T) {
	h := newHarness(t, 30, "usdc", "usdt")
	strategy := h.addStrategy("usdt", 1)

	ra := h.deposit("alice", "usdt", 100)
	rb := h.deposit("bob", "usdt", 100)
	h.allocate()
	aliceShares := h.redeem("alice", ra)
	bobShares := h.redeem("bob", rb)
	strategy.WithExitFeeBps(100)

	payout, err := h.r.WithdrawFromStrategies("alice", nil, aliceShares, "usdc", sdkmath.ZeroInt(), false)
	require.NoError(t, err)

	// 100 * (1 - 1%) * (1 - 0.3%)
	assert.InDelta(t, 98.703, whole(t, "usdc", payout.Coin.Amount), 0.001)

	bobValue, err := h.r.UsdFromShares(bobShares)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, utils.UniformToFloat64(bobValue), 0.001)

	pps, err := h.r.PricePerShare()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, utils.UniformToFloat64(pps), 1e-6)
}

func TestFailedMinExpectedRollsBack(t *testing.T) {
	h := newHarness(t, 30, "usdc", "usdt")
	strategy := h.addStrategy("usdt", 1)
	receipt := h.deposit("alice", "usdt", 100)
	h.allocate()
	aliceShares := h.redeem("alice", receipt)
	strategy.WithExitFeeBps(100)

	swaps := h.exchange.SwapCount()
	_, withdrawals, _ := strategy.Calls()

	_, err := h.r.WithdrawFromStrategies("alice", nil, aliceShares, "usdc", amount("usdc", 99), false)
	require.ErrorIs(t, err, types.ErrWithdrawnAmountLowerThanExpectedAmount)

	assert.True(t, h.r.SharesOf("alice").Equal(aliceShares))
	assert.True(t, balance(t, strategy).Equal(amount("usdt", 100)))
	assert.Equal(t, swaps, h.exchange.SwapCount())
	_, after, _ := strategy.Calls()
	assert.Equal(t, withdrawals, after)
}

func TestFailedSwapLeavesBatchUnallocated(t *testing.T) {
	h := newHarness(t, 0, "usdc", "usdt")
	s0 := h.addStrategy("usdc", 1)
	h.addStrategy("usdt", 1)
	h.deposit("alice", "usdc", 100)
	h.exchange.FailSwaps(true)

	h.now = h.now.Add(testParams().AllocationWindow)
	_, err := h.r.AllocateToStrategies(h.now)
	require.ErrorIs(t, err, types.ErrRoutedSwapFailed)

	assert.Equal(t, uint64(1), h.r.CurrentCycleID())
	assert.True(t, balance(t, s0).IsZero())
	assert.True(t, h.r.TotalShares().IsZero())
	value, err := h.r.GetBatchValueUsd()
	require.NoError(t, err)
	assert.True(t, value.TotalBalanceUsd.Equal(usd(100)))

	h.exchange.FailSwaps(false)
	_, err = h.r.AllocateToStrategies(h.now)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, whole(t, "usdc", balance(t, s0)), 1e-6)
}
