package router

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/batchout"
	"github.com/elys-network/stablerouter/internal/shares"
	"github.com/elys-network/stablerouter/internal/types"
)

// fundedHarness returns a router where alice holds every share of a $100 usdc strategy.
func fundedHarness(t *testing.T) (*harness, sdkmath.Int) {
	h := newHarness(t, 0, "usdc", "usdt")
	h.addStrategy("usdc", 1)
	receipt := h.deposit("alice", "usdc", 100)
	h.allocate()
	return h, h.redeem("alice", receipt)
}

func TestUpkeepExecutesAndFulfils(t *testing.T) {
	h, held := fundedHarness(t)
	half := held.QuoRaw(2)

	req, err := h.r.ScheduleWithdrawal("alice", nil, half, "usdc", sdktypes.Coin{}, h.now)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.True(t, h.r.SharesOf("alice").Equal(held.Sub(half)))
	assert.True(t, h.r.SharesOf(batchout.CustodyAddress).Equal(half))

	current := h.r.CurrentBatchOutCycle()
	assert.Equal(t, types.BatchOutAccumulating, current.Status())
	require.Len(t, current.Requests, 1)

	assert.False(t, h.r.CheckUpkeep(h.now.Add(30*time.Minute)))
	_, err = h.r.PerformUpkeep(h.now.Add(30 * time.Minute))
	require.ErrorIs(t, err, types.ErrNothingToExecute)

	due := h.now.Add(time.Hour)
	require.True(t, h.r.CheckUpkeep(due))
	res, err := h.r.PerformUpkeep(due)
	require.NoError(t, err)
	require.NotNil(t, res.Executed)
	assert.Equal(t, uint64(1), res.Executed.ID)
	assert.Equal(t, []uint64{1}, res.Fulfilled)
	require.Len(t, res.Payouts, 1)
	assert.Equal(t, "alice", res.Payouts[0].Owner)
	assert.InDelta(t, 50.0, whole(t, "usdc", res.Payouts[0].Coin.Amount), 1e-3)

	assert.True(t, h.r.SharesOf(batchout.CustodyAddress).IsZero())
	assert.Empty(t, h.r.GetNotFulfilledCycleIDs())
	assert.False(t, h.r.CheckUpkeep(due))
	assert.Equal(t, uint64(2), h.r.CurrentBatchOutCycle().ID)

	_, err = h.r.WithdrawFulfill(1)
	require.ErrorIs(t, err, types.ErrAllWithdrawalsFulfilled)
}

func TestFulfilSucceedsOnce(t *testing.T) {
	h, held := fundedHarness(t)
	_, err := h.r.ScheduleWithdrawal("alice", nil, held.QuoRaw(4), "usdt", sdktypes.Coin{}, h.now)
	require.NoError(t, err)

	_, err = h.r.WithdrawFulfill(1)
	require.ErrorIs(t, err, types.ErrNothingToFulfill)

	_, err = h.r.ExecuteBatchWithdraw(h.now.Add(time.Minute))
	require.ErrorIs(t, err, types.ErrCycleNotClosableYet)

	executed, err := h.r.ExecuteBatchWithdraw(h.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, types.BatchOutExecuted, executed.Status())
	assert.InDelta(t, 25.0, whole(t, "usdt", executed.ReceivedByDenom["usdt"]), 1e-3)
	assert.Equal(t, []uint64{1}, h.r.GetNotFulfilledCycleIDs())

	payouts, err := h.r.WithdrawFulfill(1)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, "usdt", payouts[0].Coin.Denom)

	for i := 0; i < 3; i++ {
		_, err = h.r.WithdrawFulfill(1)
		require.ErrorIs(t, err, types.ErrAllWithdrawalsFulfilled)
	}

	c, ok := h.r.BatchOutCycle(1)
	require.True(t, ok)
	assert.Equal(t, types.BatchOutFulfilled, c.Status())
}

func TestScheduleWithdrawalValidation(t *testing.T) {
	h, held := fundedHarness(t)

	_, err := h.r.ScheduleWithdrawal("alice", nil, held.AddRaw(1), "usdc", sdktypes.Coin{}, h.now)
	require.ErrorIs(t, err, types.ErrInsufficientShares)

	_, err = h.r.ScheduleWithdrawal("alice", nil, sdkmath.ZeroInt(), "usdc", sdktypes.Coin{}, h.now)
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = h.r.ScheduleWithdrawal("alice", nil, held, "dai", sdktypes.Coin{}, h.now)
	require.ErrorIs(t, err, types.ErrUnsupportedToken)

	_, err = h.r.ExecuteBatchWithdraw(h.now.Add(time.Hour))
	require.ErrorIs(t, err, types.ErrNothingToExecute)
}

func TestScheduleWithdrawalFee(t *testing.T) {
	h, held := fundedHarness(t)
	h.oracle.SetPriceBps("uelys", 25000)
	require.NoError(t, h.r.SetWithdrawFeeSettings(admin, types.WithdrawFeeSettings{
		MinFeeUsd:   usd(1),
		MaxFeeUsd:   usd(10),
		FeeBps:      50,
		GasDenom:    "uelys",
		GasDecimals: 6,
		Treasury:    "elys1treasury",
	}))

	// $1 minimum at $2.50 is 0.4 ELYS.
	tests := []struct {
		name    string
		fee     sdktypes.Coin
		wantErr error
	}{
		{"nothing paid", sdktypes.Coin{}, types.ErrWithdrawFeeTooLow},
		{"too little", sdktypes.NewCoin("uelys", sdkmath.NewInt(399_999)), types.ErrWithdrawFeeTooLow},
		{"wrong denom", sdktypes.NewCoin("usdc", sdkmath.NewInt(400_000)), types.ErrWithdrawFeeTooLow},
		{"exact", sdktypes.NewCoin("uelys", sdkmath.NewInt(400_000)), nil},
		{"overpaid records the fee only", sdktypes.NewCoin("uelys", sdkmath.NewInt(900_000)), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := h.r.ScheduleWithdrawal("alice", nil, held.QuoRaw(10), "usdc", tt.fee, h.now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "400000", req.FeePaid.String())
		})
	}

	assert.Equal(t, "800000", h.r.CurrentBatchOutCycle().CollectedFees.String())
}

func TestScheduleWithdrawalWithoutFeeCollectsNothing(t *testing.T) {
	h, held := fundedHarness(t)

	for _, paid := range []sdktypes.Coin{
		sdktypes.NewCoin("uelys", sdkmath.NewInt(400_000)),
		sdktypes.NewCoin("usdc", sdkmath.NewInt(1_000_000)),
	} {
		req, err := h.r.ScheduleWithdrawal("alice", nil, held.QuoRaw(10), "usdc", paid, h.now)
		require.NoError(t, err)
		assert.True(t, req.FeePaid.IsZero(), "paid %s", paid)
	}
	assert.True(t, h.r.CurrentBatchOutCycle().CollectedFees.IsZero())
}

func TestCompoundingWithdrawalSkimsProtocolFee(t *testing.T) {
	h := newHarness(t, 0, "usdc")
	s := h.addStrategy("usdc", 1).WithYieldBps(100)
	require.NoError(t, h.r.SetProtocolFee(admin, 1000, "treasury"))
	receipt := h.deposit("alice", "usdc", 100)
	h.allocate()
	held := h.redeem("alice", receipt)

	payout, err := h.r.WithdrawFromStrategies("alice", nil, held, "usdc", sdkmath.ZeroInt(), true)
	require.NoError(t, err)

	fee := h.r.SharesOf("treasury")
	require.True(t, fee.IsPositive(), "yield realised by the withdrawal must be skimmed")
	// 1 usdc of yield, 10% of it kept back for the treasury
	assert.InDelta(t, 100.9, whole(t, "usdc", payout.Coin.Amount), 0.01)
	assert.InDelta(t, 0.1, whole(t, "usdc", balance(t, s)), 0.01)
}

func TestWithdrawRedeemsReceiptsInTheSameCall(t *testing.T) {
	h := newHarness(t, 0, "usdc")
	h.addStrategy("usdc", 1)
	receipt := h.deposit("alice", "usdc", 10)
	h.allocate()

	expected := usd(10).Sub(shares.InitialShares)
	payout, err := h.r.WithdrawFromStrategies("alice", []uint64{receipt.ID}, expected, "usdc", sdkmath.ZeroInt(), true)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, whole(t, "usdc", payout.Coin.Amount), 1e-3)
	assert.Empty(t, h.r.ReceiptsOf("alice"))

	_, err = h.r.WithdrawFromStrategies("alice", []uint64{receipt.ID}, sdkmath.NewInt(1), "usdc", sdkmath.ZeroInt(), false)
	require.ErrorIs(t, err, types.ErrReceiptNotFound)
}

type auditLog struct {
	recorded []types.StrategyWithdrawal
	err      error
}

func (a *auditLog) RecordWithdrawal(w types.StrategyWithdrawal) error {
	if a.err != nil {
		return a.err
	}
	a.recorded = append(a.recorded, w)
	return nil
}

func TestDirectWithdrawalsAreAudited(t *testing.T) {
	h, held := fundedHarness(t)
	audit := &auditLog{}
	h.r.auditor = audit

	_, err := h.r.WithdrawFromStrategies("alice", nil, held.Add(sdkmath.OneInt()), "usdc", sdkmath.ZeroInt(), false)
	require.ErrorIs(t, err, types.ErrInsufficientShares)
	assert.Empty(t, audit.recorded, "failed withdrawals are not recorded")

	quarter := held.QuoRaw(4)
	payout, err := h.r.WithdrawFromStrategies("alice", nil, quarter, "usdc", sdkmath.ZeroInt(), true)
	require.NoError(t, err)
	require.Len(t, audit.recorded, 1)
	got := audit.recorded[0]
	assert.Equal(t, payout, got.Payout)
	assert.True(t, got.Shares.Equal(quarter))
	assert.True(t, got.Compounded)
	assert.Equal(t, h.now, got.At)

	audit.err = types.ErrRoutedSwapFailed
	_, err = h.r.WithdrawFromStrategies("alice", nil, quarter, "usdc", sdkmath.ZeroInt(), false)
	require.NoError(t, err, "an audit failure does not undo the withdrawal")
	assert.True(t, h.r.SharesOf("alice").Equal(held.Sub(quarter).Sub(quarter)))
}

func TestCycleReceiptsListsUnredeemedReceipts(t *testing.T) {
	h := newHarness(t, 0, "usdc")
	h.addStrategy("usdc", 1)
	first := h.deposit("alice", "usdc", 10)
	h.deposit("bob", "usdc", 20)
	cycle := h.allocate()
	h.deposit("alice", "usdc", 5)

	closed := h.r.CycleReceipts(cycle.ID)
	require.Len(t, closed, 2)
	assert.Equal(t, "alice", closed[0].Owner)
	assert.Equal(t, "bob", closed[1].Owner)
	assert.Len(t, h.r.CycleReceipts(h.r.CurrentCycleID()), 1)

	h.redeem("alice", first)
	assert.Len(t, h.r.CycleReceipts(cycle.ID), 1)
}
