package planner

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/types"
)

// parPricer prices every token at one dollar.
type parPricer map[string]int

func (p parPricer) TokensForUsd(denom string, usd sdkmath.Int) (sdkmath.Int, error) {
	return accounting.FromUniform(usd, p[denom])
}

var pricer = parPricer{"usdc": 6, "usdt": 18, "dai": 18}

func usd(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func reserveOf(denom string, dollars int64) Holding {
	tokens, _ := pricer.TokensForUsd(denom, usd(dollars))
	return Holding{Kind: SourceReserve, Denom: denom, Tokens: tokens, Usd: usd(dollars)}
}

func position(index int, denom string, weight uint64, dollars int64) StrategyPosition {
	tokens, _ := pricer.TokensForUsd(denom, usd(dollars))
	return StrategyPosition{Index: index, Denom: denom, Weight: weight, Tokens: tokens, Usd: usd(dollars)}
}

var params = Parameters{DustUsd: sdkmath.NewIntWithDecimal(1, 17), StabilityBps: 50}

func TestPlanAllocationWithoutWeightsParksInIdle(t *testing.T) {
	reserve := []Holding{reserveOf("usdc", 10), reserveOf("dai", 5)}
	reserve[1].Index = 2

	plan, err := PlanAllocation(reserve, nil, params, pricer)
	require.NoError(t, err)
	require.Equal(t, 2, plan.CountByType(types.SubActionDepositIdle))
	assert.Equal(t, 2, plan.SubActions[1].Index)
	assert.True(t, plan.TotalMovedUsd.Equal(usd(15)))
}

func TestPlanAllocationSameTokenNoSwaps(t *testing.T) {
	reserve := []Holding{reserveOf("usdc", 100), reserveOf("usdt", 100)}
	strategies := []StrategyPosition{position(0, "usdc", 1, 0), position(1, "usdt", 1, 0)}

	plan, err := PlanAllocation(reserve, strategies, params, pricer)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.CountByType(types.SubActionSwap))
	require.Equal(t, 2, plan.CountByType(types.SubActionDepositStrategy))
	assert.Equal(t, "100000000", plan.SubActions[0].Amount.Amount.String())
	assert.True(t, plan.TotalMovedUsd.Equal(usd(200)))
}

func TestPlanAllocationConvertsShortfall(t *testing.T) {
	reserve := []Holding{reserveOf("usdc", 100)}
	strategies := []StrategyPosition{position(0, "usdc", 1, 0), position(1, "dai", 1, 0)}

	plan, err := PlanAllocation(reserve, strategies, params, pricer)
	require.NoError(t, err)
	require.Len(t, plan.SubActions, 3)

	swap := plan.SubActions[0]
	assert.Equal(t, types.SubActionSwap, swap.Type)
	assert.Equal(t, "usdc", swap.TokenIn.Denom)
	assert.Equal(t, "50000000", swap.TokenIn.Amount.String())
	assert.Equal(t, "dai", swap.TokenOutDenom)
	require.Len(t, swap.Legs, 1)
	assert.Equal(t, 1, swap.Legs[0].StrategyIndex)

	usdcDeposit := plan.SubActions[1]
	assert.Equal(t, 0, usdcDeposit.Index)
	require.Len(t, usdcDeposit.DirectLegs, 1)
	assert.Equal(t, "50000000", usdcDeposit.DirectLegs[0].AmountIn.String())

	daiDeposit := plan.SubActions[2]
	assert.Equal(t, 1, daiDeposit.Index)
	assert.True(t, daiDeposit.Amount.Amount.Equal(usd(50)))
	assert.Empty(t, daiDeposit.DirectLegs)
}

func TestPlanAllocationDustOnly(t *testing.T) {
	dust := Holding{Kind: SourceReserve, Denom: "usdc", Tokens: sdkmath.NewInt(50_000), Usd: sdkmath.NewIntWithDecimal(5, 16)}
	plan, err := PlanAllocation([]Holding{dust}, []StrategyPosition{position(0, "usdc", 1, 0)}, params, pricer)
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
	assert.True(t, plan.TotalMovedUsd.IsZero())
}

func TestPlanAllocationFoldsDustNeeds(t *testing.T) {
	reserve := []Holding{{Kind: SourceReserve, Denom: "usdc", Tokens: sdkmath.NewInt(1_200_000), Usd: sdkmath.NewIntWithDecimal(12, 17)}}
	strategies := []StrategyPosition{position(0, "usdc", 100, 0)}
	for i := 1; i <= 20; i++ {
		strategies = append(strategies, position(i, "usdc", 1, 0))
	}

	plan, err := PlanAllocation(reserve, strategies, params, pricer)
	require.NoError(t, err)
	require.Equal(t, 1, plan.CountByType(types.SubActionDepositStrategy))
	assert.Equal(t, 0, plan.SubActions[0].Index)
	assert.Equal(t, "1200000", plan.SubActions[0].Amount.Amount.String(), "every small share lands in the largest strategy")
	assert.True(t, plan.TotalMovedUsd.Equal(sdkmath.NewIntWithDecimal(12, 17)))
}

func TestPlanAllocationRejectsBadInput(t *testing.T) {
	_, err := PlanAllocation([]Holding{{Denom: "", Tokens: sdkmath.ZeroInt(), Usd: sdkmath.ZeroInt()}}, nil, params, pricer)
	require.ErrorIs(t, err, ErrInvalidHolding)

	unordered := []StrategyPosition{position(1, "usdc", 1, 0), position(0, "usdt", 1, 0)}
	_, err = PlanAllocation([]Holding{reserveOf("usdc", 1)}, unordered, params, pricer)
	require.ErrorIs(t, err, ErrInvalidPosition)
}

func TestPlanRebalance(t *testing.T) {
	strategies := []StrategyPosition{position(0, "usdc", 1, 150), position(1, "usdt", 1, 50)}

	plan, err := PlanRebalance(strategies, nil, nil, params, pricer)
	require.NoError(t, err)
	require.Len(t, plan.SubActions, 3)

	assert.Equal(t, types.SubActionWithdrawStrategy, plan.SubActions[0].Type)
	assert.Equal(t, 0, plan.SubActions[0].Index)
	assert.Equal(t, "50000000", plan.SubActions[0].Amount.Amount.String())
	assert.Equal(t, types.SubActionSwap, plan.SubActions[1].Type)
	assert.Equal(t, types.SubActionDepositStrategy, plan.SubActions[2].Type)
	assert.Equal(t, 1, plan.SubActions[2].Index)
	assert.True(t, plan.TotalMovedUsd.Equal(usd(50)))
}

func TestPlanRebalanceDrawsIdleFirst(t *testing.T) {
	strategies := []StrategyPosition{position(0, "usdc", 1, 100), position(1, "usdt", 1, 100)}
	idle := []Holding{{Kind: SourceIdle, Index: 1, Denom: "usdt", Tokens: usd(50), Usd: usd(50)}}

	// total 250, desired 125 each: both gaps are filled from idle, no strategy is drawn.
	plan, err := PlanRebalance(strategies, idle, nil, params, pricer)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.CountByType(types.SubActionWithdrawStrategy))
	assert.Equal(t, 1, plan.CountByType(types.SubActionWithdrawIdle))
}

func TestPlanRebalanceNothingToDo(t *testing.T) {
	tests := []struct {
		name       string
		strategies []StrategyPosition
	}{
		{"single strategy", []StrategyPosition{position(0, "usdc", 1, 100)}},
		{"no value", []StrategyPosition{position(0, "usdc", 1, 0), position(1, "usdt", 1, 0)}},
		{"no weight", []StrategyPosition{position(0, "usdc", 0, 10), position(1, "usdt", 0, 10)}},
		{
			"inside stability band",
			[]StrategyPosition{
				{Index: 0, Denom: "usdc", Weight: 1, Tokens: sdkmath.NewInt(100_300_000), Usd: sdkmath.NewIntWithDecimal(1003, 17)},
				{Index: 1, Denom: "usdt", Weight: 1, Tokens: sdkmath.NewIntWithDecimal(997, 17), Usd: sdkmath.NewIntWithDecimal(997, 17)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanRebalance(tt.strategies, nil, nil, params, pricer)
			require.ErrorIs(t, err, types.ErrNothingToRebalance)
		})
	}
}

func TestSourceKindString(t *testing.T) {
	assert.Equal(t, "reserve", SourceReserve.String())
	assert.Equal(t, "idle", SourceIdle.String())
	assert.Equal(t, "strategy", SourceStrategy.String())
	assert.Equal(t, "source(9)", SourceKind(9).String())
}
