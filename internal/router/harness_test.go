package router

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/simulations"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/utils"
)

const admin = "elys1admin"

var tokenDecimals = map[string]int{"busd": 18, "usdc": 6, "usdt": 18}

func testParams() types.RouterParameters {
	return types.RouterParameters{
		DustThresholdUniform:  sdkmath.NewIntWithDecimal(1, 17),
		RebalanceStabilityBps: 50,
		AllocationWindow:      time.Hour,
		MinDepositUsd:         sdkmath.NewIntWithDecimal(1, 17),
		WithdrawWindow:        time.Hour,
		BatchOutSlippageBps:   100,
	}
}

type harness struct {
	t        *testing.T
	r        *Router
	oracle   *simulations.Oracle
	exchange *simulations.Exchange
	idle     map[string]*simulations.Strategy
	now      time.Time
}

// newHarness supports denoms at $1 with their idle strategies.
func newHarness(t *testing.T, exchangeFeeBps uint64, denoms ...string) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		oracle: simulations.NewOracle(),
		idle:   make(map[string]*simulations.Strategy),
		now:    time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	h.exchange = simulations.NewExchange(h.oracle, nil, exchangeFeeBps)

	r, err := New(h.oracle, h.exchange, testParams(), []string{admin}, WithClock(func() time.Time { return h.now }))
	require.NoError(t, err)
	h.r = r

	for _, denom := range denoms {
		h.oracle.SetPriceBps(denom, 10000)
		h.exchange.AddToken(denom, tokenDecimals[denom])
		idle := simulations.NewIdleStrategy(denom)
		_, err := r.AddSupportedToken(admin, denom, denom, tokenDecimals[denom], idle)
		require.NoError(t, err)
		h.idle[denom] = idle
	}
	return h
}

func (h *harness) addStrategy(denom string, weight uint64) *simulations.Strategy {
	h.t.Helper()
	s := simulations.NewStrategy("strategy-"+denom, denom)
	_, err := h.r.AddStrategy(admin, s, weight)
	require.NoError(h.t, err)
	return s
}

// amount converts whole tokens to token units.
func amount(denom string, n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, tokenDecimals[denom])
}

func usd(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func (h *harness) deposit(owner, denom string, n int64) types.Receipt {
	h.t.Helper()
	r, err := h.r.DepositToBatch(owner, sdktypes.NewCoin(denom, amount(denom, n)))
	require.NoError(h.t, err)
	return r
}

func (h *harness) allocate() types.Cycle {
	h.t.Helper()
	h.now = h.now.Add(testParams().AllocationWindow)
	c, err := h.r.AllocateToStrategies(h.now)
	require.NoError(h.t, err)
	return c
}

func (h *harness) redeem(owner string, receipts ...types.Receipt) sdkmath.Int {
	h.t.Helper()
	ids := make([]uint64, 0, len(receipts))
	for _, r := range receipts {
		ids = append(ids, r.ID)
	}
	got, err := h.r.RedeemReceiptsToShares(owner, ids)
	require.NoError(h.t, err)
	return got
}

// whole renders token units of denom as a float of whole tokens.
func whole(t *testing.T, denom string, amount sdkmath.Int) float64 {
	t.Helper()
	f, err := utils.ScaledToFloat64(amount, tokenDecimals[denom])
	require.NoError(t, err)
	return f
}

func balance(t *testing.T, s *simulations.Strategy) sdkmath.Int {
	t.Helper()
	b, err := s.TotalTokens()
	require.NoError(t, err)
	return b
}
