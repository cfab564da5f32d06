package planner

import (
	"errors"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/types"
)

type source struct {
	Holding
	remTokens sdkmath.Int
	remUsd    sdkmath.Int
	taken     sdkmath.Int
}

func newSource(h Holding) *source {
	return &source{Holding: h, remTokens: h.Tokens, remUsd: h.Usd, taken: sdkmath.ZeroInt()}
}

type need struct {
	strategy  int
	denom     string
	remaining sdkmath.Int
}

// transfer moves tokens of src.Denom toward a strategy holding denom.
type transfer struct {
	src      *source
	strategy int
	denom    string
	tokens   sdkmath.Int
	usd      sdkmath.Int
}

// match pairs sources with needs greedily, same-token first so conversions only carry what
// no same-token balance can cover. Needs are served in strategy index order and sources in
// the order given.
func match(sources []*source, needs []*need, dust sdkmath.Int, pricer Pricer) ([]transfer, error) {
	var out []transfer
	for _, sameToken := range []bool{true, false} {
		for _, n := range needs {
			for _, s := range sources {
				if isDust(n.remaining, dust) {
					break
				}
				if isDust(s.remUsd, dust) || !s.remTokens.IsPositive() {
					continue
				}
				if (s.Denom == n.denom) != sameToken {
					continue
				}

				usd := accounting.MinInt(n.remaining, s.remUsd)
				tokens := s.remTokens
				if usd.LT(s.remUsd) {
					t, err := pricer.TokensForUsd(s.Denom, usd)
					if err != nil {
						return nil, errors.Join(ErrPricingFailed, err)
					}
					tokens = accounting.MinInt(t, s.remTokens)
				}
				if !tokens.IsPositive() {
					continue
				}

				s.remTokens = s.remTokens.Sub(tokens)
				s.remUsd = s.remUsd.Sub(usd)
				s.taken = s.taken.Add(tokens)
				n.remaining = n.remaining.Sub(usd)
				out = append(out, transfer{src: s, strategy: n.strategy, denom: n.denom, tokens: tokens, usd: usd})
			}
		}
	}
	return out, nil
}

type swapKey struct{ in, out string }

// buildPlan turns matched transfers into steps: one withdrawal per drawn source, one swap per
// (tokenIn, tokenOut) pair with a leg per receiving strategy, then one deposit per receiving
// strategy in index order.
func buildPlan(goal string, sources []*source, transfers []transfer, pricer Pricer) (types.ActionPlan, error) {
	plan := emptyPlan(goal)

	for _, s := range sources {
		if !s.taken.IsPositive() {
			continue
		}
		switch s.Kind {
		case SourceStrategy:
			plan.SubActions = append(plan.SubActions, types.SubAction{
				Type:        types.SubActionWithdrawStrategy,
				Index:       s.Index,
				Amount:      sdktypes.NewCoin(s.Denom, s.taken),
				ExpectedUsd: s.Usd.Sub(s.remUsd),
			})
		case SourceIdle:
			plan.SubActions = append(plan.SubActions, types.SubAction{
				Type:        types.SubActionWithdrawIdle,
				Index:       s.Index,
				Amount:      sdktypes.NewCoin(s.Denom, s.taken),
				ExpectedUsd: s.Usd.Sub(s.remUsd),
			})
		}
	}

	var swapOrder []swapKey
	swaps := make(map[swapKey]*types.SubAction)
	direct := make(map[int]sdkmath.Int)
	depositUsd := make(map[int]sdkmath.Int)
	depositDenom := make(map[int]string)
	var depositOrder []int

	for _, t := range transfers {
		if _, seen := depositUsd[t.strategy]; !seen {
			depositOrder = append(depositOrder, t.strategy)
			depositUsd[t.strategy] = sdkmath.ZeroInt()
			direct[t.strategy] = sdkmath.ZeroInt()
			depositDenom[t.strategy] = t.denom
		}
		depositUsd[t.strategy] = depositUsd[t.strategy].Add(t.usd)
		plan.TotalMovedUsd = plan.TotalMovedUsd.Add(t.usd)

		if t.src.Denom == t.denom {
			direct[t.strategy] = direct[t.strategy].Add(t.tokens)
			continue
		}

		key := swapKey{in: t.src.Denom, out: t.denom}
		sw, ok := swaps[key]
		if !ok {
			sw = &types.SubAction{
				Type:          types.SubActionSwap,
				TokenIn:       sdktypes.NewCoin(key.in, sdkmath.ZeroInt()),
				TokenOutDenom: key.out,
				ExpectedUsd:   sdkmath.ZeroInt(),
			}
			swaps[key] = sw
			swapOrder = append(swapOrder, key)
		}
		sw.TokenIn.Amount = sw.TokenIn.Amount.Add(t.tokens)
		sw.ExpectedUsd = sw.ExpectedUsd.Add(t.usd)
		sw.Legs = addLeg(sw.Legs, t.strategy, t.tokens)
	}

	for _, key := range swapOrder {
		plan.SubActions = append(plan.SubActions, *swaps[key])
	}

	sort.Ints(depositOrder)
	for _, idx := range depositOrder {
		denom := depositDenom[idx]
		expected, err := pricer.TokensForUsd(denom, depositUsd[idx])
		if err != nil {
			return types.ActionPlan{}, errors.Join(ErrPricingFailed, err)
		}
		// same-token transfers are exact, only the converted part is an estimate
		expected = sdkmath.MaxInt(expected, direct[idx])
		action := types.SubAction{
			Type:        types.SubActionDepositStrategy,
			Index:       idx,
			Amount:      sdktypes.NewCoin(denom, expected),
			ExpectedUsd: depositUsd[idx],
		}
		if direct[idx].IsPositive() {
			action.DirectLegs = []types.SwapLeg{{StrategyIndex: idx, AmountIn: direct[idx]}}
		}
		plan.SubActions = append(plan.SubActions, action)
	}
	return plan, nil
}

func addLeg(legs []types.SwapLeg, strategy int, amount sdkmath.Int) []types.SwapLeg {
	for i := range legs {
		if legs[i].StrategyIndex == strategy {
			legs[i].AmountIn = legs[i].AmountIn.Add(amount)
			return legs
		}
	}
	return append(legs, types.SwapLeg{StrategyIndex: strategy, AmountIn: amount})
}
