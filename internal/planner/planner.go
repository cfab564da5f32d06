package planner

import (
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidHolding  = errors.New("holding is invalid")
	ErrInvalidPosition = errors.New("strategy position is invalid")
	ErrPricingFailed   = errors.New("pricing failed")
)

// Pricer converts between token units and uniform USD. *accounting.Valuer satisfies it.
type Pricer interface {
	TokensForUsd(denom string, usd sdkmath.Int) (sdkmath.Int, error)
}

// SourceKind says where a holding sits.
type SourceKind int

const (
	SourceReserve  SourceKind = iota // router float, no call needed to use it
	SourceIdle                       // a token's idle strategy, Index is the token index
	SourceStrategy                   // an active strategy, Index is the strategy index
)

func (k SourceKind) String() string {
	switch k {
	case SourceReserve:
		return "reserve"
	case SourceIdle:
		return "idle"
	case SourceStrategy:
		return "strategy"
	default:
		return fmt.Sprintf("source(%d)", int(k))
	}
}

// Holding is a balance the planner may draw from.
type Holding struct {
	Kind   SourceKind
	Index  int
	Denom  string
	Tokens sdkmath.Int
	Usd    sdkmath.Int
}

// StrategyPosition is an active strategy's slot as the planner sees it.
type StrategyPosition struct {
	Index  int
	Denom  string
	Weight uint64
	Tokens sdkmath.Int
	Usd    sdkmath.Int
}

// Parameters are the thresholds the planner honours.
type Parameters struct {
	DustUsd      sdkmath.Int // uniform USD below which balances are not moved
	StabilityBps uint64      // drift, relative to total value, below which a strategy is left alone
}

func isDust(usd, dust sdkmath.Int) bool {
	return !usd.IsPositive() || (!dust.IsNil() && usd.LT(dust))
}

func validateHoldings(holdings []Holding) error {
	for i, h := range holdings {
		if h.Denom == "" || h.Tokens.IsNil() || h.Usd.IsNil() || h.Tokens.IsNegative() || h.Usd.IsNegative() {
			return errors.Join(ErrInvalidHolding, fmt.Errorf("holding %d (%s #%d)", i, h.Kind, h.Index))
		}
	}
	return nil
}

func validatePositions(positions []StrategyPosition) error {
	for i, p := range positions {
		if p.Denom == "" || p.Tokens.IsNil() || p.Usd.IsNil() || p.Tokens.IsNegative() || p.Usd.IsNegative() {
			return errors.Join(ErrInvalidPosition, fmt.Errorf("position %d (strategy #%d)", i, p.Index))
		}
		if i > 0 && positions[i-1].Index >= p.Index {
			return errors.Join(ErrInvalidPosition, errors.New("positions must be ordered by strategy index"))
		}
	}
	return nil
}

// PlanAllocation distributes the reserve over the active strategies by weight:
// need_i = allocatable * weight_i / totalWeight. With no weighted strategy every reserve
// balance is parked in its token's idle strategy instead. Reserve balances below the dust
// threshold are left in place. A strategy whose need would be dust gets nothing and that
// need is added to the largest one.
func PlanAllocation(reserve []Holding, strategies []StrategyPosition, params Parameters, pricer Pricer) (types.ActionPlan, error) {
	planLogger := logger.GetForComponent("allocation_planner")

	if err := validateHoldings(reserve); err != nil {
		return types.ActionPlan{}, err
	}
	if err := validatePositions(strategies); err != nil {
		return types.ActionPlan{}, err
	}

	sources := make([]*source, 0, len(reserve))
	allocatable := sdkmath.ZeroInt()
	for _, h := range reserve {
		if isDust(h.Usd, params.DustUsd) {
			planLogger.Debug().Str("denom", h.Denom).Stringer("usd", h.Usd).Msg("Reserve balance below dust threshold, left in place")
			continue
		}
		sources = append(sources, newSource(h))
		allocatable = allocatable.Add(h.Usd)
	}
	if len(sources) == 0 {
		return emptyPlan("allocate: nothing above dust"), nil
	}

	totalWeight := uint64(0)
	for _, s := range strategies {
		totalWeight += s.Weight
	}

	if totalWeight == 0 {
		plan := types.ActionPlan{GoalDescription: "allocate: park reserve in idle strategies", TotalMovedUsd: sdkmath.ZeroInt()}
		for _, s := range sources {
			plan.SubActions = append(plan.SubActions, types.SubAction{
				Type:        types.SubActionDepositIdle,
				Index:       s.Index,
				Amount:      sdktypes.NewCoin(s.Denom, s.Tokens),
				ExpectedUsd: s.Usd,
			})
			plan.TotalMovedUsd = plan.TotalMovedUsd.Add(s.Usd)
		}
		planLogger.Info().Int("deposits", len(plan.SubActions)).Msg("No weighted strategy, reserve parked in idle strategies")
		return plan, nil
	}

	weight := sdkmath.NewIntFromUint64(totalWeight)
	needs := make([]*need, 0, len(strategies))
	skipped := sdkmath.ZeroInt()
	var largest *need
	for _, s := range strategies {
		if s.Weight == 0 {
			continue
		}
		usd := accounting.MustMulDiv(allocatable, sdkmath.NewIntFromUint64(s.Weight), weight)
		if isDust(usd, params.DustUsd) {
			skipped = skipped.Add(usd)
			continue
		}
		n := &need{strategy: s.Index, denom: s.Denom, remaining: usd}
		if largest == nil || usd.GT(largest.remaining) {
			largest = n
		}
		needs = append(needs, n)
	}
	// dust-sized shares go to the largest strategy instead of staying in the reserve
	if largest != nil && skipped.IsPositive() {
		largest.remaining = largest.remaining.Add(skipped)
		planLogger.Debug().Int("strategy", largest.strategy).Stringer("foldedUsd", skipped).Msg("Dust allocations folded into largest strategy")
	}

	transfers, err := match(sources, needs, params.DustUsd, pricer)
	if err != nil {
		return types.ActionPlan{}, err
	}
	plan, err := buildPlan("allocate: distribute reserve by weight", sources, transfers, pricer)
	if err != nil {
		return types.ActionPlan{}, err
	}

	planLogger.Info().
		Stringer("allocatableUsd", allocatable).
		Int("swaps", plan.CountByType(types.SubActionSwap)).
		Int("deposits", plan.CountByType(types.SubActionDepositStrategy)).
		Msg("Allocation plan generated")
	return plan, nil
}

// PlanRebalance moves strategies toward their weights. Total value is every active position
// plus idle and reserve balances above dust; desired_i = total * weight_i / totalWeight.
// A strategy whose drift is dust, or under StabilityBps of the total, is left alone.
func PlanRebalance(strategies []StrategyPosition, idle, reserve []Holding, params Parameters, pricer Pricer) (types.ActionPlan, error) {
	planLogger := logger.GetForComponent("allocation_planner")

	if len(strategies) < 2 {
		return types.ActionPlan{}, errorsmod.Wrapf(types.ErrNothingToRebalance, "%d active strategies", len(strategies))
	}
	if err := validatePositions(strategies); err != nil {
		return types.ActionPlan{}, err
	}
	if err := validateHoldings(idle); err != nil {
		return types.ActionPlan{}, err
	}
	if err := validateHoldings(reserve); err != nil {
		return types.ActionPlan{}, err
	}

	// Uninvested balances are drawn from before any strategy is touched
	var sources []*source
	total := sdkmath.ZeroInt()
	for _, list := range [][]Holding{reserve, idle} {
		for _, h := range list {
			if isDust(h.Usd, params.DustUsd) {
				continue
			}
			sources = append(sources, newSource(h))
			total = total.Add(h.Usd)
		}
	}

	totalWeight := uint64(0)
	for _, s := range strategies {
		total = total.Add(s.Usd)
		totalWeight += s.Weight
	}
	if total.IsZero() || totalWeight == 0 {
		return types.ActionPlan{}, errorsmod.Wrap(types.ErrNothingToRebalance, "no value or no weight")
	}

	weight := sdkmath.NewIntFromUint64(totalWeight)
	var needs []*need
	for _, s := range strategies {
		desired := accounting.MustMulDiv(total, sdkmath.NewIntFromUint64(s.Weight), weight)
		delta := desired.Sub(s.Usd)
		drift := delta.Abs()
		if isDust(drift, params.DustUsd) {
			continue
		}
		if accounting.MustMulDiv(drift, sdkmath.NewInt(types.MaxBps), total).LT(sdkmath.NewIntFromUint64(params.StabilityBps)) {
			planLogger.Debug().Int("strategy", s.Index).Stringer("driftUsd", drift).Msg("Drift inside stability band, strategy left alone")
			continue
		}

		if delta.IsPositive() {
			needs = append(needs, &need{strategy: s.Index, denom: s.Denom, remaining: drift})
			continue
		}
		tokens, err := pricer.TokensForUsd(s.Denom, drift)
		if err != nil {
			return types.ActionPlan{}, errors.Join(ErrPricingFailed, err)
		}
		sources = append(sources, newSource(Holding{
			Kind:   SourceStrategy,
			Index:  s.Index,
			Denom:  s.Denom,
			Tokens: accounting.MinInt(tokens, s.Tokens),
			Usd:    drift,
		}))
	}

	if len(needs) == 0 {
		return types.ActionPlan{}, errorsmod.Wrap(types.ErrNothingToRebalance, "every strategy is within its band")
	}

	transfers, err := match(sources, needs, params.DustUsd, pricer)
	if err != nil {
		return types.ActionPlan{}, err
	}
	if len(transfers) == 0 {
		return types.ActionPlan{}, errorsmod.Wrap(types.ErrNothingToRebalance, "no movable balance")
	}
	plan, err := buildPlan("rebalance: move strategies toward weights", sources, transfers, pricer)
	if err != nil {
		return types.ActionPlan{}, err
	}

	planLogger.Info().
		Stringer("totalUsd", total).
		Stringer("movedUsd", plan.TotalMovedUsd).
		Int("withdrawals", plan.CountByType(types.SubActionWithdrawStrategy)+plan.CountByType(types.SubActionWithdrawIdle)).
		Int("swaps", plan.CountByType(types.SubActionSwap)).
		Int("deposits", plan.CountByType(types.SubActionDepositStrategy)).
		Msg("Rebalance plan generated")
	return plan, nil
}

func emptyPlan(goal string) types.ActionPlan {
	return types.ActionPlan{GoalDescription: goal, TotalMovedUsd: sdkmath.ZeroInt()}
}
