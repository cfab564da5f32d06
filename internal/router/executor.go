package router

import (
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
)

// execute carries a plan out against the staged reserve. Withdrawals land in the reserve;
// if one under-delivers, every outflow of that token is scaled down to what actually
// arrived. Swap output is credited to its legs pro-rata to their input, the last leg taking
// the remainder, and each strategy then receives a single deposit.
func (tx *txn) execute(plan types.ActionPlan) error {
	if plan.IsEmpty() {
		return nil
	}
	st := tx.state

	for _, a := range plan.SubActions {
		switch a.Type {
		case types.SubActionWithdrawStrategy:
			if a.Index < 0 || a.Index >= len(st.Strategies) {
				return errorsmod.Wrapf(types.ErrInvalidStrategy, "plan references strategy %d", a.Index)
			}
			s := st.Strategies[a.Index].Strategy
			got, err := s.Withdraw(a.Amount.Amount)
			if err != nil {
				return errorsmod.Wrapf(err, "withdraw from strategy %d (%s)", a.Index, s.Name())
			}
			tx.logShortfall(s.Name(), a.Amount.Amount, got)
			st.addReserve(a.Amount.Denom, got)
		case types.SubActionWithdrawIdle:
			pos, ok := st.tokenPosByIndex(a.Index)
			if !ok || st.Tokens[pos].Idle == nil {
				return errorsmod.Wrapf(types.ErrInvalidIndexForIdleStrategy, "plan references token %d", a.Index)
			}
			idle := st.Tokens[pos].Idle
			got, err := idle.Withdraw(a.Amount.Amount)
			if err != nil {
				return errorsmod.Wrapf(err, "withdraw from idle strategy %s", idle.Name())
			}
			tx.logShortfall(idle.Name(), a.Amount.Amount, got)
			st.addReserve(a.Amount.Denom, got)
		}
	}

	// Planned outflows per token, checked against what the reserve actually holds now
	outflow := make(map[string]sdkmath.Int)
	addOutflow := func(denom string, amount sdkmath.Int) {
		prev, ok := outflow[denom]
		if !ok {
			prev = sdkmath.ZeroInt()
		}
		outflow[denom] = prev.Add(amount)
	}
	for _, a := range plan.SubActions {
		switch a.Type {
		case types.SubActionSwap:
			addOutflow(a.TokenIn.Denom, a.TokenIn.Amount)
		case types.SubActionDepositStrategy:
			for _, leg := range a.DirectLegs {
				addOutflow(a.Amount.Denom, leg.AmountIn)
			}
		}
	}
	available := make(map[string]sdkmath.Int, len(outflow))
	for denom := range outflow {
		available[denom] = st.reserveOf(denom)
	}
	scale := func(denom string, amount sdkmath.Int) sdkmath.Int {
		planned, have := outflow[denom], available[denom]
		if planned.IsNil() || planned.LTE(have) {
			return amount
		}
		return accounting.MustMulDiv(amount, have, planned)
	}

	credited := make(map[int]sdkmath.Int)
	credit := func(strategy int, amount sdkmath.Int) {
		prev, ok := credited[strategy]
		if !ok {
			prev = sdkmath.ZeroInt()
		}
		credited[strategy] = prev.Add(amount)
	}

	for _, a := range plan.SubActions {
		if a.Type != types.SubActionSwap {
			continue
		}
		legIns := make([]sdkmath.Int, len(a.Legs))
		totalIn := sdkmath.ZeroInt()
		for i, leg := range a.Legs {
			legIns[i] = scale(a.TokenIn.Denom, leg.AmountIn)
			totalIn = totalIn.Add(legIns[i])
		}
		if !totalIn.IsPositive() {
			continue
		}
		if err := tx.takeReserve(a.TokenIn.Denom, totalIn); err != nil {
			return err
		}
		out, err := vault.Swap(tx.r.exchange, totalIn, a.TokenIn.Denom, a.TokenOutDenom)
		if err != nil {
			return err
		}
		st.addReserve(a.TokenOutDenom, out)

		distributed := sdkmath.ZeroInt()
		for i, leg := range a.Legs {
			share := out.Sub(distributed)
			if i < len(a.Legs)-1 {
				share = accounting.MustMulDiv(out, legIns[i], totalIn)
			}
			distributed = distributed.Add(share)
			credit(leg.StrategyIndex, share)
		}
	}

	for _, a := range plan.SubActions {
		switch a.Type {
		case types.SubActionDepositStrategy:
			if a.Index < 0 || a.Index >= len(st.Strategies) {
				return errorsmod.Wrapf(types.ErrInvalidStrategy, "plan references strategy %d", a.Index)
			}
			amount, ok := credited[a.Index]
			if !ok {
				amount = sdkmath.ZeroInt()
			}
			for _, leg := range a.DirectLegs {
				amount = amount.Add(scale(a.Amount.Denom, leg.AmountIn))
			}
			if !amount.IsPositive() {
				continue
			}
			if err := tx.takeReserve(a.Amount.Denom, amount); err != nil {
				return err
			}
			s := st.Strategies[a.Index].Strategy
			if err := s.Deposit(amount); err != nil {
				return errorsmod.Wrapf(err, "deposit into strategy %d (%s)", a.Index, s.Name())
			}
		case types.SubActionDepositIdle:
			pos, ok := st.tokenPosByIndex(a.Index)
			if !ok || st.Tokens[pos].Idle == nil {
				return errorsmod.Wrapf(types.ErrInvalidIndexForIdleStrategy, "plan references token %d", a.Index)
			}
			amount := accounting.MinInt(a.Amount.Amount, st.reserveOf(a.Amount.Denom))
			if !amount.IsPositive() {
				continue
			}
			if err := tx.takeReserve(a.Amount.Denom, amount); err != nil {
				return err
			}
			idle := st.Tokens[pos].Idle
			if err := idle.Deposit(amount); err != nil {
				return errorsmod.Wrapf(err, "deposit into idle strategy %s", idle.Name())
			}
		}
	}

	tx.r.log.Debug().
		Str("goal", plan.GoalDescription).
		Int("steps", len(plan.SubActions)).
		Stringer("movedUsd", plan.TotalMovedUsd).
		Msg("Plan executed")
	return nil
}

func (tx *txn) takeReserve(denom string, amount sdkmath.Int) error {
	have := tx.state.reserveOf(denom)
	if amount.GT(have) {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "reserve holds %s %s, needs %s", have, denom, amount)
	}
	tx.state.Reserve[denom] = have.Sub(amount)
	return nil
}

func (tx *txn) logShortfall(name string, asked, got sdkmath.Int) {
	if got.LT(asked) {
		tx.r.log.Warn().
			Str("strategy", name).
			Stringer("asked", asked).
			Stringer("received", got).
			Msg("Strategy under-fulfilled, outflows scaled down")
	}
}
