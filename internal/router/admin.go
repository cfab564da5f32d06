package router

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/stablerouter/internal/batchout"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
)

// AddModerator grants moderator rights to account.
func (r *Router) AddModerator(caller, account string) error {
	return r.transact("add_moderator", func(tx *txn) error {
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		tx.state.Moderators[account] = true
		return nil
	})
}

// AddSupportedToken registers a token with its idle strategy. The oracle must already
// price it. The token keeps its index for as long as it stays supported.
func (r *Router) AddSupportedToken(caller, denom, symbol string, decimals int, idle vault.IdleStrategy) (types.SupportedToken, error) {
	var token types.SupportedToken
	err := r.transact("add_supported_token", func(tx *txn) error {
		st := tx.state
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if err := sdktypes.ValidateDenom(denom); err != nil {
			return errorsmod.Wrapf(types.ErrUnsupportedToken, "%s: %s", denom, err)
		}
		if _, exists := st.tokenPos(denom); exists {
			return errorsmod.Wrapf(types.ErrTokenAlreadySupported, "%s", denom)
		}
		if decimals < 0 || decimals > 36 {
			return errorsmod.Wrapf(types.ErrUnsupportedToken, "%s has %d decimals", denom, decimals)
		}
		if !r.oracle.IsTokenSupported(denom) {
			return errorsmod.Wrapf(types.ErrUnsupportedToken, "no oracle price for %s", denom)
		}
		if idle == nil || idle.DepositToken() != denom {
			return errorsmod.Wrapf(types.ErrInvalidIdleStrategy, "idle strategy does not hold %s", denom)
		}

		tx.touch(idle)
		token = types.SupportedToken{Denom: denom, Symbol: symbol, Decimals: decimals, Index: st.NextTokenIndex}
		st.Tokens = append(st.Tokens, TokenSlot{Token: token, Idle: idle})
		st.NextTokenIndex++
		tx.refreshValuer()
		return nil
	})
	if err != nil {
		return types.SupportedToken{}, err
	}
	r.log.Info().Str("denom", denom).Int("index", token.Index).Str("idle", idle.Name()).Msg("Supported token added")
	return token, nil
}

// RemoveSupportedToken drops a token. It must not back any active strategy and must hold
// nothing in its idle strategy, the reserve or the batch.
func (r *Router) RemoveSupportedToken(caller, denom string) error {
	err := r.transact("remove_supported_token", func(tx *txn) error {
		st := tx.state
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		pos, ok := st.tokenPos(denom)
		if !ok {
			return errorsmod.Wrapf(types.ErrUnsupportedToken, "%s", denom)
		}
		for i, s := range st.Strategies {
			if s.Denom == denom {
				return errorsmod.Wrapf(types.ErrTokenInUse, "strategy %d holds %s", i, denom)
			}
		}
		if idle := st.Tokens[pos].Idle; idle != nil {
			bal, err := idle.TotalTokens()
			if err != nil {
				return err
			}
			if bal.IsPositive() {
				return errorsmod.Wrapf(types.ErrTokenInUse, "idle strategy holds %s %s", bal, denom)
			}
		}
		if st.reserveOf(denom).IsPositive() || st.Batch.Balance(denom).IsPositive() {
			return errorsmod.Wrapf(types.ErrTokenInUse, "reserve or batch holds %s", denom)
		}
		for _, d := range st.BatchOut.Denoms() {
			if d == denom {
				return errorsmod.Wrapf(types.ErrTokenInUse, "pending batch out requests for %s", denom)
			}
		}

		st.Tokens = append(st.Tokens[:pos:pos], st.Tokens[pos+1:]...)
		delete(st.Reserve, denom)
		tx.refreshValuer()
		return nil
	})
	if err == nil {
		r.log.Info().Str("denom", denom).Msg("Supported token removed")
	}
	return err
}

// SetIdleStrategy replaces the idle strategy of the token at index. The old instance is
// emptied and must report a zero balance before the new one receives the funds.
func (r *Router) SetIdleStrategy(caller string, index int, idle vault.IdleStrategy) error {
	err := r.transact("set_idle_strategy", func(tx *txn) error {
		st := tx.state
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		pos, ok := st.tokenPosByIndex(index)
		if !ok {
			return errorsmod.Wrapf(types.ErrInvalidIndexForIdleStrategy, "no supported token at index %d", index)
		}
		denom := st.Tokens[pos].Token.Denom
		if idle == nil || idle.DepositToken() != denom {
			return errorsmod.Wrapf(types.ErrInvalidIdleStrategy, "idle strategy does not hold %s", denom)
		}
		tx.touch(idle)

		old := st.Tokens[pos].Idle
		moved, err := old.WithdrawAll()
		if err != nil {
			return errorsmod.Wrapf(err, "drain idle strategy %s", old.Name())
		}
		left, err := old.TotalTokens()
		if err != nil {
			return err
		}
		if left.IsPositive() {
			return errorsmod.Wrapf(types.ErrIdleStrategyNotDrained, "%s still holds %s %s", old.Name(), left, denom)
		}

		st.Tokens[pos].Idle = idle
		if moved.IsPositive() {
			if err := idle.Deposit(moved); err != nil {
				return errorsmod.Wrapf(err, "fund idle strategy %s", idle.Name())
			}
		}
		return nil
	})
	if err == nil {
		r.log.Info().Int("index", index).Str("idle", idle.Name()).Msg("Idle strategy replaced")
	}
	return err
}

// AddStrategy appends an active strategy. Funds reach it at the next allocation or rebalance.
func (r *Router) AddStrategy(caller string, strategy vault.Strategy, weight uint64) (int, error) {
	var index int
	err := r.transact("add_strategy", func(tx *txn) error {
		st := tx.state
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if strategy == nil || weight == 0 {
			return errorsmod.Wrap(types.ErrInvalidStrategy, "strategy must be set with a positive weight")
		}
		if _, ok := st.tokenPos(strategy.DepositToken()); !ok {
			return errorsmod.Wrapf(types.ErrUnsupportedToken, "strategy %s holds %s", strategy.Name(), strategy.DepositToken())
		}
		for i, s := range st.Strategies {
			if s.Strategy == strategy {
				return errorsmod.Wrapf(types.ErrInvalidStrategy, "%s is already strategy %d", strategy.Name(), i)
			}
		}

		tx.touch(strategy)
		st.Strategies = append(st.Strategies, StrategySlot{Strategy: strategy, Denom: strategy.DepositToken(), Weight: weight})
		st.WeightSum += weight
		index = len(st.Strategies) - 1
		return nil
	})
	if err != nil {
		return -1, err
	}
	r.log.Info().Int("index", index).Str("strategy", strategy.Name()).Uint64("weight", weight).Msg("Strategy added")
	return index, nil
}

// RemoveStrategy withdraws a strategy's whole position and drops it. The proceeds are
// re-allocated across the remaining strategies by weight, or parked in the token's idle
// strategy when none remain. A strategy that keeps more than dust after the withdrawal
// stays in place.
func (r *Router) RemoveStrategy(caller string, index int) error {
	var name string
	err := r.transact("remove_strategy", func(tx *txn) error {
		st := tx.state
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if index < 0 || index >= len(st.Strategies) {
			return errorsmod.Wrapf(types.ErrInvalidStrategy, "no strategy at index %d", index)
		}
		slot := st.Strategies[index]
		name = slot.Strategy.Name()

		balance, err := slot.Strategy.TotalTokens()
		if err != nil {
			return err
		}
		if balance.IsPositive() {
			got, err := slot.Strategy.Withdraw(balance)
			if err != nil {
				return errorsmod.Wrapf(err, "empty strategy %s", name)
			}
			st.addReserve(slot.Denom, got)
		}
		left, err := slot.Strategy.TotalTokens()
		if err != nil {
			return err
		}
		if left.IsPositive() {
			leftUsd, err := tx.valuer.UsdOfTokens(slot.Denom, left)
			if err != nil {
				return err
			}
			if leftUsd.GT(st.Params.DustThresholdUniform) {
				return errorsmod.Wrapf(types.ErrStrategyNotDrained, "%s still holds %s%s", name, left, slot.Denom)
			}
			r.log.Warn().Str("strategy", name).Stringer("left", left).Msg("Dust left behind in removed strategy")
		}

		st.Strategies = append(st.Strategies[:index:index], st.Strategies[index+1:]...)
		st.WeightSum -= slot.Weight
		_, err = tx.allocateReserve()
		return err
	})
	if err == nil {
		r.log.Info().Int("index", index).Str("strategy", name).Msg("Strategy removed")
	}
	return err
}

// UpdateStrategies sets new weights and rebalances toward them. Weights that move nothing
// past the dust threshold and stability band leave every balance in place.
func (r *Router) UpdateStrategies(caller string, indexes []int, weights []uint64) (types.ActionPlan, error) {
	var plan types.ActionPlan
	err := r.transact("update_strategies", func(tx *txn) error {
		st := tx.state
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if len(indexes) != len(weights) {
			return errorsmod.Wrapf(types.ErrInvalidStrategy, "%d indexes, %d weights", len(indexes), len(weights))
		}
		for i, idx := range indexes {
			if idx < 0 || idx >= len(st.Strategies) {
				return errorsmod.Wrapf(types.ErrInvalidStrategy, "no strategy at index %d", idx)
			}
			if weights[i] == 0 {
				return errorsmod.Wrapf(types.ErrInvalidStrategy, "strategy %d weight must be positive", idx)
			}
			st.WeightSum = st.WeightSum - st.Strategies[idx].Weight + weights[i]
			st.Strategies[idx].Weight = weights[i]
		}

		var err error
		plan, err = tx.rebalance()
		if errors.Is(err, types.ErrNothingToRebalance) {
			return nil
		}
		return err
	})
	if err != nil {
		return types.ActionPlan{}, err
	}
	r.log.Info().Ints("indexes", indexes).Int("steps", len(plan.SubActions)).Msg("Strategy weights updated")
	return plan, nil
}

// RebalanceStrategies moves every strategy toward its weight, drawing idle and reserve
// balances in first. Fewer than two strategies, or every drift inside the band, fails with
// ErrNothingToRebalance.
func (r *Router) RebalanceStrategies(caller string) (types.ActionPlan, error) {
	var plan types.ActionPlan
	err := r.transact("rebalance_strategies", func(tx *txn) error {
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		var err error
		plan, err = tx.rebalance()
		return err
	})
	if err != nil {
		return types.ActionPlan{}, err
	}
	r.log.Info().
		Int("swaps", plan.CountByType(types.SubActionSwap)).
		Stringer("movedUsd", plan.TotalMovedUsd).
		Msg("Strategies rebalanced")
	return plan, nil
}

// SetParameters replaces every tunable parameter at once.
func (r *Router) SetParameters(caller string, params types.RouterParameters) error {
	return r.transact("set_parameters", func(tx *txn) error {
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return err
		}
		tx.state.Params = params
		return nil
	})
}

// SetWithdrawFeeSettings replaces the BatchOut request fee schedule.
func (r *Router) SetWithdrawFeeSettings(caller string, settings types.WithdrawFeeSettings) error {
	return r.transact("set_withdraw_fee_settings", func(tx *txn) error {
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		tx.state.Params.WithdrawFee = settings
		return nil
	})
}

// SetBatchOutSlippage sets the tolerated shortfall of BatchOut executions against their quote.
func (r *Router) SetBatchOutSlippage(caller string, bps uint64) error {
	return r.transact("set_batch_out_slippage", func(tx *txn) error {
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if err := batchout.ValidateSlippage(bps); err != nil {
			return err
		}
		tx.state.Params.BatchOutSlippageBps = bps
		return nil
	})
}

// SetProtocolFee sets the share of profit skimmed as fee shares and their receiver.
func (r *Router) SetProtocolFee(caller string, bps uint64, feeAddress string) error {
	return r.transact("set_protocol_fee", func(tx *txn) error {
		if err := tx.requireModerator(caller); err != nil {
			return err
		}
		if bps > types.MaxBps {
			return errorsmod.Wrapf(types.ErrNewValueIsAboveMaxBps, "protocol fee %d > %d", bps, types.MaxBps)
		}
		tx.state.Params.ProtocolFeeBps = bps
		tx.state.Params.FeeAddress = feeAddress
		return nil
	})
}
