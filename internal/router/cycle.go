package router

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/shares"
	"github.com/elys-network/stablerouter/internal/types"
)

// DepositToBatch adds coin to the open cycle's batch and issues the receipt. The deposit must
// be worth at least MinDepositUsd at the current oracle price.
func (r *Router) DepositToBatch(owner string, coin sdktypes.Coin) (types.Receipt, error) {
	var receipt types.Receipt
	err := r.transact("deposit_to_batch", func(tx *txn) error {
		if err := coin.Validate(); err != nil || !coin.Amount.IsPositive() {
			return errorsmod.Wrapf(types.ErrInvalidAmount, "deposit %s", coin)
		}
		usd, err := tx.valuer.UsdOfTokens(coin.Denom, coin.Amount)
		if err != nil {
			return err
		}
		if usd.LT(tx.state.Params.MinDepositUsd) {
			return errorsmod.Wrapf(types.ErrDepositUnderMinimum, "%s is worth %s, minimum %s", coin, usd, tx.state.Params.MinDepositUsd)
		}
		uniform, err := tx.valuer.ToUniform(coin.Denom, coin.Amount)
		if err != nil {
			return err
		}
		receipt = tx.state.Batch.Deposit(owner, coin.Denom, coin.Amount, uniform, tx.state.CurrentCycleID, r.clock())
		return nil
	})
	if err != nil {
		return types.Receipt{}, err
	}
	r.log.Info().
		Uint64("receipt", receipt.ID).
		Str("owner", owner).
		Stringer("coin", coin).
		Uint64("cycle", receipt.CycleID).
		Msg("Deposit added to batch")
	return receipt, nil
}

// WithdrawFromBatch returns not-yet-allocated deposits in their own token. amountsUniform
// may be nil to withdraw every receipt in full; otherwise it holds one uniform amount per
// receipt and a receipt reduced to zero is burned.
func (r *Router) WithdrawFromBatch(owner string, receiptIDs []uint64, amountsUniform []sdkmath.Int) ([]types.Payout, error) {
	var payouts []types.Payout
	err := r.transact("withdraw_from_batch", func(tx *txn) error {
		if amountsUniform != nil && len(amountsUniform) != len(receiptIDs) {
			return errorsmod.Wrapf(types.ErrInvalidAmount, "%d receipts, %d amounts", len(receiptIDs), len(amountsUniform))
		}
		for i, id := range receiptIDs {
			receipt, err := tx.state.Batch.OwnedReceipt(owner, id)
			if err != nil {
				return err
			}
			amountUniform := receipt.AmountUniform
			if amountsUniform != nil {
				amountUniform = amountsUniform[i]
			}
			tokens, err := tx.valuer.FromUniform(receipt.Denom, amountUniform)
			if err != nil {
				return err
			}
			if _, err := tx.state.Batch.Withdraw(owner, id, amountUniform, tokens, tx.state.CurrentCycleID); err != nil {
				return err
			}
			payouts = append(payouts, types.Payout{Owner: owner, Coin: sdktypes.NewCoin(receipt.Denom, tokens)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Info().Str("owner", owner).Int("receipts", len(receiptIDs)).Msg("Batch deposits withdrawn")
	return payouts, nil
}

// AllocateToStrategies closes the current cycle: compounds, skims the protocol fee on profit,
// prices the batch, moves it into the strategies by weight and mints the cycle's shares into
// custody at the price-per-share from before the batch entered. The shares reflect what the
// strategies actually received, so conversion losses are borne by the cycle's depositors.
// While outstanding shares are worth nothing no cycle can close; depositors can still take
// their deposits back with WithdrawFromBatch.
func (r *Router) AllocateToStrategies(now time.Time) (types.Cycle, error) {
	var closed types.Cycle
	var plan types.ActionPlan
	err := r.transact("allocate_to_strategies", func(tx *txn) error {
		st := tx.state
		if !st.LastAllocationAt.IsZero() && now.Sub(st.LastAllocationAt) < st.Params.AllocationWindow {
			return errorsmod.Wrapf(types.ErrCycleNotClosableYet, "last allocation at %s, window %s", st.LastAllocationAt.Format(time.RFC3339), st.Params.AllocationWindow)
		}
		if st.Batch.IsEmpty() {
			return errorsmod.Wrapf(types.ErrBatchEmpty, "cycle %d", st.CurrentCycleID)
		}

		if err := tx.compoundAll(); err != nil {
			return err
		}
		valueBefore, err := tx.totalValue()
		if err != nil {
			return err
		}
		feeShares := st.Shares.SkimFee(valueBefore, st.Params.ProtocolFeeBps, st.Params.FeeAddress)
		pps := st.Shares.PricePerShare(valueBefore)
		if pps.IsZero() {
			return errorsmod.Wrapf(types.ErrSharesWorthless, "%s shares outstanding, vault worth %s", st.Shares.TotalSupply(), valueBefore)
		}

		cycle := st.currentCycle().Clone()
		deposited := sdkmath.ZeroInt()
		for _, denom := range st.Batch.Denoms() {
			price, err := tx.valuer.UniformPrice(denom)
			if err != nil {
				return err
			}
			usd, err := tx.valuer.UsdOfTokens(denom, st.Batch.Balance(denom))
			if err != nil {
				return err
			}
			cycle.Prices[denom] = price
			deposited = deposited.Add(usd)
		}
		for denom, amount := range st.Batch.Drain() {
			st.addReserve(denom, amount)
		}

		if plan, err = tx.allocateReserve(); err != nil {
			return err
		}

		valueAfter, err := tx.totalValue()
		if err != nil {
			return err
		}
		received := sdkmath.ZeroInt()
		if valueAfter.GT(valueBefore) {
			received = valueAfter.Sub(valueBefore)
		}
		minted := shares.SharesAtPrice(received, pps)
		if st.Shares.Bootstrap() {
			if minted.GT(shares.InitialShares) {
				minted = minted.Sub(shares.InitialShares)
			} else {
				minted = sdkmath.ZeroInt()
			}
		}
		st.Shares.Mint(CustodyAddress, minted)
		st.Shares.Checkpoint(valueAfter)

		cycle.TotalDepositedInUsd = deposited
		cycle.ReceivedByStrategiesInUsd = received
		cycle.StrategiesBalanceWithCompoundAndBatchDepositsInUsd = valueAfter
		cycle.PricePerShare = pps
		cycle.SharesMinted = minted
		cycle.FeeShares = feeShares
		cycle.Closed = true
		cycle.ClosedAt = now
		st.Cycles[cycle.ID] = cycle

		next := types.NewCycle(cycle.ID+1, now)
		st.Cycles[next.ID] = next
		st.CurrentCycleID = next.ID
		st.LastAllocationAt = now
		closed = cycle
		return nil
	})
	if err != nil {
		return types.Cycle{}, err
	}

	r.log.Info().
		Uint64("cycle", closed.ID).
		Stringer("depositedUsd", closed.TotalDepositedInUsd).
		Stringer("receivedUsd", closed.ReceivedByStrategiesInUsd).
		Stringer("pricePerShare", closed.PricePerShare).
		Stringer("sharesMinted", closed.SharesMinted).
		Stringer("feeShares", closed.FeeShares).
		Int("swaps", plan.CountByType(types.SubActionSwap)).
		Msg("Cycle closed and allocated")
	return closed, nil
}

// RedeemReceiptsToShares hands the owner the shares their receipts earned in closed cycles
// and burns the receipts.
func (r *Router) RedeemReceiptsToShares(owner string, receiptIDs []uint64) (sdkmath.Int, error) {
	var redeemed sdkmath.Int
	err := r.transact("redeem_receipts", func(tx *txn) error {
		var err error
		redeemed, err = tx.redeem(owner, receiptIDs)
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return redeemed, nil
}

// redeem converts receipts of closed cycles into the owner's share balance. A receipt's
// shares are its part of the cycle's deposited USD, priced at the cycle's close.
func (tx *txn) redeem(owner string, receiptIDs []uint64) (sdkmath.Int, error) {
	st := tx.state
	total := sdkmath.ZeroInt()
	for _, id := range receiptIDs {
		receipt, err := st.Batch.OwnedReceipt(owner, id)
		if err != nil {
			return total, err
		}
		cycle, ok := st.Cycles[receipt.CycleID]
		if !ok || !cycle.Closed {
			return total, errorsmod.Wrapf(types.ErrCycleNotClosed, "receipt %d belongs to open cycle %d", id, receipt.CycleID)
		}

		amount := sdkmath.ZeroInt()
		price, ok := cycle.Prices[receipt.Denom]
		if ok && cycle.TotalDepositedInUsd.IsPositive() {
			usd := accounting.MustMulDiv(receipt.AmountUniform, price, accounting.OneUniform())
			amount = accounting.MustMulDiv(usd, cycle.SharesMinted, cycle.TotalDepositedInUsd)
			amount = accounting.MinInt(amount, st.Shares.BalanceOf(CustodyAddress))
		}
		if err := st.Shares.Transfer(CustodyAddress, owner, amount); err != nil {
			return total, err
		}
		st.Batch.Burn(id)
		total = total.Add(amount)
	}
	return total, nil
}

// CompoundAll compounds every strategy and skims the protocol fee on the profit.
func (r *Router) CompoundAll() (sdkmath.Int, error) {
	var feeShares sdkmath.Int
	err := r.transact("compound_all", func(tx *txn) error {
		if err := tx.compoundAll(); err != nil {
			return err
		}
		value, err := tx.totalValue()
		if err != nil {
			return err
		}
		feeShares = tx.state.Shares.SkimFee(value, tx.state.Params.ProtocolFeeBps, tx.state.Params.FeeAddress)
		tx.state.Shares.Checkpoint(value)
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	r.log.Info().Stringer("feeShares", feeShares).Msg("Strategies compounded")
	return feeShares, nil
}
