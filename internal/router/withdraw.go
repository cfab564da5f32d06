package router

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/batchout"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/withdrawal"
)

// WithdrawFromStrategies burns shares and pays their live USD value out in denom. Receipts of
// closed cycles listed in receiptIDs are redeemed first so their shares can be spent in the
// same call. With performCompound every strategy compounds before valuation and the protocol
// fee is skimmed on the yield, the rest of which the withdrawer shares in. Fewer than minExpected tokens aborts everything.
func (r *Router) WithdrawFromStrategies(owner string, receiptIDs []uint64, sharesAmount sdkmath.Int, denom string, minExpected sdkmath.Int, performCompound bool) (types.Payout, error) {
	var payout types.Payout
	var result withdrawal.Result
	feeShares := sdkmath.ZeroInt()
	err := r.transact("withdraw_from_strategies", func(tx *txn) error {
		st := tx.state
		if _, err := tx.redeem(owner, receiptIDs); err != nil {
			return err
		}
		if sharesAmount.IsNil() || !sharesAmount.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "shares to withdraw must be positive")
		}
		if bal := st.Shares.BalanceOf(owner); sharesAmount.GT(bal) {
			return errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s shares, withdraw %s", owner, bal, sharesAmount)
		}
		if _, err := tx.valuer.Price(denom); err != nil {
			return err
		}

		if performCompound {
			if err := tx.compoundAll(); err != nil {
				return err
			}
		}
		value, err := tx.totalValue()
		if err != nil {
			return err
		}
		if performCompound {
			feeShares = st.Shares.SkimFee(value, st.Params.ProtocolFeeBps, st.Params.FeeAddress)
			st.Shares.Checkpoint(value)
		}
		usd := st.Shares.UsdFromShares(sharesAmount, value)
		if err := st.Shares.Burn(owner, sharesAmount); err != nil {
			return err
		}

		result, err = tx.engine().Withdraw(tx.sources(), withdrawal.Request{Denom: denom, Usd: usd, MinExpected: minExpected})
		if err != nil {
			return err
		}
		payout = types.Payout{Owner: owner, Coin: sdktypes.NewCoin(denom, result.Amount)}
		return nil
	})
	if err != nil {
		return types.Payout{}, err
	}
	r.log.Info().
		Str("owner", owner).
		Stringer("shares", sharesAmount).
		Stringer("payout", payout.Coin).
		Int("swaps", result.Swaps).
		Bool("compounded", performCompound).
		Stringer("feeShares", feeShares).
		Msg("Shares withdrawn from strategies")
	if r.auditor != nil {
		err := r.auditor.RecordWithdrawal(types.StrategyWithdrawal{
			Payout:     payout,
			Shares:     sharesAmount,
			FeeShares:  feeShares,
			Compounded: performCompound,
			Swaps:      result.Swaps,
			At:         r.clock(),
		})
		if err != nil {
			r.log.Error().Err(err).Str("owner", owner).Msg("Failed to record strategy withdrawal")
		}
	}
	return payout, nil
}

// ScheduleWithdrawal queues shares for the next BatchOut execution. The shares move into
// BatchOut custody immediately. When a fee schedule is set, feePaid must be in the gas token
// and cover the fee for the withdrawal's current value. Only the required fee is recorded as
// collected; anything paid without a fee being due is ignored.
func (r *Router) ScheduleWithdrawal(owner string, receiptIDs []uint64, sharesAmount sdkmath.Int, denom string, feePaid sdktypes.Coin, now time.Time) (types.WithdrawalRequest, error) {
	var req types.WithdrawalRequest
	var cycleID uint64
	err := r.transact("schedule_withdrawal", func(tx *txn) error {
		st := tx.state
		if _, err := tx.redeem(owner, receiptIDs); err != nil {
			return err
		}
		if _, err := tx.valuer.Price(denom); err != nil {
			return err
		}
		if sharesAmount.IsNil() || !sharesAmount.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "shares to withdraw must be positive")
		}
		if bal := st.Shares.BalanceOf(owner); sharesAmount.GT(bal) {
			return errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s shares, schedule %s", owner, bal, sharesAmount)
		}

		value, err := tx.totalValue()
		if err != nil {
			return err
		}
		usd := st.Shares.UsdFromShares(sharesAmount, value)
		fee, err := batchout.FeeInGasToken(st.Params.WithdrawFee, r.oracle, usd)
		if err != nil {
			return err
		}
		paid := sdkmath.ZeroInt()
		if !feePaid.Amount.IsNil() {
			paid = feePaid.Amount
		}
		if fee.IsPositive() && (feePaid.Denom != st.Params.WithdrawFee.GasDenom || paid.LT(fee)) {
			return errorsmod.Wrapf(types.ErrWithdrawFeeTooLow, "fee is %s%s, paid %s%s", fee, st.Params.WithdrawFee.GasDenom, paid, feePaid.Denom)
		}

		if err := st.Shares.Transfer(owner, batchout.CustodyAddress, sharesAmount); err != nil {
			return err
		}
		req = types.WithdrawalRequest{
			ID:          uuid.NewString(),
			Owner:       owner,
			Denom:       denom,
			Shares:      sharesAmount,
			FeePaid:     fee,
			RequestedAt: now,
		}
		cycleID = st.BatchOut.AddRequest(req)
		return nil
	})
	if err != nil {
		return types.WithdrawalRequest{}, err
	}
	r.log.Info().
		Str("request", req.ID).
		Str("owner", owner).
		Str("denom", denom).
		Stringer("shares", sharesAmount).
		Uint64("batchOutCycle", cycleID).
		Msg("Withdrawal scheduled")
	return req, nil
}

// CheckUpkeep reports whether PerformUpkeep has work: the current BatchOut cycle's window
// has elapsed, or an executed cycle still owes payouts.
func (r *Router) CheckUpkeep(now time.Time) bool {
	var needed bool
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		needed = s.BatchOut.NeedsUpkeep(now, s.Params.WithdrawWindow)
		return nil
	})
	return needed
}

// UpkeepResult is what one PerformUpkeep call did.
type UpkeepResult struct {
	Executed  *types.BatchOutCycle
	Fulfilled []uint64
	Payouts   []types.Payout
}

// PerformUpkeep executes the current BatchOut cycle if its window has elapsed and fulfils
// every executed cycle still owing payouts, all in one transaction.
func (r *Router) PerformUpkeep(now time.Time) (UpkeepResult, error) {
	var res UpkeepResult
	err := r.transact("perform_upkeep", func(tx *txn) error {
		st := tx.state
		if !st.BatchOut.NeedsUpkeep(now, st.Params.WithdrawWindow) {
			return errorsmod.Wrap(types.ErrNothingToExecute, "no batch out cycle is due")
		}
		if st.BatchOut.WindowElapsed(now, st.Params.WithdrawWindow) {
			executed, err := tx.executeBatch(now)
			if err != nil {
				return err
			}
			res.Executed = &executed
		}
		for _, id := range st.BatchOut.NotFulfilledIDs() {
			payouts, err := st.BatchOut.Fulfill(id)
			if err != nil {
				return err
			}
			res.Fulfilled = append(res.Fulfilled, id)
			res.Payouts = append(res.Payouts, payouts...)
		}
		return nil
	})
	if err != nil {
		return UpkeepResult{}, err
	}
	r.log.Info().
		Bool("executed", res.Executed != nil).
		Int("fulfilledCycles", len(res.Fulfilled)).
		Int("payouts", len(res.Payouts)).
		Msg("Upkeep performed")
	return res, nil
}

// ExecuteBatchWithdraw pulls the current BatchOut cycle's funds: one engine withdrawal per
// requested token, each bounded by the oracle quote less the BatchOut slippage tolerance.
func (r *Router) ExecuteBatchWithdraw(now time.Time) (types.BatchOutCycle, error) {
	var executed types.BatchOutCycle
	err := r.transact("execute_batch_withdraw", func(tx *txn) error {
		var err error
		executed, err = tx.executeBatch(now)
		return err
	})
	if err != nil {
		return types.BatchOutCycle{}, err
	}
	return executed, nil
}

func (tx *txn) executeBatch(now time.Time) (types.BatchOutCycle, error) {
	st := tx.state
	current := st.BatchOut.Current()
	if len(current.Requests) == 0 {
		return types.BatchOutCycle{}, errorsmod.Wrapf(types.ErrNothingToExecute, "batch out cycle %d has no request", current.ID)
	}
	if !st.BatchOut.WindowElapsed(now, st.Params.WithdrawWindow) {
		return types.BatchOutCycle{}, errorsmod.Wrapf(types.ErrCycleNotClosableYet, "batch out cycle %d started at %s, window %s",
			current.ID, current.StartAt.Format(time.RFC3339), st.Params.WithdrawWindow)
	}

	// Value every token's claim before any share is burned
	value, err := tx.totalValue()
	if err != nil {
		return types.BatchOutCycle{}, err
	}
	var denoms []string
	claims := make(map[string]sdkmath.Int)
	for _, t := range st.Tokens {
		amount, ok := current.SharesByDenom[t.Token.Denom]
		if !ok {
			continue
		}
		denoms = append(denoms, t.Token.Denom)
		claims[t.Token.Denom] = st.Shares.UsdFromShares(amount, value)
	}
	if len(denoms) != len(current.SharesByDenom) {
		return types.BatchOutCycle{}, errorsmod.Wrapf(types.ErrUnsupportedToken, "batch out cycle %d requests a token no longer supported", current.ID)
	}
	if err := st.Shares.Burn(batchout.CustodyAddress, current.TotalShares); err != nil {
		return types.BatchOutCycle{}, err
	}

	engine := tx.engine()
	received := make(map[string]sdkmath.Int, len(denoms))
	for _, denom := range denoms {
		usd := claims[denom]
		if !usd.IsPositive() {
			received[denom] = sdkmath.ZeroInt()
			continue
		}
		quote, err := tx.valuer.TokensForUsd(denom, usd)
		if err != nil {
			return types.BatchOutCycle{}, err
		}
		res, err := engine.Withdraw(tx.sources(), withdrawal.Request{
			Denom:       denom,
			Usd:         usd,
			MinExpected: batchout.MinExpected(quote, st.Params.BatchOutSlippageBps),
		})
		if err != nil {
			return types.BatchOutCycle{}, err
		}
		received[denom] = res.Amount
	}

	id, err := st.BatchOut.MarkExecuted(received, now)
	if err != nil {
		return types.BatchOutCycle{}, err
	}
	executed, _ := st.BatchOut.Cycle(id)
	tx.r.log.Info().
		Uint64("batchOutCycle", id).
		Int("requests", len(executed.Requests)).
		Stringer("shares", executed.TotalShares).
		Msg("Batch out cycle executed")
	return executed, nil
}

// WithdrawFulfill distributes an executed cycle's funds to its requesters. It succeeds once
// per cycle: before execution it fails with ErrNothingToFulfill, afterwards with
// ErrAllWithdrawalsFulfilled.
func (r *Router) WithdrawFulfill(cycleID uint64) ([]types.Payout, error) {
	var payouts []types.Payout
	err := r.transact("withdraw_fulfill", func(tx *txn) error {
		var err error
		payouts, err = tx.state.BatchOut.Fulfill(cycleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.log.Info().Uint64("batchOutCycle", cycleID).Int("payouts", len(payouts)).Msg("Batch out cycle fulfilled")
	return payouts, nil
}

// GetNotFulfilledCycleIDs lists executed BatchOut cycles still owing payouts, oldest first.
func (r *Router) GetNotFulfilledCycleIDs() []uint64 {
	var ids []uint64
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		ids = s.BatchOut.NotFulfilledIDs()
		return nil
	})
	return ids
}
