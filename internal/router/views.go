package router

import (
	"sort"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/types"
)

// GetBatchValueUsd prices the pending batch at current oracle prices.
func (r *Router) GetBatchValueUsd() (types.BatchValue, error) {
	out := types.BatchValue{TotalBalanceUsd: sdkmath.ZeroInt()}
	err := r.view(func(s *SystemState, v *accounting.Valuer) error {
		for _, t := range s.Tokens {
			usd := sdkmath.ZeroInt()
			if bal := s.Batch.Balance(t.Token.Denom); bal.IsPositive() {
				var err error
				if usd, err = v.UsdOfTokens(t.Token.Denom, bal); err != nil {
					return err
				}
			}
			out.Balances = append(out.Balances, types.TokenValue{Denom: t.Token.Denom, ValueUsd: usd})
			out.TotalBalanceUsd = out.TotalBalanceUsd.Add(usd)
		}
		return nil
	})
	return out, err
}

// GetStrategiesValue prices everything share holders own.
func (r *Router) GetStrategiesValue() (types.StrategiesValue, error) {
	var out types.StrategiesValue
	err := r.view(func(s *SystemState, v *accounting.Valuer) error {
		var err error
		out, err = strategiesValue(s, v)
		return err
	})
	return out, err
}

func (r *Router) GetSupportedTokens() []types.SupportedToken {
	var out []types.SupportedToken
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		out = s.SupportedTokens()
		return nil
	})
	return out
}

func (r *Router) GetStrategies() ([]types.StrategyInfo, error) {
	var out []types.StrategyInfo
	err := r.view(func(s *SystemState, v *accounting.Valuer) error {
		for i, st := range s.Strategies {
			bal, err := st.Strategy.TotalTokens()
			if err != nil {
				return errorsmod.Wrapf(err, "strategy %d balance", i)
			}
			usd, err := v.UsdOfTokens(st.Denom, bal)
			if err != nil {
				return err
			}
			out = append(out, types.StrategyInfo{
				Index:         i,
				Name:          st.Strategy.Name(),
				Denom:         st.Denom,
				Weight:        st.Weight,
				BalanceTokens: bal,
				ValueUsd:      usd,
			})
		}
		return nil
	})
	return out, err
}

// WeightSum is the sum of every active strategy's weight.
func (r *Router) WeightSum() uint64 {
	var sum uint64
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		sum = s.WeightSum
		return nil
	})
	return sum
}

func (r *Router) GetCycle(id uint64) (types.Cycle, bool) {
	var c types.Cycle
	var ok bool
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		c, ok = s.Cycles[id]
		c = c.Clone()
		return nil
	})
	return c, ok
}

// ClosedCycles lists closed cycles, most recent first, at most limit of them (0 for all).
func (r *Router) ClosedCycles(limit int) []types.Cycle {
	var out []types.Cycle
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		for _, c := range s.Cycles {
			if c.Closed {
				out = append(out, c.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Router) CurrentCycleID() uint64 {
	var id uint64
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		id = s.CurrentCycleID
		return nil
	})
	return id
}

func (r *Router) SharesOf(owner string) sdkmath.Int {
	var bal sdkmath.Int
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		bal = s.Shares.BalanceOf(owner)
		return nil
	})
	return bal
}

func (r *Router) TotalShares() sdkmath.Int {
	var total sdkmath.Int
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		total = s.Shares.TotalSupply()
		return nil
	})
	return total
}

// PricePerShare is the live uniform USD value of one whole share.
func (r *Router) PricePerShare() (sdkmath.Int, error) {
	var pps sdkmath.Int
	err := r.view(func(s *SystemState, v *accounting.Valuer) error {
		value, err := strategiesValue(s, v)
		if err != nil {
			return err
		}
		pps = s.Shares.PricePerShare(value.TotalUsd)
		return nil
	})
	return pps, err
}

// UsdFromShares values shares at the live price-per-share.
func (r *Router) UsdFromShares(amount sdkmath.Int) (sdkmath.Int, error) {
	var usd sdkmath.Int
	err := r.view(func(s *SystemState, v *accounting.Valuer) error {
		value, err := strategiesValue(s, v)
		if err != nil {
			return err
		}
		usd = s.Shares.UsdFromShares(amount, value.TotalUsd)
		return nil
	})
	return usd, err
}

// SharesFromUsd converts USD value to shares at the live price-per-share.
func (r *Router) SharesFromUsd(usd sdkmath.Int) (sdkmath.Int, error) {
	var amount sdkmath.Int
	err := r.view(func(s *SystemState, v *accounting.Valuer) error {
		value, err := strategiesValue(s, v)
		if err != nil {
			return err
		}
		amount = s.Shares.SharesFromUsd(usd, value.TotalUsd)
		return nil
	})
	return amount, err
}

func (r *Router) Receipt(id uint64) (types.Receipt, error) {
	var receipt types.Receipt
	err := r.view(func(s *SystemState, _ *accounting.Valuer) error {
		var err error
		receipt, err = s.Batch.Receipt(id)
		return err
	})
	return receipt, err
}

func (r *Router) ReceiptsOf(owner string) []types.Receipt {
	var out []types.Receipt
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		out = s.Batch.ReceiptsOf(owner)
		return nil
	})
	return out
}

// CycleReceipts lists the unredeemed receipts issued during cycleID.
func (r *Router) CycleReceipts(cycleID uint64) []types.Receipt {
	var out []types.Receipt
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		out = s.Batch.ReceiptsOfCycle(cycleID)
		return nil
	})
	return out
}

// ReserveBalance is the router float held in denom.
func (r *Router) ReserveBalance(denom string) sdkmath.Int {
	var bal sdkmath.Int
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		bal = s.reserveOf(denom)
		return nil
	})
	return bal
}

func (r *Router) BatchOutCycle(id uint64) (types.BatchOutCycle, bool) {
	var c types.BatchOutCycle
	var ok bool
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		c, ok = s.BatchOut.Cycle(id)
		return nil
	})
	return c, ok
}

func (r *Router) CurrentBatchOutCycle() types.BatchOutCycle {
	var c types.BatchOutCycle
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		c = s.BatchOut.Current()
		return nil
	})
	return c
}

func (r *Router) Params() types.RouterParameters {
	var p types.RouterParameters
	_ = r.view(func(s *SystemState, _ *accounting.Valuer) error {
		p = s.Params
		return nil
	})
	return p
}

// Summary is a one-call overview of the vault.
type Summary struct {
	CurrentCycleID        uint64                `json:"current_cycle_id"`
	CurrentBatchOutCycle  uint64                `json:"current_batch_out_cycle"`
	TotalShares           sdkmath.Int           `json:"total_shares"`
	PricePerShare         sdkmath.Int           `json:"price_per_share"`
	Strategies            types.StrategiesValue `json:"strategies"`
	Batch                 types.BatchValue      `json:"batch"`
	PendingReceipts       int                   `json:"pending_receipts"`
	NotFulfilledBatchOuts []uint64              `json:"not_fulfilled_batch_outs"`
}

func (r *Router) Summary() (Summary, error) {
	var out Summary
	err := r.view(func(s *SystemState, v *accounting.Valuer) error {
		value, err := strategiesValue(s, v)
		if err != nil {
			return err
		}
		out = Summary{
			CurrentCycleID:        s.CurrentCycleID,
			CurrentBatchOutCycle:  s.BatchOut.CurrentID(),
			TotalShares:           s.Shares.TotalSupply(),
			PricePerShare:         s.Shares.PricePerShare(value.TotalUsd),
			Strategies:            value,
			PendingReceipts:       s.Batch.ReceiptCount(),
			NotFulfilledBatchOuts: s.BatchOut.NotFulfilledIDs(),
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	// batch view takes the lock itself
	out.Batch, err = r.GetBatchValueUsd()
	return out, err
}
