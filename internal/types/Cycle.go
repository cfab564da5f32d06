/*

Cycle and receipt records. A cycle is the accounting epoch between two allocations;
a receipt is the claim ticket issued for every deposit made into the batch.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Cycle holds the per-cycle accounting frozen when AllocateToStrategies closes it.
type Cycle struct {
	ID        uint64    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
	Closed    bool      `json:"closed"`

	TotalDepositedInUsd                                sdkmath.Int `json:"total_deposited_in_usd"`
	ReceivedByStrategiesInUsd                          sdkmath.Int `json:"received_by_strategies_in_usd"`
	StrategiesBalanceWithCompoundAndBatchDepositsInUsd sdkmath.Int `json:"strategies_balance_with_compound_and_batch_deposits_in_usd"`
	PricePerShare                                      sdkmath.Int `json:"price_per_share"`

	SharesMinted sdkmath.Int            `json:"shares_minted"` // shares issued for this cycle's depositors, held in router custody
	FeeShares    sdkmath.Int            `json:"fee_shares"`    // protocol fee shares skimmed at close
	Prices       map[string]sdkmath.Int `json:"prices"`        // uniform USD per one whole token at close
}

// NewCycle opens an empty cycle.
func NewCycle(id uint64, startedAt time.Time) Cycle {
	return Cycle{
		ID:                        id,
		StartedAt:                 startedAt,
		TotalDepositedInUsd:       sdkmath.ZeroInt(),
		ReceivedByStrategiesInUsd: sdkmath.ZeroInt(),
		PricePerShare:             sdkmath.ZeroInt(),
		SharesMinted:              sdkmath.ZeroInt(),
		FeeShares:                 sdkmath.ZeroInt(),
		Prices:                    map[string]sdkmath.Int{},

		StrategiesBalanceWithCompoundAndBatchDepositsInUsd: sdkmath.ZeroInt(),
	}
}

// Clone returns a copy that shares no maps with the receiver.
func (c Cycle) Clone() Cycle {
	prices := make(map[string]sdkmath.Int, len(c.Prices))
	for k, v := range c.Prices {
		prices[k] = v
	}
	c.Prices = prices
	return c
}

// Receipt is the claim on a deposit made into the batch of cycle CycleID.
type Receipt struct {
	ID            uint64      `json:"id"`
	Owner         string      `json:"owner"`
	Denom         string      `json:"denom"`
	AmountUniform sdkmath.Int `json:"amount_uniform"` // deposited amount rescaled to uniform decimals
	CycleID       uint64      `json:"cycle_id"`
	CreatedAt     time.Time   `json:"created_at"`
}
