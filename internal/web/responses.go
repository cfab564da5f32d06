package web

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/elys-network/stablerouter/internal/router"
	"github.com/elys-network/stablerouter/internal/state"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/utils"
)

// Uniform amounts leave the API as exact decimal strings ("100.25"), never floats.

type tokenValueResponse struct {
	Denom    string          `json:"denom"`
	ValueUsd decimal.Decimal `json:"value_usd"`
}

type summaryResponse struct {
	CurrentCycleID        uint64               `json:"current_cycle_id"`
	CurrentBatchOutCycle  uint64               `json:"current_batch_out_cycle"`
	TotalShares           decimal.Decimal      `json:"total_shares"`
	PricePerShare         decimal.Decimal      `json:"price_per_share"`
	TotalValueUsd         decimal.Decimal      `json:"total_value_usd"`
	ReserveUsd            decimal.Decimal      `json:"reserve_usd"`
	IdleUsd               []tokenValueResponse `json:"idle_usd"`
	StrategyUsd           []tokenValueResponse `json:"strategy_usd"`
	BatchUsd              decimal.Decimal      `json:"batch_usd"`
	PendingReceipts       int                  `json:"pending_receipts"`
	NotFulfilledBatchOuts []uint64             `json:"not_fulfilled_batch_outs"`
}

func newSummaryResponse(s router.Summary) summaryResponse {
	return summaryResponse{
		CurrentCycleID:        s.CurrentCycleID,
		CurrentBatchOutCycle:  s.CurrentBatchOutCycle,
		TotalShares:           utils.UniformToDecimal(s.TotalShares),
		PricePerShare:         utils.UniformToDecimal(s.PricePerShare),
		TotalValueUsd:         utils.UniformToDecimal(s.Strategies.TotalUsd),
		ReserveUsd:            utils.UniformToDecimal(s.Strategies.ReserveUsd),
		IdleUsd:               tokenValues(s.Strategies.IdleUsd),
		StrategyUsd:           tokenValues(s.Strategies.StrategyUsd),
		BatchUsd:              utils.UniformToDecimal(s.Batch.TotalBalanceUsd),
		PendingReceipts:       s.PendingReceipts,
		NotFulfilledBatchOuts: s.NotFulfilledBatchOuts,
	}
}

type batchResponse struct {
	TotalUsd decimal.Decimal      `json:"total_usd"`
	Balances []tokenValueResponse `json:"balances"`
}

func newBatchResponse(b types.BatchValue) batchResponse {
	return batchResponse{
		TotalUsd: utils.UniformToDecimal(b.TotalBalanceUsd),
		Balances: tokenValues(b.Balances),
	}
}

type strategyResponse struct {
	Index         int             `json:"index"`
	Name          string          `json:"name"`
	Denom         string          `json:"denom"`
	Weight        uint64          `json:"weight"`
	TargetShare   decimal.Decimal `json:"target_share"` // weight over the weight sum
	BalanceTokens string          `json:"balance_tokens"`
	ValueUsd      decimal.Decimal `json:"value_usd"`
}

func newStrategiesResponse(infos []types.StrategyInfo) map[string]interface{} {
	var weightSum uint64
	for _, info := range infos {
		weightSum += info.Weight
	}
	out := make([]strategyResponse, 0, len(infos))
	for _, info := range infos {
		share := decimal.Zero
		if weightSum > 0 {
			share = decimal.NewFromInt(int64(info.Weight)).Div(decimal.NewFromInt(int64(weightSum))).Round(4)
		}
		out = append(out, strategyResponse{
			Index:         info.Index,
			Name:          info.Name,
			Denom:         info.Denom,
			Weight:        info.Weight,
			TargetShare:   share,
			BalanceTokens: intString(info.BalanceTokens),
			ValueUsd:      utils.UniformToDecimal(info.ValueUsd),
		})
	}
	return map[string]interface{}{"strategies": out, "weight_sum": weightSum}
}

type cycleResponse struct {
	ID                   uint64                     `json:"id"`
	StartedAt            time.Time                  `json:"started_at"`
	ClosedAt             *time.Time                 `json:"closed_at,omitempty"`
	Closed               bool                       `json:"closed"`
	TotalDepositedUsd    decimal.Decimal            `json:"total_deposited_usd"`
	ReceivedByStrategies decimal.Decimal            `json:"received_by_strategies_usd"`
	StrategiesBalanceUsd decimal.Decimal            `json:"strategies_balance_usd"`
	PricePerShare        decimal.Decimal            `json:"price_per_share"`
	SharesMinted         decimal.Decimal            `json:"shares_minted"`
	FeeShares            decimal.Decimal            `json:"fee_shares"`
	Prices               map[string]decimal.Decimal `json:"prices"`
}

func newCycleResponse(c types.Cycle) cycleResponse {
	out := cycleResponse{
		ID:                   c.ID,
		StartedAt:            c.StartedAt,
		Closed:               c.Closed,
		TotalDepositedUsd:    utils.UniformToDecimal(c.TotalDepositedInUsd),
		ReceivedByStrategies: utils.UniformToDecimal(c.ReceivedByStrategiesInUsd),
		StrategiesBalanceUsd: utils.UniformToDecimal(c.StrategiesBalanceWithCompoundAndBatchDepositsInUsd),
		PricePerShare:        utils.UniformToDecimal(c.PricePerShare),
		SharesMinted:         utils.UniformToDecimal(c.SharesMinted),
		FeeShares:            utils.UniformToDecimal(c.FeeShares),
		Prices:               make(map[string]decimal.Decimal, len(c.Prices)),
	}
	if !c.ClosedAt.IsZero() {
		closedAt := c.ClosedAt
		out.ClosedAt = &closedAt
	}
	for denom, price := range c.Prices {
		out.Prices[denom] = utils.UniformToDecimal(price)
	}
	return out
}

type recordedCycleResponse struct {
	KeeperRun int `json:"keeper_run"`
	cycleResponse
}

type batchOutResponse struct {
	ID              uint64               `json:"id"`
	Status          types.BatchOutStatus `json:"status"`
	StartAt         *time.Time           `json:"start_at,omitempty"`
	ExecutedAt      *time.Time           `json:"executed_at,omitempty"`
	Requests        int                  `json:"requests"`
	TotalShares     decimal.Decimal      `json:"total_shares"`
	SharesByDenom   map[string]string    `json:"shares_by_denom"`
	ReceivedByDenom map[string]string    `json:"received_by_denom"`
	CollectedFees   string               `json:"collected_fees"`
}

func newBatchOutResponse(c types.BatchOutCycle) batchOutResponse {
	out := batchOutResponse{
		ID:              c.ID,
		Status:          c.Status(),
		Requests:        len(c.Requests),
		TotalShares:     utils.UniformToDecimal(c.TotalShares),
		SharesByDenom:   intStrings(c.SharesByDenom),
		ReceivedByDenom: intStrings(c.ReceivedByDenom),
		CollectedFees:   intString(c.CollectedFees),
	}
	if !c.StartAt.IsZero() {
		startAt := c.StartAt
		out.StartAt = &startAt
	}
	if !c.ExecutedAt.IsZero() {
		executedAt := c.ExecutedAt
		out.ExecutedAt = &executedAt
	}
	return out
}

type statsResponse struct {
	TotalCycles        int             `json:"total_cycles"`
	TotalDepositedUsd  decimal.Decimal `json:"total_deposited_usd"`
	TotalFeeShares     decimal.Decimal `json:"total_fee_shares"`
	FulfilledBatchOuts int             `json:"fulfilled_batch_outs"`
	TotalPayouts       int             `json:"total_payouts"`
}

func newStatsResponse(s *state.HistoryStats) statsResponse {
	return statsResponse{
		TotalCycles:        s.TotalCycles,
		TotalDepositedUsd:  utils.UniformToDecimal(s.TotalDepositedUsd),
		TotalFeeShares:     utils.UniformToDecimal(s.TotalFeeShares),
		FulfilledBatchOuts: s.FulfilledBatchOuts,
		TotalPayouts:       s.TotalPayouts,
	}
}

func tokenValues(values []types.TokenValue) []tokenValueResponse {
	out := make([]tokenValueResponse, 0, len(values))
	for _, v := range values {
		out = append(out, tokenValueResponse{Denom: v.Denom, ValueUsd: utils.UniformToDecimal(v.ValueUsd)})
	}
	return out
}

// token-unit amounts have per-token decimals, so they stay raw integers
func intString(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func intStrings(m map[string]sdkmath.Int) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = intString(v)
	}
	return out
}
