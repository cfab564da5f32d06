/*

This file contains the tunable parameters of the router's accounting engine.

*/

package types

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
)

// MaxBps is 100% expressed in basis points.
const MaxBps = 10_000

// MaxWithdrawFeeUsdThreshold is the highest configurable BatchOut request fee ($50, uniform).
var MaxWithdrawFeeUsdThreshold = sdkmath.NewIntWithDecimal(50, UniformDecimals)

// RouterParameters holds every threshold and window the accounting engine consults.
type RouterParameters struct {
	// --- Allocation ---
	DustThresholdUniform  sdkmath.Int   `json:"dust_threshold_uniform"`  // uniform USD below which balances are left where they are
	RebalanceStabilityBps uint64        `json:"rebalance_stability_bps"` // minimum share of total value a strategy must drift before it is rebalanced
	AllocationWindow      time.Duration `json:"allocation_window"`       // minimum time between two allocateToStrategies calls
	MinDepositUsd         sdkmath.Int   `json:"min_deposit_usd"`         // uniform USD floor for a single deposit

	// --- Shares ---
	ProtocolFeeBps uint64 `json:"protocol_fee_bps"` // share of profit skimmed as fee shares
	FeeAddress     string `json:"fee_address"`      // receiver of fee shares

	// --- BatchOut ---
	WithdrawWindow      time.Duration       `json:"withdraw_window"`        // countdown from a cycle's first request to its execution
	BatchOutSlippageBps uint64              `json:"batch_out_slippage_bps"` // tolerated shortfall of a batch withdrawal against its quote
	WithdrawFee         WithdrawFeeSettings `json:"withdraw_fee"`
}

// WithdrawFeeSettings is the BatchOut request fee schedule. The fee is computed in USD as
// FeeBps of the withdrawn value, floored at MinFeeUsd and capped at MaxFeeUsd, then
// converted to GasDenom at the oracle price.
type WithdrawFeeSettings struct {
	MinFeeUsd   sdkmath.Int `json:"min_fee_usd"`
	MaxFeeUsd   sdkmath.Int `json:"max_fee_usd"`
	FeeBps      uint64      `json:"fee_bps"`
	GasDenom    string      `json:"gas_denom"`
	GasDecimals int         `json:"gas_decimals"`
	Treasury    string      `json:"treasury"`
}

// IsZero reports whether no request fee is charged.
func (s WithdrawFeeSettings) IsZero() bool {
	return (s.MinFeeUsd.IsNil() || s.MinFeeUsd.IsZero()) &&
		(s.MaxFeeUsd.IsNil() || s.MaxFeeUsd.IsZero()) &&
		s.FeeBps == 0
}

// Validate rejects fee schedules outside their configurable bounds.
func (s WithdrawFeeSettings) Validate() error {
	minFee, maxFee := orZero(s.MinFeeUsd), orZero(s.MaxFeeUsd)
	if s.FeeBps > MaxBps {
		return errorsmod.Wrapf(ErrNewValueIsAboveMaxBps, "withdraw fee bps %d > %d", s.FeeBps, MaxBps)
	}
	if minFee.IsNegative() || maxFee.IsNegative() {
		return errorsmod.Wrap(ErrInvalidAmount, "withdraw fee bounds must not be negative")
	}
	if maxFee.GT(MaxWithdrawFeeUsdThreshold) {
		return errorsmod.Wrapf(ErrMaxWithdrawFeeExceedsThreshold, "max fee %s > %s", maxFee, MaxWithdrawFeeUsdThreshold)
	}
	if minFee.GT(maxFee) {
		return errorsmod.Wrapf(ErrMinWithdrawFeeExceedsMax, "min fee %s > max fee %s", minFee, maxFee)
	}
	if !s.IsZero() && s.GasDenom == "" {
		return errorsmod.Wrap(ErrUnsupportedToken, "withdraw fee gas denom is not set")
	}
	return nil
}

// Validate checks every bound the router enforces on its parameters.
func (p RouterParameters) Validate() error {
	if p.ProtocolFeeBps > MaxBps {
		return errorsmod.Wrapf(ErrNewValueIsAboveMaxBps, "protocol fee bps %d", p.ProtocolFeeBps)
	}
	if p.RebalanceStabilityBps > MaxBps {
		return errorsmod.Wrapf(ErrNewValueIsAboveMaxBps, "rebalance stability bps %d", p.RebalanceStabilityBps)
	}
	if p.BatchOutSlippageBps > MaxBps {
		return errorsmod.Wrapf(ErrSlippageValueIsAboveMaxBps, "batch out slippage bps %d", p.BatchOutSlippageBps)
	}
	if p.DustThresholdUniform.IsNil() || p.DustThresholdUniform.IsNegative() {
		return errorsmod.Wrap(ErrInvalidAmount, "dust threshold must be set and not negative")
	}
	if p.MinDepositUsd.IsNil() || p.MinDepositUsd.IsNegative() {
		return errorsmod.Wrap(ErrInvalidAmount, "min deposit must be set and not negative")
	}
	if p.AllocationWindow < 0 || p.WithdrawWindow < 0 {
		return errorsmod.Wrap(ErrInvalidAmount, "windows must not be negative")
	}
	return p.WithdrawFee.Validate()
}

func orZero(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}
