/*

This file contains the default parameters of the router's accounting engine.

They are used when no active parameters are stored in the database. Amounts are uniform
(18 decimals, 1e18 = $1).

*/

package config

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/types"
)

// DefaultParamsConfigName keys the router parameters when ROUTER_PARAMS_CONFIG is not set.
const DefaultParamsConfigName = "default_stablerouter"

var (
	ErrInvalidParameters    = errors.New("invalid router parameters")
	ErrWindowTooShort       = errors.New("window shorter than one minute")
	ErrFeeAddressMissing    = errors.New("protocol fee set without a fee address")
	ErrTreasuryMissing      = errors.New("withdraw fee set without a treasury")
	ErrStabilityBandTooWide = errors.New("stability band above 50%")
)

// DefaultRouterParameters provides a baseline set of parameters for the accounting engine.
var DefaultRouterParameters = types.RouterParameters{
	// --- Allocation ---
	DustThresholdUniform: sdkmath.NewIntWithDecimal(1, 17), // $0.10
	// Balances worth less than a swap costs are left where they are.

	RebalanceStabilityBps: 50, // 0.5% of total value
	// Drift below this does not pay for the swaps that would correct it.

	AllocationWindow: 12 * time.Hour,
	// Minimum time between two allocations, so tiny deposits cannot force a close every block.

	MinDepositUsd: sdkmath.NewIntWithDecimal(1, 17), // $0.10

	// --- Shares ---
	ProtocolFeeBps: 0,

	// --- BatchOut ---
	WithdrawWindow:      24 * time.Hour,
	BatchOutSlippageBps: 100, // 1% below the oracle quote
	WithdrawFee: types.WithdrawFeeSettings{
		MinFeeUsd: sdkmath.ZeroInt(),
		MaxFeeUsd: sdkmath.ZeroInt(),
	},
}

// ValidateRouterParameters checks parameters coming from configuration or the database.
// It applies the router's own bounds and the deployment rules on top.
func ValidateRouterParameters(p types.RouterParameters) error {
	if err := p.Validate(); err != nil {
		return errors.Join(ErrInvalidParameters, err)
	}
	var errs []error
	if p.AllocationWindow > 0 && p.AllocationWindow < time.Minute {
		errs = append(errs, fmt.Errorf("%w: allocation window %s", ErrWindowTooShort, p.AllocationWindow))
	}
	if p.WithdrawWindow > 0 && p.WithdrawWindow < time.Minute {
		errs = append(errs, fmt.Errorf("%w: withdraw window %s", ErrWindowTooShort, p.WithdrawWindow))
	}
	if p.ProtocolFeeBps > 0 && p.FeeAddress == "" {
		errs = append(errs, ErrFeeAddressMissing)
	}
	if !p.WithdrawFee.IsZero() && p.WithdrawFee.Treasury == "" {
		errs = append(errs, ErrTreasuryMissing)
	}
	if p.RebalanceStabilityBps > types.MaxBps/2 {
		errs = append(errs, ErrStabilityBandTooWide)
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidParameters}, errs...)...)
	}
	return nil
}
