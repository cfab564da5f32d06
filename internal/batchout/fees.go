package batchout

import (
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
)

// FeeUsd is the request fee in uniform USD for a withdrawal worth valueUsd:
// FeeBps of the value, raised to MinFeeUsd and capped at MaxFeeUsd.
func FeeUsd(settings types.WithdrawFeeSettings, valueUsd sdkmath.Int) sdkmath.Int {
	if settings.IsZero() {
		return sdkmath.ZeroInt()
	}
	fee := accounting.BpsOf(valueUsd, settings.FeeBps)
	if !settings.MinFeeUsd.IsNil() && fee.LT(settings.MinFeeUsd) {
		fee = settings.MinFeeUsd
	}
	if !settings.MaxFeeUsd.IsNil() && fee.GT(settings.MaxFeeUsd) {
		fee = settings.MaxFeeUsd
	}
	return fee
}

// FeeInGasToken converts the USD fee to gas token units at the oracle price, rounding down.
func FeeInGasToken(settings types.WithdrawFeeSettings, oracle vault.Oracle, valueUsd sdkmath.Int) (sdkmath.Int, error) {
	feeUsd := FeeUsd(settings, valueUsd)
	if feeUsd.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if !oracle.IsTokenSupported(settings.GasDenom) {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrUnsupportedToken, "no oracle price for gas token %s", settings.GasDenom)
	}
	price, decimals, err := oracle.GetUsdPrice(settings.GasDenom)
	if err != nil || !price.IsPositive() {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrUnsupportedToken, "gas token %s has no usable price", settings.GasDenom)
	}
	uniform, err := accounting.FromUsd(feeUsd, price, decimals)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return accounting.FromUniform(uniform, settings.GasDecimals)
}

// ValidateSlippage rejects a BatchOut slippage tolerance above 100%.
func ValidateSlippage(bps uint64) error {
	if bps > types.MaxBps {
		return errorsmod.Wrapf(types.ErrSlippageValueIsAboveMaxBps, "%d > %d", bps, types.MaxBps)
	}
	return nil
}

// MinExpected applies the slippage tolerance to a quote.
func MinExpected(quote sdkmath.Int, slippageBps uint64) sdkmath.Int {
	return quote.Sub(accounting.BpsOf(quote, slippageBps))
}
