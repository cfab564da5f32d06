package batchout

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/simulations"
	"github.com/elys-network/stablerouter/internal/types"
)

func usd(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func TestFeeUsd(t *testing.T) {
	settings := types.WithdrawFeeSettings{
		MinFeeUsd: usd(1),
		MaxFeeUsd: usd(10),
		FeeBps:    50,
		GasDenom:  "uelys",
	}

	tests := []struct {
		name  string
		value sdkmath.Int
		want  sdkmath.Int
	}{
		{"floored at min", usd(100), usd(1)},
		{"proportional", usd(1000), usd(5)},
		{"capped at max", usd(10_000), usd(10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want.String(), FeeUsd(settings, tt.value).String())
		})
	}

	assert.True(t, FeeUsd(types.WithdrawFeeSettings{}, usd(1000)).IsZero())
}

func TestFeeInGasToken(t *testing.T) {
	oracle := simulations.NewOracle()
	settings := types.WithdrawFeeSettings{
		MinFeeUsd:   usd(1),
		MaxFeeUsd:   usd(10),
		FeeBps:      50,
		GasDenom:    "uelys",
		GasDecimals: 6,
	}

	_, err := FeeInGasToken(settings, oracle, usd(1000))
	require.ErrorIs(t, err, types.ErrUnsupportedToken)

	// $5 of a $2.50 gas token is two whole tokens.
	oracle.SetPriceBps("uelys", 25000)
	fee, err := FeeInGasToken(settings, oracle, usd(1000))
	require.NoError(t, err)
	assert.Equal(t, "2000000", fee.String())

	oracle.SetPrice("uelys", sdkmath.ZeroInt(), 4)
	_, err = FeeInGasToken(settings, oracle, usd(1000))
	require.ErrorIs(t, err, types.ErrUnsupportedToken)

	fee, err = FeeInGasToken(types.WithdrawFeeSettings{}, oracle, usd(1000))
	require.NoError(t, err)
	assert.True(t, fee.IsZero())
}

func TestSlippage(t *testing.T) {
	require.NoError(t, ValidateSlippage(100))
	require.NoError(t, ValidateSlippage(types.MaxBps))
	require.ErrorIs(t, ValidateSlippage(types.MaxBps+1), types.ErrSlippageValueIsAboveMaxBps)

	assert.Equal(t, "9900", MinExpected(sdkmath.NewInt(10_000), 100).String())
	assert.Equal(t, "10000", MinExpected(sdkmath.NewInt(10_000), 0).String())
}
