package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/types"
)

const sampleVault = `
moderators: [elys1admin]
exchange_fee_bps: 5
parameters:
  dust_threshold_usd: "0.5"
  allocation_window: 30m
  rebalance_stability_bps: 100
  withdraw_fee:
    min_usd: "1"
    max_usd: "10"
    bps: 50
    gas_denom: uelys
    gas_decimals: 6
    treasury: elys1treasury
tokens:
  - {denom: usdc, symbol: USDC, decimals: 6, price: "1"}
  - {denom: usdt, symbol: USDT, decimals: 18, price: "0.999"}
strategies:
  - {name: lend-usdc, denom: usdc, weight: 2, yield_bps: 30}
  - {name: lp-usdt, denom: usdt, weight: 1, exit_fee_bps: 10}
`

func TestParseVaultFile(t *testing.T) {
	vf, err := ParseVaultFile([]byte(sampleVault))
	require.NoError(t, err)
	assert.Equal(t, []string{"elys1admin"}, vf.Moderators)
	assert.Equal(t, uint64(5), vf.ExchangeFeeBps)
	require.Len(t, vf.Tokens, 2)
	assert.Equal(t, 6, vf.Tokens[0].Decimals)
	require.Len(t, vf.Strategies, 2)
	assert.Equal(t, uint64(10), vf.Strategies[1].ExitFeeBps)
}

func TestVaultFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "no moderators",
			yaml:    `tokens: [{denom: usdc, decimals: 6, price: "1"}]`,
			wantErr: ErrNoModerators,
		},
		{
			name:    "no tokens",
			yaml:    `moderators: [a]`,
			wantErr: ErrNoTokens,
		},
		{
			name: "duplicate token",
			yaml: `moderators: [a]
tokens: [{denom: usdc, decimals: 6, price: "1"}, {denom: usdc, decimals: 6, price: "1"}]`,
			wantErr: ErrDuplicateToken,
		},
		{
			name: "decimals out of range",
			yaml: `moderators: [a]
tokens: [{denom: usdc, decimals: 40, price: "1"}]`,
			wantErr: ErrInvalidDecimals,
		},
		{
			name: "strategy on unlisted token",
			yaml: `moderators: [a]
tokens: [{denom: usdc, decimals: 6, price: "1"}]
strategies: [{name: s, denom: dai, weight: 1}]`,
			wantErr: ErrUnknownTokenDenom,
		},
		{
			name: "zero weight",
			yaml: `moderators: [a]
tokens: [{denom: usdc, decimals: 6, price: "1"}]
strategies: [{name: s, denom: usdc, weight: 0}]`,
			wantErr: ErrZeroWeight,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVaultFile([]byte(tt.yaml))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := ParseVaultFile([]byte("moderators: [a\n"))
	require.Error(t, err)
}

func TestRouterParametersOverrides(t *testing.T) {
	vf, err := ParseVaultFile([]byte(sampleVault))
	require.NoError(t, err)

	p, err := vf.RouterParameters(DefaultRouterParameters)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(5, 17).String(), p.DustThresholdUniform.String())
	assert.Equal(t, 30*time.Minute, p.AllocationWindow)
	assert.Equal(t, uint64(100), p.RebalanceStabilityBps)
	assert.Equal(t, "uelys", p.WithdrawFee.GasDenom)
	assert.Equal(t, sdkmath.NewIntWithDecimal(10, 18).String(), p.WithdrawFee.MaxFeeUsd.String())

	// untouched fields keep the default
	assert.Equal(t, DefaultRouterParameters.WithdrawWindow, p.WithdrawWindow)
	assert.Equal(t, DefaultRouterParameters.BatchOutSlippageBps, p.BatchOutSlippageBps)
	assert.True(t, p.MinDepositUsd.Equal(DefaultRouterParameters.MinDepositUsd))
}

func TestRouterParametersRejectsBadOverrides(t *testing.T) {
	tests := []struct {
		name   string
		params string
	}{
		{"bad usd", `dust_threshold_usd: "ten"`},
		{"bad duration", `allocation_window: "soon"`},
		{"window too short", `withdraw_window: 10s`},
		{"fee without treasury", `withdraw_fee: {min_usd: "1", max_usd: "2", bps: 10, gas_denom: uelys}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vf, err := ParseVaultFile([]byte("moderators: [a]\ntokens: [{denom: usdc, decimals: 6, price: \"1\"}]\nparameters: {" + tt.params + "}\n"))
			require.NoError(t, err)
			_, err = vf.RouterParameters(DefaultRouterParameters)
			require.Error(t, err)
		})
	}
}

func TestValidateRouterParameters(t *testing.T) {
	require.NoError(t, ValidateRouterParameters(DefaultRouterParameters))

	tests := []struct {
		name    string
		mutate  func(p *types.RouterParameters)
		wantErr error
	}{
		{"protocol fee without address", func(p *types.RouterParameters) { p.ProtocolFeeBps = 100 }, ErrFeeAddressMissing},
		{"short allocation window", func(p *types.RouterParameters) { p.AllocationWindow = time.Second }, ErrWindowTooShort},
		{"wide stability band", func(p *types.RouterParameters) { p.RebalanceStabilityBps = 6_000 }, ErrStabilityBandTooWide},
		{"router bound", func(p *types.RouterParameters) { p.BatchOutSlippageBps = types.MaxBps + 1 }, types.ErrSlippageValueIsAboveMaxBps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultRouterParameters
			tt.mutate(&p)
			err := ValidateRouterParameters(p)
			require.ErrorIs(t, err, ErrInvalidParameters)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCCIdFor(t *testing.T) {
	assert.Equal(t, "USDC", CCIdFor("axlusdc"))
	assert.Equal(t, "USDT", CCIdFor("USDT.e"))
	assert.Equal(t, "DAI", CCIdFor("dai"))
	assert.Equal(t, "GHO", CCIdFor("gho"))
}

func TestLoadVaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleVault), 0o600))

	vf, err := LoadVaultFile(path)
	require.NoError(t, err)
	assert.Len(t, vf.Tokens, 2)

	_, err = LoadVaultFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("ROUTER_MODE", ModeSimulation)
	t.Setenv("ROUTER_VAULT_FILE", "vault.yaml")
	t.Setenv("ROUTER_UPKEEP_CRON", "0 */5 * * * *")
	t.Setenv("ROUTER_RUN_ON_START", "true")
	t.Setenv("PRICE_TTL_SECONDS", "60")
	t.Setenv("DB_HOST", "")
	t.Setenv("WEB_PORT", "")
	t.Setenv("ROUTER_PARAMS_CONFIG", "")

	require.NoError(t, LoadConfig())
	assert.Equal(t, ModeSimulation, Mode)
	assert.True(t, RunOnStart)
	assert.Equal(t, "8080", WebPort)
	assert.Equal(t, DefaultParamsConfigName, ParamsConfigName)
	assert.Equal(t, time.Minute, PriceTTL)
	assert.False(t, DBEnabled)

	t.Setenv("ROUTER_RUN_ON_START", "maybe")
	require.Error(t, LoadConfig())

	t.Setenv("ROUTER_RUN_ON_START", "")
	t.Setenv("DB_PORT", "fivefourthreetwo")
	require.Error(t, LoadConfig())
}

func TestLoadConfigRequiresMode(t *testing.T) {
	t.Setenv("ROUTER_VAULT_FILE", "vault.yaml")
	t.Setenv("ROUTER_UPKEEP_CRON", "0 */5 * * * *")
	t.Setenv("ROUTER_MODE", "")
	require.NoError(t, os.Unsetenv("ROUTER_MODE"))
	require.Error(t, LoadConfig())
}
