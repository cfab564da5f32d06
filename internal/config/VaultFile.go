package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/utils"
)

var (
	ErrNoModerators      = errors.New("vault file lists no moderators")
	ErrNoTokens          = errors.New("vault file lists no tokens")
	ErrDuplicateToken    = errors.New("token listed twice")
	ErrUnknownTokenDenom = errors.New("strategy references an unlisted token")
	ErrInvalidDecimals   = errors.New("token decimals out of range")
	ErrZeroWeight        = errors.New("strategy weight must be positive")
)

// VaultFile is the YAML vault layout: which tokens are supported, which strategies hold
// them and who may administer the router. USD amounts are decimal strings.
type VaultFile struct {
	Moderators     []string       `yaml:"moderators"`
	ExchangeFeeBps uint64         `yaml:"exchange_fee_bps"`
	Parameters     ParameterFile  `yaml:"parameters"`
	Tokens         []TokenFile    `yaml:"tokens"`
	Strategies     []StrategyFile `yaml:"strategies"`
}

// ParameterFile overrides DefaultRouterParameters. Unset fields keep the default.
type ParameterFile struct {
	DustThresholdUsd      string   `yaml:"dust_threshold_usd"`
	RebalanceStabilityBps *uint64  `yaml:"rebalance_stability_bps"`
	AllocationWindow      string   `yaml:"allocation_window"`
	MinDepositUsd         string   `yaml:"min_deposit_usd"`
	ProtocolFeeBps        *uint64  `yaml:"protocol_fee_bps"`
	FeeAddress            string   `yaml:"fee_address"`
	WithdrawWindow        string   `yaml:"withdraw_window"`
	BatchOutSlippageBps   *uint64  `yaml:"batch_out_slippage_bps"`
	WithdrawFee           *FeeFile `yaml:"withdraw_fee"`
}

type FeeFile struct {
	MinUsd      string `yaml:"min_usd"`
	MaxUsd      string `yaml:"max_usd"`
	Bps         uint64 `yaml:"bps"`
	GasDenom    string `yaml:"gas_denom"`
	GasDecimals int    `yaml:"gas_decimals"`
	Treasury    string `yaml:"treasury"`
}

// TokenFile is one supported token. Price seeds the simulated oracle.
type TokenFile struct {
	Denom    string `yaml:"denom"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
	Price    string `yaml:"price"`
}

// StrategyFile is one active strategy of the simulated vault.
type StrategyFile struct {
	Name       string `yaml:"name"`
	Denom      string `yaml:"denom"`
	Weight     uint64 `yaml:"weight"`
	YieldBps   uint64 `yaml:"yield_bps"`
	ExitFeeBps uint64 `yaml:"exit_fee_bps"`
}

// LoadVaultFile reads and validates a vault layout.
func LoadVaultFile(path string) (*VaultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault file: %w", err)
	}
	return ParseVaultFile(data)
}

// ParseVaultFile decodes and validates a vault layout.
func ParseVaultFile(data []byte) (*VaultFile, error) {
	vf := &VaultFile{}
	if err := yaml.Unmarshal(data, vf); err != nil {
		return nil, fmt.Errorf("parse vault file: %w", err)
	}
	if err := vf.Validate(); err != nil {
		return nil, err
	}
	return vf, nil
}

// Validate checks the layout is internally consistent.
func (vf *VaultFile) Validate() error {
	if len(vf.Moderators) == 0 {
		return ErrNoModerators
	}
	if len(vf.Tokens) == 0 {
		return ErrNoTokens
	}
	seen := make(map[string]bool, len(vf.Tokens))
	for _, t := range vf.Tokens {
		if seen[t.Denom] {
			return fmt.Errorf("%w: %s", ErrDuplicateToken, t.Denom)
		}
		seen[t.Denom] = true
		if t.Decimals < 0 || t.Decimals > 36 {
			return fmt.Errorf("%w: %s has %d", ErrInvalidDecimals, t.Denom, t.Decimals)
		}
		if _, err := utils.ParseUniform(t.Price); err != nil {
			return fmt.Errorf("token %s price: %w", t.Denom, err)
		}
	}
	for _, s := range vf.Strategies {
		if !seen[s.Denom] {
			return fmt.Errorf("%w: %s holds %s", ErrUnknownTokenDenom, s.Name, s.Denom)
		}
		if s.Weight == 0 {
			return fmt.Errorf("%w: %s", ErrZeroWeight, s.Name)
		}
	}
	return nil
}

// RouterParameters applies the file's overrides on top of base.
func (vf *VaultFile) RouterParameters(base types.RouterParameters) (types.RouterParameters, error) {
	p := base
	f := vf.Parameters

	var err error
	if p.DustThresholdUniform, err = usdOr(f.DustThresholdUsd, p.DustThresholdUniform); err != nil {
		return p, fmt.Errorf("dust_threshold_usd: %w", err)
	}
	if p.MinDepositUsd, err = usdOr(f.MinDepositUsd, p.MinDepositUsd); err != nil {
		return p, fmt.Errorf("min_deposit_usd: %w", err)
	}
	if p.AllocationWindow, err = durationOr(f.AllocationWindow, p.AllocationWindow); err != nil {
		return p, fmt.Errorf("allocation_window: %w", err)
	}
	if p.WithdrawWindow, err = durationOr(f.WithdrawWindow, p.WithdrawWindow); err != nil {
		return p, fmt.Errorf("withdraw_window: %w", err)
	}
	if f.RebalanceStabilityBps != nil {
		p.RebalanceStabilityBps = *f.RebalanceStabilityBps
	}
	if f.ProtocolFeeBps != nil {
		p.ProtocolFeeBps = *f.ProtocolFeeBps
	}
	if f.BatchOutSlippageBps != nil {
		p.BatchOutSlippageBps = *f.BatchOutSlippageBps
	}
	if f.FeeAddress != "" {
		p.FeeAddress = f.FeeAddress
	}
	if f.WithdrawFee != nil {
		fee := types.WithdrawFeeSettings{
			FeeBps:      f.WithdrawFee.Bps,
			GasDenom:    f.WithdrawFee.GasDenom,
			GasDecimals: f.WithdrawFee.GasDecimals,
			Treasury:    f.WithdrawFee.Treasury,
		}
		if fee.MinFeeUsd, err = usdOr(f.WithdrawFee.MinUsd, sdkmath.ZeroInt()); err != nil {
			return p, fmt.Errorf("withdraw_fee.min_usd: %w", err)
		}
		if fee.MaxFeeUsd, err = usdOr(f.WithdrawFee.MaxUsd, sdkmath.ZeroInt()); err != nil {
			return p, fmt.Errorf("withdraw_fee.max_usd: %w", err)
		}
		p.WithdrawFee = fee
	}
	return p, ValidateRouterParameters(p)
}

func usdOr(value string, fallback sdkmath.Int) (sdkmath.Int, error) {
	if value == "" {
		return fallback, nil
	}
	return utils.ParseUniform(value)
}

func durationOr(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
