package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/stablerouter/internal/types"
)

// SaveRouterParameters saves a new version of router parameters. The version is one past
// the latest stored for configName.
func SaveRouterParameters(params types.RouterParameters, configName string, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, errDBNotInitialized
	}
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to store invalid parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	var version int
	err = tx.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM router_parameters WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next parameters version for %s: %w", configName, err)
	}

	if makeActive {
		stmtDeactivate := `UPDATE router_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		if _, err = tx.Exec(stmtDeactivate, configName); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	now := time.Now()
	fee := params.WithdrawFee
	stmt := `
		INSERT INTO router_parameters (
			version, config_name, is_active, activated_at, created_at,
			dust_threshold_uniform, rebalance_stability_bps, allocation_window_seconds, min_deposit_usd,
			protocol_fee_bps, fee_address,
			withdraw_window_seconds, batch_out_slippage_bps,
			withdraw_fee_min_usd, withdraw_fee_max_usd, withdraw_fee_bps,
			withdraw_fee_gas_denom, withdraw_fee_gas_decimals, withdraw_fee_treasury
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11,
			$12, $13,
			$14, $15, $16,
			$17, $18, $19
		) RETURNING params_id;`
	err = tx.QueryRow(stmt,
		version, configName, makeActive, now, now,
		numeric(params.DustThresholdUniform), params.RebalanceStabilityBps, int64(params.AllocationWindow/time.Second), numeric(params.MinDepositUsd),
		params.ProtocolFeeBps, params.FeeAddress,
		int64(params.WithdrawWindow/time.Second), params.BatchOutSlippageBps,
		numeric(fee.MinFeeUsd), numeric(fee.MaxFeeUsd), fee.FeeBps,
		fee.GasDenom, fee.GasDecimals, fee.Treasury,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert router parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved router parameters")
	return paramsID, nil
}

// LoadActiveRouterParameters loads the currently active router parameters.
func LoadActiveRouterParameters(configName string) (*types.RouterParameters, error) {
	if DB == nil {
		return nil, errDBNotInitialized
	}

	query := `
		SELECT
			dust_threshold_uniform, rebalance_stability_bps, allocation_window_seconds, min_deposit_usd,
			protocol_fee_bps, fee_address,
			withdraw_window_seconds, batch_out_slippage_bps,
			withdraw_fee_min_usd, withdraw_fee_max_usd, withdraw_fee_bps,
			withdraw_fee_gas_denom, withdraw_fee_gas_decimals, withdraw_fee_treasury
		FROM router_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		row                              storedParameters
		allocationWindow, withdrawWindow int64
		p                                types.RouterParameters
	)
	err := DB.QueryRow(query, configName).Scan(
		&row.dust, &p.RebalanceStabilityBps, &allocationWindow, &row.minDeposit,
		&p.ProtocolFeeBps, &p.FeeAddress,
		&withdrawWindow, &p.BatchOutSlippageBps,
		&row.minFee, &row.maxFee, &p.WithdrawFee.FeeBps,
		&p.WithdrawFee.GasDenom, &p.WithdrawFee.GasDecimals, &p.WithdrawFee.Treasury,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active router parameters found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active router parameters for config '%s': %w", configName, err)
	}
	p.AllocationWindow = time.Duration(allocationWindow) * time.Second
	p.WithdrawWindow = time.Duration(withdrawWindow) * time.Second
	if err := row.apply(&p); err != nil {
		return nil, fmt.Errorf("stored parameters for config '%s' are corrupt: %w", configName, err)
	}

	log.Info().Str("config", configName).Msg("Loaded active router parameters")
	return &p, nil
}

// storedParameters holds the NUMERIC columns as scanned text.
type storedParameters struct {
	dust, minDeposit, minFee, maxFee string
}

func (s storedParameters) apply(p *types.RouterParameters) error {
	var err error
	if p.DustThresholdUniform, err = parseNumeric(s.dust); err != nil {
		return err
	}
	if p.MinDepositUsd, err = parseNumeric(s.minDeposit); err != nil {
		return err
	}
	if p.WithdrawFee.MinFeeUsd, err = parseNumeric(s.minFee); err != nil {
		return err
	}
	if p.WithdrawFee.MaxFeeUsd, err = parseNumeric(s.maxFee); err != nil {
		return err
	}
	return nil
}
