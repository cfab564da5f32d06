package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/stablerouter/internal/types"
)

// CycleRecord is a recorded allocation cycle with the keeper run that closed it.
type CycleRecord struct {
	KeeperRun int         `json:"keeper_run"`
	Cycle     types.Cycle `json:"cycle"`
}

// BatchOutRecord is the audit row of a BatchOut cycle.
type BatchOutRecord struct {
	CycleID         uint64                 `json:"cycle_id"`
	KeeperRun       int                    `json:"keeper_run"`
	Status          types.BatchOutStatus   `json:"status"`
	TotalShares     sdkmath.Int            `json:"total_shares"`
	CollectedFees   sdkmath.Int            `json:"collected_fees"`
	RequestIDs      []string               `json:"request_ids"`
	ReceivedByDenom map[string]sdkmath.Int `json:"received_by_denom"`
}

// HistoryStats aggregates the audit trail.
type HistoryStats struct {
	TotalCycles        int         `json:"total_cycles"`
	TotalDepositedUsd  sdkmath.Int `json:"total_deposited_usd"`
	TotalFeeShares     sdkmath.Int `json:"total_fee_shares"`
	FulfilledBatchOuts int         `json:"fulfilled_batch_outs"`
	TotalPayouts       int         `json:"total_payouts"`
	AllocatedReceipts  int         `json:"allocated_receipts"`
	DirectWithdrawals  int         `json:"direct_withdrawals"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10 // Default limit
	}
	return limit
}

// GetRecentCycles retrieves recently closed allocation cycles, newest first
func GetRecentCycles(limit int) ([]CycleRecord, error) {
	if DB == nil {
		return nil, errDBNotInitialized
	}
	limit = clampLimit(limit)

	query := `
		SELECT
			cycle_id, COALESCE(keeper_run, 0), started_at, closed_at,
			total_deposited_usd, received_by_strategies_usd, strategies_balance_usd,
			price_per_share, shares_minted, fee_shares, prices
		FROM allocation_cycles
		ORDER BY cycle_id DESC
		LIMIT $1
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		record, err := scanCycle(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(records)).Int("limit", limit).Msg("Retrieved recent cycles")
	return records, nil
}

// GetCycleByID retrieves one recorded allocation cycle
func GetCycleByID(cycleID uint64) (*CycleRecord, error) {
	if DB == nil {
		return nil, errDBNotInitialized
	}
	query := `
		SELECT
			cycle_id, COALESCE(keeper_run, 0), started_at, closed_at,
			total_deposited_usd, received_by_strategies_usd, strategies_balance_usd,
			price_per_share, shares_minted, fee_shares, prices
		FROM allocation_cycles
		WHERE cycle_id = $1
	`
	record, err := scanCycle(DB.QueryRow(query, cycleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("cycle with ID %d not found", cycleID)
		}
		return nil, fmt.Errorf("failed to query cycle by ID: %w", err)
	}
	return &record, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (CycleRecord, error) {
	var (
		record     CycleRecord
		pricesJSON []byte
		amounts    [6]string
		c          = &record.Cycle
	)
	err := row.Scan(
		&c.ID, &record.KeeperRun, &c.StartedAt, &c.ClosedAt,
		&amounts[0], &amounts[1], &amounts[2],
		&amounts[3], &amounts[4], &amounts[5], &pricesJSON,
	)
	if err != nil {
		return CycleRecord{}, err
	}
	targets := []*sdkmath.Int{
		&c.TotalDepositedInUsd, &c.ReceivedByStrategiesInUsd, &c.StrategiesBalanceWithCompoundAndBatchDepositsInUsd,
		&c.PricePerShare, &c.SharesMinted, &c.FeeShares,
	}
	for i, target := range targets {
		if *target, err = parseNumeric(amounts[i]); err != nil {
			return CycleRecord{}, err
		}
	}
	c.Closed = true
	if len(pricesJSON) > 0 {
		if err := json.Unmarshal(pricesJSON, &c.Prices); err != nil {
			return CycleRecord{}, fmt.Errorf("failed to unmarshal prices: %w", err)
		}
	}
	return record, nil
}

// GetBatchOutHistory retrieves recorded BatchOut cycles, newest first
func GetBatchOutHistory(limit int) ([]BatchOutRecord, error) {
	if DB == nil {
		return nil, errDBNotInitialized
	}
	limit = clampLimit(limit)

	query := `
		SELECT cycle_id, COALESCE(keeper_run, 0), status, total_shares, collected_fees, request_ids, received_by_denom
		FROM batch_out_cycles
		ORDER BY cycle_id DESC
		LIMIT $1
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch out history: %w", err)
	}
	defer rows.Close()

	var records []BatchOutRecord
	for rows.Next() {
		var (
			r            BatchOutRecord
			status       string
			shares, fees string
			receivedJSON []byte
		)
		if err := rows.Scan(&r.CycleID, &r.KeeperRun, &status, &shares, &fees, pq.Array(&r.RequestIDs), &receivedJSON); err != nil {
			log.Error().Err(err).Msg("Failed to scan batch out row")
			continue
		}
		r.Status = types.BatchOutStatus(status)
		if r.TotalShares, err = parseNumeric(shares); err != nil {
			continue
		}
		if r.CollectedFees, err = parseNumeric(fees); err != nil {
			continue
		}
		if len(receivedJSON) > 0 {
			if err := json.Unmarshal(receivedJSON, &r.ReceivedByDenom); err != nil {
				log.Error().Err(err).Uint64("cycle_id", r.CycleID).Msg("Failed to unmarshal received amounts")
				continue
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// GetHistoryStats retrieves aggregated audit statistics
func GetHistoryStats() (*HistoryStats, error) {
	if DB == nil {
		return nil, errDBNotInitialized
	}

	var deposited, fees string
	stats := &HistoryStats{}
	err := DB.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(total_deposited_usd), 0)::TEXT, COALESCE(SUM(fee_shares), 0)::TEXT
		FROM allocation_cycles
	`).Scan(&stats.TotalCycles, &deposited, &fees)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cycles: %w", err)
	}
	if stats.TotalDepositedUsd, err = parseNumeric(deposited); err != nil {
		return nil, err
	}
	if stats.TotalFeeShares, err = parseNumeric(fees); err != nil {
		return nil, err
	}

	err = DB.QueryRow(`SELECT COUNT(*) FROM batch_out_cycles WHERE status = $1`, string(types.BatchOutFulfilled)).Scan(&stats.FulfilledBatchOuts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count fulfilled batch out cycles")
	}
	err = DB.QueryRow(`SELECT COUNT(*) FROM payouts`).Scan(&stats.TotalPayouts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count payouts")
	}
	err = DB.QueryRow(`SELECT COUNT(*) FROM receipts`).Scan(&stats.AllocatedReceipts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count receipts")
	}
	err = DB.QueryRow(`SELECT COUNT(*) FROM strategy_withdrawals`).Scan(&stats.DirectWithdrawals)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count strategy withdrawals")
	}

	log.Debug().Int("totalCycles", stats.TotalCycles).Msg("Retrieved history stats")
	return stats, nil
}

// PostgresHistory serves the audit trail to read-only consumers.
type PostgresHistory struct{}

func (PostgresHistory) RecentCycles(limit int) ([]CycleRecord, error) { return GetRecentCycles(limit) }

func (PostgresHistory) BatchOutHistory(limit int) ([]BatchOutRecord, error) {
	return GetBatchOutHistory(limit)
}

func (PostgresHistory) Stats() (*HistoryStats, error) { return GetHistoryStats() }

func (PostgresHistory) Ping() error { return TestDBConnection() }
