package state

import (
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/types"
)

// Recorder keeps an audit trail of what the keeper did. The router itself persists nothing.
type Recorder interface {
	NextRun() (int, error)
	RecordCycle(run int, cycle types.Cycle) error
	RecordBatchOutCycle(run int, cycle types.BatchOutCycle) error
	RecordPayouts(run int, payouts []types.Payout) error
	RecordReceipts(run int, cycleID uint64, receipts []types.Receipt) error
	RecordWithdrawal(w types.StrategyWithdrawal) error
}

// PostgresRecorder writes audit rows through the global DB pool.
type PostgresRecorder struct {
	log zerolog.Logger
}

func NewPostgresRecorder() *PostgresRecorder {
	return &PostgresRecorder{log: logger.GetForComponent("state_store")}
}

func (p *PostgresRecorder) NextRun() (int, error) {
	return IncrementRunNumber()
}

// RecordCycle stores a closed allocation cycle. Re-recording the same cycle is a no-op.
func (p *PostgresRecorder) RecordCycle(run int, cycle types.Cycle) error {
	if DB == nil {
		return errDBNotInitialized
	}
	pricesJSON, err := json.Marshal(cycle.Prices)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle prices: %w", err)
	}

	stmt := `
		INSERT INTO allocation_cycles (
			cycle_id, keeper_run, started_at, closed_at,
			total_deposited_usd, received_by_strategies_usd, strategies_balance_usd,
			price_per_share, shares_minted, fee_shares, prices
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cycle_id) DO NOTHING;`
	_, err = DB.Exec(stmt,
		cycle.ID, run, cycle.StartedAt, cycle.ClosedAt,
		numeric(cycle.TotalDepositedInUsd), numeric(cycle.ReceivedByStrategiesInUsd),
		numeric(cycle.StrategiesBalanceWithCompoundAndBatchDepositsInUsd),
		numeric(cycle.PricePerShare), numeric(cycle.SharesMinted), numeric(cycle.FeeShares),
		pricesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %d: %w", cycle.ID, err)
	}
	p.log.Info().Uint64("cycle_id", cycle.ID).Int("run", run).Msg("Allocation cycle recorded")
	return nil
}

// RecordBatchOutCycle upserts a BatchOut cycle; it is recorded once when executed and
// again when fulfilled.
func (p *PostgresRecorder) RecordBatchOutCycle(run int, cycle types.BatchOutCycle) error {
	if DB == nil {
		return errDBNotInitialized
	}
	receivedJSON, err := json.Marshal(cycle.ReceivedByDenom)
	if err != nil {
		return fmt.Errorf("failed to marshal received amounts: %w", err)
	}
	requestIDs := make([]string, 0, len(cycle.Requests))
	for _, req := range cycle.Requests {
		requestIDs = append(requestIDs, req.ID)
	}

	stmt := `
		INSERT INTO batch_out_cycles (
			cycle_id, keeper_run, start_at, executed_at, status,
			total_shares, collected_fees, request_ids, received_by_denom
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cycle_id) DO UPDATE SET
			keeper_run = EXCLUDED.keeper_run,
			executed_at = EXCLUDED.executed_at,
			status = EXCLUDED.status,
			received_by_denom = EXCLUDED.received_by_denom,
			recorded_at = CURRENT_TIMESTAMP;`
	_, err = DB.Exec(stmt,
		cycle.ID, run, nullTime(cycle.StartAt), nullTime(cycle.ExecutedAt), string(cycle.Status()),
		numeric(cycle.TotalShares), numeric(cycle.CollectedFees), pq.Array(requestIDs), receivedJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert batch out cycle %d: %w", cycle.ID, err)
	}
	p.log.Info().
		Uint64("cycle_id", cycle.ID).
		Str("status", string(cycle.Status())).
		Int("run", run).
		Msg("BatchOut cycle recorded")
	return nil
}

// RecordPayouts stores every payout of a run in one transaction.
func (p *PostgresRecorder) RecordPayouts(run int, payouts []types.Payout) (err error) {
	if DB == nil {
		return errDBNotInitialized
	}
	if len(payouts) == 0 {
		return nil
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt := `INSERT INTO payouts (keeper_run, batch_out_cycle_id, owner, denom, amount) VALUES ($1, $2, $3, $4, $5);`
	for _, payout := range payouts {
		if _, err = tx.Exec(stmt, run, payout.CycleID, payout.Owner, payout.Coin.Denom, numeric(payout.Coin.Amount)); err != nil {
			return fmt.Errorf("failed to insert payout for %s: %w", payout.Owner, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payouts: %w", err)
	}
	p.log.Info().Int("count", len(payouts)).Int("run", run).Msg("Payouts recorded")
	return nil
}

// RecordReceipts stores the receipts a closed cycle converts into shares. Receipts already
// stored are left as they are.
func (p *PostgresRecorder) RecordReceipts(run int, cycleID uint64, receipts []types.Receipt) (err error) {
	if DB == nil {
		return errDBNotInitialized
	}
	if len(receipts) == 0 {
		return nil
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt := `
		INSERT INTO receipts (receipt_id, keeper_run, cycle_id, owner, denom, amount_uniform, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (receipt_id) DO NOTHING;`
	for _, r := range receipts {
		if _, err = tx.Exec(stmt, r.ID, run, cycleID, r.Owner, r.Denom, numeric(r.AmountUniform), nullTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert receipt %d: %w", r.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit receipts: %w", err)
	}
	p.log.Info().Uint64("cycle_id", cycleID).Int("count", len(receipts)).Int("run", run).Msg("Cycle receipts recorded")
	return nil
}

// RecordWithdrawal stores a withdrawal paid directly from the strategies.
func (p *PostgresRecorder) RecordWithdrawal(w types.StrategyWithdrawal) error {
	if DB == nil {
		return errDBNotInitialized
	}
	stmt := `
		INSERT INTO strategy_withdrawals (owner, denom, amount, shares, fee_shares, compounded, swaps, withdrawn_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	_, err := DB.Exec(stmt,
		w.Owner, w.Coin.Denom, numeric(w.Coin.Amount), numeric(w.Shares), numeric(w.FeeShares),
		w.Compounded, w.Swaps, nullTime(w.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal for %s: %w", w.Owner, err)
	}
	p.log.Info().Str("owner", w.Owner).Str("denom", w.Coin.Denom).Msg("Strategy withdrawal recorded")
	return nil
}

// NoopRecorder drops every record. Runs are still numbered so logs stay correlated.
type NoopRecorder struct {
	run int
}

func (n *NoopRecorder) NextRun() (int, error) {
	n.run++
	return n.run, nil
}

func (*NoopRecorder) RecordCycle(int, types.Cycle) error                 { return nil }
func (*NoopRecorder) RecordBatchOutCycle(int, types.BatchOutCycle) error { return nil }
func (*NoopRecorder) RecordPayouts(int, []types.Payout) error            { return nil }
func (*NoopRecorder) RecordReceipts(int, uint64, []types.Receipt) error  { return nil }
func (*NoopRecorder) RecordWithdrawal(types.StrategyWithdrawal) error    { return nil }

func numeric(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
