package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/router"
	"github.com/elys-network/stablerouter/internal/state"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/utils"
)

// Vault is the part of the router a keeper drives.
type Vault interface {
	CheckUpkeep(now time.Time) bool
	PerformUpkeep(now time.Time) (router.UpkeepResult, error)
	AllocateToStrategies(now time.Time) (types.Cycle, error)
	CycleReceipts(cycleID uint64) []types.Receipt
	CompoundAll() (sdkmath.Int, error)
	GetBatchValueUsd() (types.BatchValue, error)
	BatchOutCycle(id uint64) (types.BatchOutCycle, bool)
	Params() types.RouterParameters
	Summary() (router.Summary, error)
}

// Keeper performs the periodic work nobody else triggers: closing allocation cycles,
// executing and fulfilling BatchOut cycles, and compounding.
type Keeper struct {
	logger   zerolog.Logger
	vault    Vault
	recorder state.Recorder
	clock    func() time.Time
}

// Config holds the configuration for creating a new Keeper instance
type Config struct {
	Vault    Vault
	Recorder state.Recorder
	Clock    func() time.Time // defaults to time.Now
}

// Report is what one keeper run did.
type Report struct {
	Run         int
	TraceID     string
	Upkeep      *router.UpkeepResult
	ClosedCycle *types.Cycle
	FeeShares   sdkmath.Int
	Errors      []error
}

// NewKeeper creates a new Keeper instance
func NewKeeper(cfg Config) (*Keeper, error) {
	if err := validateKeeperConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}
	k := &Keeper{
		logger:   logger.GetForComponent("keeper"),
		vault:    cfg.Vault,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
	}
	if k.clock == nil {
		k.clock = time.Now
	}
	return k, nil
}

func validateKeeperConfig(cfg Config) error {
	if cfg.Vault == nil {
		return fmt.Errorf("vault cannot be nil")
	}
	if cfg.Recorder == nil {
		return fmt.Errorf("recorder cannot be nil")
	}
	return nil
}

// RunLoop runs a keeper cycle every interval until ctx is cancelled.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.RunCycle(ctx)
		}
	}
}

// RunCycle is one keeper run. Each step stands on its own: a failed upkeep does not
// prevent the allocation from being attempted.
func (k *Keeper) RunCycle(ctx context.Context) Report {
	report := Report{TraceID: uuid.New().String(), FeeShares: sdkmath.ZeroInt()}
	cycleLogger := k.logger.With().Str("trace_id", report.TraceID).Logger()
	startTime := k.clock()

	if err := ctx.Err(); err != nil {
		cycleLogger.Warn().Err(err).Msg("Keeper run skipped, context done")
		report.Errors = append(report.Errors, err)
		return report
	}

	run, err := k.recorder.NextRun()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to number keeper run, continuing unrecorded")
	}
	report.Run = run
	cycleLogger = cycleLogger.With().Int("run", run).Logger()
	cycleLogger.Info().Msg("--- Starting keeper run ---")

	cycleLogger.Info().Msg("Step 1: Checking BatchOut upkeep...")
	now := k.clock()
	if k.vault.CheckUpkeep(now) {
		result, err := k.vault.PerformUpkeep(now)
		if err != nil {
			cycleLogger.Error().Err(err).Msg("BatchOut upkeep failed")
			report.Errors = append(report.Errors, fmt.Errorf("upkeep: %w", err))
		} else {
			report.Upkeep = &result
			k.recordUpkeep(run, result, cycleLogger)
		}
	} else {
		cycleLogger.Info().Msg("No BatchOut cycle due")
	}

	cycleLogger.Info().Msg("Step 2: Checking allocation cycle...")
	if due, reason := k.allocationDue(); !due {
		cycleLogger.Info().Str("reason", reason).Msg("Allocation skipped")
	} else {
		cycle, err := k.vault.AllocateToStrategies(k.clock())
		switch {
		case errors.Is(err, types.ErrCycleNotClosableYet), errors.Is(err, types.ErrBatchEmpty):
			cycleLogger.Info().Err(err).Msg("Allocation skipped")
		case err != nil:
			cycleLogger.Error().Err(err).Msg("Allocation failed")
			report.Errors = append(report.Errors, fmt.Errorf("allocation: %w", err))
		default:
			report.ClosedCycle = &cycle
			report.FeeShares = cycle.FeeShares
			if err := k.recorder.RecordCycle(run, cycle); err != nil {
				cycleLogger.Error().Err(err).Uint64("cycle", cycle.ID).Msg("Failed to record closed cycle")
			}
			if err := k.recorder.RecordReceipts(run, cycle.ID, k.vault.CycleReceipts(cycle.ID)); err != nil {
				cycleLogger.Error().Err(err).Uint64("cycle", cycle.ID).Msg("Failed to record cycle receipts")
			}
			cycleLogger.Info().
				Uint64("cycle", cycle.ID).
				Str("depositedUsd", utils.FormatUniform(cycle.TotalDepositedInUsd)).
				Str("receivedUsd", utils.FormatUniform(cycle.ReceivedByStrategiesInUsd)).
				Stringer("sharesMinted", cycle.SharesMinted).
				Msg("Allocation cycle closed")
		}
	}

	k.logEndOfRunState(startTime, cycleLogger)
	return report
}

// CompoundAll is the compounding job, scheduled separately from the keeper run.
func (k *Keeper) CompoundAll(ctx context.Context) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	feeShares, err := k.vault.CompoundAll()
	if err != nil {
		k.logger.Error().Err(err).Msg("Compounding failed")
		return sdkmath.ZeroInt(), err
	}
	k.logger.Info().Stringer("feeShares", feeShares).Msg("Compounded all strategies")
	return feeShares, nil
}

// allocationDue checks the window and the minimum batch size before attempting a close,
// so a quiet vault does not log an aborted transaction every run.
func (k *Keeper) allocationDue() (bool, string) {
	params := k.vault.Params()
	batch, err := k.vault.GetBatchValueUsd()
	if err != nil {
		// let the router report the pricing failure
		return true, ""
	}
	if batch.TotalBalanceUsd.IsZero() {
		return false, "batch is empty"
	}
	if batch.TotalBalanceUsd.LT(params.MinDepositUsd) {
		return false, "batch below minimum deposit"
	}
	return true, ""
}

func (k *Keeper) recordUpkeep(run int, result router.UpkeepResult, log zerolog.Logger) {
	if result.Executed != nil {
		if err := k.recorder.RecordBatchOutCycle(run, *result.Executed); err != nil {
			log.Error().Err(err).Uint64("batchOutCycle", result.Executed.ID).Msg("Failed to record executed BatchOut cycle")
		}
	}
	for _, id := range result.Fulfilled {
		cycle, ok := k.vault.BatchOutCycle(id)
		if !ok {
			continue
		}
		if err := k.recorder.RecordBatchOutCycle(run, cycle); err != nil {
			log.Error().Err(err).Uint64("batchOutCycle", id).Msg("Failed to record fulfilled BatchOut cycle")
		}
	}
	if err := k.recorder.RecordPayouts(run, result.Payouts); err != nil {
		log.Error().Err(err).Int("payouts", len(result.Payouts)).Msg("Failed to record payouts")
	}
	log.Info().
		Bool("executed", result.Executed != nil).
		Int("fulfilledCycles", len(result.Fulfilled)).
		Int("payouts", len(result.Payouts)).
		Msg("BatchOut upkeep done")
}

func (k *Keeper) logEndOfRunState(startTime time.Time, log zerolog.Logger) {
	log.Info().Msg("Step 3: Logging final vault state...")
	summary, err := k.vault.Summary()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get vault summary for logging.")
	} else {
		log.Info().
			Uint64("currentCycle", summary.CurrentCycleID).
			Str("totalUsd", utils.FormatUniform(summary.Strategies.TotalUsd)).
			Str("batchUsd", utils.FormatUniform(summary.Batch.TotalBalanceUsd)).
			Stringer("totalShares", summary.TotalShares).
			Int("pendingReceipts", summary.PendingReceipts).
			Msg("End of keeper run state")
	}
	log.Info().Str("runDuration", k.clock().Sub(startTime).String()).Msg("--- Keeper run completed ---")
}
