/*

This file manages the persistent keeper run counter. Run numbers tag every audit row
a keeper run writes and survive restarts.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var errDBNotInitialized = errors.New("database not initialized")

// CurrentRunNumber retrieves the current keeper run number from the database
func CurrentRunNumber() (int, error) {
	if DB == nil {
		return 0, errDBNotInitialized
	}

	query := `SELECT current_run FROM keeper_run_counter WHERE id = 1;`

	var currentRun int
	err := DB.QueryRow(query).Scan(&currentRun)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn().Msg("No keeper run counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current run number: %w", err)
	}
	return currentRun, nil
}

// IncrementRunNumber increments the run counter and returns the new value
func IncrementRunNumber() (int, error) {
	if DB == nil {
		return 0, errDBNotInitialized
	}

	updateQuery := `
		UPDATE keeper_run_counter
		SET current_run = current_run + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_run;`

	var newRun int
	if err := DB.QueryRow(updateQuery).Scan(&newRun); err != nil {
		return 0, fmt.Errorf("failed to increment run number: %w", err)
	}

	log.Debug().Int("newRun", newRun).Msg("Incremented keeper run counter")
	return newRun, nil
}

// ResetRunNumber resets the run counter to a specific value (for testing/maintenance)
func ResetRunNumber(runNumber int) error {
	if DB == nil {
		return errDBNotInitialized
	}
	if runNumber < 0 {
		return fmt.Errorf("run number cannot be negative: %d", runNumber)
	}

	updateQuery := `
		UPDATE keeper_run_counter
		SET current_run = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.Exec(updateQuery, runNumber)
	if err != nil {
		return fmt.Errorf("failed to reset run number to %d: %w", runNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting run number")
	}

	log.Warn().Int("runNumber", runNumber).Msg("Reset keeper run counter")
	return nil
}
