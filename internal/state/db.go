package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Amounts are uniform integers that overflow BIGINT, so they are kept as NUMERIC(78, 0).
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS router_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		dust_threshold_uniform NUMERIC(78, 0) NOT NULL,
		rebalance_stability_bps INTEGER NOT NULL,
		allocation_window_seconds BIGINT NOT NULL,
		min_deposit_usd NUMERIC(78, 0) NOT NULL,
		protocol_fee_bps INTEGER NOT NULL,
		fee_address VARCHAR(255) NOT NULL DEFAULT '',
		withdraw_window_seconds BIGINT NOT NULL,
		batch_out_slippage_bps INTEGER NOT NULL,
		withdraw_fee_min_usd NUMERIC(78, 0) NOT NULL,
		withdraw_fee_max_usd NUMERIC(78, 0) NOT NULL,
		withdraw_fee_bps INTEGER NOT NULL,
		withdraw_fee_gas_denom VARCHAR(128) NOT NULL DEFAULT '',
		withdraw_fee_gas_decimals INTEGER NOT NULL DEFAULT 0,
		withdraw_fee_treasury VARCHAR(255) NOT NULL DEFAULT '',
		CONSTRAINT uq_router_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_router_parameters_config_active ON router_parameters(config_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS allocation_cycles (
		cycle_id BIGINT PRIMARY KEY,
		keeper_run INTEGER,
		started_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL,
		total_deposited_usd NUMERIC(78, 0) NOT NULL,
		received_by_strategies_usd NUMERIC(78, 0) NOT NULL,
		strategies_balance_usd NUMERIC(78, 0) NOT NULL,
		price_per_share NUMERIC(78, 0) NOT NULL,
		shares_minted NUMERIC(78, 0) NOT NULL,
		fee_shares NUMERIC(78, 0) NOT NULL,
		prices JSONB,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_allocation_cycles_closed ON allocation_cycles(closed_at DESC);

	CREATE TABLE IF NOT EXISTS batch_out_cycles (
		cycle_id BIGINT PRIMARY KEY,
		keeper_run INTEGER,
		start_at TIMESTAMPTZ,
		executed_at TIMESTAMPTZ,
		status VARCHAR(20) NOT NULL,
		total_shares NUMERIC(78, 0) NOT NULL,
		collected_fees NUMERIC(78, 0) NOT NULL,
		request_ids TEXT[],
		received_by_denom JSONB,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payouts (
		payout_id SERIAL PRIMARY KEY,
		keeper_run INTEGER,
		batch_out_cycle_id BIGINT,
		owner VARCHAR(255) NOT NULL,
		denom VARCHAR(128) NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_payouts_owner ON payouts(owner);

	CREATE TABLE IF NOT EXISTS receipts (
		receipt_id BIGINT PRIMARY KEY,
		keeper_run INTEGER,
		cycle_id BIGINT NOT NULL,
		owner VARCHAR(255) NOT NULL,
		denom VARCHAR(128) NOT NULL,
		amount_uniform NUMERIC(78, 0) NOT NULL,
		created_at TIMESTAMPTZ,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_cycle ON receipts(cycle_id);

	CREATE TABLE IF NOT EXISTS strategy_withdrawals (
		withdrawal_id SERIAL PRIMARY KEY,
		owner VARCHAR(255) NOT NULL,
		denom VARCHAR(128) NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		shares NUMERIC(78, 0) NOT NULL,
		fee_shares NUMERIC(78, 0) NOT NULL,
		compounded BOOLEAN NOT NULL DEFAULT FALSE,
		swaps INTEGER NOT NULL DEFAULT 0,
		withdrawn_at TIMESTAMPTZ,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_strategy_withdrawals_owner ON strategy_withdrawals(owner);

	-- Keeper run counter for persistent run numbering across restarts
	CREATE TABLE IF NOT EXISTS keeper_run_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_run INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO keeper_run_counter (id, current_run)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// SchemaTables lists every table EnsureSchema creates, in dependency order.
var SchemaTables = []string{
	"router_parameters", "allocation_cycles", "batch_out_cycles", "payouts",
	"receipts", "strategy_withdrawals", "keeper_run_counter",
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return errDBNotInitialized
	}
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// DropSchema drops every table EnsureSchema creates. Used by the reset script only.
func DropSchema() error {
	if DB == nil {
		return errDBNotInitialized
	}
	for i := len(SchemaTables) - 1; i >= 0; i-- {
		if _, err := DB.Exec(`DROP TABLE IF EXISTS ` + pq.QuoteIdentifier(SchemaTables[i]) + ` CASCADE;`); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", SchemaTables[i], err)
		}
	}
	log.Warn().Strs("tables", SchemaTables).Msg("Dropped audit schema")
	return nil
}
