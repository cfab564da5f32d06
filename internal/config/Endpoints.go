package config

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/stablerouter/internal/state"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// PriceAPIURL is the CryptoCompare-compatible price endpoint. Empty keeps vault-file prices.
	PriceAPIURL string
	// PriceAPIKey authenticates against PriceAPIURL.
	PriceAPIKey string
	// PriceTTL is how long a fetched price stays usable.
	PriceTTL time.Duration

	// Database holds the audit database connection, when DBEnabled.
	Database  state.DBConfig
	DBEnabled bool
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	PriceAPIURL = getEnvOrDefault("PRICE_API_URL", "")
	PriceAPIKey = getEnvOrDefault("PRICE_API_KEY", "")

	ttlSeconds, err := getEnvAsInt("PRICE_TTL_SECONDS", 300)
	if err != nil {
		return err
	}
	PriceTTL = time.Duration(ttlSeconds) * time.Second

	port, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return err
	}
	Database = state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", ""),
		Port:     port,
		User:     getEnvOrDefault("DB_USER", ""),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", ""),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	DBEnabled = Database.Host != ""

	log.Debug().
		Str("PriceAPIURL", PriceAPIURL).
		Dur("PriceTTL", PriceTTL).
		Bool("DBEnabled", DBEnabled).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
