package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// ModeSimulation runs the router against in-process collaborators built from the vault file.
const ModeSimulation = "simulation"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode selects how collaborators are built. Only ModeSimulation is runnable.
	Mode string
	// VaultFilePath is the YAML vault layout (tokens, strategies, moderators).
	VaultFilePath string

	// UpkeepCron schedules keeper runs (seconds field included).
	UpkeepCron string
	// CompoundCron schedules CompoundAll. Empty disables the job.
	CompoundCron string
	// RunOnStart performs one keeper run right after startup.
	RunOnStart bool

	// ParamsConfigName keys the versioned router parameters in the database.
	ParamsConfigName string

	// WebPort is the port of the read-only HTTP API.
	WebPort string
	// LogLevel is the zerolog level name.
	LogLevel string
	// LogFile optionally mirrors logs to a file.
	LogFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// ROUTER_MODE, ROUTER_VAULT_FILE and ROUTER_UPKEEP_CRON are required; the rest have defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("ROUTER_MODE")
	if err != nil {
		return err
	}

	VaultFilePath, err = getEnv("ROUTER_VAULT_FILE")
	if err != nil {
		return err
	}

	UpkeepCron, err = getEnv("ROUTER_UPKEEP_CRON")
	if err != nil {
		return err
	}

	CompoundCron = getEnvOrDefault("ROUTER_COMPOUND_CRON", "")
	ParamsConfigName = getEnvOrDefault("ROUTER_PARAMS_CONFIG", DefaultParamsConfigName)
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	RunOnStart, err = getEnvAsBool("ROUTER_RUN_ON_START", false)
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("VaultFile", VaultFilePath).
		Str("UpkeepCron", UpkeepCron).
		Str("CompoundCron", CompoundCron).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an optional environment variable as an int.
func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
