package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/stablerouter/internal/config"
	"github.com/elys-network/stablerouter/internal/datafetcher"
	"github.com/elys-network/stablerouter/internal/keeper"
	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/router"
	"github.com/elys-network/stablerouter/internal/scheduler"
	"github.com/elys-network/stablerouter/internal/simulations"
	"github.com/elys-network/stablerouter/internal/state"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/utils"
	"github.com/elys-network/stablerouter/internal/vault"
	"github.com/elys-network/stablerouter/internal/web"
)

// main is the entry point of the stablecoin router.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel, config.LogFile)
	log.Info().Msg("Stablecoin router starting...")

	if config.Mode != config.ModeSimulation {
		log.Fatal().Str("mode", config.Mode).Msg("ROUTER_MODE is not 'simulation'. Live strategy and exchange adapters are external; halting.")
	}

	vaultFile, err := config.LoadVaultFile(config.VaultFilePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.VaultFilePath).Msg("Failed to load vault file")
	}

	// --- 2. Audit database and parameters ---
	var recorder state.Recorder = &state.NoopRecorder{}
	var history web.History
	base := config.DefaultRouterParameters
	storedParams := false

	if config.DBEnabled {
		if err := state.InitDB(config.Database); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		recorder = state.NewPostgresRecorder()
		history = state.PostgresHistory{}

		if active, err := state.LoadActiveRouterParameters(config.ParamsConfigName); err != nil {
			log.Warn().Err(err).Msg("No active router parameters stored, using defaults.")
		} else {
			base = *active
			storedParams = true
		}
	} else {
		log.Warn().Msg("DB_HOST not set, audit trail disabled.")
	}

	params, err := vaultFile.RouterParameters(base)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid router parameters")
	}
	if config.DBEnabled && !storedParams {
		if _, err := state.SaveRouterParameters(params, config.ParamsConfigName, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial router parameters.")
		}
	}

	// --- 3. Collaborators ---
	oracle, err := buildOracle(vaultFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build price oracle")
	}

	tokens := make([]types.SupportedToken, 0, len(vaultFile.Tokens))
	for i, t := range vaultFile.Tokens {
		tokens = append(tokens, types.SupportedToken{Denom: t.Denom, Symbol: t.Symbol, Decimals: t.Decimals, Index: i})
	}
	exchange := simulations.NewExchange(oracle, tokens, vaultFile.ExchangeFeeBps)

	r, err := router.New(oracle, exchange, params, vaultFile.Moderators, router.WithAuditor(recorder))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create router")
	}
	if err := configureVault(r, vaultFile); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure vault layout")
	}

	// --- 4. Keeper, scheduler and web server ---
	k, err := keeper.NewKeeper(keeper.Config{Vault: r, Recorder: recorder})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(ctx, k)
	if err := sched.RegisterAll(config.UpkeepCron, config.CompoundCron); err != nil {
		log.Fatal().Err(err).Msg("Failed to register keeper jobs")
	}
	sched.Start()
	if config.RunOnStart {
		sched.RunUpkeepNow()
	}

	webServer := web.NewWebServer(config.WebPort, r, history)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting router API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	sched.Stop()
}

// buildOracle seeds a simulated oracle from the vault file, or uses live prices when a
// price API is configured.
func buildOracle(vf *config.VaultFile) (vault.Oracle, error) {
	if config.PriceAPIURL != "" {
		symbols := make(map[string]string, len(vf.Tokens))
		for _, t := range vf.Tokens {
			symbols[t.Denom] = t.Symbol
		}
		log.Info().Str("url", config.PriceAPIURL).Msg("Using live price oracle")
		return datafetcher.NewPriceOracle(datafetcher.PriceOracleConfig{
			BaseURL: config.PriceAPIURL,
			APIKey:  config.PriceAPIKey,
			TTL:     config.PriceTTL,
			Symbols: symbols,
		})
	}

	oracle := simulations.NewOracle()
	for _, t := range vf.Tokens {
		price, err := utils.ParseUniform(t.Price)
		if err != nil {
			return nil, err
		}
		oracle.SetPrice(t.Denom, price, types.UniformDecimals)
	}
	return oracle, nil
}

// configureVault registers the vault file's tokens and strategies as the first moderator.
func configureVault(r *router.Router, vf *config.VaultFile) error {
	admin := vf.Moderators[0]
	for _, t := range vf.Tokens {
		if _, err := r.AddSupportedToken(admin, t.Denom, t.Symbol, t.Decimals, simulations.NewIdleStrategy(t.Denom)); err != nil {
			return err
		}
	}
	for _, s := range vf.Strategies {
		strategy := simulations.NewStrategy(s.Name, s.Denom).WithYieldBps(s.YieldBps).WithExitFeeBps(s.ExitFeeBps)
		if _, err := r.AddStrategy(admin, strategy, s.Weight); err != nil {
			return err
		}
	}
	log.Info().
		Int("tokens", len(vf.Tokens)).
		Int("strategies", len(vf.Strategies)).
		Msg("Vault layout configured")
	return nil
}
