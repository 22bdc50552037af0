package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/adjustment"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/attestation"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/challenge"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/config"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/consensus"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/datafetcher"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/events"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/orchestrator"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/positions"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/slashing"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/state"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/tasks"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/web"
)

// main is the entry point for the yield-consensus service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("YieldSync Consensus Service Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Consensus Parameters
	consensusParams, adjustmentParams, err := state.LoadActiveConsensusParameters(orchestrator.DEFAULT_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active consensus parameters, using defaults and saving.")
		defaultConsensus := config.DefaultConsensusParameters
		defaultAdjustment := config.DefaultAdjustmentParameters
		if _, err := state.SaveConsensusParameters(defaultConsensus, defaultAdjustment, orchestrator.DEFAULT_CONFIG_NAME, orchestrator.DEFAULT_CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default consensus parameters.")
		}
		consensusParams = &defaultConsensus
		adjustmentParams = &defaultAdjustment
	}
	log.Info().Msg("Consensus parameters loaded successfully.")

	// --- 2. External Collaborators ---
	operatorRegistry := registry.NewHTTPRegistry(config.RegistryEndpoint, config.FetchTimeout)
	yieldSource := datafetcher.NewHTTPYieldSource(config.YieldSourceEndpoint, config.FetchTimeout)

	// The insecure verifier is the only attestation scheme bundled with the
	// service; a production deployment binds a real signature verifier here.
	log.Warn().Msg("Using insecure attestation verifier. Do not rely on submission signatures for security.")
	attestor := attestation.InsecureVerifier{}

	// --- 3. Core Components with Dependency Injection ---
	emitter := events.NewEmitter()
	engine := consensus.NewEngine(operatorRegistry, *consensusParams, config.AssetByID)
	lifecycle := tasks.NewLifecycle(consensusParams.ResponseWindow, consensusParams.ChallengeWindow, emitter)
	ledger := slashing.NewLedger(operatorRegistry)
	verifier := challenge.NewVerifier(yieldSource, lifecycle, ledger, emitter, *consensusParams)
	calculator := adjustment.NewCalculator(*adjustmentParams)
	tracker := positions.NewTracker(calculator, emitter)
	collector := orchestrator.NewFeedCollector(engine, operatorRegistry, yieldSource, emitter)

	// --- Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, engine, lifecycle, verifier, tracker, attestor, emitter, consensusParams.QuorumThresholdBps, orchestrator.DEFAULT_CONFIG_NAME)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting YieldSync API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Create Orchestrator Instance ---
	log.Info().Msg("Creating orchestrator instance with dependency injection...")

	orchestratorConfig := orchestrator.Config{
		Engine:        engine,
		Lifecycle:     lifecycle,
		Verifier:      verifier,
		Tracker:       tracker,
		Ledger:        ledger,
		Collector:     collector,
		Assets:        monitoredAssets(),
		ConfigName:    orchestrator.DEFAULT_CONFIG_NAME,
		ConfigVersion: orchestrator.DEFAULT_CONFIG_VERSION,
	}

	orchestratorInstance, err := orchestrator.NewOrchestrator(orchestratorConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator instance")
	}

	log.Info().Msg("Orchestrator instance created successfully")

	// --- 5. Start Main Loop ---
	log.Info().Str("interval", config.RoundInterval.String()).Msg("Starting monitoring loop")

	ctx := context.Background()
	orchestratorInstance.RunLoop(ctx, config.RoundInterval)
}

// monitoredAssets reads the MONITORED_ASSETS env var (comma-separated asset
// ids), defaulting to every known asset.
func monitoredAssets() []types.AssetID {
	if raw := os.Getenv("MONITORED_ASSETS"); raw != "" {
		var assets []types.AssetID
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				assets = append(assets, types.AssetID(trimmed))
			}
		}
		return assets
	}
	assets := make([]types.AssetID, 0, len(config.KnownAssets))
	for id := range config.KnownAssets {
		assets = append(assets, id)
	}
	return assets
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
