package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/defiedge/rangevault/internal/config"
	"github.com/defiedge/rangevault/internal/engine"
	"github.com/defiedge/rangevault/internal/feed"
	"github.com/defiedge/rangevault/internal/logger"
	"github.com/defiedge/rangevault/internal/pool"
	"github.com/defiedge/rangevault/internal/pricing"
	"github.com/defiedge/rangevault/internal/registry"
	"github.com/defiedge/rangevault/internal/state"
	"github.com/defiedge/rangevault/internal/types"
	"github.com/defiedge/rangevault/internal/web"
)

// main is the entry point for the vault daemon.
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
	log.Info().Msg("Range vault daemon starting...")

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

	// --- 2. Dependency Wiring ---
	feedClient, err := feed.NewClient(config.FeedAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize feed client")
	}

	protocolRecipient := os.Getenv("PROTOCOL_FEE_RECIPIENT")
	if protocolRecipient == "" {
		log.Fatal().Msg("PROTOCOL_FEE_RECIPIENT is required but not set")
	}
	reg, err := registry.NewStaticRegistry(config.FeedHeartbeat, protocolRecipient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize registry")
	}

	simPool, err := pool.NewSimulatedPool(config.PoolID, config.PoolStartTick, time.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pool")
	}
	router, err := pool.NewSimulatedRouter(simPool, decimal.NewFromFloat(config.SwapFeePercent), time.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize router")
	}

	prices, err := pricing.NewEngine(feedClient, reg, time.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price engine")
	}

	vault, err := engine.NewVault(engine.Config{
		VaultID:  types.VaultID(config.VaultID),
		Manager:  config.ManagerConfigFromEnv(),
		Pair:     config.PairConfigFromEnv(),
		Pool:     simPool,
		Router:   router,
		Prices:   prices,
		Registry: reg,
		Recorder: state.Recorder{},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault engine")
	}

	// --- 3. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, vault)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting vault web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Wait for Shutdown ---
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info().Str("signal", received.String()).Msg("Shutting down")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
