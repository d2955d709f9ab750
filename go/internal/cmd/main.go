package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marazzai/scoreboard/go/internal/command"
	"github.com/marazzai/scoreboard/go/internal/dbconfig"
	"github.com/marazzai/scoreboard/go/internal/engine"
	"github.com/marazzai/scoreboard/go/internal/gateway"
	"github.com/marazzai/scoreboard/go/internal/match"
	"github.com/marazzai/scoreboard/go/internal/obs"
	"github.com/marazzai/scoreboard/go/internal/relay"
	"github.com/marazzai/scoreboard/go/internal/snapshot"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	port := getEnvAsInt("PORT", cfg.Server.Port)

	// Connect to database
	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bootCancel()

	snapshotRepo := snapshot.NewRepository(db)
	if err := snapshotRepo.EnsureSchema(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare snapshot table")
	}
	obsRepo := obs.NewRepository(db)
	if err := obsRepo.EnsureSchema(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare obs settings table")
	}

	// Restore the last snapshot before accepting any traffic
	store := match.NewStore()
	if restored, err := snapshotRepo.Load(bootCtx); err != nil {
		log.Error().Err(err).Msg("snapshot restore failed, starting from defaults")
	} else if restored != nil {
		store = match.NewStoreWith(*restored)
		log.Info().Int("time_seconds", restored.TimeSeconds).Msg("restored match snapshot")
	}

	clock := clockwork.NewRealClock()

	// Debounced persistence follows every mutation
	saver := snapshot.NewSaver(snapshotRepo, clock, cfg.snapshotDebounce())
	store.Subscribe(saver.Notify)

	router := command.NewRouter(store)
	hub := gateway.NewHub(store, router, gateway.DefaultConnectionConfig())
	tickEngine := engine.New(store, hub, clock)

	// Optional NATS relay for out-of-process consumers
	if cfg.Relay.Enabled || os.Getenv("NATS_URL") != "" {
		relayCfg := relay.DefaultConfig()
		if cfg.Relay.URL != "" {
			relayCfg.URL = cfg.Relay.URL
		}
		relayCfg.URL = getEnv("NATS_URL", relayCfg.URL)
		relayCfg.StateSubject = cfg.Relay.StateSubject
		relayCfg.CmdSubject = cfg.Relay.CmdSubject

		publisher, err := relay.NewPublisher(relayCfg)
		if err != nil {
			// The relay is an optional mirror, never a boot blocker.
			log.Error().Err(err).Msg("relay unavailable, continuing without it")
		} else {
			defer publisher.Close()
			store.Subscribe(publisher.PublishState)
			hub.SetCommandTap(publisher)
			log.Info().Str("url", relayCfg.URL).Msg("relay connected")
		}
	}

	// Scene bridge reconnects in the background once settings are known
	bridge := obs.NewBridge()
	if settings, err := obsRepo.LoadSettings(bootCtx); err != nil {
		log.Error().Err(err).Msg("failed to load obs settings")
	} else if settings != nil {
		if err := bridge.Connect(bootCtx, *settings); err != nil {
			log.Warn().Err(err).Msg("obs not reachable at boot, will reconnect")
		}
	}

	server := setupServer(port,
		gateway.NewHandler(hub),
		gateway.NewStateHandler(store),
		obs.NewHandler(bridge, obsRepo),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	go tickEngine.Run(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("scoreboard server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	saver.Flush()
	bridge.Disconnect()

	log.Info().Msg("scoreboard shutdown complete")
}
