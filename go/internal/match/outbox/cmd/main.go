package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/appconfig"
	"github.com/mcdev12/gambit/go/internal/dbconfig"
	"github.com/mcdev12/gambit/go/internal/match/outbox"
	"github.com/mcdev12/gambit/go/internal/match/outbox/db"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := appconfig.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	appconfig.SetupLogging(cfg.LogLevel)

	// DB config
	dbCfg := dbconfig.NewConfigFromEnv()
	dsn := dbCfg.DSN()
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()
	if err := database.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().Str("dsn", dbCfg.Redacted()).Msg("connected to database")

	app := outbox.NewApp(outbox.NewRepository(db.New(database)), nil)

	// JetStream publisher, or a logging one when no bus is configured
	var publisher outbox.Publisher = outbox.LogPublisher{}
	var busUp func() bool
	if cfg.NATSURL != "" {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		jsp, err := outbox.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create JetStream publisher")
		}
		defer func() {
			if err := jsp.Close(); err != nil {
				log.Error().Err(err).Msg("close publisher")
			}
		}()
		publisher = jsp
		busUp = jsp.Connected
	}

	// Listener config
	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	if iv := os.Getenv("FALLBACK_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			ltCfg.FallbackInterval = d
		}
	}

	listener, err := outbox.NewListener(app, publisher, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// sent rows are only kept for a day
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := app.PurgeSent(ctx, 24*time.Hour); err != nil {
					log.Error().Err(err).Msg("purge sent outbox events")
				}
			}
		}
	}()

	health := outbox.NewHealthChecker(listener, app, database.PingContext, busUp, 2*ltCfg.FallbackInterval)
	healthServer := &http.Server{
		Addr:        ":" + getEnv("OUTBOX_HEALTH_PORT", "8083"),
		Handler:     health,
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", healthServer.Addr).Msg("health check server starting")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()
	defer healthServer.Close()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting realtime listener")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("listener stop")
		}
		log.Info().Msg("graceful shutdown complete")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
