package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/appconfig"
	"github.com/mcdev12/gambit/go/internal/clocksession"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/orchestrator"
	"github.com/mcdev12/gambit/go/internal/match/outbox"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := appconfig.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	appconfig.SetupLogging(cfg.LogLevel)

	log.Info().
		Str("match_service_url", cfg.Match.APIURL).
		Str("nats_url", cfg.NATSURL).
		Int("workers", cfg.Match.Workers).
		Msg("starting match orchestrator")

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}
	matchClient := match.NewClient(httpClient, cfg.Match.APIURL)

	orch := orchestrator.NewOrchestrator(matchClient, orchestrator.Config{
		Workers:       cfg.Match.Workers,
		SweepInterval: cfg.Match.SweepInterval,
		SweepBatch:    cfg.Match.SweepBatch,
	})
	defer orch.Close()

	// Redis-backed clock sessions are shared, so this process can purge them
	if cfg.ClockSession.Store == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.ClockSession.RedisAddr,
			Password: cfg.ClockSession.RedisPassword,
			DB:       cfg.ClockSession.RedisDB,
		})
		defer rdb.Close()
		sessions := clocksession.NewApp(clocksession.NewRedisStore(rdb, cfg.ClockSession.TTL), nil, nil)
		orch.AddJob(orchestrator.Job{
			Name:     "clock-session-sweep",
			Interval: time.Minute,
			Run: func(ctx context.Context) error {
				_, err := sessions.Sweep(ctx, time.Now().Add(-cfg.ClockSession.TTL))
				return err
			},
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NATSURL != "" {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		if err := orch.ConnectJetStream(ctx, jsCfg); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to JetStream")
		}
	} else {
		log.Warn().Msg("no NATS_URL set, relying on the overdue sweep only")
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- orch.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         ":8082", // Different port from main service
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-runErr:
		log.Error().Err(err).Msg("orchestrator exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}

	log.Info().Msg("match orchestrator shutdown complete")
}
