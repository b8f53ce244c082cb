package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/appconfig"
	"github.com/mcdev12/gambit/go/internal/broadcast"
	"github.com/mcdev12/gambit/go/internal/clocksession"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/match/gateway"
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

	port := getEnv("GATEWAY_PORT", "8081")
	if cfg.NATSURL == "" {
		log.Fatal().Msg("NATS_URL is required for a standalone gateway")
	}

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("match_service_url", cfg.Match.APIURL).
		Str("port", port).
		Msg("starting match gateway")

	// State for snapshots comes from the API service
	httpClient := &http.Client{Timeout: 10 * time.Second}
	matchClient := match.NewClient(httpClient, cfg.Match.APIURL)
	sessionClient := clocksession.NewClient(httpClient, cfg.Match.APIURL, "gateway")

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.UseJetStream = true
	gatewayConfig.JetStreamConfig.Stream.URL = cfg.NATSURL
	if name := os.Getenv("GATEWAY_CONSUMER"); name != "" {
		gatewayConfig.JetStreamConfig.ConsumerName = name
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub[events.Event](broadcast.DefaultBuffer)
	gatewayService, err := gateway.NewService(ctx, gatewayConfig, hub, matchClient, sessionClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", port),
		Handler:     cors.AllowAll().Handler(mux),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	<-done

	log.Info().Msg("match gateway shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
