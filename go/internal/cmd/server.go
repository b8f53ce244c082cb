package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/gambit/go/internal/appconfig"
	"github.com/mcdev12/gambit/go/internal/auth"
	"github.com/mcdev12/gambit/go/internal/clocksession"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/pairing"
)

func setupServer(cfg appconfig.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services)

	// Websocket streams and polling state routes
	services.Gateway.RegisterRoutes(mux)

	setupPresets(mux, services.Presets)

	// Add health check endpoint
	setupHealthCheck(mux)

	var verifier *auth.Verifier
	if cfg.Server.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.Server.JWTSecret, cfg.Server.JWTIssuer)
	} else {
		log.Warn().Msg("no JWT_SECRET set, bearer tokens are ignored")
	}
	handler := auth.Middleware(verifier, cfg.Server.AllowDevHeader)(mux)

	// Wrap with CORS
	handler = c.Handler(handler)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register match service
	matchServicePath, matchServiceHandler := match.NewMatchServiceHandler(services.Matches)
	mux.Handle(matchServicePath, matchServiceHandler)

	// Register pairing service
	pairingServicePath, pairingServiceHandler := pairing.NewPairingServiceHandler(services.Pairing)
	mux.Handle(pairingServicePath, pairingServiceHandler)

	// Register clock session service
	sessionServicePath, sessionServiceHandler := clocksession.NewClockSessionServiceHandler(services.ClockSession)
	mux.Handle(sessionServicePath, sessionServiceHandler)
}

func setupPresets(mux *http.ServeMux, presets []appconfig.TimeControlPreset) {
	mux.HandleFunc("GET /api/presets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(presets); err != nil {
			log.Error().Err(err).Msg("failed to write presets")
		}
	})
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
