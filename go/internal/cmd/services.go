package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/appconfig"
	"github.com/mcdev12/gambit/go/internal/broadcast"
	"github.com/mcdev12/gambit/go/internal/clock"
	"github.com/mcdev12/gambit/go/internal/clocksession"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/match/gateway"
	"github.com/mcdev12/gambit/go/internal/match/orchestrator"
	"github.com/mcdev12/gambit/go/internal/match/outbox"
	outboxdb "github.com/mcdev12/gambit/go/internal/match/outbox/db"
	"github.com/mcdev12/gambit/go/internal/notify"
	"github.com/mcdev12/gambit/go/internal/pairing"
	"github.com/mcdev12/gambit/go/internal/rules"
)

const outboxRetention = 24 * time.Hour

type Services struct {
	Matches      *match.Service
	Pairing      *pairing.Service
	ClockSession *clocksession.Service
	Gateway      *gateway.Service
	Presets      []appconfig.TimeControlPreset

	orchestrator *orchestrator.Orchestrator
	amqp         *notify.AMQPNotifier
	redis        *redis.Client
}

func setupServices(ctx context.Context, cfg appconfig.Config, database *sql.DB) (*Services, error) {
	// Wire up dependency injection chain
	// Repository layer → App layer → Service layer
	clk := clockwork.NewRealClock()
	engine := clock.NewEngine(cfg.Match.Grace)
	hub := broadcast.NewHub[events.Event](broadcast.DefaultBuffer)
	s := &Services{Presets: cfg.Presets}

	// The orchestrator watches every match event and needs the App it watches
	localMatches := &orchestrator.LocalService{}
	s.orchestrator = orchestrator.NewOrchestrator(localMatches, orchestrator.Config{
		Workers:       cfg.Match.Workers,
		SweepInterval: cfg.Match.SweepInterval,
		SweepBatch:    cfg.Match.SweepBatch,
		Clock:         clk,
	})

	emitter := match.MultiEmitter{match.NewHubEmitter(hub, clk), s.orchestrator}
	if database != nil {
		outboxApp := outbox.NewApp(outbox.NewRepository(outboxdb.New(database)), clk)
		emitter = append(emitter, outboxApp)
		s.orchestrator.AddJob(orchestrator.Job{
			Name:     "outbox-purge",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				n, err := outboxApp.PurgeSent(ctx, outboxRetention)
				if n > 0 {
					log.Info().Int64("purged", n).Msg("purged sent outbox events")
				}
				return err
			},
		})
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.AMQPURL != "" {
		amqpCfg := notify.DefaultAMQPConfig()
		amqpCfg.URL = cfg.AMQPURL
		n, err := notify.NewAMQPNotifier(amqpCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AMQP notifier: %w", err)
		}
		s.amqp = n
		notifier = n
	}

	// Matches and the queue share one store so pairing can create matches
	// inside its claim
	var matchRepo match.MatchRepository
	var queueRepo pairing.QueueRepository
	if database != nil {
		repo := match.NewRepository(database)
		matchRepo = repo
		queueRepo = pairing.NewRepository(database, repo)
	} else {
		repo := match.NewMemoryRepository()
		matchRepo = repo
		queueRepo = pairing.NewMemoryRepository(repo)
	}

	matchApp := match.NewApp(matchRepo, rules.NewChessOracle(), engine, clk, emitter, notifier)
	localMatches.App = matchApp
	s.Matches = match.NewService(matchApp)

	pairingApp := pairing.NewApp(queueRepo, engine, clk, matchApp, cfg.Queue.PollInterval)
	s.Pairing = pairing.NewService(pairingApp)

	store, err := s.setupSessionStore(ctx, cfg.ClockSession)
	if err != nil {
		return nil, err
	}
	sessionApp := clocksession.NewApp(store, clk, emitter)
	s.ClockSession = clocksession.NewService(sessionApp)
	s.orchestrator.AddJob(orchestrator.Job{
		Name:     "clock-session-sweep",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			_, err := sessionApp.Sweep(ctx, clk.Now().Add(-cfg.ClockSession.TTL))
			return err
		},
	})

	s.Gateway, err = gateway.NewService(ctx, gateway.DefaultConfig(), hub, matchApp, clocksession.LocalFetcher(sessionApp))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	return s, nil
}

func (s *Services) setupSessionStore(ctx context.Context, cfg appconfig.ClockSessionConfig) (clocksession.Store, error) {
	if cfg.Store != "redis" {
		return clocksession.NewMemoryStore(), nil
	}
	s.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("clock sessions stored in redis")
	return clocksession.NewRedisStore(s.redis, cfg.TTL), nil
}

// Start runs the background workers. The returned group is done once all of
// them have stopped after ctx is cancelled.
func (s *Services) Start(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error().Err(err).Str("worker", name).Msg("background worker failed")
			}
		}()
	}

	run("orchestrator", func() error { return s.orchestrator.Run(ctx) })
	run("gateway", func() error { return s.Gateway.Start(ctx) })
	if s.amqp != nil {
		run("notifier", func() error {
			s.amqp.Run(ctx)
			return nil
		})
	}
	return &wg
}

func (s *Services) Close() {
	s.orchestrator.Close()
	if s.amqp != nil {
		if err := s.amqp.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close AMQP notifier")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}
}
