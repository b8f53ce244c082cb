package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/match/outbox"
)

// ConnectJetStream attaches the orchestrator to the match event stream. Run
// consumes from it once connected.
func (o *Orchestrator) ConnectJetStream(ctx context.Context, cfg outbox.JetStreamConfig) error {
	nc, js, err := outbox.Connect(cfg, consumerName)
	if err != nil {
		return err
	}
	if err := outbox.EnsureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}
	consumer, err := ensureConsumer(ctx, js, cfg)
	if err != nil {
		nc.Close()
		return err
	}
	o.nc = nc
	o.consumer = consumer
	return nil
}

// ensureConsumer creates or gets the durable orchestrator consumer. A new
// consumer replays the whole stream so timers are rebuilt for live matches.
func ensureConsumer(ctx context.Context, js jetstream.JetStream, cfg outbox.JetStreamConfig) (jetstream.Consumer, error) {
	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:        consumerName,
		Durable:     consumerName,
		Description: "Match orchestrator event consumer with startup replay",
		FilterSubjects: []string{
			cfg.Subject(string(events.EventTypeMatchStarted)),
			cfg.Subject(string(events.EventTypeMoveMade)),
			cfg.Subject(string(events.EventTypeMatchCompleted)),
		},
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    consumerMaxDeliver,
		AckWait:       consumerAckWait,
		MaxAckPending: consumerMaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Msg("created JetStream consumer for orchestrator")
	} else {
		log.Info().Msg("using existing JetStream consumer for orchestrator")
	}
	return consumer, nil
}

// processMessage decodes one relayed event and handles it.
func (o *Orchestrator) processMessage(ctx context.Context, msg jetstream.Msg) error {
	var evt events.Event
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject()).
		Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Msg("processing orchestrator event")

	return o.HandleEvent(ctx, evt)
}
