// Package producer assembles and drives the producer-side middleware chain
// (spec.md §4.1, §4.3): serialize, user stages, trace-inject, the
// outbox-or-forget persistence stage, and the terminal kafka-produce stage.
package producer

import (
	"context"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/kafkabroker"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/serializer"
)

// Pipeline is the assembled producer chain for one registered message type,
// built once at startup and safe for concurrent Publish calls.
type Pipeline[T any] struct {
	cfg   config.TypeConfig[T]
	chain *middleware.Chain
}

// Build assembles the full producer chain for T. persistStage is the
// outbox-or-forget stage already selected for this type by the caller
// (pkg/txkafka, via NewForgetStage or the outbox package's own stage
// constructor) — kept as a parameter rather than built here so this
// package never needs to import pkg/outbox (see NewRawExecutor for the
// other half of that cycle break).
func Build[T any](cfg config.TypeConfig[T], registry *serializer.Registry, client kafkabroker.ProducerClient, persistStage middleware.Stage) (*Pipeline[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stages := make([]middleware.Stage, 0, 4+len(cfg.ProducerMiddleware))
	stages = append(stages, serializeStage(registry))
	stages = append(stages, cfg.ProducerMiddleware...)
	stages = append(stages, traceInjectStage())
	stages = append(stages, persistStage)
	stages = append(stages, kafkaProduceStage(client, cfg.Topic))

	chain := middleware.New(stages...)
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline[T]{cfg: cfg, chain: chain}, nil
}

// Publish builds an envelope around msg using the configured key/header
// accessors and traverses the producer chain (spec.md §4.3).
func (p *Pipeline[T]) Publish(ctx context.Context, msg T) error {
	env := envelope.New(msg, p.cfg.TypeID)
	if p.cfg.KeyAccessor != nil {
		if key, hasKey := p.cfg.KeyAccessor(msg); hasKey {
			env.Key = key
			env.HasKey = true
		}
	}
	for name, accessor := range p.cfg.HeaderAccessors {
		env.Headers.SetString(name, accessor(msg))
	}
	return p.chain.Invoke(ctx, env)
}

// Len reports the number of stages in the assembled chain, mostly useful
// for tests asserting the producer chain shape.
func (p *Pipeline[T]) Len() int {
	return p.chain.Len()
}
