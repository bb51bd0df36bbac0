package consumer

import (
	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/inbox"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/serializer"
)

// BuildChain assembles the full consumer chain for T (spec.md §4.9):
// trace-extract, deserialize, user-registered stages, header-filter,
// inbox dedup, handler. cfg must already be validated/defaulted (see
// NewTypeBinding).
func BuildChain[T any](cfg config.TypeConfig[T], registry *serializer.Registry) (*middleware.Chain, error) {
	stages := make([]middleware.Stage, 0, 5+len(cfg.ConsumerMiddleware))
	stages = append(stages, traceExtractStage())
	stages = append(stages, deserializeStage(registry))
	stages = append(stages, cfg.ConsumerMiddleware...)
	stages = append(stages, headerFilterStage(cfg.HeaderFilters))
	stages = append(stages, inbox.NewStage[T](cfg.TypeID, cfg.Dedup))
	stages = append(stages, handlerStage(cfg.Handler))

	chain := middleware.New(stages...)
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return chain, nil
}

// TypeBinding is the type-erased runtime state the Group needs for one
// registered message type: the assembled chain plus its own buffered
// channel and circuit breaker. Type-erased deliberately, so Group (which
// multiplexes every registered type) never needs to be generic itself.
type TypeBinding struct {
	TypeID              string
	Topic               string
	Chain               *middleware.Chain
	Channel             *PerTypeChannel
	Breaker             *CircuitBreaker
	ExclusiveConnection bool
}

// NewTypeBinding validates cfg, builds its chain, and wraps it with a
// fresh channel and circuit breaker sized per cfg.
func NewTypeBinding[T any](cfg config.TypeConfig[T], registry *serializer.Registry) (*TypeBinding, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chain, err := BuildChain(cfg, registry)
	if err != nil {
		return nil, err
	}
	return &TypeBinding{
		TypeID:              cfg.TypeID,
		Topic:               cfg.Topic,
		Chain:               chain,
		Channel:             NewPerTypeChannel(cfg.Capacity, cfg.HighWaterMark, cfg.LowWaterMark, cfg.FullMode),
		Breaker:             NewCircuitBreaker(cfg.CircuitBreaker),
		ExclusiveConnection: cfg.ExclusiveConnection,
	}, nil
}
