package txkafka

import (
	"context"
	"reflect"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/consumer"
	"github.com/txkafka/txkafka/pkg/host"
	"github.com/txkafka/txkafka/pkg/kafkabroker/adapters/sarama"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/outbox"
	"github.com/txkafka/txkafka/pkg/producer"
	"github.com/txkafka/txkafka/pkg/serializer"
	jsonadapter "github.com/txkafka/txkafka/pkg/serializer/adapters/json"
)

// Register binds one message type T into mod: it assembles the producer
// pipeline, wires an outbox dispatcher (or leaves the forget stage to run
// inline), builds the consumer chain, and places the resulting TypeBinding
// on the shared consumer group or a dedicated one it dials for this type
// alone (cfg.ExclusiveConnection). Call Register for every type before
// mod.StartConsuming. codec defaults to the built-in JSON codec when no
// override is passed (spec.md §4.1: a type that registers no custom codec
// serializes as JSON).
func Register[T any](mod *Module, cfg config.TypeConfig[T], codec ...serializer.Codec) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var c serializer.Codec = jsonadapter.New[T]()
	if len(codec) > 0 && codec[0] != nil {
		c = codec[0]
	}
	if err := serializer.Register[T](mod.registry, cfg.TypeID, c); err != nil {
		return err
	}

	persistStage := selectPersistStage(cfg)

	pipeline, err := producer.Build(cfg, mod.registry, mod.broker.Producer, persistStage)
	if err != nil {
		return err
	}

	if cfg.Outbox != config.OutboxDisabled {
		mod.pollEngine.RegisterDispatcher(cfg.TypeID, cfg.Topic, producer.NewRawExecutor(mod.broker.Producer, cfg.Topic))
	}

	binding, err := consumer.NewTypeBinding(cfg, mod.registry)
	if err != nil {
		return err
	}

	group := mod.sharedConsumer
	if cfg.ExclusiveConnection {
		group, err = mod.dialExclusiveGroup(cfg.TypeID)
		if err != nil {
			return err
		}
	}
	group.Register(binding)

	var zero T
	goType := reflect.TypeOf(zero)
	mod.mu.Lock()
	mod.types[goType] = registeredType{
		usesOutbox: cfg.Outbox != config.OutboxDisabled,
		publish: func(ctx context.Context, msg any) error {
			return pipeline.Publish(ctx, msg.(T))
		},
	}
	mod.mu.Unlock()

	return nil
}

func selectPersistStage[T any](cfg config.TypeConfig[T]) middleware.Stage {
	if cfg.Outbox != config.OutboxDisabled {
		return outbox.NewStage(cfg.Topic, cfg.Outbox)
	}
	return producer.NewForgetStage(cfg.Forget, cfg.ForgetTimeout)
}

// dialExclusiveGroup dials a dedicated sarama consumer group for one
// ExclusiveConnection type (spec.md §4.7: "a type may opt out of the
// shared connection entirely"), under its own group ID derived from the
// broker's ClientID so it never collides with the shared group or another
// exclusive type.
func (m *Module) dialExclusiveGroup(typeID string) (*consumer.Group, error) {
	groupID := m.cfg.ClientID + "-" + typeID
	client, err := sarama.NewConsumerGroup(m.cfg.Brokers, groupID, sarama.NewConfig())
	if err != nil {
		return nil, err
	}
	group := consumer.NewGroup(client, m.db)
	m.exclusiveGroups = append(m.exclusiveGroups, group)
	return group, nil
}

// Publish sends msg through T's registered producer pipeline (spec.md
// §4.3). If ctx carries a host.Scope (attached by the caller around a
// business transaction via host.WithScope/Module.NewScope), the call is
// queued instead of run inline: an outbox-bound command enlists in the
// business transaction before commit, a forget-bound command runs once the
// transaction has committed (spec.md §4.4, §4.11). Outside of any scope,
// Publish runs the pipeline immediately.
func Publish[T any](ctx context.Context, mod *Module, msg T) error {
	rt, err := lookup[T](mod)
	if err != nil {
		return err
	}

	scope, ok := host.ScopeFrom(ctx)
	if !ok {
		return rt.publish(ctx, msg)
	}

	scope.Enqueue(host.Command{
		UsesOutbox: rt.usesOutbox,
		Run: func(ctx context.Context) error {
			return rt.publish(ctx, msg)
		},
	})
	return nil
}
