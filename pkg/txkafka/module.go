// Package txkafka is the public entry point (spec.md §4.12): it assembles
// the serializer registry, the producer and consumer pipelines, the outbox
// poll engine, the coordination strategy, and the save-changes hook into one
// Module, and exposes the generic Register/Publish pair callers use to wire
// up one message type at a time.
package txkafka

import (
	"context"
	"reflect"
	"sync"

	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/consumer"
	"github.com/txkafka/txkafka/pkg/coordination"
	"github.com/txkafka/txkafka/pkg/errors"
	"github.com/txkafka/txkafka/pkg/host"
	"github.com/txkafka/txkafka/pkg/kafkabroker"
	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/outbox"
	"github.com/txkafka/txkafka/pkg/serializer"
)

// Error codes for module-level failures.
const (
	CodeNotRegistered = "TXKAFKA_TYPE_NOT_REGISTERED"
)

// registeredType is the type-erased boundary Publish dispatches through,
// keyed by the message's reflect.Type so Publish[T] never needs Module to
// be generic itself (the same type-erasure pattern as outbox.Dispatcher and
// host.Command.Run).
type registeredType struct {
	usesOutbox bool
	publish    func(ctx context.Context, msg any) error
}

// Module bundles every process-singleton this library needs: the broker
// connection, the host database, the serializer registry, the outbox poll
// engine, the consumer group(s), the coordination strategy, and the
// save-changes hook Publish threads its outbox commands through.
type Module struct {
	db     *gorm.DB
	broker *kafkabroker.Broker
	cfg    config.BrokerConfig

	registry   *serializer.Registry
	pollEngine *outbox.PollEngine
	hook       *host.SaveChangesHook

	sharedConsumer  *consumer.Group
	exclusiveGroups []*consumer.Group
	coordNode       *coordination.ExclusiveNode

	mu    sync.RWMutex
	types map[reflect.Type]registeredType

	started sync.Once
}

// New assembles a Module around an already-open host database and broker
// connection, neither of which Module takes ownership of constructing (the
// caller opens them via pkg/gormstore/connect and pkg/kafkabroker/adapters/
// sarama respectively, matching spec.md §5's "bring your own client"
// stance). The coordination strategy is SingleNode unless cfg requests
// ExclusiveCoordination, in which case a coordination consumer group is
// started immediately so the poll engine never ticks before leadership is
// known either way.
func New(db *gorm.DB, broker *kafkabroker.Broker, cfg config.BrokerConfig) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mod := &Module{
		db:       db,
		broker:   broker,
		cfg:      cfg,
		registry: serializer.NewRegistry(),
		types:    make(map[reflect.Type]registeredType),
	}

	strategy, coordNode, err := buildCoordinationStrategy(cfg, broker)
	if err != nil {
		return nil, err
	}
	mod.coordNode = coordNode

	mod.pollEngine = outbox.NewPollEngine(db, outbox.PollEngineConfig{
		PollingInterval:      cfg.OutboxPollingInterval,
		MaxRowsPerTick:       cfg.OutboxMaxRowsPerTick,
		CoordinationStrategy: strategy,
		ShutdownDrainTimeout: cfg.ShutdownDrainTimeout,
	})
	mod.hook = host.NewSaveChangesHook(db, mod.pollEngine)
	mod.sharedConsumer = consumer.NewGroup(broker.Consumer, db)

	return mod, nil
}

func buildCoordinationStrategy(cfg config.BrokerConfig, broker *kafkabroker.Broker) (coordination.Strategy, *coordination.ExclusiveNode, error) {
	if !cfg.ExclusiveCoordination {
		return coordination.SingleNode{}, nil, nil
	}

	node, err := coordination.NewExclusiveNode(coordination.ExclusiveConfig{
		Brokers:           cfg.Brokers,
		TopicName:         cfg.CoordinationTopic,
		GroupID:           cfg.CoordinationGroupID,
		HeartbeatInterval: cfg.CoordinationHeartbeatInterval,
		SessionTimeout:    cfg.CoordinationSessionTimeout,
		AutoCreateTopic:   cfg.AutoCreateTopics,
	}, broker.Producer, broker.Admin)
	if err != nil {
		return nil, nil, err
	}
	return node, node, nil
}

// StartConsuming subscribes and launches every registered consumer group's
// poll loop: the shared group first, then any group a type requested
// ExclusiveConnection for (spec.md §4.7).
func (m *Module) StartConsuming(ctx context.Context) error {
	var err error
	m.started.Do(func() {
		if err = m.sharedConsumer.Start(ctx); err != nil {
			return
		}
		for _, g := range m.exclusiveGroups {
			if err = g.Start(ctx); err != nil {
				return
			}
		}
	})
	return err
}

// SaveChanges runs businessSave inside the host's transaction and drains
// whatever this ctx's host.Scope accumulated, via the two-phase ordering
// pkg/host.SaveChangesHook implements (spec.md §4.11). Callers create the
// scope with NewScope/WithScope before the business logic that may call
// Publish runs.
func (m *Module) SaveChanges(ctx context.Context, scope *host.Scope, businessSave func(tx *gorm.DB) error) error {
	return m.hook.Save(ctx, scope, businessSave)
}

// NewScope returns a fresh per-unit-of-work command queue, for callers to
// attach via host.WithScope before invoking business logic that publishes.
func (m *Module) NewScope() *host.Scope {
	return host.NewScope()
}

// Close stops the poll engine and every consumer group, then closes the
// coordination node and the broker connection.
func (m *Module) Close() error {
	m.pollEngine.Stop()
	m.sharedConsumer.Stop()
	for _, g := range m.exclusiveGroups {
		g.Stop()
	}
	if m.coordNode != nil {
		if err := m.coordNode.Close(); err != nil {
			logger.L().Error("failed to close coordination node", "error", err)
		}
	}
	return m.broker.Close()
}

func lookup[T any](m *Module) (registeredType, error) {
	var zero T
	goType := reflect.TypeOf(zero)

	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.types[goType]
	if !ok {
		return registeredType{}, errors.New(CodeNotRegistered, "message type not registered with txkafka.Register", nil)
	}
	return rt, nil
}
