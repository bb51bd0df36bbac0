package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/coordination"
	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/gormstore"
	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/resilience"
)

// Dispatcher re-publishes one rehydrated outbox row. The concrete
// implementation comes from producer.NewRawExecutor, kept as a plain
// function type here (rather than importing pkg/producer) so pkg/outbox
// and pkg/producer never import each other; pkg/txkafka wires the two
// together.
type Dispatcher func(ctx context.Context, env *envelope.Envelope) error

// PollEngineConfig tunes one PollEngine (spec.md §4.5).
type PollEngineConfig struct {
	PollingInterval      time.Duration
	MaxRowsPerTick       int
	CoordinationStrategy coordination.Strategy
	ShutdownDrainTimeout time.Duration
}

func (c *PollEngineConfig) applyDefaults() {
	if c.PollingInterval <= 0 {
		c.PollingInterval = time.Second
	}
	if c.MaxRowsPerTick <= 0 {
		c.MaxRowsPerTick = 100
	}
	if c.CoordinationStrategy == nil {
		c.CoordinationStrategy = coordination.SingleNode{}
	}
	if c.ShutdownDrainTimeout <= 0 {
		c.ShutdownDrainTimeout = 5 * time.Second
	}
}

// PollEngine is the per-host-context-type singleton that drains the outbox
// table (spec.md §4.5). Registration (via Start) is idempotent: a second
// call on an already-started engine is a no-op.
type PollEngine struct {
	db  *gorm.DB
	cfg PollEngineConfig

	dispatchers map[string]dispatchEntry

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type dispatchEntry struct {
	topic      string
	dispatcher Dispatcher

	// breaker fast-fails redispatch for a type whose destination is
	// persistently unreachable, instead of re-attempting every pending
	// row of that type on every single tick.
	breaker *resilience.CircuitBreaker

	// retry absorbs transient produce errors (broker timeouts, leader
	// elections) within a single tick before a row's failure is recorded
	// and left for the next tick.
	retry resilience.RetryConfig
}

// NewPollEngine builds an engine bound to db, not yet started.
func NewPollEngine(db *gorm.DB, cfg PollEngineConfig) *PollEngine {
	cfg.applyDefaults()
	return &PollEngine{db: db, cfg: cfg, dispatchers: make(map[string]dispatchEntry)}
}

// RegisterDispatcher binds typeID to the dispatcher that re-publishes its
// rows, skipping the outbox-insert stage (spec.md §4.5 step 3: "dispatch
// uses a precomputed type→executor mapping").
func (e *PollEngine) RegisterDispatcher(typeID, topic string, dispatcher Dispatcher) {
	e.dispatchers[typeID] = dispatchEntry{
		topic:      topic,
		dispatcher: dispatcher,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("outbox-dispatch:" + typeID)),
		retry:      resilience.DefaultRetryConfig(),
	}
}

// Start begins the ticker loop if it isn't already running. Safe to call
// more than once; only the first call has any effect (spec.md §4.5:
// "Registration is idempotent (compare-and-swap on a started flag)").
func (e *PollEngine) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx)
}

func (e *PollEngine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *PollEngine) tick(ctx context.Context) {
	scoped, ok := e.cfg.CoordinationStrategy.Scope(e.db.WithContext(ctx))
	if !ok {
		return
	}

	var rows []gormstore.OutboxRow
	if err := scoped.Where("is_success = ?", false).
		Order("sequence_number ASC").
		Limit(e.cfg.MaxRowsPerTick).
		Find(&rows).Error; err != nil {
		logger.L().ErrorContext(ctx, "outbox poll: failed to fetch rows", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	// Dispatches are initiated in ascending sequence_number order, and the
	// next row's dispatch is not started until this one's has been (spec.md
	// §5, §8): per-partition Kafka ordering depends on produce calls being
	// issued in the order their rows were sequenced.
	for i := range rows {
		row := &rows[i]
		entry, ok := e.dispatchers[row.TypeID]
		if !ok {
			logger.L().WarnContext(ctx, "outbox poll: no dispatcher registered for type, skipping", "type", row.TypeID, "sequence_number", row.SequenceNumber)
			continue
		}
		e.dispatchRow(ctx, row, entry)
	}
}

func (e *PollEngine) dispatchRow(ctx context.Context, row *gormstore.OutboxRow, entry dispatchEntry) {
	env, err := row.ToEnvelope()
	if err != nil {
		logger.L().ErrorContext(ctx, "outbox poll: failed to rehydrate row", "sequence_number", row.SequenceNumber, "error", err)
		return
	}

	err = resilience.RetryWithCircuitBreaker(ctx, entry.breaker, entry.retry, func(ctx context.Context) error {
		return entry.dispatcher(ctx, env)
	})
	if err != nil {
		row.Retries++
		if saveErr := e.db.WithContext(ctx).Model(row).Update("retries", row.Retries).Error; saveErr != nil {
			logger.L().ErrorContext(ctx, "outbox poll: failed to record retry", "sequence_number", row.SequenceNumber, "error", saveErr)
		}
		return
	}

	now := time.Now()
	if err := e.db.WithContext(ctx).Model(row).Updates(map[string]any{"is_success": true, "processed_at": &now}).Error; err != nil {
		logger.L().ErrorContext(ctx, "outbox poll: failed to mark row success", "sequence_number", row.SequenceNumber, "error", err)
	}
}

// Stop cancels the loop and waits up to ShutdownDrainTimeout for the
// current tick to finish (spec.md §4.5 shutdown semantics).
func (e *PollEngine) Stop() {
	if !e.started.Load() {
		return
	}
	e.cancel()
	select {
	case <-e.done:
	case <-time.After(e.cfg.ShutdownDrainTimeout):
	}
}
