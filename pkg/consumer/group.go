// Package consumer implements the consumer-side poll loop (spec.md §4.7)
// and the per-type middleware chain (spec.md §4.9) it drives.
package consumer

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/host"
	"github.com/txkafka/txkafka/pkg/kafkabroker"
	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/txscope"
)

// pollTimeout is how long one Poll call blocks before returning (nil, nil)
// to let the loop re-check breaker/backpressure state and keep the
// underlying consumer group's session alive.
const pollTimeout = 200 * time.Millisecond

// Group multiplexes one shared kafkabroker.ConsumerClient across every
// registered message type sharing it, routing each record to its type's
// PerTypeChannel and running one worker goroutine per type (spec.md §3,
// §4.7). A type with ExclusiveConnection gets its own Group instead (see
// pkg/txkafka wiring).
type Group struct {
	client kafkabroker.ConsumerClient
	db     *gorm.DB

	bindings       map[string]*TypeBinding
	topicToTypeIDs map[string][]string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewGroup builds an (unstarted) Group over client. Business handlers run
// inside a transaction on db, so the inbox row and the handler's own
// writes commit atomically.
func NewGroup(client kafkabroker.ConsumerClient, db *gorm.DB) *Group {
	return &Group{
		client:         client,
		db:             db,
		bindings:       make(map[string]*TypeBinding),
		topicToTypeIDs: make(map[string][]string),
	}
}

// Register adds a type to this group. Call before Start.
func (g *Group) Register(b *TypeBinding) {
	g.bindings[b.TypeID] = b
	g.topicToTypeIDs[b.Topic] = append(g.topicToTypeIDs[b.Topic], b.TypeID)
}

// Start subscribes to every registered type's topic and launches the
// shared poll loop plus one worker goroutine per type.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil
	}

	topics := make([]string, 0, len(g.topicToTypeIDs))
	for topic := range g.topicToTypeIDs {
		topics = append(topics, topic)
	}
	if err := g.client.Subscribe(topics); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.started = true

	for _, b := range g.bindings {
		b := b
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.worker(runCtx, b)
		}()
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.pollLoop(runCtx)
	}()
	return nil
}

// Stop cancels the poll loop and every worker, then waits for them to
// drain.
func (g *Group) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
	for _, b := range g.bindings {
		b.Channel.Close()
	}
}

// pollLoop is the single goroutine that calls Poll, routes each record by
// its $type header to the matching type's channel, and reconciles
// Pause/Resume against both backpressure and each type's circuit breaker
// (spec.md §4.7, §4.8).
func (g *Group) pollLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		g.reconcilePauseState(ctx)

		rec, err := g.client.Poll(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L().ErrorContext(ctx, "consumer poll failed", "error", err)
			continue
		}
		if rec == nil {
			continue // timeout: no record, but still a chance to reconcile pause state above
		}

		typeID := string(rec.Headers[envelope.HeaderType])
		b, ok := g.bindings[typeID]
		if !ok {
			logger.L().WarnContext(ctx, "consumer: record for unregistered type, skipping", "type", typeID, "topic", rec.Topic)
			continue
		}

		env := &envelope.Envelope{
			Headers: headersFromRaw(rec.Headers),
			Payload: rec.Value,
			Key:     string(rec.Key),
			HasKey:  rec.Key != nil,
			TypeID:  typeID,
		}
		b.Channel.Enqueue(&ConsumeTask{Env: env, Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset})
	}
}

// reconcilePauseState asks the broker client, on every pass, to Pause every
// type whose backpressure or circuit breaker requires it and to Resume
// every type at or below its low mark with a breaker that is not Open. No
// previous state is kept, so the same request repeats on each pass.
func (g *Group) reconcilePauseState(ctx context.Context) {
	var toPause, toResume []string
	for _, b := range g.bindings {
		mustPause := b.Channel.AtOrAboveHigh() || b.Breaker.RequiresPause()
		if mustPause {
			toPause = append(toPause, b.Topic)
		} else if b.Channel.AtOrBelowLow() && !b.Breaker.IsOpen() {
			toResume = append(toResume, b.Topic)
		}
	}
	if len(toPause) > 0 {
		if err := g.client.Pause(toPause); err != nil {
			logger.L().ErrorContext(ctx, "consumer: pause failed", "topics", toPause, "error", err)
		}
	}
	if len(toResume) > 0 {
		if err := g.client.Resume(toResume); err != nil {
			logger.L().ErrorContext(ctx, "consumer: resume failed", "topics", toResume, "error", err)
		}
	}
}

// worker drains one type's channel, driving its pipeline once per task
// inside a transaction so the inbox row and the handler's own writes
// commit together, then stores the offset (spec.md §4.9 step 7).
func (g *Group) worker(ctx context.Context, b *TypeBinding) {
	for {
		task, ok := b.Channel.Dequeue()
		if !ok {
			return
		}
		g.process(ctx, b, task)
	}
}

func (g *Group) process(ctx context.Context, b *TypeBinding, task *ConsumeTask) {
	scope := host.NewScope()
	scopedCtx := host.WithScope(ctx, scope)

	err := g.db.Transaction(func(tx *gorm.DB) error {
		txCtx := txscope.With(scopedCtx, tx)
		return b.Chain.Invoke(txCtx, task.Env)
	})

	b.Breaker.RecordOutcome(err == nil)

	if err != nil {
		logger.L().ErrorContext(ctx, "consumer: pipeline invocation failed, record will be redelivered", "type", b.TypeID, "topic", task.Topic, "partition", task.Partition, "offset", task.Offset, "error", err)
		return
	}

	_, postCommit := scope.Drain()
	for _, cmd := range postCommit {
		if err := cmd.Run(ctx); err != nil {
			logger.L().ErrorContext(ctx, "consumer: post-handler publish failed", "type", b.TypeID, "error", err)
		}
	}

	if err := g.client.StoreOffset(task.Topic, task.Partition, task.Offset+1); err != nil {
		logger.L().ErrorContext(ctx, "consumer: failed to store offset", "topic", task.Topic, "partition", task.Partition, "offset", task.Offset, "error", err)
	}
}

func headersFromRaw(raw map[string][]byte) *envelope.Headers {
	headers := envelope.NewHeaders()
	if v, ok := raw[envelope.HeaderType]; ok {
		headers.Set(envelope.HeaderType, v)
	}
	for k, v := range raw {
		if k == envelope.HeaderType {
			continue
		}
		headers.Set(k, v)
	}
	return headers
}
