package consumer

import (
	"sync/atomic"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/envelope"
)

// ConsumeTask bundles a rehydrated envelope with the broker coordinates
// needed to store its offset once the pipeline has finished with it.
type ConsumeTask struct {
	Env       *envelope.Envelope
	Topic     string
	Partition int32
	Offset    int64
}

// PerTypeChannel is the bounded buffer between the shared poll loop and
// one message type's worker goroutine (spec.md §3, §4.7). The poll loop
// consults Count against HighWaterMark/LowWaterMark to decide when to
// Pause/Resume this type's partitions; the channel itself only tracks the
// count and applies FullMode when genuinely full.
type PerTypeChannel struct {
	ch            chan *ConsumeTask
	highWaterMark int
	lowWaterMark  int
	fullMode      config.FullModePolicy
	count         atomic.Int64
}

// NewPerTypeChannel builds a channel sized capacity, watermarked at high/low.
func NewPerTypeChannel(capacity, high, low int, fullMode config.FullModePolicy) *PerTypeChannel {
	return &PerTypeChannel{
		ch:            make(chan *ConsumeTask, capacity),
		highWaterMark: high,
		lowWaterMark:  low,
		fullMode:      fullMode,
	}
}

// Enqueue adds task to the channel. Under FullModeWait this blocks when the
// channel's underlying buffer is genuinely full (Pause/Resume is what's
// meant to keep that from happening); under FullModeDropOldest it evicts
// the oldest buffered task to make room instead of blocking; under
// FullModeDropNewest it silently discards task instead of blocking.
func (c *PerTypeChannel) Enqueue(task *ConsumeTask) {
	switch c.fullMode {
	case config.FullModeDropOldest:
		select {
		case c.ch <- task:
			c.count.Add(1)
			return
		default:
		}
		select {
		case <-c.ch:
			c.count.Add(-1)
		default:
		}
		c.ch <- task
		c.count.Add(1)
	case config.FullModeDropNewest:
		select {
		case c.ch <- task:
			c.count.Add(1)
		default:
		}
	default:
		c.ch <- task
		c.count.Add(1)
	}
}

// Dequeue blocks for the next task, false once the channel is closed.
func (c *PerTypeChannel) Dequeue() (*ConsumeTask, bool) {
	task, ok := <-c.ch
	if ok {
		c.count.Add(-1)
	}
	return task, ok
}

// Count reports the number of buffered, undelivered envelopes.
func (c *PerTypeChannel) Count() int64 { return c.count.Load() }

// AtOrAboveHigh reports whether Count has reached HighWaterMark.
func (c *PerTypeChannel) AtOrAboveHigh() bool { return c.count.Load() >= int64(c.highWaterMark) }

// AtOrBelowLow reports whether Count has drained to LowWaterMark or below.
func (c *PerTypeChannel) AtOrBelowLow() bool { return c.count.Load() <= int64(c.lowWaterMark) }

// Close closes the underlying channel, unblocking any Dequeue caller.
func (c *PerTypeChannel) Close() { close(c.ch) }
