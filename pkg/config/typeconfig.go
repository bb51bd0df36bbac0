package config

import (
	"time"

	"github.com/txkafka/txkafka/pkg/middleware"
)

// OutboxStrategy selects how the outbox stage behaves for a message type
// (spec.md §4.4).
type OutboxStrategy int

const (
	OutboxDisabled OutboxStrategy = iota
	OutboxBackgroundOnly
	OutboxImmediateWithFallback
)

// ForgetStrategy selects how the forget stage behaves for a message type.
// Forget only runs when Outbox is OutboxDisabled (spec.md §4.4).
type ForgetStrategy int

const (
	ForgetDisabled ForgetStrategy = iota
	ForgetAwait
	ForgetFireAndForget
)

// FullModePolicy governs what a consumer's poll loop does when a per-type
// channel's buffer is at Capacity and a new record arrives for it.
// Reaching HighWaterMark alone only triggers Pause; it does not apply this
// policy.
type FullModePolicy int

const (
	// FullModeWait blocks the channel write (and therefore the shared
	// poll loop) until the reader frees a slot. This is the default: it
	// relies on Pause/Resume to keep the broker from sending more than the
	// channel can hold.
	FullModeWait FullModePolicy = iota
	// FullModeDropOldest discards the oldest buffered record to make room.
	// Only meaningful for message types where staleness is acceptable.
	FullModeDropOldest
	// FullModeDropNewest discards the arriving record itself, leaving the
	// buffered backlog untouched.
	FullModeDropNewest
)

// CircuitBreakerConfig tunes the per-type consumer circuit breaker
// (spec.md §4.8).
type CircuitBreakerConfig struct {
	WindowSize      int
	TripThreshold   int
	ActiveThreshold int
	ResetInterval   time.Duration
}

// DefaultCircuitBreakerConfig returns the spec's documented defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		WindowSize:      10,
		TripThreshold:   5,
		ActiveThreshold: 1,
		ResetInterval:   30 * time.Second,
	}
}

// Validate enforces spec.md §4.8's invariant:
// 1 <= TripThreshold <= WindowSize, ActiveThreshold >= 1, ResetInterval > 0.
func (c CircuitBreakerConfig) Validate() error {
	if c.WindowSize <= 0 {
		return errConfigInvalid("CircuitBreaker.WindowSize must be > 0")
	}
	if c.TripThreshold < 1 || c.TripThreshold > c.WindowSize {
		return errConfigInvalid("CircuitBreaker.TripThreshold must be between 1 and WindowSize")
	}
	if c.ActiveThreshold < 1 {
		return errConfigInvalid("CircuitBreaker.ActiveThreshold must be >= 1")
	}
	if c.ResetInterval <= 0 {
		return errConfigInvalid("CircuitBreaker.ResetInterval must be > 0")
	}
	return nil
}

// DedupConfig configures inbox deduplication for one message type
// (spec.md §4.10). FingerprintAccessor projects the business keys that
// identify a logical event. TypeConfig.Validate rejects Enabled with a nil
// accessor; the inbox stage itself, built directly, treats a nil accessor
// as no dedup.
type DedupConfig[T any] struct {
	Enabled             bool
	FingerprintAccessor func(T) any
	RetentionWindow     time.Duration
}

// TypeConfig is the full per-message-type configuration assembled by
// txkafka.Register[T] (spec.md §4.12). It carries the compiled accessors
// spec.md's source built via expression trees; here they're plain
// first-class functions, Go's natural replacement (SPEC_FULL.md §9).
type TypeConfig[T any] struct {
	TypeID string
	Topic  string

	// KeyAccessor returns (key, hasKey). A nil accessor means "no key".
	KeyAccessor func(T) (string, bool)
	// HeaderAccessors must be cheap: evaluated on every produce.
	HeaderAccessors map[string]func(T) string

	Outbox        OutboxStrategy
	Forget        ForgetStrategy
	ForgetTimeout time.Duration

	Dedup DedupConfig[T]

	// Capacity, HighWaterMark, LowWaterMark bound this type's consumer
	// channel (spec.md §3 PerTypeChannel, §4.7).
	Capacity      int
	HighWaterMark int
	LowWaterMark  int
	FullMode      FullModePolicy

	CircuitBreaker CircuitBreakerConfig

	// HeaderFilters: envelope must carry each (key, value) with
	// case-insensitive value comparison, or the consumer pipeline
	// short-circuits (spec.md §4.9).
	HeaderFilters map[string]string

	// ExclusiveConnection requests a dedicated consumer for this type
	// instead of sharing the process consumer (spec.md §4.7).
	ExclusiveConnection bool

	ProducerMiddleware []middleware.Stage
	ConsumerMiddleware []middleware.Stage

	Handler func(T) error
}

// applyDefaults fills zero-valued tunables with spec-documented defaults.
func (c *TypeConfig[T]) applyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = 10000
	}
	if c.HighWaterMark == 0 {
		c.HighWaterMark = int(float64(c.Capacity) * 0.8)
	}
	if c.LowWaterMark == 0 {
		c.LowWaterMark = int(float64(c.Capacity) * 0.2)
	}
	if c.CircuitBreaker == (CircuitBreakerConfig{}) {
		c.CircuitBreaker = DefaultCircuitBreakerConfig()
	}
	if c.Forget == ForgetDisabled && c.Outbox == OutboxDisabled {
		// Neither configured: default to AwaitForget with a conservative
		// timeout so Publish never blocks indefinitely on a dead broker.
		c.Forget = ForgetAwait
		if c.ForgetTimeout == 0 {
			c.ForgetTimeout = 5 * time.Second
		}
	}
}

// Validate enforces per-type invariants, most importantly the mutual
// exclusivity of Outbox and Forget (spec.md §4.4, Open Question resolved
// in SPEC_FULL.md §9: configuring both is rejected here rather than
// silently preferring outbox).
func (c *TypeConfig[T]) Validate() error {
	c.applyDefaults()

	if c.TypeID == "" {
		return errConfigInvalid("TypeConfig.TypeID is required")
	}
	if c.Topic == "" {
		return errConfigInvalid("TypeConfig.Topic is required for type " + c.TypeID)
	}
	if c.Outbox != OutboxDisabled && c.Forget != ForgetDisabled {
		return errConfigInvalid("type " + c.TypeID + " configures both outbox and forget; only one may be set")
	}
	if c.Capacity <= 0 {
		return errConfigInvalid("TypeConfig.Capacity must be > 0 for type " + c.TypeID)
	}
	if c.HighWaterMark <= c.LowWaterMark {
		return errConfigInvalid("HighWaterMark must be greater than LowWaterMark for type " + c.TypeID)
	}
	if c.HighWaterMark > c.Capacity {
		return errConfigInvalid("HighWaterMark must not exceed Capacity for type " + c.TypeID)
	}
	if c.Dedup.Enabled && c.Dedup.FingerprintAccessor == nil {
		return errConfigInvalid("Dedup.Enabled requires a FingerprintAccessor for type " + c.TypeID)
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		return err
	}
	return nil
}
