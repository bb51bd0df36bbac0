// Package envelope defines the transient carrier that moves a message
// through the producer and consumer middleware chains.
//
// An Envelope lives only for the duration of one chain traversal: it is
// built at the head of the chain (serialize, or extract-trace on the
// consumer side) and discarded once the terminal stage (kafka-produce, or
// handler invocation) returns.
package envelope

// Built-in header keys written and read by the core stages.
const (
	HeaderType        = "$type"
	HeaderRuntimeType = "$runtimeType"
	HeaderTraceParent = "traceparent"
	HeaderTraceState  = "tracestate"
)

// Headers is an ordered, case-sensitive mapping of header name to raw bytes.
// Kafka headers are unordered on the wire, but within one Envelope's
// lifetime the map preserves insertion order via Keys().
type Headers struct {
	values map[string][]byte
	order  []string
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string][]byte)}
}

// Set stores value under key, appending key to the insertion order if new.
func (h *Headers) Set(key string, value []byte) {
	if _, exists := h.values[key]; !exists {
		h.order = append(h.order, key)
	}
	h.values[key] = value
}

// SetString is a convenience wrapper around Set for string values.
func (h *Headers) SetString(key, value string) {
	h.Set(key, []byte(value))
}

// Get returns the raw bytes for key and whether it was present.
func (h *Headers) Get(key string) ([]byte, bool) {
	v, ok := h.values[key]
	return v, ok
}

// GetString returns the string form of key's value, or "" if absent.
func (h *Headers) GetString(key string) string {
	v, ok := h.values[key]
	if !ok {
		return ""
	}
	return string(v)
}

// Keys returns header names in insertion order.
func (h *Headers) Keys() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Len reports the number of headers.
func (h *Headers) Len() int {
	return len(h.values)
}

// Snapshot returns an immutable string->string copy, frozen at call time.
// Used to persist HeadersSnapshot on an outbox row.
func (h *Headers) Snapshot() map[string]string {
	out := make(map[string]string, len(h.values))
	for k, v := range h.values {
		out[k] = string(v)
	}
	return out
}

// FromSnapshot rebuilds a Headers set from a persisted string->string map,
// preserving the original insertion order isn't possible (maps don't
// remember it), so callers that need ordering restore $type first.
func FromSnapshot(snapshot map[string]string) *Headers {
	h := NewHeaders()
	if v, ok := snapshot[HeaderType]; ok {
		h.SetString(HeaderType, v)
	}
	for k, v := range snapshot {
		if k == HeaderType {
			continue
		}
		h.SetString(k, v)
	}
	return h
}

// Envelope is the transient record passed through one middleware
// traversal. Message is the typed business object (nil after a failed
// deserialize); Payload is immutable once serialization has completed.
type Envelope struct {
	// Message is the typed business object carried through the chain.
	Message any

	// Key is the partitioning key, or "" for "no key".
	Key    string
	HasKey bool

	// Headers always contains $type once Serialize has run.
	Headers *Headers

	// Payload is the serialized wire form. Downstream stages must treat it
	// as read-only.
	Payload []byte

	// WeakTarget references the persisted outbox row this envelope was
	// rehydrated from, set only on the outbox-drain replay path.
	WeakTarget *OutboxRef

	// TypeID is the stable, compact identifier this message type was
	// registered under (see pkg/serializer), used to route outbox rows
	// back to their typed pipeline without reflection.
	TypeID string
}

// New builds an envelope around a business message, with fresh empty
// headers.
func New(message any, typeID string) *Envelope {
	return &Envelope{
		Message: message,
		Headers: NewHeaders(),
		TypeID:  typeID,
	}
}

// OutboxRef is a lightweight back-reference to a durable outbox row,
// carried on envelopes replayed by the poll engine.
type OutboxRef struct {
	SequenceNumber int64
	Retries        int
}
