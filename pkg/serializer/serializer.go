// Package serializer defines the codec contract used by the producer and
// consumer pipelines, plus the per-type registry that selects a codec and
// stamps $type / $runtimeType headers.
//
// Concrete codecs live in sub-packages under adapters/ (adapters/json is
// the built-in default); user-supplied codecs only need to satisfy Codec.
package serializer

import (
	"reflect"
	"sync"

	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/errors"
)

// Error codes for serializer operations.
const (
	CodeSerializeFailed    = "TXKAFKA_SERIALIZE_FAILED"
	CodeDeserializeFailed  = "TXKAFKA_DESERIALIZE_FAILED"
	CodeUnknownType        = "TXKAFKA_UNKNOWN_TYPE"
	CodeTypeAlreadyBound   = "TXKAFKA_TYPE_ALREADY_BOUND"
)

// Codec serializes and deserializes a message's payload. Implementations
// must be stateless after construction and safe for concurrent use.
type Codec interface {
	// Serialize writes message to wire bytes, given the header set being
	// built for this produce (so a codec may add its own headers, though
	// $type/$runtimeType are always added by the registry).
	Serialize(headers *envelope.Headers, message any) ([]byte, error)

	// Deserialize reads payload back into a new instance of the
	// registered Go type, given the headers (so $runtimeType can select a
	// polymorphic subtype).
	Deserialize(headers *envelope.Headers, payload []byte) (any, error)
}

// typeBinding is what the registry knows about one registered message type.
type typeBinding struct {
	typeID   string
	compile  string
	goType   reflect.Type
	codec    Codec
}

// Registry maps registered message types to their codec and stable TypeID,
// and is the single place that knows how to route a wire record back to a
// Go type without reflection on the hot path.
type Registry struct {
	mu        sync.RWMutex
	byTypeID  map[string]*typeBinding
	byGoType  map[reflect.Type]*typeBinding
}

// NewRegistry returns an empty serializer registry.
func NewRegistry() *Registry {
	return &Registry{
		byTypeID: make(map[string]*typeBinding),
		byGoType: make(map[reflect.Type]*typeBinding),
	}
}

// Register binds a Go type to a codec under a stable typeID (used as the
// $type header value and as the outbox row's type_id). Registering the
// same typeID twice is a configuration error.
func Register[T any](r *Registry, typeID string, codec Codec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTypeID[typeID]; exists {
		return errors.New(CodeTypeAlreadyBound, "message type already registered: "+typeID, nil)
	}

	var zero T
	goType := reflect.TypeOf(zero)
	binding := &typeBinding{typeID: typeID, compile: typeID, goType: goType, codec: codec}
	r.byTypeID[typeID] = binding
	r.byGoType[goType] = binding
	return nil
}

// Serialize looks up the codec for message's concrete Go type, serializes
// it, and stamps $type (and $runtimeType if the runtime type differs from
// the compile-time registration) on headers.
func (r *Registry) Serialize(headers *envelope.Headers, message any) ([]byte, string, error) {
	goType := reflect.TypeOf(message)

	r.mu.RLock()
	binding, ok := r.byGoType[goType]
	r.mu.RUnlock()
	if !ok {
		return nil, "", errors.New(CodeUnknownType, "no codec registered for type", nil)
	}

	payload, err := binding.codec.Serialize(headers, message)
	if err != nil {
		return nil, "", errors.New(CodeSerializeFailed, "failed to serialize message", err)
	}

	headers.SetString(envelope.HeaderType, binding.compile)
	if goType != binding.goType {
		headers.SetString(envelope.HeaderRuntimeType, goType.String())
	}
	return payload, binding.typeID, nil
}

// Deserialize selects a codec by the $type header, then deserializes
// payload. The registry does not read $runtimeType; the headers are passed
// on to the codec unchanged.
func (r *Registry) Deserialize(headers *envelope.Headers, payload []byte) (any, string, error) {
	typeID := headers.GetString(envelope.HeaderType)

	r.mu.RLock()
	binding, ok := r.byTypeID[typeID]
	r.mu.RUnlock()
	if !ok {
		return nil, "", errors.New(CodeUnknownType, "no codec registered for $type: "+typeID, nil)
	}

	message, err := binding.codec.Deserialize(headers, payload)
	if err != nil {
		return nil, "", errors.New(CodeDeserializeFailed, "failed to deserialize message", err)
	}
	return message, binding.typeID, nil
}

// Lookup reports whether typeID has been registered.
func (r *Registry) Lookup(typeID string) (exists bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists = r.byTypeID[typeID]
	return exists
}
