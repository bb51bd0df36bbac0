// Package json provides the built-in JSON serializer.Codec, the default
// wire format when a message type doesn't register a custom codec.
package json

import (
	"encoding/json"
	"reflect"

	"github.com/txkafka/txkafka/pkg/envelope"
)

// Codec marshals/unmarshals T via encoding/json.
type Codec[T any] struct{}

// New returns a JSON codec for T.
func New[T any]() *Codec[T] {
	return &Codec[T]{}
}

func (c *Codec[T]) Serialize(_ *envelope.Headers, message any) ([]byte, error) {
	return json.Marshal(message)
}

func (c *Codec[T]) Deserialize(_ *envelope.Headers, payload []byte) (any, error) {
	var zero T
	target := reflect.New(reflect.TypeOf(zero)).Interface()
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, err
	}
	return reflect.ValueOf(target).Elem().Interface(), nil
}
