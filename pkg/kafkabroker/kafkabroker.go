// Package kafkabroker defines the contract this module needs from a Kafka
// client: produce-with-delivery-callback, subscribe/poll/pause/resume/
// store-offset, and admin CreateTopics/GetMetadata (spec.md §6). The
// concrete binding lives in adapters/sarama, built on the teacher's only
// Kafka dependency, github.com/IBM/sarama.
package kafkabroker

import (
	"context"
	"time"
)

// DeliveryReport is handed to a produce callback once the broker has
// acknowledged (or failed) one record.
type DeliveryReport struct {
	Timestamp time.Time
	Partition int32
	Offset    int64
	Err       error
}

// DeliveryCallback receives the outcome of one Produce call. It may run on
// a different goroutine than the caller of Produce.
type DeliveryCallback func(DeliveryReport)

// ProducerClient is the non-blocking produce surface.
type ProducerClient interface {
	// Produce enqueues one record. hasKey distinguishes "no key" (false)
	// from an explicit empty-string key (true, key == "").
	Produce(topic string, key []byte, hasKey bool, value []byte, headers map[string][]byte, onDelivery DeliveryCallback) error

	// Flush blocks until every Produce call issued so far has been
	// acknowledged (success or error), or timeout elapses.
	Flush(timeout time.Duration) error

	Close() error
}

// Record is one consumed Kafka record.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// ConsumerClient is the poll-based consume surface. Poll returns (nil, nil)
// on a timeout with no record available — callers use this to drive a
// regular heartbeat-preserving loop even while paused.
type ConsumerClient interface {
	Subscribe(topics []string) error

	Poll(ctx context.Context, timeout time.Duration) (*Record, error)

	// Pause/Resume act on whichever partitions of these topics are
	// currently assigned to this process; the consumer poll loop tracks
	// backpressure per type, not per partition, so it has no reason to
	// know partition numbers itself.
	Pause(topics []string) error
	Resume(topics []string) error

	// StoreOffset marks offset as partition's next read position (callers
	// pass the consumed record's offset + 1), to be committed on the
	// client's normal commit cadence.
	StoreOffset(topic string, partition int32, offset int64) error

	Close() error
}

// TopicSpec describes a topic to create.
type TopicSpec struct {
	Name              string
	NumPartitions     int32
	ReplicationFactor int16
}

// TopicMetadata describes the partitions of one topic.
type TopicMetadata struct {
	Name       string
	Partitions []int32
}

// AdminClient is the administrative surface used only for the coordination
// topic's auto-provisioning (spec.md §4.6); general topic lifecycle
// management is out of scope (spec.md §1).
type AdminClient interface {
	CreateTopics(ctx context.Context, specs []TopicSpec, timeout time.Duration) error
	GetMetadata(ctx context.Context, topic string, timeout time.Duration) (*TopicMetadata, error)
	Close() error
}

// Broker bundles the three client surfaces behind one process-singleton, as
// required by spec.md §5 ("creating new producer/consumer instances per
// message is forbidden"). Module wiring (pkg/txkafka) takes one Broker and
// hands the same Producer/Consumer/Admin to every typed pipeline.
type Broker struct {
	Producer ProducerClient
	Consumer ConsumerClient
	Admin    AdminClient
}

// NewBroker assembles a Broker from already-constructed clients (typically
// the sarama adapters in adapters/sarama).
func NewBroker(producer ProducerClient, consumer ConsumerClient, admin AdminClient) *Broker {
	return &Broker{Producer: producer, Consumer: consumer, Admin: admin}
}

// Close closes all three underlying clients, collecting the first error
// encountered but attempting to close every client regardless.
func (b *Broker) Close() error {
	var first error
	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.Admin != nil {
		if err := b.Admin.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
