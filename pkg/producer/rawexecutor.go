package producer

import (
	"context"

	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/kafkabroker"
)

// NewRawExecutor returns a dispatcher that skips straight to the
// kafka-produce stage, for re-publishing an envelope rehydrated from a
// persisted outbox row (spec.md §4.5 step 3: "dispatch to its typed
// producer pipeline, skipping the outbox stage — the row is already
// persisted"). The row's stored headers already carry traceparent, so
// nothing upstream of kafka-produce needs to run again.
func NewRawExecutor(client kafkabroker.ProducerClient, topic string) func(ctx context.Context, env *envelope.Envelope) error {
	stage := kafkaProduceStage(client, topic)
	terminal := func(ctx context.Context, env *envelope.Envelope) error { return nil }
	return func(ctx context.Context, env *envelope.Envelope) error {
		return stage.Invoke(ctx, env, terminal)
	}
}
