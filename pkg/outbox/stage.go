package outbox

import (
	"context"
	"time"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/gormstore"
	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/txscope"
)

// NewStage builds the outbox-persistence stage for one message type
// (spec.md §4.4). It must run with a transaction attached to ctx via
// txscope.With — the host save-changes hook is responsible for that.
//
// BackgroundOnly never calls next: the row is left for the poll engine.
// ImmediateWithFallback calls next (kafka-produce) before returning; on
// success it marks the row done in the same transaction, on failure it
// leaves the row pending (and swallows the produce error, the same way
// forget does, since the row itself is now the retry mechanism).
func NewStage(topic string, strategy config.OutboxStrategy) middleware.Stage {
	return middleware.StageFunc{
		Name: "outbox",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			tx, ok := txscope.From(ctx)
			if !ok {
				return errPersistFailed(errNoActiveTransaction)
			}

			row, err := gormstore.NewOutboxRow(topic, env)
			if err != nil {
				return errPersistFailed(err)
			}
			if err := tx.Create(row).Error; err != nil {
				return errPersistFailed(err)
			}
			env.WeakTarget = &envelope.OutboxRef{SequenceNumber: row.SequenceNumber}

			if strategy == config.OutboxBackgroundOnly {
				return nil
			}

			if err := next(ctx, env); err != nil {
				logger.L().WarnContext(ctx, "immediate outbox publish failed, leaving row for poll engine", "sequence_number", row.SequenceNumber, "error", err)
				return nil
			}

			now := time.Now()
			if err := tx.Model(row).Updates(map[string]any{"is_success": true, "processed_at": &now}).Error; err != nil {
				return errPersistFailed(err)
			}
			return nil
		},
	}
}
