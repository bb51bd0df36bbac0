// Package inbox implements the consumer-side deduplication stage
// (spec.md §4.10): a fingerprint of a message's business keys is inserted
// into the host's transaction; a unique-index violation means the event
// was already processed, so the handler never runs twice.
package inbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/gormstore"
	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/txscope"
)

// NewStage builds the dedup stage for one message type. It must run with
// a transaction attached via txscope.With, so the inbox row commits
// atomically with the handler's own side effects (spec.md §4.10 step 5).
func NewStage[T any](typeID string, dedup config.DedupConfig[T]) middleware.Stage {
	return middleware.StageFunc{
		Name: "inbox-dedup",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			if !dedup.Enabled || dedup.FingerprintAccessor == nil {
				return next(ctx, env)
			}

			msg, ok := env.Message.(T)
			if !ok {
				logger.L().WarnContext(ctx, "inbox dedup: message is not the registered type, degrading to no dedup", "type", typeID)
				return next(ctx, env)
			}

			projection, ok := safeProject(ctx, dedup.FingerprintAccessor, msg)
			if !ok {
				return next(ctx, env)
			}

			fp, err := Fingerprint(projection)
			if err != nil {
				logger.L().WarnContext(ctx, "inbox dedup: failed to compute fingerprint, degrading to no dedup", "type", typeID, "error", err)
				return next(ctx, env)
			}

			tx, ok := txscope.From(ctx)
			if !ok {
				return errPersistFailed(errNoActiveTransaction)
			}

			row := &gormstore.InboxRow{Fingerprint: fp, TypeID: typeID, ReceivedAt: time.Now()}
			if dedup.RetentionWindow > 0 {
				expires := row.ReceivedAt.Add(dedup.RetentionWindow)
				row.ExpiredAt = &expires
			}

			if err := tx.Create(row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return nil
				}
				return errPersistFailed(err)
			}

			return next(ctx, env)
		},
	}
}

// safeProject runs accessor under recover, so an accessor panic degrades
// to no-dedup instead of crashing the consumer worker (spec.md §4.10 edge
// case: "if the fingerprint accessor throws... degrades to no dedup").
func safeProject[T any](ctx context.Context, accessor func(T) any, msg T) (projection any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().WarnContext(ctx, "inbox dedup: fingerprint accessor panicked, degrading to no dedup", "panic", r)
			ok = false
		}
	}()
	return accessor(msg), true
}
