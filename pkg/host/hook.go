package host

import (
	"context"

	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/outbox"
	"github.com/txkafka/txkafka/pkg/txscope"
)

// SaveChangesHook wraps a business save in the host's transaction and
// drains a Scope's queued Publish commands around it, resolving the
// literal ordering of spec.md §4.11 against §4.4's "insert into the
// host's current transaction": outbox commands enlist in the same
// transaction as the business save (so an ImmediateWithFallback produce
// still happens before commit, per §4.4); forget commands, which never
// touch the transaction, only run once commit has actually succeeded.
type SaveChangesHook struct {
	db     *gorm.DB
	engine *outbox.PollEngine
}

// NewSaveChangesHook binds db to the poll engine it should lazily start
// the first time a save queues at least one outbox command. engine may be
// nil if no registered type uses the outbox.
func NewSaveChangesHook(db *gorm.DB, engine *outbox.PollEngine) *SaveChangesHook {
	return &SaveChangesHook{db: db, engine: engine}
}

// Save runs businessSave inside one transaction together with every
// outbox-bound command queued on scope, then, only after that transaction
// commits, runs every forget-bound command. A failure in businessSave or
// in any outbox command rolls back the whole transaction; a post-commit
// forget failure is logged, never rolled back (the business effect has
// already committed).
func (h *SaveChangesHook) Save(ctx context.Context, scope *Scope, businessSave func(tx *gorm.DB) error) error {
	preCommit, postCommit := scope.Drain()

	err := h.db.Transaction(func(tx *gorm.DB) error {
		txCtx := txscope.With(ctx, tx)
		if err := businessSave(tx); err != nil {
			return err
		}
		for _, cmd := range preCommit {
			if err := cmd.Run(txCtx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, cmd := range postCommit {
		if err := cmd.Run(ctx); err != nil {
			logger.L().ErrorContext(ctx, "post-commit publish failed", "error", err)
		}
	}

	if len(preCommit) > 0 && h.engine != nil {
		h.engine.Start(context.Background())
	}

	return nil
}
