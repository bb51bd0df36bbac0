// Package txscope attaches the host's in-flight database transaction to a
// context.Context so chain stages several calls deep (outbox insert, inbox
// insert) can write into it without any stage holding a reference to the
// host's DbContext-equivalent directly.
//
// This replaces the source's "global registry / ambient scoped state"
// pattern (spec.md §9 redesign note) with an explicit value carried on the
// context, the idiomatic Go substitute for ambient scoping.
package txscope

import (
	"context"

	"gorm.io/gorm"
)

type key struct{}

// With returns a context carrying tx as the active transaction.
func With(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, key{}, tx)
}

// From returns the active transaction attached to ctx, if any. Stages that
// require transactional persistence (outbox insert, inbox insert) treat a
// missing transaction as a configuration error: they must never silently
// fall back to an un-enlisted connection.
func From(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(key{}).(*gorm.DB)
	return tx, ok
}
