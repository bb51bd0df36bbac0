// Package coordination implements the outbox poll engine's leader-election
// strategies (spec.md §4.6).
package coordination

import "gorm.io/gorm"

// Strategy scopes the poll engine's row query to whatever this node is
// allowed to read. A false second return means "do not touch the
// database at all this tick" — the literal interpretation of
// spec.md §4.6's "the database is never touched" for a non-leader node.
type Strategy interface {
	Scope(db *gorm.DB) (*gorm.DB, bool)
}

// SingleNode always scopes to the full table: every node drains
// (spec.md §4.6). Used for single-instance deployments.
type SingleNode struct{}

func (SingleNode) Scope(db *gorm.DB) (*gorm.DB, bool) {
	return db, true
}
